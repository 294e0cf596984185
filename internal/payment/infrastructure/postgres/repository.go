package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marketfleet/Payment-Settlement-Service/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// OrderStore is the pgx-backed capability over the marketplace orders
// table. This subsystem is the only writer of the payment field subset.
type OrderStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewOrderStore(log *slog.Logger, pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{log: log, pool: pool}
}

func (s *OrderStore) Get(ctx context.Context, orderID string) (domain.Order, error) {
	var o domain.Order
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, customer_name, email, total_cents, status,
		       payment_status, payment_verified, payment_completed_at,
		       gateway_payment_id, created_at, updated_at
		FROM orders WHERE id=$1`, orderID).
		Scan(&o.ID, &o.UserID, &o.CustomerName, &o.Email, &o.TotalCents, &o.Status,
			&o.PaymentStatus, &o.PaymentVerified, &o.PaymentCompletedAt,
			&o.GatewayPaymentID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return o, nil
}

// Settle locks the order row, computes the transition against the status
// read under the lock, and applies it together with the outbox event in
// one transaction. Two concurrent notifications for the same order cannot
// both observe pending_payment; the loser sees the new status and no-ops.
func (s *OrderStore) Settle(ctx context.Context, outcome domain.SettlementOutcome) (domain.SettlementResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.SettlementResult{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var current domain.OrderStatus
	var totalCents int64
	err = tx.QueryRow(ctx,
		`SELECT status, total_cents FROM orders WHERE id=$1 FOR UPDATE`, outcome.OrderID).
		Scan(&current, &totalCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SettlementResult{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("lock order %s: %w", outcome.OrderID, err)
	}

	tr := domain.Settle(current, outcome.Outcome)
	res := domain.SettlementResult{
		PreviousStatus:   current,
		NewStatus:        tr.NewStatus,
		Conflict:         tr.Conflict,
		GatewayPaymentID: outcome.GatewayPaymentID,
	}
	if !tr.Apply {
		return res, tx.Commit(ctx)
	}

	var completedAt *time.Time
	if tr.Completed {
		now := time.Now().UTC()
		completedAt = &now
	}
	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status=$2, payment_status=$3, payment_verified=true,
		    gateway_payment_id=$4,
		    payment_completed_at=COALESCE($5, payment_completed_at),
		    updated_at=now()
		WHERE id=$1`,
		outcome.OrderID, tr.NewStatus, tr.PaymentStatus, outcome.GatewayPaymentID, completedAt)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("settle order %s: %w", outcome.OrderID, err)
	}

	event := domain.PaymentSettled{
		OrderID:          outcome.OrderID,
		Outcome:          outcome.Outcome,
		GatewayPaymentID: outcome.GatewayPaymentID,
		AmountCents:      totalCents,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return domain.SettlementResult{}, err
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := map[string]string{"source": "settlement-service"}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		"order", outcome.OrderID, "PaymentSettled", payload, headers, carrier["traceparent"])
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("enqueue settlement event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.SettlementResult{}, err
	}
	res.Updated = true
	res.PaymentStatus = tr.PaymentStatus
	return res, nil
}

// AuditSink appends one row per received notification, whatever the
// verification verdict.
type AuditSink struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewAuditSink(log *slog.Logger, pool *pgxpool.Pool) *AuditSink {
	return &AuditSink{log: log, pool: pool}
}

func (s *AuditSink) Record(ctx context.Context, rec domain.AuditRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_notifications
			(order_ref, gateway_payment_id, payment_status, raw_body, source_ip,
			 verified, reject_reason, environment, received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.OrderRef, rec.GatewayPaymentID, rec.PaymentStatus, rec.RawBody, rec.SourceIP,
		rec.Verified, string(rec.RejectReason), rec.Environment, rec.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/marketfleet/Payment-Settlement-Service/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Processor runs the ITN trust chain: parse, origin allowlist, signature,
// gateway confirmation, then settlement. Checks run strictly in that order
// so the cheap ones bound worst-case latency on attack traffic. Input is
// adversarial by construction; every path ends in a tagged result, never a
// panic, and every notification is audited before the caller responds.
type Processor struct {
	log       *slog.Logger
	env       string
	verifier  NotificationVerifier
	resolver  HostResolver
	confirmer GatewayConfirmer
	orders    OrderStore
	audit     AuditSink
	replays   ReplayCache
	tracer    trace.Tracer
}

func NewProcessor(
	log *slog.Logger,
	environment string,
	verifier NotificationVerifier,
	resolver HostResolver,
	confirmer GatewayConfirmer,
	orders OrderStore,
	audit AuditSink,
	replays ReplayCache,
) *Processor {
	return &Processor{
		log:       log,
		env:       environment,
		verifier:  verifier,
		resolver:  resolver,
		confirmer: confirmer,
		orders:    orders,
		audit:     audit,
		replays:   replays,
		tracer:    otel.Tracer("payment-itn"),
	}
}

// Process handles one inbound notification. The returned error is reserved
// for infrastructure faults (store unreachable, audit write failed); every
// protocol-level rejection comes back inside the result.
func (p *Processor) Process(ctx context.Context, rawBody, sourceIP string) (domain.ProcessResult, error) {
	ctx, span := p.tracer.Start(ctx, "ProcessNotification")
	defer span.End()

	received := time.Now().UTC()

	payload, err := parseBody(rawBody)
	if err != nil {
		p.log.Warn("itn body malformed", "source_ip", sourceIP, "err", err)
		return p.reject(ctx, payload, rawBody, sourceIP, received, domain.RejectMalformedBody), nil
	}

	if !p.trustedOrigin(ctx, sourceIP) {
		p.log.Warn("itn from untrusted origin", "source_ip", sourceIP, "order_ref", payload.PaymentRef())
		return p.reject(ctx, payload, rawBody, sourceIP, received, domain.RejectInvalidOrigin), nil
	}

	if !p.verifier.Verify(payload, payload.Signature()) {
		p.log.Warn("itn signature mismatch", "source_ip", sourceIP, "order_ref", payload.PaymentRef())
		return p.reject(ctx, payload, rawBody, sourceIP, received, domain.RejectSignatureMismatch), nil
	}

	// The shape checks above prove who built the message, not that the
	// gateway still vouches for this exact transaction. No order lock is
	// held across this round-trip.
	if err := p.confirmer.Confirm(ctx, payload); err != nil {
		p.log.Warn("gateway validation failed", "order_ref", payload.PaymentRef(), "err", err)
		return p.reject(ctx, payload, rawBody, sourceIP, received, domain.RejectServerValidation), nil
	}

	order, err := p.orders.Get(ctx, payload.PaymentRef())
	if err == domain.ErrOrderNotFound {
		p.log.Warn("itn for unknown order", "order_ref", payload.PaymentRef())
		return p.reject(ctx, payload, rawBody, sourceIP, received, domain.RejectUnknownOrder), nil
	}
	if err != nil {
		return domain.ProcessResult{}, fmt.Errorf("load order %s: %w", payload.PaymentRef(), err)
	}

	p.checkAmount(payload, order)

	outcome := domain.SettlementOutcome{
		OrderID:          order.ID,
		GatewayPaymentID: payload.GatewayPaymentID(),
		Outcome:          domain.OutcomeFromGatewayStatus(payload.PaymentStatus()),
		GatewayStatus:    payload.PaymentStatus(),
	}

	key := p.replayKey(payload)
	if seen, err := p.replays.Seen(ctx, key); err != nil {
		p.log.Error("replay cache unavailable", "key", key, "err", err)
	} else if seen {
		p.log.Info("itn replay, settlement skipped", "order_id", order.ID, "pf_payment_id", outcome.GatewayPaymentID)
		if err := p.recordVerified(ctx, payload, rawBody, sourceIP, received); err != nil {
			return domain.ProcessResult{}, err
		}
		return domain.Accepted(outcome, true), nil
	}

	res, err := p.orders.Settle(ctx, outcome)
	if err != nil {
		return domain.ProcessResult{}, fmt.Errorf("settle order %s: %w", order.ID, err)
	}

	switch {
	case res.Conflict:
		p.log.Error("itn conflicts with settled order",
			"order_id", order.ID, "status", res.PreviousStatus, "gateway_status", outcome.GatewayStatus)
	case res.Updated:
		p.log.Info("order settled",
			"order_id", order.ID, "from", res.PreviousStatus, "to", res.NewStatus,
			"payment_status", res.PaymentStatus, "pf_payment_id", outcome.GatewayPaymentID)
		if err := p.replays.Mark(ctx, key); err != nil {
			p.log.Error("replay mark failed", "key", key, "err", err)
		}
	default:
		p.log.Info("itn replay, no transition", "order_id", order.ID, "status", res.PreviousStatus)
	}

	if err := p.recordVerified(ctx, payload, rawBody, sourceIP, received); err != nil {
		return domain.ProcessResult{}, err
	}

	result := domain.Accepted(outcome, !res.Updated && !res.Conflict)
	result.Conflict = res.Conflict
	return result, nil
}

// parseBody decodes the x-www-form-urlencoded body into a flat map, first
// values only. '+' decodes to space ahead of percent-decoding, mirroring
// the canonical encoder.
func parseBody(rawBody string) (domain.NotificationPayload, error) {
	if rawBody == "" {
		return nil, fmt.Errorf("empty body")
	}
	values, err := url.ParseQuery(rawBody)
	if err != nil {
		return nil, err
	}
	payload := make(domain.NotificationPayload, len(values))
	for k := range values {
		payload[k] = values.Get(k)
	}
	return payload, nil
}

func (p *Processor) trustedOrigin(ctx context.Context, sourceIP string) bool {
	ip := net.ParseIP(sourceIP)
	if ip == nil {
		return false
	}
	for _, trusted := range p.resolver.TrustedIPs(ctx) {
		if trusted.Equal(ip) {
			return true
		}
	}
	return false
}

// checkAmount flags a mismatch between the payload's gross amount and the
// stored order total. Logged, not rejected: the gateway confirmation step
// already vouched for the transaction, and discounted orders legitimately
// differ. See DESIGN.md before hardening this into a rejection.
func (p *Processor) checkAmount(payload domain.NotificationPayload, order domain.Order) {
	gross, ok := payload[domain.FieldAmountGross]
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(gross, 64)
	if err != nil {
		p.log.Warn("itn amount_gross unparseable", "order_id", order.ID, "amount_gross", gross)
		return
	}
	if int64(math.Round(f*100)) != order.TotalCents {
		p.log.Warn("itn amount mismatch",
			"order_id", order.ID, "amount_gross", gross, "order_total_cents", order.TotalCents)
	}
}

func (p *Processor) replayKey(payload domain.NotificationPayload) string {
	return fmt.Sprintf("itn:%s:%s:%s", p.env, payload.GatewayPaymentID(), payload.PaymentStatus())
}

func (p *Processor) reject(ctx context.Context, payload domain.NotificationPayload, rawBody, sourceIP string, received time.Time, reason domain.RejectReason) domain.ProcessResult {
	rec := domain.AuditRecord{
		OrderRef:         payload.PaymentRef(),
		GatewayPaymentID: payload.GatewayPaymentID(),
		PaymentStatus:    payload.PaymentStatus(),
		RawBody:          rawBody,
		SourceIP:         sourceIP,
		Verified:         false,
		RejectReason:     reason,
		Environment:      p.env,
		ReceivedAt:       received,
	}
	if err := p.audit.Record(ctx, rec); err != nil {
		p.log.Error("audit record failed", "order_ref", rec.OrderRef, "err", err)
	}
	return domain.Rejected(reason)
}

func (p *Processor) recordVerified(ctx context.Context, payload domain.NotificationPayload, rawBody, sourceIP string, received time.Time) error {
	rec := domain.AuditRecord{
		OrderRef:         payload.PaymentRef(),
		GatewayPaymentID: payload.GatewayPaymentID(),
		PaymentStatus:    payload.PaymentStatus(),
		RawBody:          rawBody,
		SourceIP:         sourceIP,
		Verified:         true,
		Environment:      p.env,
		ReceivedAt:       received,
	}
	if err := p.audit.Record(ctx, rec); err != nil {
		return fmt.Errorf("audit record: %w", err)
	}
	return nil
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/marketfleet/Payment-Settlement-Service/internal/payment/application"
	"github.com/marketfleet/Payment-Settlement-Service/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const maxNotifyBody = 64 << 10

type Handler struct {
	log       *slog.Logger
	builder   *application.Builder
	processor *application.Processor
	orders    application.OrderStore
	tracer    trace.Tracer
}

func NewHandler(log *slog.Logger, builder *application.Builder, processor *application.Processor, orders application.OrderStore) *Handler {
	return &Handler{
		log:       log,
		builder:   builder,
		processor: processor,
		orders:    orders,
		tracer:    otel.Tracer("payment-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/payment/checkout", h.checkout)
	r.Post("/payment/notify", h.notify)
	r.Get("/payment/status/{orderID}", h.status)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

type checkoutReq struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

type checkoutField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type checkoutResp struct {
	TargetURL string          `json:"target_url"`
	Fields    []checkoutField `json:"fields"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Checkout")
	defer span.End()

	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	desc, err := h.builder.Build(ctx, req.OrderID, req.UserID)
	if err != nil {
		h.writeBuildError(w, req.OrderID, err)
		return
	}

	resp := checkoutResp{TargetURL: desc.TargetURL}
	for _, f := range desc.Fields {
		resp.Fields = append(resp.Fields, checkoutField{Name: f.Name, Value: f.Value})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) writeBuildError(w http.ResponseWriter, orderID string, err error) {
	var cfgErr *domain.ConfigurationError
	var valErr *domain.ValidationError
	switch {
	case errors.As(err, &cfgErr):
		h.log.Error("checkout misconfigured", "order_id", orderID, "err", err)
		http.Error(w, "payment gateway unavailable", http.StatusInternalServerError)
	case errors.As(err, &valErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrOrderNotFound):
		http.Error(w, "order not found", http.StatusNotFound)
	default:
		h.log.Error("checkout failed", "order_id", orderID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) notify(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Notify")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotifyBody))
	if err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	// The gateway retries on non-200, so once a notification is in, its
	// side effect must be resolved even if the gateway hangs up early.
	result, err := h.processor.Process(context.WithoutCancel(ctx), string(body), clientIP(r))
	if err != nil {
		h.log.Error("notification processing failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if !result.OK() {
		code := http.StatusBadRequest
		if result.Rejected == domain.RejectUnknownOrder {
			code = http.StatusNotFound
		}
		http.Error(w, string(result.Rejected), code)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type statusResp struct {
	OrderID              string `json:"orderId"`
	Status               string `json:"status"`
	PaymentStatus        string `json:"paymentStatus"`
	PaymentCompleted     bool   `json:"paymentCompleted"`
	GatewayTransactionID string `json:"gatewayTransactionId"`
}

// status is the synchronous settlement query. It reads the order store
// only; the gateway is never consulted here.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PaymentStatus")
	defer span.End()

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	orderID := chi.URLParam(r, "orderID")
	order, err := h.orders.Get(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) || (err == nil && order.UserID != userID) {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("status lookup failed", "order_id", orderID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statusResp{
		OrderID:              order.ID,
		Status:               string(order.Status),
		PaymentStatus:        string(order.PaymentStatus),
		PaymentCompleted:     order.PaymentCompletedAt != nil,
		GatewayTransactionID: order.GatewayPaymentID,
	})
}

// clientIP honors the forwarded-for chain ahead of the raw connection
// address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

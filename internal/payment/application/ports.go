package application

import (
	"context"
	"net"

	"github.com/marketfleet/Payment-Settlement-Service/internal/payment/domain"
)

// OrderStore is the capability this subsystem holds over the external
// order record store: read one field subset, settle another.
type OrderStore interface {
	Get(ctx context.Context, orderID string) (domain.Order, error)
	// Settle applies the settlement transition under a per-order lock and
	// records the settlement event atomically with the status write.
	Settle(ctx context.Context, outcome domain.SettlementOutcome) (domain.SettlementResult, error)
}

// AuditSink durably records a notification before the gateway gets its
// HTTP response.
type AuditSink interface {
	Record(ctx context.Context, rec domain.AuditRecord) error
}

// NotificationVerifier checks a payload's own signature field against the
// merchant secret.
type NotificationVerifier interface {
	Verify(params map[string]string, claimed string) bool
}

// HostResolver resolves the gateway host allowlist to its current IP set.
// Resolution happens per request; an unresolvable host contributes no
// addresses rather than failing the whole check.
type HostResolver interface {
	TrustedIPs(ctx context.Context) []net.IP
}

// GatewayConfirmer re-posts a received field set to the gateway's
// validation endpoint. A nil return means the gateway vouches for the
// transaction.
type GatewayConfirmer interface {
	Confirm(ctx context.Context, params map[string]string) error
}

// ReplayCache remembers gateway payment ids that already settled, so
// duplicate deliveries can short-circuit to a no-op without touching the
// order row. Marking happens only after the settlement is durable.
type ReplayCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

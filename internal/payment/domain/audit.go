package domain

import "time"

// AuditRecord is the append-only trail row written for every received
// notification, trusted or not. Dispute resolution depends on the raw body
// surviving exactly as delivered.
type AuditRecord struct {
	OrderRef         string
	GatewayPaymentID string
	PaymentStatus    string
	RawBody          string
	SourceIP         string
	Verified         bool
	RejectReason     RejectReason
	Environment      string
	ReceivedAt       time.Time
}

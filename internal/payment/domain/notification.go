package domain

// Gateway field names used by the ITN payload. The payload may carry more
// (fee breakdowns, buyer tokens); extras are ignored for processing but
// still participate in signature verification.
const (
	FieldPaymentRef       = "m_payment_id"
	FieldGatewayPaymentID = "pf_payment_id"
	FieldPaymentStatus    = "payment_status"
	FieldAmountGross      = "amount_gross"
	FieldSignature        = "signature"
)

// Gateway payment status codes as they appear on the wire.
const (
	GatewayStatusComplete  = "COMPLETE"
	GatewayStatusFailed    = "FAILED"
	GatewayStatusCancelled = "CANCELLED"
)

// NotificationPayload is the flat field set parsed from an ITN body.
// Untrusted until the full verification chain has passed.
type NotificationPayload map[string]string

func (p NotificationPayload) PaymentRef() string       { return p[FieldPaymentRef] }
func (p NotificationPayload) GatewayPaymentID() string { return p[FieldGatewayPaymentID] }
func (p NotificationPayload) PaymentStatus() string    { return p[FieldPaymentStatus] }
func (p NotificationPayload) Signature() string        { return p[FieldSignature] }

type Outcome string

const (
	OutcomePaid         Outcome = "paid"
	OutcomeFailed       Outcome = "failed"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeUnrecognized Outcome = "unrecognized"
)

// OutcomeFromGatewayStatus maps the wire status onto a settlement outcome.
// Unknown codes pass through as Unrecognized so policy stays downstream.
func OutcomeFromGatewayStatus(status string) Outcome {
	switch status {
	case GatewayStatusComplete:
		return OutcomePaid
	case GatewayStatusFailed:
		return OutcomeFailed
	case GatewayStatusCancelled:
		return OutcomeCancelled
	default:
		return OutcomeUnrecognized
	}
}

// SettlementOutcome is the trusted result of a fully verified notification.
type SettlementOutcome struct {
	OrderID          string
	GatewayPaymentID string
	Outcome          Outcome
	GatewayStatus    string
}

type RejectReason string

const (
	RejectMalformedBody     RejectReason = "malformed body"
	RejectInvalidOrigin     RejectReason = "invalid origin"
	RejectSignatureMismatch RejectReason = "signature mismatch"
	RejectServerValidation  RejectReason = "server validation failed"
	RejectUnknownOrder      RejectReason = "unknown order reference"
)

// ProcessResult is the tagged outcome of handling one inbound notification.
// A rejected notification is the normal operating mode for this endpoint,
// not an error condition.
type ProcessResult struct {
	Outcome  *SettlementOutcome
	Rejected RejectReason
	Replay   bool
	// Conflict marks a notification that contradicts an already-settled
	// order; answered as success so the gateway stops retrying.
	Conflict bool
}

func Accepted(outcome SettlementOutcome, replay bool) ProcessResult {
	return ProcessResult{Outcome: &outcome, Replay: replay}
}

func Rejected(reason RejectReason) ProcessResult {
	return ProcessResult{Rejected: reason}
}

func (r ProcessResult) OK() bool { return r.Outcome != nil }

package domain

// PaymentSettled is emitted via the outbox after a settlement transition
// actually changed the order. Downstream consumers (mail, discount ledger)
// react to it instead of being called directly by this service.
type PaymentSettled struct {
	OrderID          string  `json:"order_id"`
	Outcome          Outcome `json:"outcome"`
	GatewayPaymentID string  `json:"gateway_payment_id"`
	AmountCents      int64   `json:"amount_cents"`
}

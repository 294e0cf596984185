package domain

import "time"

type OrderStatus string

const (
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusPending        OrderStatus = "pending"
	StatusPaymentFailed  OrderStatus = "payment_failed"
	StatusCancelled      OrderStatus = "cancelled"
	StatusDelivered      OrderStatus = "delivered"
)

type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "unpaid"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Order is the field subset of the marketplace order this subsystem reads
// and settles. The order itself is created by checkout and owned by the
// order store; only payment_status and its companions are written here.
type Order struct {
	ID                 string
	UserID             string
	CustomerName       string
	Email              string
	TotalCents         int64
	Status             OrderStatus
	PaymentStatus      PaymentStatus
	PaymentVerified    bool
	PaymentCompletedAt *time.Time
	GatewayPaymentID   string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

package domain

// Transition is the decision for one settlement attempt against the
// order's current status.
type Transition struct {
	Apply         bool
	NewStatus     OrderStatus
	PaymentStatus PaymentStatus
	Completed     bool
	// Conflict marks a notification that contradicts an already-settled
	// order (e.g. FAILED after paid). Answered as success to stop gateway
	// retries; the inconsistency is a data-integrity concern, not ours.
	Conflict bool
}

// Settle computes the status transition for an outcome. Pure; the store is
// responsible for applying it under a per-order lock.
func Settle(current OrderStatus, outcome Outcome) Transition {
	if current == StatusPendingPayment {
		switch outcome {
		case OutcomePaid:
			return Transition{Apply: true, NewStatus: StatusPending, PaymentStatus: PaymentPaid, Completed: true}
		case OutcomeFailed:
			return Transition{Apply: true, NewStatus: StatusPaymentFailed, PaymentStatus: PaymentFailed}
		case OutcomeCancelled:
			return Transition{Apply: true, NewStatus: StatusCancelled, PaymentStatus: PaymentCancelled}
		default:
			// Unrecognized gateway status: leave the order untouched.
			return Transition{NewStatus: current}
		}
	}

	// Already past pending_payment. A replayed Paid against a paid order is
	// an idempotent no-op; a Failed or Cancelled against a paid order would
	// move it backwards and is a conflict.
	if current == StatusPending {
		if outcome == OutcomePaid {
			return Transition{NewStatus: current}
		}
		return Transition{NewStatus: current, Conflict: true}
	}

	// Every other status is terminal for this subsystem: replays no-op.
	return Transition{NewStatus: current}
}

// SettlementResult reports what the store actually did.
type SettlementResult struct {
	Updated          bool
	PreviousStatus   OrderStatus
	NewStatus        OrderStatus
	PaymentStatus    PaymentStatus
	Conflict         bool
	GatewayPaymentID string
}

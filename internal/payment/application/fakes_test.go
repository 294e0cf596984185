package application

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/marketfleet/Payment-Settlement-Service/internal/payment/domain"
)

type fakeOrders struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	// settleCalls and writes let tests assert idempotency: a replay may
	// call Settle but must not produce a write.
	settleCalls int
	writes      int
	getErr      error
}

func newFakeOrders(orders ...domain.Order) *fakeOrders {
	m := make(map[string]domain.Order, len(orders))
	for _, o := range orders {
		m[o.ID] = o
	}
	return &fakeOrders{orders: m}
}

func (f *fakeOrders) Get(_ context.Context, orderID string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.Order{}, f.getErr
	}
	o, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeOrders) Settle(_ context.Context, outcome domain.SettlementOutcome) (domain.SettlementResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settleCalls++

	o, ok := f.orders[outcome.OrderID]
	if !ok {
		return domain.SettlementResult{}, domain.ErrOrderNotFound
	}

	tr := domain.Settle(o.Status, outcome.Outcome)
	res := domain.SettlementResult{
		PreviousStatus:   o.Status,
		NewStatus:        tr.NewStatus,
		Conflict:         tr.Conflict,
		GatewayPaymentID: outcome.GatewayPaymentID,
	}
	if !tr.Apply {
		return res, nil
	}

	o.Status = tr.NewStatus
	o.PaymentStatus = tr.PaymentStatus
	o.PaymentVerified = true
	o.GatewayPaymentID = outcome.GatewayPaymentID
	f.orders[o.ID] = o
	f.writes++
	res.Updated = true
	res.PaymentStatus = tr.PaymentStatus
	return res, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	records []domain.AuditRecord
	err     error
}

func (f *fakeAudit) Record(_ context.Context, rec domain.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeAudit) last(t *testing.T) domain.AuditRecord {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) == 0 {
		t.Fatal("no audit record written")
	}
	return f.records[len(f.records)-1]
}

// fakeVerifier fails the test when invoked unexpectedly, which is how the
// check-ordering tests observe short-circuiting.
type fakeVerifier struct {
	t        *testing.T
	result   bool
	forbid   bool
	invoked  bool
}

func (f *fakeVerifier) Verify(map[string]string, string) bool {
	f.invoked = true
	if f.forbid {
		f.t.Fatal("signature verification ran before origin check passed")
	}
	return f.result
}

type fakeResolver struct {
	ips []net.IP
}

func (f *fakeResolver) TrustedIPs(context.Context) []net.IP { return f.ips }

type fakeConfirmer struct {
	err   error
	calls int
}

func (f *fakeConfirmer) Confirm(context.Context, map[string]string) error {
	f.calls++
	return f.err
}

type fakeReplays struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newFakeReplays() *fakeReplays { return &fakeReplays{seen: map[string]bool{}} }

func (f *fakeReplays) Seen(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.seen[key], nil
}

func (f *fakeReplays) Mark(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.seen[key] = true
	return nil
}

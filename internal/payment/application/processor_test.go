package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/url"
	"testing"

	"github.com/marketfleet/Payment-Settlement-Service/internal/payment/domain"
	"github.com/marketfleet/Payment-Settlement-Service/internal/payment/signing"
)

const trustedIP = "197.97.145.144"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type processorEnv struct {
	processor *Processor
	orders    *fakeOrders
	audit     *fakeAudit
	confirmer *fakeConfirmer
	replays   *fakeReplays
	signer    *signing.Signer
}

func newProcessorEnv(t *testing.T, orders ...domain.Order) *processorEnv {
	t.Helper()
	env := &processorEnv{
		orders:    newFakeOrders(orders...),
		audit:     &fakeAudit{},
		confirmer: &fakeConfirmer{},
		replays:   newFakeReplays(),
		signer:    signing.NewSigner("jt7NOE43FZPn"),
	}
	env.processor = NewProcessor(
		testLogger(),
		"sandbox",
		env.signer,
		&fakeResolver{ips: []net.IP{net.ParseIP(trustedIP)}},
		env.confirmer,
		env.orders,
		env.audit,
		env.replays,
	)
	return env
}

// signedBody builds an ITN form body whose signature verifies against the
// environment's signer.
func (e *processorEnv) signedBody(params map[string]string) string {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set(domain.FieldSignature, e.signer.Sign(params))
	return form.Encode()
}

func itnParams(status string) map[string]string {
	return map[string]string{
		domain.FieldPaymentRef:       "abc123",
		domain.FieldGatewayPaymentID: "1089250",
		domain.FieldPaymentStatus:    status,
		domain.FieldAmountGross:      "150.00",
	}
}

func TestProcessSettlesOrder(t *testing.T) {
	env := newProcessorEnv(t, testOrder())
	body := env.signedBody(itnParams(domain.GatewayStatusComplete))

	res, err := env.processor.Process(context.Background(), body, trustedIP)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.OK() || res.Replay || res.Conflict {
		t.Fatalf("result = %+v, want accepted first delivery", res)
	}
	if res.Outcome.Outcome != domain.OutcomePaid {
		t.Errorf("outcome = %s, want paid", res.Outcome.Outcome)
	}
	if res.Outcome.GatewayPaymentID != "1089250" {
		t.Errorf("gateway payment id = %s", res.Outcome.GatewayPaymentID)
	}

	if env.orders.writes != 1 {
		t.Errorf("order writes = %d, want 1", env.orders.writes)
	}
	o, _ := env.orders.Get(context.Background(), "abc123")
	if o.Status != domain.StatusPending || o.PaymentStatus != domain.PaymentPaid {
		t.Errorf("order after settle: status=%s payment=%s", o.Status, o.PaymentStatus)
	}

	rec := env.audit.last(t)
	if !rec.Verified || rec.OrderRef != "abc123" || rec.SourceIP != trustedIP {
		t.Errorf("audit record = %+v", rec)
	}
	if seen, _ := env.replays.Seen(context.Background(), "itn:sandbox:1089250:COMPLETE"); !seen {
		t.Error("settled transaction not marked in replay cache")
	}
}

func TestProcessFailedOutcome(t *testing.T) {
	env := newProcessorEnv(t, testOrder())
	body := env.signedBody(itnParams(domain.GatewayStatusFailed))

	res, err := env.processor.Process(context.Background(), body, trustedIP)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.OK() || res.Outcome.Outcome != domain.OutcomeFailed {
		t.Fatalf("result = %+v, want failed outcome", res)
	}
	o, _ := env.orders.Get(context.Background(), "abc123")
	if o.Status != domain.StatusPaymentFailed {
		t.Errorf("status = %s, want payment_failed", o.Status)
	}
}

func TestProcessMalformedBody(t *testing.T) {
	env := newProcessorEnv(t, testOrder())
	for _, body := range []string{"", "a=%zz&b"} {
		res, err := env.processor.Process(context.Background(), body, trustedIP)
		if err != nil {
			t.Fatalf("Process(%q): %v", body, err)
		}
		if res.Rejected != domain.RejectMalformedBody {
			t.Errorf("body %q: rejected = %q, want malformed body", body, res.Rejected)
		}
	}
	if env.confirmer.calls != 0 {
		t.Error("gateway confirmation ran for malformed input")
	}
	if rec := env.audit.last(t); rec.Verified || rec.RejectReason != domain.RejectMalformedBody {
		t.Errorf("audit record = %+v", rec)
	}
}

// A notification failing both the origin and signature checks must be
// rejected for its origin: the chain short-circuits in order, observed
// here by a verifier that fails the test when invoked.
func TestProcessUntrustedOriginShortCircuits(t *testing.T) {
	env := newProcessorEnv(t, testOrder())

	verifier := &fakeVerifier{t: t, forbid: true}
	env.processor = NewProcessor(
		testLogger(), "sandbox", verifier,
		&fakeResolver{ips: []net.IP{net.ParseIP(trustedIP)}},
		env.confirmer, env.orders, env.audit, env.replays,
	)

	params := itnParams(domain.GatewayStatusComplete)
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set(domain.FieldSignature, "0000deadbeef0000deadbeef0000dead")

	res, err := env.processor.Process(context.Background(), form.Encode(), "203.0.113.9")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Rejected != domain.RejectInvalidOrigin {
		t.Fatalf("rejected = %q, want invalid origin", res.Rejected)
	}
	if verifier.invoked {
		t.Error("signature verifier ran for untrusted origin")
	}
	if env.confirmer.calls != 0 {
		t.Error("gateway confirmation ran for untrusted origin")
	}
}

func TestProcessUnparseableSourceIP(t *testing.T) {
	env := newProcessorEnv(t, testOrder())
	body := env.signedBody(itnParams(domain.GatewayStatusComplete))

	res, err := env.processor.Process(context.Background(), body, "not-an-ip")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Rejected != domain.RejectInvalidOrigin {
		t.Fatalf("rejected = %q, want invalid origin", res.Rejected)
	}
}

func TestProcessSignatureMismatch(t *testing.T) {
	env := newProcessorEnv(t, testOrder())

	params := itnParams(domain.GatewayStatusComplete)
	body := env.signedBody(params)
	// Tamper after signing.
	tampered := body + "&custom_str1=injected"

	res, err := env.processor.Process(context.Background(), tampered, trustedIP)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Rejected != domain.RejectSignatureMismatch {
		t.Fatalf("rejected = %q, want signature mismatch", res.Rejected)
	}
	if env.confirmer.calls != 0 {
		t.Error("gateway confirmation ran for bad signature")
	}
	if env.orders.settleCalls != 0 {
		t.Error("settlement ran for bad signature")
	}
}

func TestProcessGatewayRejected(t *testing.T) {
	env := newProcessorEnv(t, testOrder())
	env.confirmer.err = errors.New("gateway did not confirm: body=\"INVALID\"")
	body := env.signedBody(itnParams(domain.GatewayStatusComplete))

	res, err := env.processor.Process(context.Background(), body, trustedIP)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Rejected != domain.RejectServerValidation {
		t.Fatalf("rejected = %q, want server validation failed", res.Rejected)
	}
	if env.orders.settleCalls != 0 {
		t.Error("settlement ran without gateway confirmation")
	}
}

func TestProcessUnknownOrder(t *testing.T) {
	env := newProcessorEnv(t) // empty store
	body := env.signedBody(itnParams(domain.GatewayStatusComplete))

	res, err := env.processor.Process(context.Background(), body, trustedIP)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Rejected != domain.RejectUnknownOrder {
		t.Fatalf("rejected = %q, want unknown order reference", res.Rejected)
	}
	if rec := env.audit.last(t); rec.Verified {
		t.Error("unknown-order audit record marked verified")
	}
}

func TestProcessReplayViaCache(t *testing.T) {
	env := newProcessorEnv(t, testOrder())
	body := env.signedBody(itnParams(domain.GatewayStatusComplete))

	if _, err := env.processor.Process(context.Background(), body, trustedIP); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	audited := len(env.audit.records)

	res, err := env.processor.Process(context.Background(), body, trustedIP)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.OK() || !res.Replay {
		t.Fatalf("replay result = %+v, want accepted replay", res)
	}
	if env.orders.writes != 1 {
		t.Errorf("order writes = %d, want 1 (replay must not write)", env.orders.writes)
	}
	if env.orders.settleCalls != 1 {
		t.Errorf("settle calls = %d, want 1 (cache should short-circuit)", env.orders.settleCalls)
	}
	if len(env.audit.records) != audited+1 {
		t.Errorf("replay wrote %d audit records, want 1", len(env.audit.records)-audited)
	}
}

// With the replay cache cold (expired or flushed), the settlement CAS is
// the idempotency backstop.
func TestProcessReplayViaSettlementState(t *testing.T) {
	paid := testOrder()
	paid.Status = domain.StatusPending
	paid.PaymentStatus = domain.PaymentPaid
	env := newProcessorEnv(t, paid)
	body := env.signedBody(itnParams(domain.GatewayStatusComplete))

	res, err := env.processor.Process(context.Background(), body, trustedIP)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.OK() || !res.Replay {
		t.Fatalf("result = %+v, want accepted replay", res)
	}
	if env.orders.writes != 0 {
		t.Errorf("order writes = %d, want 0", env.orders.writes)
	}
}

func TestProcessConflictingState(t *testing.T) {
	paid := testOrder()
	paid.Status = domain.StatusPending
	paid.PaymentStatus = domain.PaymentPaid
	env := newProcessorEnv(t, paid)
	body := env.signedBody(itnParams(domain.GatewayStatusFailed))

	res, err := env.processor.Process(context.Background(), body, trustedIP)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// Answered as success so the gateway stops retrying.
	if !res.OK() || !res.Conflict {
		t.Fatalf("result = %+v, want accepted conflict", res)
	}
	if env.orders.writes != 0 {
		t.Errorf("order writes = %d, want 0", env.orders.writes)
	}
}

func TestProcessUnrecognizedStatusPassesThrough(t *testing.T) {
	env := newProcessorEnv(t, testOrder())
	body := env.signedBody(itnParams("PENDING"))

	res, err := env.processor.Process(context.Background(), body, trustedIP)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.OK() || res.Outcome.Outcome != domain.OutcomeUnrecognized {
		t.Fatalf("result = %+v, want unrecognized outcome", res)
	}
	if res.Outcome.GatewayStatus != "PENDING" {
		t.Errorf("gateway status = %q, want passthrough", res.Outcome.GatewayStatus)
	}
	if env.orders.writes != 0 {
		t.Errorf("order writes = %d, want 0", env.orders.writes)
	}
}

func TestProcessReplayCacheFailureDegradesToStore(t *testing.T) {
	env := newProcessorEnv(t, testOrder())
	env.replays.err = errors.New("redis unavailable")
	body := env.signedBody(itnParams(domain.GatewayStatusComplete))

	res, err := env.processor.Process(context.Background(), body, trustedIP)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.OK() || res.Replay {
		t.Fatalf("result = %+v, want accepted first delivery", res)
	}
	if env.orders.writes != 1 {
		t.Errorf("order writes = %d, want 1", env.orders.writes)
	}
}

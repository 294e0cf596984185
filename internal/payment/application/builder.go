package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/marketfleet/Payment-Settlement-Service/internal/payment/domain"
	"github.com/marketfleet/Payment-Settlement-Service/internal/payment/signing"
)

// Gateway-documented maximum field lengths.
const (
	maxNameLen = 100
	maxTextLen = 255
)

// GatewayConfig carries the merchant identity and endpoint set for one
// environment. Built once at startup from configuration; no ambient state.
type GatewayConfig struct {
	MerchantID  string
	MerchantKey string
	ReturnURL   string
	CancelURL   string
	NotifyURL   string
	ProcessURL  string
	Environment string
}

// Builder assembles signed payment requests for the hosted gateway page.
type Builder struct {
	cfg    GatewayConfig
	signer *signing.Signer
	orders OrderStore
}

func NewBuilder(cfg GatewayConfig, signer *signing.Signer, orders OrderStore) *Builder {
	return &Builder{cfg: cfg, signer: signer, orders: orders}
}

// Build produces the gateway submission descriptor for an order. The field
// order is part of the gateway contract; the signature is computed over the
// same set and appended last.
func (b *Builder) Build(ctx context.Context, orderID, userID string) (domain.PaymentRequestDescriptor, error) {
	if b.cfg.MerchantID == "" {
		return domain.PaymentRequestDescriptor{}, &domain.ConfigurationError{Field: "merchant_id"}
	}
	if b.cfg.MerchantKey == "" {
		return domain.PaymentRequestDescriptor{}, &domain.ConfigurationError{Field: "merchant_key"}
	}

	order, err := b.orders.Get(ctx, orderID)
	if err != nil {
		return domain.PaymentRequestDescriptor{}, err
	}
	if userID != "" && order.UserID != userID {
		return domain.PaymentRequestDescriptor{}, domain.ErrOrderNotFound
	}
	if order.TotalCents <= 0 {
		return domain.PaymentRequestDescriptor{}, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	first, last := splitName(order.CustomerName)

	fields := []domain.Field{
		{Name: "merchant_id", Value: b.cfg.MerchantID},
		{Name: "merchant_key", Value: b.cfg.MerchantKey},
		{Name: "return_url", Value: b.cfg.ReturnURL},
		{Name: "cancel_url", Value: b.cfg.CancelURL},
		{Name: "notify_url", Value: b.cfg.NotifyURL},
		{Name: "name_first", Value: truncate(first, maxNameLen)},
		{Name: "name_last", Value: truncate(last, maxNameLen)},
		{Name: "email_address", Value: truncate(order.Email, maxTextLen)},
		{Name: domain.FieldPaymentRef, Value: order.ID},
		{Name: "amount", Value: formatAmount(order.TotalCents)},
		{Name: "item_name", Value: truncate(fmt.Sprintf("Order %s", order.ID), maxTextLen)},
	}

	desc := domain.PaymentRequestDescriptor{TargetURL: b.cfg.ProcessURL, Fields: fields}
	sig := b.signer.Sign(desc.Values())
	desc.Fields = append(desc.Fields, domain.Field{Name: domain.FieldSignature, Value: sig})
	return desc, nil
}

// splitName derives payer first/last name from the free-text delivery name.
func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "Guest", "Guest"
	case 1:
		return parts[0], "Guest"
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// formatAmount renders cents as the gateway's fixed two-decimal string.
func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

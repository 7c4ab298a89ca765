package payment

import (
	"context"
	"time"
)

type Provider string

const (
	ProviderPayFast Provider = "PAYFAST"
	ProviderYoco    Provider = "YOCO"
)

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeIgnored covers provider statuses this system does not act on
	// (pending, refund events, and so on).
	OutcomeIgnored Outcome = "ignored"
)

// Notification is the strict internal form of a provider callback. Raw
// provider payloads are parsed into this at the webhook boundary and never
// travel deeper into the system.
type Notification struct {
	Provider  Provider
	EventID   string
	EventType string
	// OrderExternalID is the merchant-assigned correlation id echoed back
	// by the provider.
	OrderExternalID   string
	ProviderPaymentID string
	Outcome           Outcome
	AmountCents       int64
}

type Payment struct {
	ID                 uint
	OrderID            uint
	Provider           Provider
	ProviderCheckoutID string
	RedirectURL        string
	AmountCents        int64
	Status             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type CheckoutResponse struct {
	Provider           Provider
	ProviderCheckoutID string
	// RedirectURL is where the customer completes payment.
	RedirectURL string
	AmountCents int64
}

// Gateway creates provider checkouts for new orders. Notification handling
// lives in the webhook package, not here.
type Gateway interface {
	CreateCheckout(ctx context.Context, orderExternalID string, amountCents int64, customerEmail string) (*CheckoutResponse, error)
}

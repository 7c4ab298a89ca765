package order

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusDraft     OrderStatus = "draft"
	StatusConfirmed OrderStatus = "confirmed"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentAwaiting  PaymentStatus = "awaiting_payment"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Terminal reports whether the payment status can never change again.
func (p PaymentStatus) Terminal() bool {
	switch p {
	case PaymentPaid, PaymentFailed, PaymentCancelled:
		return true
	}
	return false
}

type Order struct {
	ID uint
	// ExternalID is the correlation id handed to payment providers and
	// echoed back in their notifications.
	ExternalID uuid.UUID
	// OrderNumber is the sequential human-readable number, assigned once
	// at creation and never reused.
	OrderNumber   int64
	Status        OrderStatus
	PaymentStatus PaymentStatus
	// TotalCents is fixed at order creation.
	TotalCents int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Items      []OrderItem
}

// OrderItem snapshots the unit price at order time so historical orders
// stay accurate when menu prices change.
type OrderItem struct {
	ID             uint
	OrderID        uint
	MenuItemID     uint
	Name           string
	Quantity       int
	UnitPriceCents int64
}

// TransitionResult describes what a terminal payment transition did.
type TransitionResult int

const (
	// Transitioned means this call moved the order out of awaiting_payment.
	Transitioned TransitionResult = iota
	// AlreadyInState means the order was already in the requested terminal
	// state; the call is an idempotent no-op.
	AlreadyInState
	// Superseded means the order reached a different terminal state first.
	// Terminal states are sticky, so the call is a no-op.
	Superseded
)

func (t TransitionResult) String() string {
	switch t {
	case Transitioned:
		return "transitioned"
	case AlreadyInState:
		return "already_in_state"
	case Superseded:
		return "superseded"
	}
	return "unknown"
}

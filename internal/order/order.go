// Package order models the slice of the order aggregate the payments service
// owns: the payment state axis and its metadata.
package order

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no order exists for the identifier.
	ErrNotFound = errors.New("order: not found")
	// ErrAlreadyPaid is returned when a settlement targets an order that is already paid.
	ErrAlreadyPaid = errors.New("order: already paid")
	// ErrInvariant is returned when payment metadata and payment state disagree.
	ErrInvariant = errors.New("order: payment metadata does not match payment state")
)

// PaymentState is the payment axis of an order.
type PaymentState string

const (
	StateUnpaid PaymentState = "unpaid"
	StatePaid   PaymentState = "paid"
)

// CanTransitionTo reports whether next is a legal successor. unpaid -> paid is
// the only transition.
func (s PaymentState) CanTransitionTo(next PaymentState) bool {
	return s == StateUnpaid && next == StatePaid
}

// ResultStatusCompleted is recorded on every settled order.
const ResultStatusCompleted = "completed"

// PaymentResult is the provider metadata stored with a paid order.
type PaymentResult struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	UpdateTime string `json:"update_time"`
}

// Order is the persisted order as seen by the payments service.
type Order struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	TotalAmount   float64        `json:"totalAmount"`
	State         PaymentState   `json:"state"`
	PaidAt        *time.Time     `json:"paidAt,omitempty"`
	PaymentResult *PaymentResult `json:"paymentResult,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// IsPaid reports whether the order has been settled.
func (o Order) IsPaid() bool { return o.State == StatePaid }

// Validate checks that payment metadata is present exactly when the order is paid.
func (o Order) Validate() error {
	hasMeta := o.PaidAt != nil && o.PaymentResult != nil
	noMeta := o.PaidAt == nil && o.PaymentResult == nil
	switch o.State {
	case StatePaid:
		if !hasMeta {
			return ErrInvariant
		}
	case StateUnpaid:
		if !noMeta {
			return ErrInvariant
		}
	default:
		return ErrInvariant
	}
	return nil
}

// NewPaymentResult builds the metadata recorded for a settlement at now.
func NewPaymentResult(providerPaymentID string, now time.Time) PaymentResult {
	return PaymentResult{
		ID:         providerPaymentID,
		Status:     ResultStatusCompleted,
		UpdateTime: now.UTC().Format(time.RFC3339Nano),
	}
}

// MarkPaid applies the unpaid -> paid transition in memory.
func (o *Order) MarkPaid(result PaymentResult, paidAt time.Time) error {
	if !o.State.CanTransitionTo(StatePaid) {
		return ErrAlreadyPaid
	}
	at := paidAt.UTC()
	o.State = StatePaid
	o.PaidAt = &at
	o.PaymentResult = &result
	o.UpdatedAt = at
	return nil
}

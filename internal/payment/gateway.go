package payment

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/toko-payments/internal/resilience"
)

// OrderRequest is what the service sends to the provider to open an intent.
type OrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// Intent is the provider-side order handle returned to the client.
type Intent struct {
	ProviderOrderID string
	AmountMinor     int64
	Currency        string
	Status          string
}

// Gateway abstracts the operations required from the payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Intent, error)
	// KeyID returns the public key id handed to the client checkout.
	KeyID() string
	// Configured reports whether credentials are present.
	Configured() bool
}

// NewProviderBreaker builds the breaker guarding provider calls. Configuration
// errors and caller cancellations do not count against the provider.
func NewProviderBreaker(minRequests int, failureRatio float64, openFor time.Duration) *resilience.Breaker {
	b := resilience.NewBreaker(minRequests, failureRatio, openFor).WithTarget("razorpay")
	b.IsFailure = func(err error) bool {
		return !errors.Is(err, ErrConfiguration) && !errors.Is(err, context.Canceled)
	}
	return b
}

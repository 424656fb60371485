package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	rzpsdk "github.com/razorpay/razorpay-go"
)

// orderCreator is the slice of the Razorpay SDK used by the gateway.
type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Razorpay implements Gateway on top of the official SDK.
type Razorpay struct {
	keyID   string
	orders  orderCreator
	timeout time.Duration
}

// NewRazorpay constructs a gateway for the given credentials. Missing
// credentials produce a gateway whose calls fail with ErrConfiguration.
func NewRazorpay(keyID, keySecret string, timeout time.Duration) *Razorpay {
	keyID = strings.TrimSpace(keyID)
	keySecret = strings.TrimSpace(keySecret)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	g := &Razorpay{keyID: keyID, timeout: timeout}
	if keyID == "" || keySecret == "" {
		return g
	}
	client := rzpsdk.NewClient(keyID, keySecret)
	secs := math.Ceil(timeout.Seconds())
	if secs > math.MaxInt16 {
		secs = math.MaxInt16
	}
	client.SetTimeout(int16(secs))
	g.orders = client.Order
	return g
}

// KeyID returns the public key id.
func (r *Razorpay) KeyID() string { return r.keyID }

// Configured reports whether the SDK client was built.
func (r *Razorpay) Configured() bool { return r != nil && r.orders != nil && r.keyID != "" }

type sdkResult struct {
	body map[string]interface{}
	err  error
}

// CreateOrder opens a provider order. The SDK has no context support, so the
// call runs in its own goroutine and the caller stops waiting when ctx ends.
func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (Intent, error) {
	if !r.Configured() {
		return Intent{}, ErrConfiguration
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":   req.AmountMinor,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}

	done := make(chan sdkResult, 1)
	go func() {
		body, err := r.orders.Create(data, nil)
		done <- sdkResult{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return Intent{}, fmt.Errorf("razorpay create order: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return Intent{}, fmt.Errorf("razorpay create order: %w", res.err)
		}
		return parseOrder(res.body)
	}
}

func parseOrder(body map[string]interface{}) (Intent, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return Intent{}, errors.New("razorpay create order: response missing id")
	}
	intent := Intent{ProviderOrderID: id}
	intent.Currency, _ = body["currency"].(string)
	intent.Status, _ = body["status"].(string)
	switch v := body["amount"].(type) {
	case float64:
		intent.AmountMinor = int64(math.Round(v))
	case int64:
		intent.AmountMinor = v
	case int:
		intent.AmountMinor = int64(v)
	}
	return intent, nil
}

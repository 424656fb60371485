package payment

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-payments/internal/obs"
	"github.com/noah-isme/toko-payments/internal/order"
	"github.com/noah-isme/toko-payments/internal/resilience"
)

// Service coordinates intent creation, callback verification and settlement.
type Service struct {
	Gateway  Gateway
	Verifier Verifier
	Settler  *Settler
	Store    Store
	Breaker  *resilience.Breaker
	Currency string
	Logger   zerolog.Logger
	Now      func() time.Time
}

// CreateOrderInput is the caller-supplied part of an intent request.
type CreateOrderInput struct {
	Amount  float64
	OrderID string
	UserID  string
}

// CreateOrderResult is returned to the checkout client.
type CreateOrderResult struct {
	ProviderOrderID string
	AmountMinor     int64
	Currency        string
	KeyID           string
}

// VerifyInput carries the checkout callback fields.
type VerifyInput struct {
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
	OrderID           string
	UserID            string
}

// VerifyResult reports the verified payment and, when a local order id was
// supplied, what settlement did.
type VerifyResult struct {
	PaymentID string
	Outcome   Outcome
}

// StatusResult is the payment view of a single order.
type StatusResult struct {
	OrderID       string
	State         order.PaymentState
	PaidAt        *time.Time
	PaymentResult *order.PaymentResult
}

// KeyID returns the public key id or ErrConfiguration.
func (s *Service) KeyID() (string, error) {
	if s == nil || s.Gateway == nil || s.Gateway.KeyID() == "" {
		return "", ErrConfiguration
	}
	return s.Gateway.KeyID(), nil
}

// CreateOrder opens a provider order for the amount. Local order state is not touched.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", in.OrderID))

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.create_order.result", result))
		obs.IncCounter(obs.PaymentCreateOrderTotal, result)
	}()
	logger := s.loggerFor(ctx)

	minor, err := ToMinorUnits(in.Amount)
	if err != nil {
		result = "invalid_amount"
		return CreateOrderResult{}, err
	}
	if s == nil || s.Gateway == nil || !s.Gateway.Configured() {
		result = "not_configured"
		logger.Error().Msg("payment provider credentials missing")
		return CreateOrderResult{}, ErrConfiguration
	}

	req := OrderRequest{
		AmountMinor: minor,
		Currency:    s.currency(),
		Receipt:     Receipt(in.OrderID, s.now()),
		Notes:       map[string]string{"orderId": in.OrderID, "userId": in.UserID},
	}
	start := time.Now()
	var intent Intent
	err = s.Breaker.Do(ctx, func(ctx context.Context) error {
		var callErr error
		intent, callErr = s.Gateway.CreateOrder(ctx, req)
		return callErr
	})
	elapsed := obs.DurationMillis(time.Since(start))
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, ErrConfiguration):
			result = "not_configured"
			logger.Error().Err(err).Msg("payment provider credentials missing")
			return CreateOrderResult{}, ErrConfiguration
		case errors.Is(err, resilience.ErrOpenCircuit):
			result = "circuit_open"
		default:
			result = "provider_error"
		}
		observeProvider(result, elapsed)
		logger.Error().Err(err).Str("order_id", in.OrderID).Str("receipt", req.Receipt).Float64("duration_ms", elapsed).Msg("provider_create_order_failed")
		return CreateOrderResult{}, ErrProvider.WithCause(err)
	}
	result = "success"
	observeProvider(result, elapsed)

	amount := intent.AmountMinor
	if amount == 0 {
		amount = minor
	}
	currency := intent.Currency
	if currency == "" {
		currency = req.Currency
	}
	logger.Info().
		Str("order_id", in.OrderID).
		Str("provider_order_id", intent.ProviderOrderID).
		Int64("amount_minor", amount).
		Msg("provider_order_created")
	return CreateOrderResult{
		ProviderOrderID: intent.ProviderOrderID,
		AmountMinor:     amount,
		Currency:        currency,
		KeyID:           s.Gateway.KeyID(),
	}, nil
}

// Verify authenticates the checkout callback and, when a local order id is
// present, settles it. Settlement never runs for an unverified signature.
func (s *Service) Verify(ctx context.Context, in VerifyInput) (VerifyResult, error) {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Verify")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", in.OrderID),
		attribute.String("payment.provider_order_id", in.ProviderOrderID),
	)
	logger := s.loggerFor(ctx)

	if s == nil {
		obs.IncCounter(obs.PaymentVerifyTotal, "not_configured")
		return VerifyResult{}, ErrConfiguration
	}
	if err := s.Verifier.Verify(in.ProviderOrderID, in.ProviderPaymentID, in.Signature); err != nil {
		switch {
		case errors.Is(err, ErrMissingVerificationData):
			obs.IncCounter(obs.PaymentVerifyTotal, "missing_data")
		case errors.Is(err, ErrInvalidSignature):
			obs.IncCounter(obs.PaymentVerifyTotal, "invalid_signature")
			logger.Warn().
				Str("order_id", in.OrderID).
				Str("provider_order_id", in.ProviderOrderID).
				Str("provider_payment_id", in.ProviderPaymentID).
				Str("signature", redactSignature(in.Signature)).
				Time("rejected_at", s.now()).
				Msg("signature_rejected")
		case errors.Is(err, ErrConfiguration):
			obs.IncCounter(obs.PaymentVerifyTotal, "not_configured")
			logger.Error().Msg("payment provider secret missing")
		}
		return VerifyResult{}, err
	}
	obs.IncCounter(obs.PaymentVerifyTotal, "verified")

	out := VerifyResult{PaymentID: in.ProviderPaymentID}
	if in.OrderID == "" {
		logger.Info().Str("provider_order_id", in.ProviderOrderID).Msg("payment_verified_without_order")
		return out, nil
	}
	res, err := s.Settler.Settle(ctx, SettleRequest{
		OrderID:           in.OrderID,
		UserID:            in.UserID,
		ProviderOrderID:   in.ProviderOrderID,
		ProviderPaymentID: in.ProviderPaymentID,
		Source:            SourceVerify,
	})
	if err != nil {
		return VerifyResult{}, err
	}
	out.Outcome = res.Outcome
	return out, nil
}

// Status returns the payment state of an order owned by userID.
func (s *Service) Status(ctx context.Context, orderID, userID string) (StatusResult, error) {
	if s == nil || s.Store == nil {
		return StatusResult{}, ErrConfiguration
	}
	o, err := s.Store.GetForUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return StatusResult{}, ErrOrderNotFound
		}
		return StatusResult{}, err
	}
	return StatusResult{
		OrderID:       o.ID,
		State:         o.State,
		PaidAt:        o.PaidAt,
		PaymentResult: o.PaymentResult,
	}, nil
}

func observeProvider(result string, ms float64) {
	if obs.PaymentProviderDuration == nil {
		return
	}
	obs.PaymentProviderDuration.WithLabelValues(result).Observe(ms)
}

func (s *Service) currency() string {
	if s.Currency == "" {
		return "INR"
	}
	return s.Currency
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	if s == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return &s.Logger
}

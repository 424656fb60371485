package payment

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	dbgen "github.com/noah-isme/toko-payments/internal/db/gen"
	"github.com/noah-isme/toko-payments/internal/events"
	"github.com/noah-isme/toko-payments/internal/lock"
	"github.com/noah-isme/toko-payments/internal/obs"
	"github.com/noah-isme/toko-payments/internal/order"
)

// Outcome describes what a settlement attempt did.
type Outcome string

const (
	OutcomeSettled       Outcome = "settled"
	OutcomeAlreadyPaid   Outcome = "already_paid"
	OutcomeOrderNotFound Outcome = "order_not_found"
)

// Settlement sources recorded in the audit trail.
const (
	SourceVerify    = "verify"
	SourceWebhook   = "webhook"
	SourceReconcile = "reconcile"
)

// Store is the order persistence the payment flow depends on.
type Store interface {
	GetForUser(ctx context.Context, id, userID string) (order.Order, error)
	MarkPaid(ctx context.Context, id, userID string, result order.PaymentResult, paidAt time.Time) (order.Order, error)
	RecordPaymentEvent(ctx context.Context, ev order.PaymentEvent) error
}

// Locker serialises settlement of one order across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID string, payload any) (dbgen.DomainEvent, error)
}

// Reconciler schedules a later settlement retry for an order that was not found.
type Reconciler interface {
	EnqueueReconcile(ctx context.Context, req SettleRequest) error
}

// SettleRequest identifies a verified payment to apply to a local order.
// UserID restricts settlement to that owner's order; it is empty for provider
// initiated settlement.
type SettleRequest struct {
	OrderID           string `json:"orderId"`
	UserID            string `json:"userId,omitempty"`
	ProviderOrderID   string `json:"providerOrderId"`
	ProviderPaymentID string `json:"providerPaymentId"`
	Source            string `json:"source"`
}

// SettleResult reports the settlement outcome.
type SettleResult struct {
	Outcome   Outcome
	PaymentID string
	Order     order.Order
}

// Settler performs the unpaid -> paid transition exactly once per order.
type Settler struct {
	Store      Store
	Locker     Locker
	LockTTL    time.Duration
	Events     Emitter
	Reconciler Reconciler
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Settle marks the order paid. A missing order is a soft outcome and an order
// that is already paid is left untouched; only storage failures return
// ErrSettlement.
func (s *Settler) Settle(ctx context.Context, req SettleRequest) (SettleResult, error) {
	if s == nil || s.Store == nil {
		return SettleResult{}, ErrSettlement.WithCause(errors.New("settler not configured"))
	}
	ctx, span := otel.Tracer("payment.Settler").Start(ctx, "PaymentSettler.Settle")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.String("payment.provider_payment_id", req.ProviderPaymentID),
		attribute.String("payment.source", req.Source),
	)
	logger := s.loggerFor(ctx).With().
		Str("order_id", req.OrderID).
		Str("provider_order_id", req.ProviderOrderID).
		Str("provider_payment_id", req.ProviderPaymentID).
		Str("source", req.Source).
		Logger()

	res, err := s.settleLocked(ctx, req, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settlement failed")
		obs.IncCounter(obs.PaymentSettlementTotal, "error")
		logger.Error().Err(err).Msg("settlement_failed")
		return SettleResult{}, ErrSettlement.WithCause(err)
	}
	span.SetAttributes(attribute.String("payment.settlement.outcome", string(res.Outcome)))
	obs.IncCounter(obs.PaymentSettlementTotal, string(res.Outcome))
	s.afterSettle(ctx, req, res, logger)
	return res, nil
}

func (s *Settler) settleLocked(ctx context.Context, req SettleRequest, logger zerolog.Logger) (SettleResult, error) {
	if s.Locker == nil {
		return s.apply(ctx, req)
	}
	var (
		res SettleResult
		ran bool
	)
	err := s.Locker.WithLock(ctx, lock.SettlementKey(req.OrderID), s.LockTTL, func(ctx context.Context) error {
		ran = true
		var applyErr error
		res, applyErr = s.apply(ctx, req)
		return applyErr
	})
	if err == nil || ran || errors.Is(err, lock.ErrNotAcquired) {
		return res, err
	}
	// The conditional update still guarantees a single writer without the lease.
	logger.Warn().Err(err).Msg("settlement_lock_unavailable")
	return s.apply(ctx, req)
}

func (s *Settler) apply(ctx context.Context, req SettleRequest) (SettleResult, error) {
	now := s.now()
	result := order.NewPaymentResult(req.ProviderPaymentID, now)
	o, err := s.Store.MarkPaid(ctx, req.OrderID, req.UserID, result, now)
	switch {
	case err == nil:
		return SettleResult{Outcome: OutcomeSettled, PaymentID: req.ProviderPaymentID, Order: o}, nil
	case errors.Is(err, order.ErrAlreadyPaid):
		return SettleResult{Outcome: OutcomeAlreadyPaid, PaymentID: req.ProviderPaymentID, Order: o}, nil
	case errors.Is(err, order.ErrNotFound):
		return SettleResult{Outcome: OutcomeOrderNotFound, PaymentID: req.ProviderPaymentID}, nil
	default:
		return SettleResult{}, err
	}
}

func (s *Settler) afterSettle(ctx context.Context, req SettleRequest, res SettleResult, logger zerolog.Logger) {
	if req.Source == SourceReconcile && res.Outcome == OutcomeOrderNotFound {
		// The first miss was audited and announced.
		logger.Debug().Msg("reconcile_order_still_missing")
		return
	}
	if err := s.Store.RecordPaymentEvent(ctx, order.PaymentEvent{
		OrderID:           req.OrderID,
		ProviderOrderID:   req.ProviderOrderID,
		ProviderPaymentID: req.ProviderPaymentID,
		Outcome:           string(res.Outcome),
		Source:            req.Source,
	}); err != nil {
		logger.Warn().Err(err).Msg("payment_event_record_failed")
	}

	switch res.Outcome {
	case OutcomeSettled:
		logger.Info().Msg("order_settled")
		s.emit(ctx, events.TopicOrderPaid, req, map[string]any{
			"orderId":   req.OrderID,
			"userId":    res.Order.UserID,
			"paymentId": req.ProviderPaymentID,
			"source":    req.Source,
		}, logger)
	case OutcomeAlreadyPaid:
		logger.Info().Msg("order_already_paid")
	case OutcomeOrderNotFound:
		logger.Warn().Msg("settlement_order_not_found")
		s.emit(ctx, events.TopicPaymentSettlementSkipped, req, map[string]any{
			"orderId":         req.OrderID,
			"providerOrderId": req.ProviderOrderID,
			"paymentId":       req.ProviderPaymentID,
			"reason":          string(res.Outcome),
		}, logger)
		if s.Reconciler != nil {
			if err := s.Reconciler.EnqueueReconcile(ctx, req); err != nil {
				logger.Error().Err(err).Msg("reconcile_enqueue_failed")
			}
		}
	}
}

func (s *Settler) emit(ctx context.Context, topic string, req SettleRequest, payload map[string]any, logger zerolog.Logger) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, req.OrderID, payload); err != nil {
		logger.Warn().Err(err).Str("topic", topic).Msg("domain_event_emit_failed")
	}
}

func (s *Settler) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Settler) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.Logger
}

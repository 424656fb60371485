package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/toko-payments/internal/events"
	"github.com/noah-isme/toko-payments/internal/resilience"
)

// TaskReconcile retries settlement for an order that was missing when a
// verified payment arrived.
const TaskReconcile = "payment:reconcile"

// QueuePayments is the asynq queue carrying reconcile tasks.
const QueuePayments = "payments"

var errOrderStillMissing = errors.New("payment: order still missing")

// AsynqReconciler enqueues reconcile tasks.
type AsynqReconciler struct {
	Client   events.Enqueuer
	Queue    string
	MaxRetry int
	Delay    time.Duration
}

// EnqueueReconcile schedules a reconcile task. One task exists per order and payment.
func (a AsynqReconciler) EnqueueReconcile(ctx context.Context, req SettleRequest) error {
	if a.Client == nil {
		return errors.New("payment: reconcile client not configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	maxRetry := a.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 12
	}
	delay := a.Delay
	if delay <= 0 {
		delay = 30 * time.Second
	}
	opts := []asynq.Option{
		asynq.MaxRetry(maxRetry),
		asynq.ProcessIn(delay),
		asynq.TaskID("reconcile:" + req.OrderID + ":" + req.ProviderPaymentID),
	}
	if a.Queue != "" {
		opts = append(opts, asynq.Queue(a.Queue))
	}
	_, err = a.Client.EnqueueContext(ctx, asynq.NewTask(TaskReconcile, body), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// ReconcileHandler settles orders from reconcile tasks. Asynq retries the task
// while the order is still missing.
type ReconcileHandler struct {
	Settler *Settler
}

// ProcessTask implements asynq.Handler.
func (h ReconcileHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var req SettleRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("decode reconcile payload: %v: %w", err, asynq.SkipRetry)
	}
	if req.OrderID == "" || req.ProviderPaymentID == "" {
		return fmt.Errorf("reconcile payload missing identifiers: %w", asynq.SkipRetry)
	}
	req.Source = SourceReconcile
	res, err := h.Settler.Settle(ctx, req)
	if err != nil {
		return err
	}
	if res.Outcome == OutcomeOrderNotFound {
		return fmt.Errorf("%w: %s", errOrderStillMissing, req.OrderID)
	}
	return nil
}

// RetryDelay backs off exponentially from base, capped at max.
func RetryDelay(base, max time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		d := resilience.Backoff(base, n+1, 0.2)
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

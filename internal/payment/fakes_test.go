package payment_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	dbgen "github.com/noah-isme/toko-payments/internal/db/gen"
	"github.com/noah-isme/toko-payments/internal/order"
	"github.com/noah-isme/toko-payments/internal/payment"
)

type fakeGateway struct {
	mu       sync.Mutex
	keyID    string
	requests []payment.OrderRequest
	intent   payment.Intent
	err      error
	delay    time.Duration
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{keyID: "rzp_test_key", intent: payment.Intent{ProviderOrderID: "order_X", Currency: "INR", Status: "created"}}
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (payment.Intent, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.delay > 0 {
		select {
		case <-ctx.Done():
			return payment.Intent{}, ctx.Err()
		case <-time.After(g.delay):
		}
	}
	if g.err != nil {
		return payment.Intent{}, g.err
	}
	intent := g.intent
	if intent.AmountMinor == 0 {
		intent.AmountMinor = req.AmountMinor
	}
	return intent, nil
}

func (g *fakeGateway) KeyID() string { return g.keyID }

func (g *fakeGateway) Configured() bool { return g.keyID != "" }

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// countingStore wraps MemoryStore and counts writes.
type countingStore struct {
	*order.MemoryStore
	mu        sync.Mutex
	markCalls int
	failWith  error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: order.NewMemoryStore()}
}

func (c *countingStore) MarkPaid(ctx context.Context, id, userID string, result order.PaymentResult, paidAt time.Time) (order.Order, error) {
	c.mu.Lock()
	c.markCalls++
	fail := c.failWith
	c.mu.Unlock()
	if fail != nil {
		return order.Order{}, fail
	}
	return c.MemoryStore.MarkPaid(ctx, id, userID, result, paidAt)
}

func (c *countingStore) writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markCalls
}

type captureEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (e *captureEmitter) Emit(_ context.Context, topic string, _ string, _ any) (dbgen.DomainEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.topics = append(e.topics, topic)
	return dbgen.DomainEvent{Topic: topic}, nil
}

func (e *captureEmitter) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.topics...)
}

type captureReconciler struct {
	mu   sync.Mutex
	reqs []payment.SettleRequest
}

func (r *captureReconciler) EnqueueReconcile(_ context.Context, req payment.SettleRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return nil
}

type captureEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	if c.err != nil {
		return nil, c.err
	}
	return &asynq.TaskInfo{ID: "t", Type: task.Type()}, nil
}

var errStorageDown = errors.New("storage down")

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type fixture struct {
	gateway    *fakeGateway
	store      *countingStore
	emitter    *captureEmitter
	reconciler *captureReconciler
	settler    *payment.Settler
	svc        *payment.Service
}

func newFixture() *fixture {
	f := &fixture{
		gateway:    newFakeGateway(),
		store:      newCountingStore(),
		emitter:    &captureEmitter{},
		reconciler: &captureReconciler{},
	}
	f.settler = &payment.Settler{
		Store:      f.store,
		Events:     f.emitter,
		Reconciler: f.reconciler,
		Now:        clock,
	}
	f.svc = &payment.Service{
		Gateway:  f.gateway,
		Verifier: payment.NewVerifier(testSecret),
		Settler:  f.settler,
		Store:    f.store,
		Currency: "INR",
		Now:      clock,
	}
	return f
}

const testSecret = "rzp_test_secret"

func (f *fixture) putUnpaid(id, userID string, total float64) {
	f.store.Put(order.Order{ID: id, UserID: userID, TotalAmount: total, State: order.StateUnpaid})
}

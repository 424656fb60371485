package order

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps orders in process. Used by local runs without Postgres and by tests.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]Order
	events []PaymentEvent
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]Order)}
}

// Put stores or replaces an order.
func (m *MemoryStore) Put(o Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.State == "" {
		o.State = StateUnpaid
	}
	m.orders[o.ID] = o
}

// Get returns a copy of the stored order.
func (m *MemoryStore) Get(_ context.Context, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// GetForUser returns the order when owned by userID.
func (m *MemoryStore) GetForUser(ctx context.Context, id, userID string) (Order, error) {
	o, err := m.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != userID {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// MarkPaid mirrors Store.MarkPaid under a mutex.
func (m *MemoryStore) MarkPaid(_ context.Context, id, userID string, result PaymentResult, paidAt time.Time) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || (userID != "" && o.UserID != userID) {
		return Order{}, ErrNotFound
	}
	if err := o.MarkPaid(result, paidAt); err != nil {
		return o, err
	}
	m.orders[id] = o
	return o, nil
}

// RecordPaymentEvent appends to the in-memory audit log.
func (m *MemoryStore) RecordPaymentEvent(_ context.Context, ev PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a snapshot of recorded payment events.
func (m *MemoryStore) Events() []PaymentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PaymentEvent, len(m.events))
	copy(out, m.events)
	return out
}

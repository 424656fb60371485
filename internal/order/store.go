package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbgen "github.com/noah-isme/toko-payments/internal/db/gen"
)

// PaymentEvent is an append-only audit record of a settlement attempt.
type PaymentEvent struct {
	OrderID           string
	ProviderOrderID   string
	ProviderPaymentID string
	Outcome           string
	Source            string
}

// Store is backed by the sqlc generated queries.
type Store struct {
	q dbgen.Querier
}

// NewStore wraps the generated querier.
func NewStore(q dbgen.Querier) *Store {
	return &Store{q: q}
}

// Create inserts a new unpaid order.
func (s *Store) Create(ctx context.Context, id, userID string, total float64) (Order, error) {
	var amount pgtype.Numeric
	if err := amount.Scan(strconv.FormatFloat(total, 'f', 2, 64)); err != nil {
		return Order{}, fmt.Errorf("encode total: %w", err)
	}
	row, err := s.q.CreateOrder(ctx, dbgen.CreateOrderParams{ID: id, UserID: userID, TotalAmount: amount})
	if err != nil {
		return Order{}, err
	}
	return fromRow(row)
}

// Get loads an order by id.
func (s *Store) Get(ctx context.Context, id string) (Order, error) {
	row, err := s.q.GetOrderByID(ctx, id)
	if err != nil {
		return Order{}, mapNoRows(err)
	}
	return fromRow(row)
}

// GetForUser loads an order owned by userID.
func (s *Store) GetForUser(ctx context.Context, id, userID string) (Order, error) {
	row, err := s.q.GetOrderByIDForUser(ctx, dbgen.GetOrderByIDForUserParams{ID: id, UserID: userID})
	if err != nil {
		return Order{}, mapNoRows(err)
	}
	return fromRow(row)
}

// MarkPaid transitions the order to paid in a single conditional update. A
// non-empty userID restricts the update to that owner's order. When no row was
// updated the order is re-read under the same scope to report ErrNotFound or
// ErrAlreadyPaid; the latter comes with the stored order.
func (s *Store) MarkPaid(ctx context.Context, id, userID string, result PaymentResult, paidAt time.Time) (Order, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return Order{}, fmt.Errorf("encode payment result: %w", err)
	}
	row, err := s.q.MarkOrderPaid(ctx, dbgen.MarkOrderPaidParams{
		ID:            id,
		PaidAt:        pgtype.Timestamptz{Time: paidAt.UTC(), Valid: true},
		PaymentResult: payload,
		OwnerID:       pgtype.Text{String: userID, Valid: userID != ""},
	})
	if err == nil {
		return fromRow(row)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Order{}, err
	}
	var (
		current Order
		getErr  error
	)
	if userID != "" {
		current, getErr = s.GetForUser(ctx, id, userID)
	} else {
		current, getErr = s.Get(ctx, id)
	}
	if getErr != nil {
		return Order{}, getErr
	}
	if current.IsPaid() {
		return current, ErrAlreadyPaid
	}
	return current, fmt.Errorf("mark order %s paid: no row updated", id)
}

// RecordPaymentEvent appends an audit row for a settlement attempt.
func (s *Store) RecordPaymentEvent(ctx context.Context, ev PaymentEvent) error {
	return s.q.InsertPaymentEvent(ctx, dbgen.InsertPaymentEventParams{
		OrderID:           ev.OrderID,
		ProviderOrderID:   ev.ProviderOrderID,
		ProviderPaymentID: ev.ProviderPaymentID,
		Outcome:           ev.Outcome,
		Source:            ev.Source,
	})
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func fromRow(row dbgen.Order) (Order, error) {
	o := Order{
		ID:        row.ID,
		UserID:    row.UserID,
		State:     StateUnpaid,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
	if row.TotalAmount.Valid {
		f, err := row.TotalAmount.Float64Value()
		if err != nil {
			return Order{}, fmt.Errorf("decode total: %w", err)
		}
		o.TotalAmount = f.Float64
	}
	if row.IsPaid {
		o.State = StatePaid
	}
	if row.PaidAt.Valid {
		at := row.PaidAt.Time.UTC()
		o.PaidAt = &at
	}
	if len(row.PaymentResult) > 0 {
		var res PaymentResult
		if err := json.Unmarshal(row.PaymentResult, &res); err != nil {
			return Order{}, fmt.Errorf("decode payment result: %w", err)
		}
		o.PaymentResult = &res
	}
	return o, nil
}

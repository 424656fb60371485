package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	dbgen "github.com/noah-isme/toko-payments/internal/db/gen"
)

// TaskPrefix namespaces asynq task types carrying domain events.
const TaskPrefix = "event:"

// QueueEvents is the asynq queue carrying event tasks.
const QueueEvents = "events"

// Envelope is the task payload forwarded to the worker.
type Envelope struct {
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Enqueuer is the subset of *asynq.Client used by TaskNotifier.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier forwards persisted events to the background worker via asynq.
type TaskNotifier struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
}

// Notify enqueues the event as an "event:<topic>" task.
func (n TaskNotifier) Notify(ctx context.Context, ev dbgen.DomainEvent) error {
	if n.Client == nil {
		return errors.New("events: task client not configured")
	}
	body, err := json.Marshal(Envelope{
		Topic:       ev.Topic,
		AggregateID: ev.AggregateID,
		Payload:     json.RawMessage(ev.Payload),
		OccurredAt:  ev.OccurredAt.Time,
	})
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.MaxRetry(n.maxRetry())}
	if n.Queue != "" {
		opts = append(opts, asynq.Queue(n.Queue))
	}
	if ev.ID.Valid {
		opts = append(opts, asynq.TaskID(uuid.UUID(ev.ID.Bytes).String()))
	}
	_, err = n.Client.EnqueueContext(ctx, asynq.NewTask(TaskPrefix+ev.Topic, body), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (n TaskNotifier) maxRetry() int {
	if n.MaxRetry <= 0 {
		return 5
	}
	return n.MaxRetry
}

// DecodeEnvelope parses a task payload produced by TaskNotifier.
func DecodeEnvelope(task *asynq.Task) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(task.Payload(), &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

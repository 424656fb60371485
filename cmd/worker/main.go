package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/toko-payments/internal/app"
	"github.com/noah-isme/toko-payments/internal/config"
	"github.com/noah-isme/toko-payments/internal/events"
	"github.com/noah-isme/toko-payments/internal/lock"
	"github.com/noah-isme/toko-payments/internal/obs"
	"github.com/noah-isme/toko-payments/internal/order"
	"github.com/noah-isme/toko-payments/internal/payment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().
		Str("env", cfg.AppEnv).
		Str("component", "worker").
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "toko-payments-worker",
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      cfg.TracingExporter,
			SamplingRatio: cfg.TracingSamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			cfg.TracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Open(openCtx, cfg, "toko-payments-worker", logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close(logger)

	settler := &payment.Settler{
		Store:   order.NewStore(deps.Queries),
		Locker:  lock.Locker{R: deps.Redis, RetryBackoff: cfg.LockRetryBackoff},
		LockTTL: cfg.SettlementLockTTL,
		Events: &events.Bus{
			Store: deps.Queries,
			Notifiers: []events.Notifier{
				events.TaskNotifier{Client: deps.TaskClient, Queue: events.QueueEvents},
			},
		},
		Reconciler: payment.AsynqReconciler{
			Client:   deps.TaskClient,
			Queue:    payment.QueuePayments,
			MaxRetry: cfg.ReconcileMaxRetry,
		},
		Logger: logger,
	}

	mux := asynq.NewServeMux()
	mux.Use(taskLogger(logger))
	mux.Handle(payment.TaskReconcile, payment.ReconcileHandler{Settler: settler})
	mux.HandleFunc(events.TaskPrefix, logDomainEvent)

	srv := asynq.NewServer(app.RedisConnOpt(deps.RedisOpts), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues: map[string]int{
			payment.QueuePayments: 6,
			events.QueueEvents:    3,
		},
		RetryDelayFunc:  payment.RetryDelay(10*time.Second, 30*time.Minute),
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn().Err(err).
				Str("task", task.Type()).
				Int("retry", retried).
				Int("max_retry", maxRetry).
				Msg("task_failed")
		}),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Msg("worker starting")
		return srv.Start(mux)
	})
	g.Go(func() error {
		<-gctx.Done()
		srv.Shutdown()
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("worker shutdown complete")
}

// taskLogger attaches a task scoped logger to the handler context.
func taskLogger(base zerolog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			taskID, _ := asynq.GetTaskID(ctx)
			logger := base.With().Str("task", task.Type()).Str("task_id", taskID).Logger()
			return next.ProcessTask(logger.WithContext(ctx), task)
		})
	}
}

func logDomainEvent(ctx context.Context, task *asynq.Task) error {
	env, err := events.DecodeEnvelope(task)
	if err != nil {
		return fmt.Errorf("decode event envelope: %v: %w", err, asynq.SkipRetry)
	}
	zerolog.Ctx(ctx).Info().
		Str("topic", env.Topic).
		Str("aggregate_id", env.AggregateID).
		Time("occurred_at", env.OccurredAt).
		RawJSON("payload", env.Payload).
		Msg("domain_event")
	return nil
}

// asynqLogger routes asynq's internal logs through zerolog.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }

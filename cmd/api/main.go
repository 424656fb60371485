package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/toko-payments/internal/app"
	"github.com/noah-isme/toko-payments/internal/auth"
	"github.com/noah-isme/toko-payments/internal/common"
	"github.com/noah-isme/toko-payments/internal/config"
	"github.com/noah-isme/toko-payments/internal/events"
	"github.com/noah-isme/toko-payments/internal/health"
	"github.com/noah-isme/toko-payments/internal/lock"
	"github.com/noah-isme/toko-payments/internal/obs"
	"github.com/noah-isme/toko-payments/internal/order"
	"github.com/noah-isme/toko-payments/internal/payment"
	"github.com/noah-isme/toko-payments/internal/ratelimit"
	"github.com/noah-isme/toko-payments/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().
		Str("env", cfg.AppEnv).
		Str("component", "api").
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "toko-payments-api",
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
	deps, err := app.Open(openCtx, cfg, "toko-payments-api", logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close(logger)

	tokens, err := auth.NewTokens(auth.Config{
		Secret:         cfg.JWTSecret,
		Issuer:         cfg.JWTIssuer,
		Audience:       cfg.JWTAudience,
		AccessTokenTTL: cfg.AccessTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise tokens")
	}
	authMW := auth.Middleware{Tokens: tokens, AccessCookie: cfg.AccessCookieName}

	orders := order.NewStore(deps.Queries)
	bus := &events.Bus{
		Store: deps.Queries,
		Notifiers: []events.Notifier{
			events.TaskNotifier{Client: deps.TaskClient, Queue: events.QueueEvents},
		},
	}
	settler := &payment.Settler{
		Store:   orders,
		Locker:  lock.Locker{R: deps.Redis, RetryBackoff: cfg.LockRetryBackoff},
		LockTTL: cfg.SettlementLockTTL,
		Events:  bus,
		Reconciler: payment.AsynqReconciler{
			Client:   deps.TaskClient,
			Queue:    payment.QueuePayments,
			MaxRetry: cfg.ReconcileMaxRetry,
		},
		Logger: logger,
	}
	gateway := payment.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.ProviderTimeout)
	breaker := payment.NewProviderBreaker(cfg.CircuitProviderMinReq, cfg.CircuitProviderFailureRate, cfg.CircuitProviderOpenFor)
	svc := &payment.Service{
		Gateway:  gateway,
		Verifier: payment.NewVerifier(cfg.RazorpayKeySecret),
		Settler:  settler,
		Store:    orders,
		Breaker:  breaker.WithLogger(logger),
		Currency: cfg.PaymentCurrency,
		Logger:   logger,
	}
	paymentHandler := payment.NewHandler(svc)

	limiter, err := app.NewRateLimiter(cfg, deps.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	rateLimit := ratelimit.Handler{
		Limiter: limiter,
		Config: ratelimit.Config{
			Key:    ratelimit.KeyByUserOrIP("payments"),
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
	}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if cfg.TracingEnabled {
		r.Use(obs.TracingMiddleware("toko-payments-api"))
	}
	if cfg.MetricsEnabled {
		httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBucketsMS), deps.MetricsRegistry)
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeadersEnable, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.CORS(cfg.CORSAllowedOrigins))
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	healthHandler := health.Handler{
		Checker:            health.Deps{Pool: deps.DB, Redis: deps.Redis},
		DBTimeout:          cfg.HealthDBTimeout,
		RedisTimeout:       cfg.HealthRedisTimeout,
		ProviderConfigured: gateway.Configured,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/payments", func(p chi.Router) {
		p.With(rateLimit.Middleware).Get("/key", paymentHandler.Key)
		if cfg.WebhookEnabled() {
			p.Post("/webhook", payment.Webhook{
				Verifier:  payment.NewVerifier(cfg.RazorpayWebhookSecret),
				Settler:   settler,
				Replay:    deps.Redis,
				ReplayTTL: cfg.WebhookReplayTTL,
				MaxBody:   cfg.BodyLimitBytes,
			}.Handle)
		}
		p.Group(func(authR chi.Router) {
			authR.Use(authMW.RequireAuth)
			if cfg.CookieAuth() {
				authR.Use(security.CSRF{Header: cfg.CSRFHeader}.Middleware)
			}
			authR.Use(rateLimit.Middleware)
			authR.With(idem.Middleware).Post("/create-order", paymentHandler.CreateOrder)
			authR.With(idem.Middleware).Post("/verify", paymentHandler.Verify)
			authR.Get("/{orderId}/status", paymentHandler.Status)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := serve(ctx, srv, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("server shutdown complete")
}

// serve runs srv until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, drain time.Duration, logger zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

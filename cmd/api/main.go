package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-checkout/internal/auth"
	"github.com/noah-isme/storefront-checkout/internal/cart"
	"github.com/noah-isme/storefront-checkout/internal/checkout"
	"github.com/noah-isme/storefront-checkout/internal/common"
	"github.com/noah-isme/storefront-checkout/internal/config"
	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/events"
	"github.com/noah-isme/storefront-checkout/internal/health"
	"github.com/noah-isme/storefront-checkout/internal/lock"
	"github.com/noah-isme/storefront-checkout/internal/notify"
	"github.com/noah-isme/storefront-checkout/internal/obs"
	"github.com/noah-isme/storefront-checkout/internal/payment"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
	"github.com/noah-isme/storefront-checkout/internal/ratelimit"
	"github.com/noah-isme/storefront-checkout/internal/resilience"
	"github.com/noah-isme/storefront-checkout/internal/security"
	"github.com/noah-isme/storefront-checkout/internal/store"
	"github.com/noah-isme/storefront-checkout/internal/store/redisstore"
)

const serviceName = "storefront-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "storefront")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   serviceName,
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	backend, err := store.Open(startCtx, cfg, serviceName)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open store")
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error().Err(err).Msg("close store")
		}
	}()
	logger.Info().Str("driver", backend.Name).Msg("store ready")

	redisClient, err := redisstore.Open(startCtx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	verifier := mustInitVerifier(startCtx, cfg, logger)
	authMiddleware := auth.Middleware{Verifier: verifier, AccessCookie: cfg.AccessCookie}

	taskClient := mustInitTaskClient(cfg, logger)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	bus := &events.Bus{
		Store: backend.Events,
		Notifiers: []events.Notifier{notify.EmailNotifier{
			Queue:   taskClient,
			Enabled: cfg.NotifyEmailEnabled,
			Logger:  logger.With().Str("component", "notify").Logger(),
		}},
	}

	engine := pricing.Engine{ShippingFee: cfg.ShippingFee, TaxRate: cfg.TaxRate}
	validator := coupon.Validator{}

	cartSvc := &cart.Service{Store: backend, Products: backend}
	cartHandler := &cart.Handler{Svc: cartSvc, Engine: engine, Currency: cfg.CurrencyCode}

	checkoutSvc := &checkout.Service{
		Carts:      cartSvc,
		Coupons:    backend,
		History:    backend,
		Sessions:   redisstore.Sessions{R: redisClient, TTL: cfg.SessionTTL},
		Orders:     backend,
		Engine:     engine,
		Validator:  validator,
		Locker:     lock.Locker{R: redisClient, RetryBackoff: 50 * time.Millisecond, MaxWait: 3 * time.Second},
		LockTTL:    cfg.LockTTL,
		Events:     bus,
		Logger:     logger.With().Str("component", "checkout").Logger(),
		Currency:   cfg.CurrencyCode,
		Revalidate: cfg.CouponRevalidate,
	}
	couponLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByUser("coupon:"),
			Window: time.Minute,
			Max:    cfg.CouponAttemptsPerMinute,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("coupon rate limiter unavailable")
		},
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, CouponLimit: couponLimit.Middleware}

	paymentHandler := &payment.Handler{
		Orders:  checkoutSvc,
		Gateway: newGateway(cfg),
		KeyID:   cfg.PaymentKeyID,
		Secret:  cfg.PaymentKeySecret,
		Logger:  logger.With().Str("component", "payment").Logger(),
	}
	paymentLimit, err := ratelimit.NewIPMiddleware(redisClient, "rl:payments", cfg.PaymentRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise payment rate limit")
	}

	couponAdmin := &coupon.AdminHandler{Repo: backend, Validator: validator}
	adminGuard := auth.AdminBasicAuth{User: cfg.AdminUser, PasswordHash: cfg.AdminPasswordHash}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsMillis(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production", HSTSMaxAge: 31536000}.Middleware)
	r.Use(security.BodyLimit{Max: security.DefaultBodyLimit}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Probes: map[string]health.Probe{
			"store": backend.Ping,
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
		Timeout: envDurationMillis("HEALTH_READY_TIMEOUT_MS", 500),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Group(func(customer chi.Router) {
			customer.Use(authMiddleware.RequireAuth)
			if cfg.AccessCookie != "" {
				customer.Use(security.CSRF{SessionCookie: cfg.AccessCookie}.Middleware)
			}
			customer.Route("/cart", cartHandler.Routes)
			customer.Route("/checkout", func(c chi.Router) {
				c.Use(idem.Middleware)
				checkoutHandler.Routes(c)
			})
			customer.Route("/payments", func(p chi.Router) {
				if envBool("AUTH_REQUIRE_VERIFIED_EMAIL", false) {
					p.Use(auth.RequireVerifiedEmail)
				}
				p.Use(paymentLimit)
				p.Use(idem.Middleware)
				paymentHandler.Routes(p)
			})
		})

		v.Route("/admin/coupons", func(a chi.Router) {
			a.Use(adminGuard.Middleware)
			couponAdmin.Routes(a)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	health.SetReady(true)
	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func mustInitVerifier(ctx context.Context, cfg *config.Config, logger zerolog.Logger) auth.Verifier {
	switch cfg.AuthProvider {
	case config.AuthFirebase:
		v, err := auth.NewFirebaseVerifier(ctx, cfg.FirestoreProjectID, cfg.FirebaseCredentialsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise firebase auth")
		}
		return v
	default:
		v, err := auth.NewHMACVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise jwt auth")
		}
		return v
	}
}

func mustInitTaskClient(cfg *config.Config, logger zerolog.Logger) *asynq.Client {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for tasks")
	}
	return asynq.NewClient(opt)
}

func newGateway(cfg *config.Config) payment.Gateway {
	if cfg.PaymentSandbox {
		return payment.Sandbox{}
	}
	return payment.Client{
		BaseURL:   cfg.PaymentBaseURL,
		KeyID:     cfg.PaymentKeyID,
		KeySecret: cfg.PaymentKeySecret,
		HTTP:      resilience.NewTracedClient("payment-gateway", cfg.PaymentTimeout, 3),
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

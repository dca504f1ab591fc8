package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/gazette/pkg/api"
	"github.com/platinummonkey/gazette/pkg/async"
	"github.com/platinummonkey/gazette/pkg/auth"
	"github.com/platinummonkey/gazette/pkg/billing"
	"github.com/platinummonkey/gazette/pkg/config"
	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/middleware"
	"github.com/platinummonkey/gazette/pkg/notify"
	"github.com/platinummonkey/gazette/pkg/observability"
	"github.com/platinummonkey/gazette/pkg/orgs"
	"github.com/platinummonkey/gazette/pkg/session"
)

var version = "dev"

func main() {
	checkConfig := flag.Bool("check-config", false, "Validate configuration and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *checkConfig {
		fmt.Println("configuration OK")
		return
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("gazette exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	tp, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	shutdown.Register("tracing", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, tp, logger)
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	db, store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	if db != nil {
		shutdown.Register("database", func(context.Context) error { return db.Close() })
	}

	redisClient, err := openRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}

	proxies, err := auth.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return err
	}
	audit := auth.NewAuditLogger(logger)
	audit.SetTrustedProxies(proxies)

	limiterCfg := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.LoginRequests,
		WindowDuration:    cfg.RateLimit.LoginWindow,
	}
	var (
		sessionStore session.Store
		limiter      middleware.Limiter
	)
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
		sessionStore = session.NewRedisStore(redisClient, cfg.Redis.KeyPrefix+":session")
		limiter = middleware.NewDistributedRateLimiter(redisClient, limiterCfg, cfg.Redis.KeyPrefix+":ratelimit:login")
		logger.Info("Sessions and rate limits stored in Redis")
	} else {
		sessionStore = session.NewMemoryStore()
		memLimiter := middleware.NewRateLimiter(limiterCfg)
		memLimiter.StartCleanup(ctx)
		limiter = memLimiter
		logger.Warn("No Redis configured, sessions are kept in process memory")
	}

	catalog := billing.NewCatalogCache(store, cfg.Billing.CatalogCacheTTL, metrics)
	if err := catalog.Seed(ctx, catalogFrom(cfg)); err != nil {
		return fmt.Errorf("failed to seed subscription catalog: %w", err)
	}

	var (
		notifier notify.Notifier
		previews *notify.PreviewNotifier
	)
	switch cfg.Mail.Mode {
	case config.MailModeSMTP:
		m := cfg.Mail
		smtp := notify.NewSMTPNotifier(m.SMTPHost, m.SMTPPort, m.Username, m.Password, m.From, m.FromName)
		pool := async.NewWorkerPool(ctx, "mail", m.Workers, m.QueueSize, m.SendTimeout, logger)
		shutdown.Register("mail queue", pool.Shutdown)
		notifier = notify.NewQueuedNotifier(smtp, pool)
	default:
		previews = notify.NewPreviewNotifier(cfg.Server.PublicURL, cfg.Mail.PreviewMax, cfg.Mail.PreviewTTL)
		notifier = previews
	}

	billingService := billing.NewService(store, store, catalog, notifier, metrics, logger)
	orgService := orgs.NewService(store, store, billingService, logger)
	authService := auth.NewService(store, logger)
	sessions := session.NewManager(sessionStore, store, cfg.Session.TTL, metrics, logger)

	scheduler, err := billing.NewScheduler(billingService, cfg.Billing.GaugeSchedule, logger)
	if err != nil {
		return fmt.Errorf("failed to create billing scheduler: %w", err)
	}
	scheduler.Start()
	shutdown.Register("billing scheduler", scheduler.Stop)

	server := api.NewServer(api.Deps{
		Store:           store,
		Auth:            authService,
		Sessions:        sessions,
		Billing:         billingService,
		Orgs:            orgService,
		Authorizer:      middleware.NewAuthorizer(nil, metrics),
		Audit:           audit,
		LoginLimiter:    limiter,
		LimiterFailOpen: cfg.RateLimit.FailOpen,
		TrustedProxies:  proxies,
		Previews:        previews,
		SecureCookies:   cfg.Session.CookieSecure,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		Metrics:         metrics,
		Logger:          logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      otelhttp.NewHandler(server, "gazette"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              cfg.Server.HealthAddr(),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// registered last so they drain first
	shutdown.Register("health server", healthServer.Shutdown)
	shutdown.Register("api server", httpServer.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Gazette API listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("Health and metrics listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	if path := config.FilePath(); path != "" {
		g.Go(func() error {
			return config.Watch(gctx, path, logger, func(next *config.Config) {
				if err := catalog.Seed(gctx, catalogFrom(next)); err != nil {
					logger.WithError(err).Warn("failed to reseed subscription catalog")
					return
				}
				logger.Info("Subscription catalog reseeded")
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		return shutdown.Shutdown(context.Background())
	})

	return g.Wait()
}

// catalogFrom returns the configured catalog, or the built-in one
func catalogFrom(cfg *config.Config) []identity.SubscriptionType {
	if len(cfg.Catalog) == 0 {
		return billing.DefaultCatalog()
	}
	return cfg.Catalog
}

// openStore returns a Postgres-backed store when a database URL is set and
// the in-memory store otherwise. db is nil for the in-memory store.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *observability.Logger) (*sql.DB, identity.Store, error) {
	if cfg.URL == "" {
		logger.Warn("No database configured, using in-memory identity store")
		return nil, identity.NewMemoryStore(), nil
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := identity.RunMigrations(ctx, db, logger); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Info("Connected to PostgreSQL")
	return db, identity.NewPostgresStore(db), nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.PoolSize = cfg.PoolSize
	opts.MaxRetries = cfg.MaxRetries

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Package observability provides structured logging, Prometheus metrics, OpenTelemetry tracing,
// health checks and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), os.Stdout)
//	logger.WithField("user_id", userID).Info("session created")
//
// Request-scoped loggers carry request, user, session and trace identifiers:
//
//	observability.FromContext(r.Context()).Warn("organization selection failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordAuthzDecision("article", "create", "editor", true)
//	metrics.SetActiveSubscriptions("Business", 12)
//
// A nil *Metrics is accepted everywhere and records nothing.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(serveMux, checker)
//
// # OpenTelemetry
//
//	tp, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "gazette",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, tp, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/middleware: Session and permission middleware that report here
package observability

// Package observability provides structured logging, Prometheus metrics,
// health checks, and OpenTelemetry integration.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("workspace_id", id).Info("workspace created")
//
// Request-scoped fields come from the context:
//
//	logger.FromContext(ctx).Warn("sticky org cookie names unknown workspace")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.CacheHitsTotal.WithLabelValues("user").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	checker.AddExternal("idp", idpClient)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, otelCfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/httputil: request logging and request-id middleware
package observability

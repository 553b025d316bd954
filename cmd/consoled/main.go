package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/hallwayhq/console/pkg/api"
	"github.com/hallwayhq/console/pkg/apikeys"
	"github.com/hallwayhq/console/pkg/cache"
	"github.com/hallwayhq/console/pkg/config"
	"github.com/hallwayhq/console/pkg/idp"
	"github.com/hallwayhq/console/pkg/middleware"
	"github.com/hallwayhq/console/pkg/observability"
	"github.com/hallwayhq/console/pkg/roles"
	"github.com/hallwayhq/console/pkg/session"
	"github.com/hallwayhq/console/pkg/storage"
	"github.com/hallwayhq/console/pkg/webhooks"
	"github.com/hallwayhq/console/pkg/workspaces"
)

const (
	reconcileSchedule = "*/5 * * * *"
	keySweepSchedule  = "30 3 * * *"
	keySweepGrace     = 24 * time.Hour
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
		logger.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting consoled")

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ctx := context.Background()

	var otelProviders *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		otelProviders, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("failed to initialize OpenTelemetry")
			os.Exit(1)
		}
	}

	db, err := storage.Connect(cfg.Database)
	if err != nil {
		logger.WithError(err).Error("failed to connect to PostgreSQL")
		os.Exit(1)
	}
	go storage.ReportPoolStats(ctx, db, metrics, 15*time.Second)

	cacheClient, err := cache.NewClient(cfg.Cache, metrics)
	if err != nil {
		logger.WithError(err).Error("failed to connect to Redis")
		os.Exit(1)
	}

	idpClient := idp.NewClient(idp.Config{
		Endpoint:     cfg.IdP.Endpoint,
		ClientID:     cfg.IdP.ManagementClientID,
		ClientSecret: cfg.IdP.ManagementClientSecret,
		Resource:     cfg.IdP.ManagementResource,
		Timeout:      cfg.IdP.Timeout,
	}, logger, metrics)

	webhookClient := webhooks.NewClient(cfg.Webhooks, logger, metrics)

	var objects *storage.ObjectStore
	if cfg.Storage.S3Bucket != "" {
		objects, err = storage.NewObjectStore(cfg.Storage)
		if err != nil {
			logger.WithError(err).Error("failed to initialize object storage")
			os.Exit(1)
		}
	} else {
		logger.Warn("object storage not configured; logo uploads disabled")
	}

	roleTable := roles.Default()
	sessions := session.NewStore(cacheClient, cfg.Session)
	resolver := session.NewResolver(cacheClient, idpClient, roleTable, logger, metrics)
	keyStore := apikeys.NewStore(db)
	validator := apikeys.NewValidator(keyStore, logger, metrics)
	invitations := workspaces.NewInvitationStore(db)
	workspaceService := workspaces.NewService(idpClient, cacheClient, invitations, objects, roleTable, logger)

	auth := middleware.NewAuth(sessions, resolver, validator, cfg.Session)
	translator := middleware.NewTranslator(logger)

	server := api.NewServer(cfg.Server, logger, metrics, cfg.Observability.OTelEnabled,
		api.NewAuthHandlers(sessions, auth, translator, logger, cfg.IdP, cfg.Session, cfg.Server.PublicURL),
		api.NewWorkspaceHandlers(workspaceService, auth, translator),
		api.NewAPIKeyHandlers(keyStore, validator, auth, translator),
		api.NewWebhookHandlers(webhookClient, auth, translator),
	)

	scheduler := startBackgroundJobs(invitations, idpClient, keyStore)

	healthServer := startHealthServer(cfg, logger, registry, db, cacheClient, idpClient, webhookClient)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		<-scheduler.Stop().Done()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return cacheClient.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return db.Close()
	})
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// startBackgroundJobs schedules invitation reconciliation and the expired
// API key sweep.
func startBackgroundJobs(invitations *workspaces.InvitationStore, idpClient *idp.Client, keyStore *apikeys.Store) *cron.Cron {
	jobLogger := logrus.New()
	jobLogger.SetFormatter(&logrus.JSONFormatter{})

	reconciler := workspaces.NewReconciler(invitations, idpClient, jobLogger)

	scheduler := cron.New()
	scheduler.AddFunc(reconcileSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := reconciler.Run(ctx); err != nil {
			jobLogger.WithError(err).Error("invitation reconciliation failed")
		}
	})
	scheduler.AddFunc(keySweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		removed, err := keyStore.DeleteExpired(ctx, keySweepGrace)
		if err != nil {
			jobLogger.WithError(err).Error("expired key sweep failed")
			return
		}
		if removed > 0 {
			jobLogger.WithField("removed", removed).Info("swept expired API keys")
		}
	})
	scheduler.Start()
	return scheduler
}

// startHealthServer serves liveness, readiness, and metrics on a separate
// port so probes stay reachable while the API drains.
func startHealthServer(cfg *config.Config, logger *observability.Logger, registry *prometheus.Registry, db *sql.DB, cacheClient *cache.Client, idpClient *idp.Client, webhookClient *webhooks.Client) *http.Server {
	checker := observability.NewHealthChecker(db, cacheClient.GetClient())
	checker.AddExternal("idp", idpClient)
	checker.AddExternal("webhooks", webhookClient)

	mux := http.NewServeMux()
	observability.RegisterHealthRoutes(mux, checker)
	observability.RegisterMetricsEndpoint(mux, registry)

	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: mux,
	}
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()
	return healthServer
}

package main

import (
	"context"

	"github.com/robfig/cron/v3"

	"herald/internal/credentials"
	"herald/internal/handlers"
	"herald/internal/imagehost"
	"herald/internal/publisher"
	"herald/internal/publisher/instagram"
	"herald/internal/publisher/linkedin"
	"herald/internal/publisher/twitter"
	"herald/internal/scheduler"
	"herald/internal/store"
	"herald/internal/worker"
	"herald/pkg/config"
	"herald/pkg/database"
	"herald/pkg/logging"
	"herald/pkg/middleware"
	"herald/pkg/monitoring"
	"herald/pkg/server"
	"herald/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("herald")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Herald (Scheduled Publishing Engine)")

	dbURL := config.RequireEnv("DATABASE_URL")
	serviceToken := config.RequireEnv("SERVICE_TOKEN")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	// Resolve platform credentials once; adapters hold them read-only
	creds := credentials.FromEnv()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("herald", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("herald", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(
		map[string]string{
			"DATABASE_URL":  dbURL,
			"SERVICE_TOKEN": serviceToken,
		},
		map[string]string{
			"TWITTER_CONSUMER_KEY":  creds.Twitter.ConsumerKey,
			"LINKEDIN_ACCESS_TOKEN": creds.LinkedIn.AccessToken,
			"INSTAGRAM_ACCESS_TOKEN": creds.Instagram.AccessToken,
		},
	))

	metrics := &worker.Metrics{
		PublishAttempts: metricsCollector.NewCounter("publish_attempts_total", "Publish attempts by platform and outcome", []string{"platform", "outcome"}),
		PublishDuration: metricsCollector.NewHistogram("publish_duration_seconds", "Publish attempt duration by platform", []string{"platform"}, nil),
	}

	// Platform adapters
	imageHost := imagehost.NewClient(creds.ImageHost, logger)
	registry := publisher.NewRegistry(
		twitter.NewClient(creds.Twitter, logger),
		linkedin.NewClient(creds.LinkedIn, logger),
		instagram.NewClient(creds.Instagram, imageHost, logger),
	)

	postStore := store.NewStore(db)
	publishWorker := worker.NewPublishWorker(postStore, registry, logger,
		worker.WithBatchSize(config.GetEnvInt("PUBLISH_BATCH_SIZE", 10)),
		worker.WithMaxRetries(config.GetEnvInt("PUBLISH_MAX_RETRIES", 3)),
		worker.WithMetrics(metrics),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fixed-cadence trigger for unattended publishing
	cronSpec := config.GetEnv("PUBLISH_CRON", "*/2 * * * *")
	c := cron.New()
	if _, err := c.AddFunc(cronSpec, func() {
		if _, err := publishWorker.RunOnce(ctx); err != nil {
			logger.WithError(err).Error("Scheduled publishing invocation failed")
		}
	}); err != nil {
		logger.WithError(err).WithField("cron", cronSpec).Fatal("Invalid publish cron spec")
	}
	c.Start()
	defer c.Stop()

	logger.WithField("cron", cronSpec).Info("Publishing schedule active")

	// Delegated-status reconciler, only when a scheduling service is configured
	schedulerClient := scheduler.NewClient(creds.Scheduler, logger)
	if schedulerClient.Configured() {
		reconciler := worker.NewReconciler(postStore, schedulerClient, logger,
			config.GetEnvDuration("RECONCILE_INTERVAL", 0))
		go reconciler.Start(ctx)
		defer reconciler.Stop()
		logger.Info("Delegated-status reconciler active")
	}

	// HTTP surface
	h := handlers.New(publishWorker, postStore, logger)
	router := server.SetupServiceRouter(logger, "herald", healthChecker, metricsCollector)

	serviceAPI := router.Group("")
	serviceAPI.Use(middleware.ServiceAuthMiddleware(serviceToken))
	{
		serviceAPI.POST("/publish/run", h.TriggerPublish)
		serviceAPI.GET("/posts/:id", h.GetPost)
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("herald", "18010")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}

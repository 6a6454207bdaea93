package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/api"
	"github.com/lalithlochan/crmflow/internal/automation"
	"github.com/lalithlochan/crmflow/internal/circuitbreaker"
	"github.com/lalithlochan/crmflow/internal/db"
	"github.com/lalithlochan/crmflow/internal/handlers"
	"github.com/lalithlochan/crmflow/internal/jobs"
	"github.com/lalithlochan/crmflow/internal/notify"
	"github.com/lalithlochan/crmflow/internal/redis"
	"github.com/lalithlochan/crmflow/internal/rules"
	"github.com/lalithlochan/crmflow/internal/sns"
)

type inboxStore interface {
	notify.NotificationStore
	api.NotificationReader
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background job workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting crmflow",
		zap.String("env", cfg.Env),
		zap.String("mode", cfg.Mode().String()),
		zap.Int("port", cfg.Port),
		zap.String("broker", cfg.Broker.Backend),
		zap.String("version", version),
	)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		ruleStore   rules.Store          = rules.NewMemoryStore()
		inbox       inboxStore           = notify.NewMemoryStore()
		contacts    notify.ContactLookup = notify.StaticContacts{}
		contactBook api.ContactSaver
		health      api.HealthChecker
	)
	if cfg.DB.Enabled {
		database, err := db.New(ctx, cfg.DB.DSN(), logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()

		logger.Info("database connection established",
			zap.String("host", cfg.DB.Host),
			zap.Int("port", cfg.DB.Port),
			zap.String("database", cfg.DB.Name),
		)

		ruleStore = db.NewRuleRepository(database, logger)
		inbox = db.NewNotificationRepository(database, logger)
		contactRepo := db.NewContactRepository(database, logger)
		cached := notify.NewCachedContacts(contactRepo, cfg.Channels.ContactCacheTTL)
		contacts = cached
		contactBook = notify.NewContactBook(contactRepo, cached)
		health = database
	} else {
		logger.Warn("database disabled, rules and notifications are kept in memory")
	}

	// The client does not dial; an unreachable Redis degrades the job
	// workers, idempotency and rate limiting instead of failing startup.
	redisClient := newRedisClient(cfg, logger)
	defer redisClient.Close()

	broker, err := newBroker(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	engine := rules.NewEngine(ruleStore, logger)
	if err := seedRules(ctx, engine, cfg.RulesFile, logger); err != nil {
		return err
	}

	templates := notify.DefaultTemplates()
	if cfg.Channels.TemplatesFile != "" {
		templates, err = notify.LoadTemplates(cfg.Channels.TemplatesFile, templates)
		if err != nil {
			return fmt.Errorf("failed to load notification templates: %w", err)
		}
	}

	var channelLimiter *redis.RateLimiter
	if cfg.Channels.RateLimitPerMinute > 0 {
		channelLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.Channels.RateLimitPerMinute,
			Window: time.Minute,
		})
	}

	publisher := notify.Publishers{redis.NewPublisher(redisClient, logger)}
	if cfg.AWS.EventsTopicARN != "" {
		topic, err := sns.NewPublisher(ctx, sns.Config{
			Region:   cfg.AWS.SNSRegion,
			TopicARN: cfg.AWS.EventsTopicARN,
			Endpoint: cfg.AWS.Endpoint,
		}, logger)
		if err != nil {
			logger.Warn("sns events topic unavailable", zap.Error(err))
		} else {
			publisher = append(publisher, topic)
		}
	}

	dispatcher := notify.NewDispatcher(inbox, logger,
		notify.WithTemplates(templates),
		notify.WithContacts(contacts),
		notify.WithPublisher(publisher),
		notify.WithConcurrent(cfg.Channels.DispatchConcurrent),
	)
	breakers := circuitbreaker.NewRegistry()
	for _, a := range newAdapters(ctx, cfg, channelLimiter, breakers, logger) {
		dispatcher.Register(a)
	}
	logger.Info("notification channels initialized",
		zap.Any("channels", dispatcher.Channels()),
		zap.Bool("throttled", channelLimiter != nil),
	)

	registry := jobs.NewRegistry()
	handlers.Register(registry, handlers.LoggingServices{Logger: logger}, dispatcher, handlers.Config{
		SurveyBaseURL: cfg.Channels.SurveyBaseURL,
	}, logger)

	producer := jobs.NewProducer(broker, logger)
	scheduler := jobs.NewScheduler(jobs.SchedulerConfig{
		Mode:        cfg.Mode(),
		Concurrency: cfg.Worker.Concurrency(),
	}, broker, registry, jobs.NewGuard(broker, cfg.Broker.MaxRetries, logger), logger)

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	logger.Info("job scheduler started", zap.Stringer("state", scheduler.State()))

	pipeline := automation.NewPipeline(engine, producer, dispatcher, logger)

	var apiLimiter api.Limiter
	if cfg.APIRateLimit > 0 {
		apiLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.APIRateLimit,
			Window: time.Minute,
		})
	}

	handler := api.NewHandler(logger, api.Deps{
		Rules:         engine,
		Events:        pipeline,
		Jobs:          producer,
		Notifier:      dispatcher,
		Notifications: inbox,
		Scheduler:     scheduler,
		Deduper:       redis.NewDeduper(redisClient, cfg.IdempotencyTTL, logger),
		Health:        health,
		Breakers:      breakers,
		Contacts:      contactBook,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler, apiLimiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		cancel()
		_ = scheduler.Wait()
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-parent.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	// Workers finish the job in hand before they exit.
	cancel()
	if err := scheduler.Wait(); err != nil {
		logger.Warn("workers stopped with error", zap.Error(err))
	}

	logger.Info("server stopped gracefully")
	return nil
}

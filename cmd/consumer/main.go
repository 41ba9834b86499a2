package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/auth"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/config"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/consumer"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/repository"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/routes"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/scheduler"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/services"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/pkg/logger"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/pkg/metrics"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel, cfg.LogFormat)
	logr.Info("starting push service", slog.String("app", cfg.AppName))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCfg := retry.Config{
		MaxAttempts:    cfg.ConnectMaxAttempts,
		InitialBackoff: cfg.ConnectInitialBackoff,
		MaxBackoff:     cfg.ConnectMaxBackoff,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			logr.Warn("dependency not ready, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.Any("error", err),
			)
		},
	}

	var db *gorm.DB
	err = retry.Do(ctx, connectCfg, func() error {
		var openErr error
		db, openErr = gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		return openErr
	})
	if err != nil {
		logr.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := repository.Migrate(db); err != nil {
		logr.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}

	var (
		tokenCache repository.TokenCache
		suppressed services.SuppressionCache
	)
	if cfg.RedisURL != "" {
		cache := repository.NewRedisSuppression(redis.NewClient(&redis.Options{Addr: cfg.RedisURL}), cfg.TokenSuppressionTTL)
		defer cache.Close()
		if err := cache.Ping(ctx); err != nil {
			logr.Warn("redis unavailable, token suppression disabled", slog.Any("error", err))
		} else {
			tokenCache, suppressed = cache, cache
		}
	}

	tokenStore := repository.NewTokenStore(db, tokenCache)
	logStore := repository.NewLogStore(db)
	taskStore := repository.NewTaskStore(db)
	metricsCollector := metrics.New()

	// The authorized client refreshes tokens with this context, so it must
	// live as long as the process.
	httpClient, err := auth.NewGoogleAuthorizer(cfg.GoogleCredentialsFile).Authorize(context.Background(), auth.ScopeFCM)
	if err != nil {
		logr.Error("failed to authorize fcm client", slog.Any("error", err))
		os.Exit(1)
	}
	endpoint := cfg.FCMEndpoint
	if endpoint == "" {
		endpoint = services.FCMEndpoint(cfg.FCMProjectID)
	}
	transport := services.NewFCMTransport(httpClient, endpoint, cfg.ProviderTimeout, logr)

	sender := services.NewSender(
		transport,
		tokenStore,
		logStore,
		metricsCollector,
		logr,
		services.WithClassifier(services.NewClassifier(cfg.FatalErrorCodes...)),
	)
	dispatcher := services.NewDispatcher(sender, tokenStore, taskStore, taskStore, suppressed, metricsCollector, logr)

	var conn *amqp.Connection
	err = retry.Do(ctx, connectCfg, func() error {
		var dialErr error
		conn, dialErr = amqp.Dial(cfg.RabbitURL)
		if errors.Is(dialErr, amqp.ErrCredentials) || errors.Is(dialErr, amqp.ErrSASL) {
			return retry.Permanent(dialErr)
		}
		return dialErr
	})
	if err != nil {
		logr.Error("failed to connect rabbitmq", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	base := consumer.NewBaseConsumer(conn, consumer.Options{
		Queue:           cfg.PushQueue,
		DeadLetterQueue: cfg.DeadLetterQueue,
		Prefetch:        cfg.PrefetchCount,
		Workers:         cfg.WorkerCount,
		Tag:             cfg.AppName,
	}, logr)
	pushConsumer := consumer.NewPushConsumer(base, dispatcher, metricsCollector, logr, cfg.DeliveryMaxAttempts)
	campaigns := scheduler.NewCampaignScheduler(taskStore, dispatcher, logr, cfg.CampaignSchedule, cfg.CampaignBatchSize)

	started := time.Now()
	httpSrv := startHTTPServer(cfg.HTTPPort, routes.Deps{
		Dispatcher: dispatcher,
		Tokens:     tokenStore,
		Metrics:    metricsCollector,
		JWTSecret:  cfg.JWTSecret,
		Started:    started,
	}, logr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := campaigns.Run(ctx); err != nil {
			logr.Error("campaign scheduler exited", slog.Any("error", err))
		}
	}()

	if err := pushConsumer.Start(ctx); err != nil {
		logr.Error("push consumer exited", slog.Any("error", err))
		stop()
	}

	wg.Wait()
	shutdownHTTP(httpSrv, logr)
	logr.Info("push service stopped")
}

func startHTTPServer(port string, deps routes.Deps, logr *slog.Logger) *http.Server {
	if port == "" {
		port = "8082"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: routes.NewRouter(deps),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logr *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
}

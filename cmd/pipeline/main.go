package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/object-sync-pipeline/internal/api"
	"github.com/Priya8975/object-sync-pipeline/internal/config"
	"github.com/Priya8975/object-sync-pipeline/internal/dispatcher"
	"github.com/Priya8975/object-sync-pipeline/internal/fetcher"
	"github.com/Priya8975/object-sync-pipeline/internal/processor"
	"github.com/Priya8975/object-sync-pipeline/internal/receiver"
	"github.com/Priya8975/object-sync-pipeline/internal/store"
	ws "github.com/Priya8975/object-sync-pipeline/internal/websocket"
	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgStore, err := connectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	redisClient, err := connectRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	// Seed subscribers declared in configuration.
	subscriberIDs := make([]string, 0, len(cfg.AllSubscribers()))
	for _, sc := range cfg.AllSubscribers() {
		sub, err := pgStore.EnsureSubscriber(ctx, sc.Name, sc.Endpoint, sc.Secret)
		if err != nil {
			logger.Error("failed to seed subscriber", "error", err, "endpoint", sc.Endpoint)
			os.Exit(1)
		}
		subscriberIDs = append(subscriberIDs, sub.ID)
		logger.Info("subscriber ready", "subscriber_id", sub.ID, "endpoint", sc.Endpoint)
	}

	hub := ws.NewHub(logger)
	go hub.Run()

	policy := dispatcher.RetryPolicy{
		Base:        cfg.BackoffBase(),
		Multiplier:  cfg.BackoffMultiplier,
		Max:         cfg.BackoffMax(),
		MaxAttempts: cfg.MaxDeliveryAttempts,
	}
	if span := policy.MaxSpan(); cfg.DedupRetention() < span {
		// A dedup window shorter than the retry span lets a late redelivery
		// slip past the duplicate filter.
		logger.Warn("dedup retention is shorter than the maximum retry span",
			"retention", cfg.DedupRetention(),
			"retry_span", span,
		)
	}

	queue := dispatcher.NewQueue(redisClient, logger)
	breaker := dispatcher.NewBreaker(redisClient, logger)
	deliverer := dispatcher.NewDeliverer(pgStore, queue, breaker, policy, hub, logger)

	pool := dispatcher.NewPool(cfg.DispatchConcurrency, deliverer, logger)
	pool.Start(ctx)

	poller := dispatcher.NewPoller(queue, pool, logger)
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(ctx)
	}()

	// One feed tail per subscriber over the data bucket. The results bucket
	// has no subscribers, so processed output never re-enters dispatch.
	for _, id := range subscriberIDs {
		loop := dispatcher.NewCursorLoop(pgStore, queue, cfg.DataBucket, id, logger)
		go loop.Run(ctx)
	}

	var writer fetcher.ObjectWriter = pgStore
	if cfg.ObjectStoreEndpoint != "" {
		writer = store.NewHTTPObjectClient(cfg.ObjectStoreEndpoint)
	}
	syncer := fetcher.New(writer, fetcher.Config{
		SourceEndpoint: cfg.SourceEndpoint,
		APIEndpoint:    cfg.SourceAPIEndpoint,
		APIObjectKey:   cfg.SourceAPIObjectKey,
		Bucket:         cfg.DataBucket,
		Prefix:         cfg.SourcePrefix,
		Interval:       cfg.PollInterval(),
		RatePerSecond:  cfg.FetchRatePerSecond,
		Concurrency:    cfg.DispatchConcurrency,
	}, logger)
	if cfg.SourceEndpoint != "" || cfg.SourceAPIEndpoint != "" {
		go syncer.Run(ctx)
	} else {
		logger.Info("no source configured, fetcher disabled")
	}

	proc := processor.New(pgStore, pgStore, cfg.ResultsBucket, logger)
	rc := receiver.New(redisClient, proc, cfg.DedupRetention(), logger)

	router := api.NewRouter(pgStore, queue, breaker, rc, hub)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	cancel()
	// The poller submits into the pool; it must exit before the pool closes
	// its job channel.
	<-pollerDone
	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("pipeline stopped")
}

// connectPostgres retries the initial connection so the pipeline survives a
// database that comes up after it does.
func connectPostgres(ctx context.Context, url string, logger *slog.Logger) (*store.PostgresStore, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 10 * time.Second

	deadline, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	for {
		pgStore, err := store.NewPostgres(deadline, url)
		if err == nil {
			return pgStore, nil
		}
		logger.Warn("postgres not ready, retrying", "error", err)

		sleep := bo.NextBackOff()
		if sleep == backoff.Stop {
			sleep = 10 * time.Second
		}
		select {
		case <-deadline.Done():
			return nil, err
		case <-time.After(sleep):
		}
	}
}

func connectRedis(ctx context.Context, url string, logger *slog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 10 * time.Second

	deadline, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	for {
		err := client.Ping(deadline).Err()
		if err == nil {
			return client, nil
		}
		logger.Warn("redis not ready, retrying", "error", err)

		sleep := bo.NextBackOff()
		if sleep == backoff.Stop {
			sleep = 10 * time.Second
		}
		select {
		case <-deadline.Done():
			client.Close()
			return nil, err
		case <-time.After(sleep):
		}
	}
}

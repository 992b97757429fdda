package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/zapflow/dispatch/internal/api"
	"github.com/zapflow/dispatch/internal/config"
	"github.com/zapflow/dispatch/internal/logger"
	"github.com/zapflow/dispatch/internal/queue"
	"github.com/zapflow/dispatch/internal/scheduler"
	"github.com/zapflow/dispatch/internal/sender"
	"github.com/zapflow/dispatch/internal/store"
	"github.com/zapflow/dispatch/internal/transport"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(logger.Config{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxFiles:   cfg.Logging.MaxFiles,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	log.Info().Msg("starting dispatch worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Entity store.
	db, err := store.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	entities := store.NewPostgres(db)

	// Durable queue store.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisClient.Close()
	queueStore := queue.NewRedisStore(redisClient)

	// Outbound transport and send pipeline.
	tr, err := transport.New(transport.Config{
		Type:       cfg.Transport.Type,
		GatewayURL: cfg.Transport.GatewayURL,
		APIToken:   cfg.Transport.APIToken,
		Timeout:    cfg.Transport.Timeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create transport")
	}

	loc := time.Local
	if cfg.BusinessHours.Timezone != "" && cfg.BusinessHours.Timezone != "Local" {
		loc, err = time.LoadLocation(cfg.BusinessHours.Timezone)
		if err != nil {
			log.Fatal().Err(err).Str("timezone", cfg.BusinessHours.Timezone).Msg("invalid timezone")
		}
	}
	delaySched := scheduler.New(scheduler.Config{
		BusinessHoursEnabled: cfg.BusinessHours.Enabled,
		StartHour:            cfg.BusinessHours.StartHour,
		EndHour:              cfg.BusinessHours.EndHour,
		Location:             loc,
	}, log)

	retrySender := sender.New(tr, delaySched, sender.Config{
		MaxRetries:   cfg.Sender.MaxRetries,
		RetryDelay:   cfg.Sender.RetryDelay,
		MinSendDelay: cfg.Sender.MinSendDelay,
		MaxSendDelay: cfg.Sender.MaxSendDelay,
	}, log)

	secureQueue := queue.NewSecureQueue(queueStore, entities, retrySender,
		queue.ProcessorConfig{
			MaxConcurrency: cfg.Queue.MaxConcurrency,
			StuckThreshold: cfg.Queue.StuckThreshold,
			LatestSendInstant: func(claimedAt time.Time) time.Time {
				return delaySched.ResolveSendInstant(claimedAt, cfg.Sender.MaxSendDelay)
			},
		},
		queue.SecureConfig{
			BatchSize:   cfg.Queue.BatchSize,
			Shuffle:     cfg.Queue.Shuffle,
			ItemSpacing: cfg.Queue.ItemSpacing,
			MarkerTTL:   cfg.Queue.MarkerTTL,
			LockTTL:     cfg.Queue.LockTTL,
		}, log)

	// Recurring triggers: the consumer sweep and stuck-item recovery.
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.Queue.SweepInterval), func() {
		if err := secureQueue.ProcessMessageQueue(ctx); err != nil {
			log.Error().Err(err).Msg("consumer sweep failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule consumer sweep")
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.Queue.RecoverInterval), func() {
		recovered, err := secureQueue.Processor().RecoverStuckMessages(ctx)
		if err != nil {
			log.Error().Err(err).Msg("stuck-item recovery failed")
			return
		}
		if recovered > 0 {
			log.Info().Int("recovered", recovered).Msg("stuck items recovered")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule stuck-item recovery")
	}
	c.Start()

	// Ops HTTP server.
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:      api.NewRouter(secureQueue, queueStore, log),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("ops server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("ops server failed")
		}
	}()

	log.Info().
		Dur("sweep_interval", cfg.Queue.SweepInterval).
		Int("max_concurrency", cfg.Queue.MaxConcurrency).
		Msg("dispatch worker started")

	// Wait for interrupt signal for graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down dispatch worker")

	cronCtx := c.Stop()
	<-cronCtx.Done()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server shutdown failed")
	}
	if err := secureQueue.Processor().Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("processor shutdown failed")
	}

	log.Info().Msg("dispatch worker stopped")
}

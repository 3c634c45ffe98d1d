package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-converter/internal/config"
	"github.com/insightdelivered/statement-converter/internal/conversion"
	"github.com/insightdelivered/statement-converter/internal/logger"
	"github.com/insightdelivered/statement-converter/internal/metrics"
	"github.com/insightdelivered/statement-converter/internal/storage"
	"github.com/insightdelivered/statement-converter/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	ctx := logger.WithContext(context.Background(), log)

	// Status records carry QA totals as JSON numbers, matching the service.
	decimal.MarshalJSONWithoutQuotes = true

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	rdb, err := worker.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	conv := conversion.NewFromConfig(cfg, log)
	if cfg.Server.MetricsEnabled {
		collector := metrics.New()
		conv.Observer = collector
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			log.Info().Str("addr", addr).Msg("worker metrics listening")
			if err := http.ListenAndServe(addr, collector.Handler()); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues:      map[string]int{cfg.Worker.Queue: 1},
			BaseContext: func() context.Context { return ctx },
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().Err(err).Str("task", task.Type()).Msg("task failed")
			}),
		},
	)

	mux := asynq.NewServeMux()
	worker.RegisterHandlers(mux, &worker.Handler{
		Converter: conv,
		Store:     store,
		Statuses:  worker.NewRedisStatusStore(rdb, cfg.Worker.StatusTTL),
		Log:       log,
	})

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info().Msg("gracefully shutting down worker")
		srv.Shutdown()
	}()

	log.Info().
		Int("concurrency", cfg.Worker.Concurrency).
		Str("queue", cfg.Worker.Queue).
		Bool("remote", conv.Remote != nil).
		Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		log.Fatal().Err(err).Msg("worker stopped")
	}
	log.Info().Msg("worker exited")
}

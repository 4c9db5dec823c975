package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dafibh/envelope/envelope-backend/internal/amqp"
	"github.com/dafibh/envelope/envelope-backend/internal/cache"
	"github.com/dafibh/envelope/envelope-backend/internal/config"
	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/repository"
	"github.com/dafibh/envelope/envelope-backend/internal/repository/document"
	"github.com/dafibh/envelope/envelope-backend/internal/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// recalc-worker consumes queued recalculation requests. Sweeps of stale budgets
// stay with the API process.
func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	logger := log.Logger.With().Str("service", "recalc-worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if !cfg.AMQP.Enabled() {
		logger.Fatal().Msg("AMQP_URL is required for the recalculation worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := repository.OpenStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.DocumentStore).Msg("Failed to open document store")
	}
	defer closeStore()

	docCache := cache.NewDocumentCache(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(docCache)
	cacheManager.StartCleanup(time.Minute)
	defer cacheManager.Stop()

	budgetRepo := document.NewBudgetRepository(store, docCache)
	monthRepo := document.NewMonthRepository(store, docCache)
	tracker := service.NewRecalcTracker(budgetRepo)
	cascadeService := service.NewCascadeService(budgetRepo, monthRepo, tracker, service.NewCalculationService(), service.NewBudgetLocker(), logger)
	worker := service.NewRecalcWorker(cascadeService, budgetRepo, logger, service.RecalcWorkerConfig{
		Concurrency: cfg.Recalc.WorkerConcurrency,
	})
	defer worker.Stop()

	client, err := amqp.NewClient(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to AMQP broker")
	}
	defer client.Close()

	// websocket clients live in the API processes; events reach them through the broker
	cascadeService.SetEventPublisher(client)
	worker.SetEventPublisher(client)

	go func() {
		err := client.ConsumeCancellations(ctx, func(budgetID, jobID string) {
			if err := worker.Cancel(jobID); err == nil {
				logger.Info().Str("budget_id", budgetID).Str("job_id", jobID).Msg("Cancelling recalculation job")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Cancellation consumer stopped")
		}
	}()

	logger.Info().Str("queue", cfg.AMQP.Queue).Msg("Recalculation worker started")

	err = client.ConsumeRecalcRequests(ctx, func(ctx context.Context, msg *amqp.RecalcMessage) error {
		return runRecalc(ctx, worker, msg.RecalcRequest)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Consumer stopped")
	}

	logger.Info().Msg("Recalculation worker exited")
}

// runRecalc runs one request to completion. Jobs that fail or are cancelled
// surface as errors so the message goes back to the queue.
func runRecalc(ctx context.Context, worker *service.RecalcWorker, req domain.RecalcRequest) error {
	job, err := worker.Run(ctx, req)
	if err != nil {
		return err
	}
	if job.Status != domain.RecalcJobSucceeded {
		return fmt.Errorf("recalc job %s %s: %s", job.ID, job.Status, job.Error)
	}
	return nil
}

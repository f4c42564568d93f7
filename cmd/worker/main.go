package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/notify"
	"server/internal/providers/genai"
	"server/internal/queue"
	"server/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	jobQueue := queue.New(pool, logger, queue.Config{BackoffBase: cfg.RetryBackoffBase})
	ledger := credits.New(pool, logger)

	client, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GenAIAPIKey,
		BaseURL:    cfg.GenAIBaseURL,
		Model:      cfg.GenAIModel,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure generation client")
	}
	if client.Synthetic() {
		logger.Warn().Str("model", client.Model()).Msg("worker: no provider key, using synthetic generation")
	}

	w := worker.New(jobQueue, ledger, logger, worker.Config{
		PollInterval:  cfg.WorkerPollInterval,
		StuckTimeout:  cfg.WorkerStuckTimeout,
		RetentionDays: cfg.JobRetentionDays,
	})

	handler := generationHandler(client)
	for jobType, cost := range cfg.GenerationCosts() {
		if err := w.Register(jobType, cost, handler); err != nil {
			logger.Fatal().Err(err).Str("type", string(jobType)).Msg("worker: handler registration failed")
		}
	}

	if cfg.RedisURL != "" {
		notifier, err := notify.NewRedis(cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: redis connection failed")
		}
		defer notifier.Close()
		wake, unsubscribe := notifier.Subscribe(ctx)
		defer unsubscribe()
		w.SetWake(wake)
	}

	go func() {
		if err := w.RunMaintenance(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("worker: maintenance stopped with error")
		}
	}()

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// generationHandler adapts the provider client to the worker's handler
// contract; the same client serves every job type.
func generationHandler(client *genai.Client) worker.Handler {
	return func(ctx context.Context, job *domain.Job) ([]byte, error) {
		result, err := client.Generate(ctx, genai.Request{
			JobID:   job.ID.String(),
			Type:    job.Type,
			Payload: job.Payload,
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

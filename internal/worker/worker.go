// Package worker runs the claim-execute-report loop around the job queue.
// The queue hands out at most one claimant per job; the worker's only
// responsibilities are executing the payload via a registered handler,
// reporting Complete or Fail, and charging credits once work is confirmed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/observability"
)

// Handler executes one job's payload and returns the result to store.
type Handler func(ctx context.Context, job *domain.Job) ([]byte, error)

// Config tunes the worker loops. Zero values take the defaults below.
type Config struct {
	PollInterval     time.Duration
	StuckTimeout     time.Duration
	RetentionDays    int
	MaintenanceEvery time.Duration
}

const (
	defaultPollInterval     = 2 * time.Second
	defaultStuckTimeout     = 10 * time.Minute
	defaultRetentionDays    = 30
	defaultMaintenanceEvery = time.Minute
)

// Worker polls the queue for jobs of the types it has handlers for.
type Worker struct {
	queue    domain.JobQueue
	ledger   domain.CreditsLedger
	handlers map[domain.JobType]Handler
	costs    map[domain.JobType]int
	wake     <-chan struct{}
	logger   zerolog.Logger
	cfg      Config
}

// New builds a worker. ledger may be nil when no job type carries a cost;
// wake may be nil to rely on polling alone.
func New(queue domain.JobQueue, ledger domain.CreditsLedger, logger zerolog.Logger, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.StuckTimeout <= 0 {
		cfg.StuckTimeout = defaultStuckTimeout
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	if cfg.MaintenanceEvery <= 0 {
		cfg.MaintenanceEvery = defaultMaintenanceEvery
	}
	return &Worker{
		queue:    queue,
		ledger:   ledger,
		handlers: make(map[domain.JobType]Handler),
		costs:    make(map[domain.JobType]int),
		wake:     nil,
		logger:   logger,
		cfg:      cfg,
	}
}

// Register binds a handler and a per-job credit cost to a job type. Cost 0
// means the type is free and completion never touches the ledger.
func (w *Worker) Register(jobType domain.JobType, cost int, handler Handler) error {
	if !jobType.Valid() {
		return fmt.Errorf("register handler: %w", domain.ErrInvalidJobType)
	}
	if handler == nil {
		return fmt.Errorf("register handler for %s: handler is nil", jobType)
	}
	w.handlers[jobType] = handler
	w.costs[jobType] = cost
	return nil
}

// SetWake installs an optional wake channel that short-circuits the poll
// interval when a job is created.
func (w *Worker) SetWake(wake <-chan struct{}) {
	w.wake = wake
}

// Run claims and executes jobs until ctx is cancelled. After each claimed
// job it immediately tries again; it only sleeps when the queue is empty.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.handlers) == 0 {
		return errors.New("worker: no handlers registered")
	}
	types := w.types()
	w.logger.Info().
		Int("types", len(types)).
		Dur("poll_interval", w.cfg.PollInterval).
		Msg("worker: started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		claimed, err := w.claimAndRun(ctx, types)
		if err != nil {
			w.logger.Error().Err(err).Msg("worker: claim failed")
		}
		if claimed {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-w.wakeChan():
		}
	}
}

// RunMaintenance periodically reaps stuck processing jobs and prunes
// terminal jobs past retention. Run it alongside Run in its own goroutine.
func (w *Worker) RunMaintenance(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.MaintenanceEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if n, err := w.queue.ReapStale(ctx, w.cfg.StuckTimeout); err != nil {
			w.logger.Error().Err(err).Msg("worker: reap failed")
		} else if n > 0 {
			observability.JobsReaped.Add(float64(n))
		}

		if n, err := w.queue.Cleanup(ctx, w.cfg.RetentionDays); err != nil {
			w.logger.Error().Err(err).Msg("worker: cleanup failed")
		} else if n > 0 {
			w.logger.Info().Int64("jobs", n).Msg("worker: pruned expired jobs")
		}
	}
}

func (w *Worker) claimAndRun(ctx context.Context, types []domain.JobType) (bool, error) {
	job, err := w.queue.Claim(ctx, types)
	if err != nil {
		return false, err
	}
	if job == nil {
		observability.ClaimsEmpty.Inc()
		return false, nil
	}
	observability.JobsClaimed.WithLabelValues(string(job.Type)).Inc()
	w.process(ctx, job)
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *domain.Job) {
	logger := w.logger.With().
		Str("job_id", job.ID.String()).
		Str("type", string(job.Type)).
		Int("attempt", job.Attempts).
		Logger()

	handler, ok := w.handlers[job.Type]
	if !ok {
		// Claim was type-filtered, so this only happens on a registry bug.
		if err := w.queue.Fail(ctx, job.ID, "no handler for job type", false); err != nil {
			logger.Error().Err(err).Msg("worker: fail report failed")
		}
		return
	}

	result, err := handler(ctx, job)
	if err != nil {
		observability.JobsFailed.WithLabelValues(string(job.Type)).Inc()
		logger.Warn().Err(err).Msg("worker: job attempt failed")
		if failErr := w.queue.Fail(ctx, job.ID, err.Error(), true); failErr != nil {
			logger.Error().Err(failErr).Msg("worker: fail report failed")
		}
		return
	}

	if err := w.queue.Complete(ctx, job.ID, result); err != nil {
		logger.Error().Err(err).Msg("worker: complete report failed")
		return
	}
	observability.JobsCompleted.WithLabelValues(string(job.Type)).Inc()
	logger.Info().Msg("worker: job completed")

	w.bill(ctx, job, logger)
}

// bill charges the job's owner once work is confirmed, with the job id as
// the ledger reference. The work is already done at this point, so a failed
// debit is logged for reconciliation rather than failing the job.
func (w *Worker) bill(ctx context.Context, job *domain.Job, logger zerolog.Logger) {
	cost := w.costs[job.Type]
	if cost <= 0 || w.ledger == nil {
		return
	}
	_, err := w.ledger.Debit(ctx, domain.DebitParams{
		AccountID:   job.OwnerID,
		Amount:      cost,
		Type:        domain.TxGeneration,
		Description: fmt.Sprintf("%s job", job.Type),
		ReferenceID: job.ID.String(),
	})
	if err != nil {
		logger.Error().Err(err).Int("cost", cost).Msg("worker: debit after completion failed")
		return
	}
	observability.CreditsDebited.Add(float64(cost))
}

func (w *Worker) types() []domain.JobType {
	types := make([]domain.JobType, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, t)
	}
	return types
}

func (w *Worker) wakeChan() <-chan struct{} {
	if w.wake == nil {
		// nil channel blocks forever; the ticker still fires.
		return nil
	}
	return w.wake
}

// Package queue implements the durable generation job queue on PostgreSQL.
//
// All cross-worker coordination happens through row-level locking: Claim
// uses FOR UPDATE SKIP LOCKED so concurrent claimants never block each
// other and no job is ever handed to two workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"server/internal/domain"
)

// DBTX is the slice of pgx used by the queue; *pgxpool.Pool satisfies it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	defaultMaxAttempts = 3

	// Retry backoff: base doubles with each recorded attempt, capped so a
	// flaky provider cannot push a job out indefinitely.
	defaultBackoffBase = 30 * time.Second
	defaultBackoffCap  = 15 * time.Minute
)

// Config tunes retry scheduling. The zero value takes the defaults above;
// BackoffBase < 0 disables backoff entirely (immediate re-eligibility).
type Config struct {
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Queue is the PostgreSQL-backed implementation of domain.JobQueue.
type Queue struct {
	db     DBTX
	logger zerolog.Logger
	cfg    Config
}

// New creates a queue backed by the given pool or transaction.
func New(db DBTX, logger zerolog.Logger, cfg Config) *Queue {
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	return &Queue{db: db, logger: logger, cfg: cfg}
}

const jobColumns = `id, type, status, priority, owner_id, payload, result, error, attempts, max_attempts, created_at, started_at, completed_at, scheduled_for`

// Create inserts a new pending job and returns the full record.
func (q *Queue) Create(ctx context.Context, params domain.CreateJobParams) (*domain.Job, error) {
	if !params.Type.Valid() {
		return nil, fmt.Errorf("create job: type %q: %w", params.Type, domain.ErrInvalidJobType)
	}
	if params.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("create job: owner id required: %w", domain.ErrUserNotFound)
	}
	priority := params.Priority
	if priority == "" {
		priority = domain.JobPriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("create job: priority %q: %w", params.Priority, domain.ErrInvalidPriority)
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("create job: max attempts must be positive, got %d", params.MaxAttempts)
	}
	scheduledFor := params.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = time.Now().UTC()
	}

	query := `
INSERT INTO jobs (id, type, status, priority, owner_id, payload, max_attempts, scheduled_for)
VALUES ($1, $2, 'pending', $3, $4, $5, $6, $7)
RETURNING ` + jobColumns + `;
`
	row := q.db.QueryRow(ctx, query,
		uuid.New(),
		params.Type,
		priority.Weight(),
		params.OwnerID,
		nullableBytes(params.Payload),
		maxAttempts,
		scheduledFor,
	)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", translateConstraint(err))
	}
	q.logger.Info().
		Str("job_id", job.ID.String()).
		Str("type", string(job.Type)).
		Str("priority", string(job.Priority)).
		Msg("queue: job created")
	return job, nil
}

// Claim atomically takes ownership of the best eligible pending job and
// transitions it to processing. Eligibility requires scheduled_for in the
// past and attempts below the cap; ordering is priority descending, then
// scheduled_for, then insertion order. Candidates locked by a concurrent
// claimant are skipped rather than waited on. Returns (nil, nil) when no
// job is eligible.
func (q *Queue) Claim(ctx context.Context, types []domain.JobType) (*domain.Job, error) {
	for _, t := range types {
		if !t.Valid() {
			return nil, fmt.Errorf("claim: type %q: %w", t, domain.ErrInvalidJobType)
		}
	}

	query := `
WITH next_job AS (
    SELECT id
    FROM jobs
    WHERE status = 'pending'
      AND scheduled_for <= now()
      AND attempts < max_attempts
      AND ($1::text[] IS NULL OR type = ANY($1))
    ORDER BY priority DESC, scheduled_for ASC, created_at ASC, id ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
UPDATE jobs
SET status = 'processing',
    started_at = now(),
    attempts = attempts + 1
WHERE id IN (SELECT id FROM next_job)
RETURNING ` + jobColumns + `;
`
	row := q.db.QueryRow(ctx, query, typeFilter(types))
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim: %w", err)
	}
	q.logger.Debug().
		Str("job_id", job.ID.String()).
		Str("type", string(job.Type)).
		Int("attempt", job.Attempts).
		Msg("queue: job claimed")
	return job, nil
}

// Complete marks a processing job as successfully finished and stores its
// result. A job that is no longer processing (cancelled mid-flight, already
// reported) is left untouched so terminal rows never change state again.
func (q *Queue) Complete(ctx context.Context, jobID uuid.UUID, result []byte) error {
	query := `
UPDATE jobs
SET status = 'completed',
    result = $2,
    completed_at = now()
WHERE id = $1 AND status = 'processing';
`
	tag, err := q.db.Exec(ctx, query, jobID, nullableBytes(result))
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		var status domain.JobStatus
		err := q.db.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1;`, jobID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("complete job %s: %w", jobID, domain.ErrNotFound)
			}
			return fmt.Errorf("complete job %s: %w", jobID, err)
		}
		q.logger.Warn().
			Str("job_id", jobID.String()).
			Str("status", string(status)).
			Msg("queue: complete report ignored, job no longer processing")
	}
	return nil
}

// Fail records an error for a job. When retry is true and attempts remain,
// the job returns to pending with scheduled_for pushed forward by an
// exponential backoff; otherwise it is failed terminally. Fail only acts on
// processing rows: a job cancelled or reaped between claim and report stays
// exactly as the concurrent transition left it.
func (q *Queue) Fail(ctx context.Context, jobID uuid.UUID, errMsg string, retry bool) error {
	var (
		attempts, maxAttempts int
		status                domain.JobStatus
	)
	err := q.db.QueryRow(ctx, `SELECT attempts, max_attempts, status FROM jobs WHERE id = $1;`, jobID).
		Scan(&attempts, &maxAttempts, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("fail job %s: %w", jobID, domain.ErrNotFound)
		}
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	if status != domain.JobStatusProcessing {
		q.logger.Warn().
			Str("job_id", jobID.String()).
			Str("status", string(status)).
			Msg("queue: fail report ignored, job no longer processing")
		return nil
	}

	if retry && attempts < maxAttempts {
		query := `
UPDATE jobs
SET status = 'pending',
    error = $2,
    started_at = NULL,
    completed_at = NULL,
    scheduled_for = now() + ($3 * INTERVAL '1 second')
WHERE id = $1 AND status = 'processing';
`
		delay := q.retryDelay(attempts)
		tag, err := q.db.Exec(ctx, query, jobID, errMsg, delay.Seconds())
		if err != nil {
			return fmt.Errorf("requeue job %s: %w", jobID, err)
		}
		if tag.RowsAffected() == 0 {
			// Lost the race against Cancel or the reaper.
			return nil
		}
		q.logger.Info().
			Str("job_id", jobID.String()).
			Int("attempts", attempts).
			Dur("retry_in", delay).
			Msg("queue: job requeued")
		return nil
	}

	query := `
UPDATE jobs
SET status = 'failed',
    error = $2,
    completed_at = now()
WHERE id = $1 AND status = 'processing';
`
	tag, err := q.db.Exec(ctx, query, jobID, errMsg)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	q.logger.Warn().
		Str("job_id", jobID.String()).
		Int("attempts", attempts).
		Str("error", errMsg).
		Msg("queue: job failed terminally")
	return nil
}

// Cancel moves a pending or processing job to cancelled. It reports false
// without touching the row when the job is already terminal or unknown. A
// worker currently executing the payload is not interrupted; cancellation
// of running work is best effort.
func (q *Queue) Cancel(ctx context.Context, jobID uuid.UUID) (bool, error) {
	query := `
UPDATE jobs
SET status = 'cancelled',
    completed_at = now()
WHERE id = $1 AND status IN ('pending', 'processing');
`
	tag, err := q.db.Exec(ctx, query, jobID)
	if err != nil {
		return false, fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Cleanup deletes terminal jobs whose completed_at is older than the
// retention window. Pending and processing jobs are never touched.
func (q *Queue) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays < 1 {
		return 0, fmt.Errorf("cleanup: retention must be at least 1 day, got %d", olderThanDays)
	}
	query := `
DELETE FROM jobs
WHERE status IN ('completed', 'failed', 'cancelled')
  AND completed_at < now() - ($1 * INTERVAL '1 day');
`
	tag, err := q.db.Exec(ctx, query, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReapStale recovers jobs stuck in processing after a worker crash: rows
// whose started_at is older than the threshold go back to pending when
// attempts remain, or to failed when the cap is exhausted.
func (q *Queue) ReapStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("reap: threshold must be positive, got %s", olderThan)
	}
	query := `
UPDATE jobs
SET status       = CASE WHEN attempts < max_attempts THEN 'pending' ELSE 'failed' END,
    error        = CASE WHEN attempts < max_attempts THEN error ELSE 'worker timed out' END,
    started_at   = CASE WHEN attempts < max_attempts THEN NULL ELSE started_at END,
    completed_at = CASE WHEN attempts < max_attempts THEN NULL ELSE now() END
WHERE status = 'processing'
  AND started_at < now() - ($1 * INTERVAL '1 second');
`
	tag, err := q.db.Exec(ctx, query, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("reap: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		q.logger.Warn().Int64("jobs", n).Msg("queue: reaped stale processing jobs")
		return n, nil
	}
	return 0, nil
}

// GetByID fetches one job.
func (q *Queue) GetByID(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	row := q.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// ListByOwner returns an account's jobs, newest first.
func (q *Queue) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.Job, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `
SELECT ` + jobColumns + `
FROM jobs
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`
	rows, err := q.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs for %s: %w", ownerID, err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (q *Queue) retryDelay(attempts int) time.Duration {
	if q.cfg.BackoffBase < 0 {
		return 0
	}
	if attempts < 1 {
		attempts = 1
	}
	delay := q.cfg.BackoffBase << uint(attempts-1)
	if delay > q.cfg.BackoffCap || delay <= 0 {
		delay = q.cfg.BackoffCap
	}
	return delay
}

func typeFilter(types []domain.JobType) []string {
	if len(types) == 0 {
		return nil
	}
	filter := make([]string, len(types))
	for i, t := range types {
		filter[i] = string(t)
	}
	return filter
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job      domain.Job
		priority int
		result   []byte
		errMsg   *string
	)
	if err := row.Scan(
		&job.ID,
		&job.Type,
		&job.Status,
		&priority,
		&job.OwnerID,
		&job.Payload,
		&result,
		&errMsg,
		&job.Attempts,
		&job.MaxAttempts,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.ScheduledFor,
	); err != nil {
		return nil, err
	}
	job.Priority = domain.PriorityFromWeight(priority)
	job.Result = result
	if errMsg != nil {
		job.Error = *errMsg
	}
	return &job, nil
}

// translateConstraint maps foreign-key violations on owner_id to the domain
// error the caller can act on.
func translateConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return domain.ErrUserNotFound
	}
	return err
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.JobQueue = (*Queue)(nil)

package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreateJobParams carries the caller-supplied fields for a new job.
// Zero-value Priority, MaxAttempts and ScheduledFor take the queue defaults
// (normal, 3, now).
type CreateJobParams struct {
	Type         JobType
	OwnerID      uuid.UUID
	Payload      []byte
	Priority     JobPriority
	MaxAttempts  int
	ScheduledFor time.Time
}

// JobQueue is the durable task-scheduling surface consumed by submitters,
// worker loops and observability callers.
type JobQueue interface {
	Create(ctx context.Context, params CreateJobParams) (*Job, error)
	// Claim hands the single best eligible pending job to exactly one
	// caller, or returns (nil, nil) when none is eligible.
	Claim(ctx context.Context, types []JobType) (*Job, error)
	Complete(ctx context.Context, jobID uuid.UUID, result []byte) error
	Fail(ctx context.Context, jobID uuid.UUID, errMsg string, retry bool) error
	Cancel(ctx context.Context, jobID uuid.UUID) (bool, error)
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
	ReapStale(ctx context.Context, olderThan time.Duration) (int64, error)
	Stats(ctx context.Context) (*QueueStats, error)
	GetByID(ctx context.Context, jobID uuid.UUID) (*Job, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]Job, error)
}

// DebitParams describes a balance deduction.
type DebitParams struct {
	AccountID   uuid.UUID
	Amount      int
	Type        TransactionType
	Description string
	ReferenceID string
}

// CreditParams describes a balance addition.
type CreditParams struct {
	AccountID   uuid.UUID
	Amount      int
	Type        TransactionType
	Description string
	ReferenceID string
}

// CreditsLedger owns every mutation of account balances; callers must never
// write the balance fields directly.
type CreditsLedger interface {
	GetBalance(ctx context.Context, accountID uuid.UUID) (*CreditBalance, error)
	Debit(ctx context.Context, params DebitParams) (*CreditTransaction, error)
	Credit(ctx context.Context, params CreditParams) (*CreditTransaction, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]CreditTransaction, error)
	SetSubscription(ctx context.Context, accountID uuid.UUID, tier SubscriptionTier, expiresAt *time.Time, externalRef string) error
}

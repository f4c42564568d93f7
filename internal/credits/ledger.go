// Package credits implements the metered credit ledger on PostgreSQL.
//
// Balance mutations always run inside a single transaction holding a
// FOR UPDATE lock on the account row, so two concurrent debits can never
// both pass the zero-floor check against a stale balance. Each mutation
// appends an immutable credit_transactions row; the cached balance column
// is a projection of that trail.
package credits

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

// DB is the slice of pgx the ledger needs; *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Ledger is the PostgreSQL-backed implementation of domain.CreditsLedger.
type Ledger struct {
	db     DB
	logger zerolog.Logger
}

// New creates a ledger backed by the given pool.
func New(db DB, logger zerolog.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// GetBalance returns the spendable balance, tier and lifetime usage for an
// account. Unlocked read; a value read here may be stale by the time a
// debit runs, which is why Debit re-reads under lock.
func (l *Ledger) GetBalance(ctx context.Context, accountID uuid.UUID) (*domain.CreditBalance, error) {
	query := `
SELECT credits_remaining, subscription_tier, subscription_expires_at, lifetime_credits_used
FROM accounts
WHERE id = $1;
`
	balance := domain.CreditBalance{AccountID: accountID}
	err := l.db.QueryRow(ctx, query, accountID).Scan(
		&balance.CreditsRemaining,
		&balance.SubscriptionTier,
		&balance.SubscriptionExpiresAt,
		&balance.LifetimeCreditsUsed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get balance for %s: %w", accountID, err)
	}
	return &balance, nil
}

// Debit deducts amount from the account balance and appends the matching
// ledger entry, all in one transaction. It rejects non-positive amounts,
// unknown accounts, and any debit that would push the balance below zero.
// A rejected debit leaves no transaction row and no balance change.
func (l *Ledger) Debit(ctx context.Context, params domain.DebitParams) (*domain.CreditTransaction, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("debit %d credits: %w", params.Amount, domain.ErrInvalidAmount)
	}
	txType := params.Type
	if txType == "" {
		txType = domain.TxGeneration
	}
	if !domain.DebitTypes[txType] {
		return nil, fmt.Errorf("debit type %q: %w", params.Type, domain.ErrInvalidTransaction)
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("debit: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, _, err := lockAccount(ctx, tx, params.AccountID)
	if err != nil {
		return nil, err
	}
	if balance < params.Amount {
		return nil, fmt.Errorf("debit %d credits with balance %d: %w",
			params.Amount, balance, domain.ErrInsufficientCredits)
	}
	newBalance := balance - params.Amount

	update := `
UPDATE accounts
SET credits_remaining = $2,
    lifetime_credits_used = lifetime_credits_used + $3,
    updated_at = now()
WHERE id = $1;
`
	if _, err := tx.Exec(ctx, update, params.AccountID, newBalance, params.Amount); err != nil {
		return nil, fmt.Errorf("debit: update balance: %w", err)
	}

	entry, err := appendEntry(ctx, tx, entryParams{
		accountID:    params.AccountID,
		amount:       -params.Amount,
		txType:       txType,
		description:  params.Description,
		referenceID:  params.ReferenceID,
		balanceAfter: newBalance,
	})
	if err != nil {
		return nil, fmt.Errorf("debit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("debit: commit: %w", err)
	}
	l.logger.Info().
		Str("account_id", params.AccountID.String()).
		Int("amount", params.Amount).
		Int("balance_after", newBalance).
		Str("reference_id", params.ReferenceID).
		Msg("credits: debited")
	return entry, nil
}

// Credit adds amount to the account balance and appends the matching ledger
// entry. Lifetime usage is untouched; it only ever grows through debits.
func (l *Ledger) Credit(ctx context.Context, params domain.CreditParams) (*domain.CreditTransaction, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("credit %d credits: %w", params.Amount, domain.ErrInvalidAmount)
	}
	if !domain.CreditTypes[params.Type] {
		return nil, fmt.Errorf("credit type %q: %w", params.Type, domain.ErrInvalidTransaction)
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("credit: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, _, err := lockAccount(ctx, tx, params.AccountID)
	if err != nil {
		return nil, err
	}
	newBalance := balance + params.Amount

	update := `
UPDATE accounts
SET credits_remaining = $2,
    updated_at = now()
WHERE id = $1;
`
	if _, err := tx.Exec(ctx, update, params.AccountID, newBalance); err != nil {
		return nil, fmt.Errorf("credit: update balance: %w", err)
	}

	entry, err := appendEntry(ctx, tx, entryParams{
		accountID:    params.AccountID,
		amount:       params.Amount,
		txType:       params.Type,
		description:  params.Description,
		referenceID:  params.ReferenceID,
		balanceAfter: newBalance,
	})
	if err != nil {
		return nil, fmt.Errorf("credit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("credit: commit: %w", err)
	}
	l.logger.Info().
		Str("account_id", params.AccountID.String()).
		Int("amount", params.Amount).
		Int("balance_after", newBalance).
		Str("type", string(params.Type)).
		Msg("credits: credited")
	return entry, nil
}

// ListTransactions pages through an account's audit trail, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.CreditTransaction, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `
SELECT id, account_id, amount, transaction_type, description, reference_id, balance_after, created_at
FROM credit_transactions
WHERE account_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;
`
	rows, err := l.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", accountID, err)
	}
	defer rows.Close()

	var entries []domain.CreditTransaction
	for rows.Next() {
		var entry domain.CreditTransaction
		var referenceID *string
		if err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.Amount,
			&entry.Type,
			&entry.Description,
			&referenceID,
			&entry.BalanceAfter,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("list transactions for %s: %w", accountID, err)
		}
		if referenceID != nil {
			entry.ReferenceID = *referenceID
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SetSubscription updates the account's tier and expiry. It does not grant
// credits; provisioning flows pair it with Credit.
func (l *Ledger) SetSubscription(ctx context.Context, accountID uuid.UUID, tier domain.SubscriptionTier, expiresAt *time.Time, externalRef string) error {
	if !tier.Valid() {
		return fmt.Errorf("set subscription %q: %w", tier, domain.ErrInvalidTier)
	}
	query := `
UPDATE accounts
SET subscription_tier = $2,
    subscription_expires_at = $3,
    external_subscription_ref = COALESCE(NULLIF($4, ''), external_subscription_ref),
    updated_at = now()
WHERE id = $1;
`
	tag, err := l.db.Exec(ctx, query, accountID, tier, expiresAt, externalRef)
	if err != nil {
		return fmt.Errorf("set subscription for %s: %w", accountID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// lockAccount reads the balance fields under FOR UPDATE so the row stays
// locked for the rest of the transaction.
func lockAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (balance, lifetimeUsed int, err error) {
	query := `
SELECT credits_remaining, lifetime_credits_used
FROM accounts
WHERE id = $1
FOR UPDATE;
`
	if err := tx.QueryRow(ctx, query, accountID).Scan(&balance, &lifetimeUsed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, domain.ErrUserNotFound
		}
		return 0, 0, fmt.Errorf("lock account %s: %w", accountID, err)
	}
	return balance, lifetimeUsed, nil
}

type entryParams struct {
	accountID    uuid.UUID
	amount       int
	txType       domain.TransactionType
	description  string
	referenceID  string
	balanceAfter int
}

func appendEntry(ctx context.Context, tx pgx.Tx, p entryParams) (*domain.CreditTransaction, error) {
	query := `
INSERT INTO credit_transactions (id, account_id, amount, transaction_type, description, reference_id, balance_after)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
RETURNING created_at;
`
	entry := domain.CreditTransaction{
		ID:           uuid.New(),
		AccountID:    p.accountID,
		Amount:       p.amount,
		Type:         p.txType,
		Description:  p.description,
		ReferenceID:  p.referenceID,
		BalanceAfter: p.balanceAfter,
	}
	if err := tx.QueryRow(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.Amount,
		entry.Type,
		entry.Description,
		p.referenceID,
		entry.BalanceAfter,
	).Scan(&entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	return &entry, nil
}

var _ domain.CreditsLedger = (*Ledger)(nil)

package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"server/internal/domain"
)

type call struct {
	query string
	args  []any
}

// fakeTx implements pgx.Tx against an in-memory account row, recording every
// statement so tests can assert on what would have been written.
type fakeTx struct {
	accountExists bool
	balance       int
	lifetimeUsed  int

	execCalls     []call
	queryRowCalls []call
	committed     bool
	rolledBack    bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) { return f, nil }

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, fmt.Errorf("not supported")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }

func (f *fakeTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, fmt.Errorf("not supported")
}

func (f *fakeTx) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.execCalls = append(f.execCalls, call{query: query, args: args})
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("not supported")
}

func (f *fakeTx) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	f.queryRowCalls = append(f.queryRowCalls, call{query: query, args: args})
	if strings.Contains(query, "FOR UPDATE") {
		if !f.accountExists {
			return scanFunc(func(...any) error { return pgx.ErrNoRows })
		}
		return scanFunc(func(dest ...any) error {
			*dest[0].(*int) = f.balance
			*dest[1].(*int) = f.lifetimeUsed
			return nil
		})
	}
	// INSERT ... RETURNING created_at
	return scanFunc(func(dest ...any) error {
		*dest[0].(*time.Time) = time.Now()
		return nil
	})
}

func (f *fakeTx) Conn() *pgx.Conn { return nil }

type scanFunc func(dest ...any) error

func (s scanFunc) Scan(dest ...any) error { return s(dest...) }

// fakeLedgerDB hands out a single scripted transaction.
type fakeLedgerDB struct {
	tx       *fakeTx
	beginErr error

	execCalls     []call
	queryRowCalls []call
	rowScan       func(dest ...any) error
	execTag       pgconn.CommandTag
}

func (f *fakeLedgerDB) Begin(context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.tx, nil
}

func (f *fakeLedgerDB) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.execCalls = append(f.execCalls, call{query: query, args: args})
	return f.execTag, nil
}

func (f *fakeLedgerDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("not supported")
}

func (f *fakeLedgerDB) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	f.queryRowCalls = append(f.queryRowCalls, call{query: query, args: args})
	return scanFunc(func(dest ...any) error {
		if f.rowScan == nil {
			return pgx.ErrNoRows
		}
		return f.rowScan(dest...)
	})
}

func newTestLedger(db DB) *Ledger {
	return New(db, zerolog.Nop())
}

func TestDebitRejectsNonPositiveAmounts(t *testing.T) {
	db := &fakeLedgerDB{beginErr: fmt.Errorf("begin must not be reached")}
	ledger := newTestLedger(db)

	for _, amount := range []int{0, -5} {
		_, err := ledger.Debit(context.Background(), domain.DebitParams{
			AccountID: uuid.New(),
			Amount:    amount,
		})
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestDebitRejectsCreditOnlyTypes(t *testing.T) {
	ledger := newTestLedger(&fakeLedgerDB{beginErr: fmt.Errorf("begin must not be reached")})

	_, err := ledger.Debit(context.Background(), domain.DebitParams{
		AccountID: uuid.New(),
		Amount:    5,
		Type:      domain.TxPurchase,
	})
	if !errors.Is(err, domain.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction, got %v", err)
	}
}

func TestDebitUnknownAccount(t *testing.T) {
	tx := &fakeTx{accountExists: false}
	ledger := newTestLedger(&fakeLedgerDB{tx: tx})

	_, err := ledger.Debit(context.Background(), domain.DebitParams{
		AccountID: uuid.New(),
		Amount:    5,
	})
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if tx.committed {
		t.Fatal("failed debit must not commit")
	}
	if !tx.rolledBack {
		t.Fatal("failed debit must roll back")
	}
}

func TestDebitInsufficientCreditsLeavesNoTrace(t *testing.T) {
	tx := &fakeTx{accountExists: true, balance: 10}
	ledger := newTestLedger(&fakeLedgerDB{tx: tx})

	_, err := ledger.Debit(context.Background(), domain.DebitParams{
		AccountID: uuid.New(),
		Amount:    11,
	})
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if len(tx.execCalls) != 0 {
		t.Fatalf("rejected debit must write nothing, got %d statements", len(tx.execCalls))
	}
	if tx.committed {
		t.Fatal("rejected debit must not commit")
	}
}

func TestDebitSuccess(t *testing.T) {
	account := uuid.New()
	tx := &fakeTx{accountExists: true, balance: 10, lifetimeUsed: 90}
	ledger := newTestLedger(&fakeLedgerDB{tx: tx})

	entry, err := ledger.Debit(context.Background(), domain.DebitParams{
		AccountID:   account,
		Amount:      8,
		Description: "video_generation job",
		ReferenceID: "job-123",
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if !tx.committed {
		t.Fatal("successful debit must commit")
	}

	// Balance update: new balance and lifetime increment.
	update := tx.execCalls[0]
	if got := update.args[1].(int); got != 2 {
		t.Fatalf("expected new balance 2, got %d", got)
	}
	if got := update.args[2].(int); got != 8 {
		t.Fatalf("expected lifetime increment 8, got %d", got)
	}
	if !strings.Contains(update.query, "lifetime_credits_used") {
		t.Fatalf("debit must grow lifetime usage:\n%s", update.query)
	}

	// Ledger entry: negative amount, balance snapshot, job reference.
	if entry.Amount != -8 || entry.BalanceAfter != 2 {
		t.Fatalf("unexpected entry: amount=%d balance_after=%d", entry.Amount, entry.BalanceAfter)
	}
	if entry.Type != domain.TxGeneration {
		t.Fatalf("expected default generation type, got %s", entry.Type)
	}
	if entry.ReferenceID != "job-123" {
		t.Fatalf("expected reference job-123, got %q", entry.ReferenceID)
	}
}

func TestCreditSuccessDoesNotTouchLifetimeUsage(t *testing.T) {
	tx := &fakeTx{accountExists: true, balance: 2}
	ledger := newTestLedger(&fakeLedgerDB{tx: tx})

	entry, err := ledger.Credit(context.Background(), domain.CreditParams{
		AccountID:   uuid.New(),
		Amount:      100,
		Type:        domain.TxPurchase,
		Description: "credit pack",
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if entry.Amount != 100 || entry.BalanceAfter != 102 {
		t.Fatalf("unexpected entry: amount=%d balance_after=%d", entry.Amount, entry.BalanceAfter)
	}
	update := tx.execCalls[0]
	if strings.Contains(update.query, "lifetime_credits_used") {
		t.Fatalf("credit must not touch lifetime usage:\n%s", update.query)
	}
	if !tx.committed {
		t.Fatal("successful credit must commit")
	}
}

func TestCreditRejectsDebitOnlyTypes(t *testing.T) {
	ledger := newTestLedger(&fakeLedgerDB{beginErr: fmt.Errorf("begin must not be reached")})

	_, err := ledger.Credit(context.Background(), domain.CreditParams{
		AccountID: uuid.New(),
		Amount:    5,
		Type:      domain.TxGeneration,
	})
	if !errors.Is(err, domain.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction, got %v", err)
	}
}

func TestGetBalanceUnknownAccount(t *testing.T) {
	ledger := newTestLedger(&fakeLedgerDB{}) // rowScan nil -> pgx.ErrNoRows

	_, err := ledger.GetBalance(context.Background(), uuid.New())
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGetBalance(t *testing.T) {
	expires := time.Now().Add(30 * 24 * time.Hour)
	db := &fakeLedgerDB{rowScan: func(dest ...any) error {
		*dest[0].(*int) = 42
		*dest[1].(*domain.SubscriptionTier) = domain.TierPro
		*dest[2].(**time.Time) = &expires
		*dest[3].(*int) = 158
		return nil
	}}
	ledger := newTestLedger(db)

	balance, err := ledger.GetBalance(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.CreditsRemaining != 42 || balance.SubscriptionTier != domain.TierPro || balance.LifetimeCreditsUsed != 158 {
		t.Fatalf("unexpected balance: %+v", balance)
	}
}

func TestSetSubscriptionValidation(t *testing.T) {
	db := &fakeLedgerDB{execTag: pgconn.NewCommandTag("UPDATE 1")}
	ledger := newTestLedger(db)

	if err := ledger.SetSubscription(context.Background(), uuid.New(), "platinum", nil, ""); !errors.Is(err, domain.ErrInvalidTier) {
		t.Fatalf("expected ErrInvalidTier, got %v", err)
	}

	if err := ledger.SetSubscription(context.Background(), uuid.New(), domain.TierEnterprise, nil, "sub_789"); err != nil {
		t.Fatalf("set subscription: %v", err)
	}

	db.execTag = pgconn.NewCommandTag("UPDATE 0")
	if err := ledger.SetSubscription(context.Background(), uuid.New(), domain.TierPro, nil, ""); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

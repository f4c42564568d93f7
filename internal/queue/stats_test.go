package queue

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"server/internal/domain"
)

type countRow struct {
	key   string
	count int
}

// fakeRowsBase stubs the pgx.Rows methods the queue never touches.
type fakeRowsBase struct{}

func (fakeRowsBase) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (fakeRowsBase) Conn() *pgx.Conn { return nil }

func (fakeRowsBase) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (fakeRowsBase) Values() ([]any, error) { return nil, fmt.Errorf("not supported") }

func (fakeRowsBase) RawValues() [][]byte { return nil }

type countRows struct {
	fakeRowsBase
	rows []countRow
	idx  int
}

func (r *countRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *countRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	switch d := dest[0].(type) {
	case *domain.JobStatus:
		*d = domain.JobStatus(row.key)
	case *domain.JobType:
		*d = domain.JobType(row.key)
	default:
		return fmt.Errorf("unexpected scan destination %T", dest[0])
	}
	*dest[1].(*int) = row.count
	return nil
}

func (r *countRows) Close()     {}
func (r *countRows) Err() error { return nil }

type statsDB struct {
	fakeDB
	byStatus []countRow
	byType   []countRow
}

func (db *statsDB) Query(_ context.Context, query string, _ ...any) (pgx.Rows, error) {
	if strings.Contains(query, "GROUP BY status") {
		return &countRows{rows: db.byStatus}, nil
	}
	return &countRows{rows: db.byType}, nil
}

func TestStatsAggregatesStatusAndActiveTypes(t *testing.T) {
	db := &statsDB{
		byStatus: []countRow{
			{key: "pending", count: 3},
			{key: "completed", count: 12},
			{key: "failed", count: 1},
		},
		byType: []countRow{
			{key: "image_generation", count: 2},
			{key: "video_generation", count: 1},
		},
	}
	q := New(db, zerolog.Nop(), Config{})

	stats, err := q.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ByStatus[domain.JobStatusPending] != 3 || stats.ByStatus[domain.JobStatusCompleted] != 12 {
		t.Fatalf("unexpected status counts: %v", stats.ByStatus)
	}
	if stats.ActiveByType[domain.JobTypeImageGeneration] != 2 {
		t.Fatalf("unexpected type counts: %v", stats.ActiveByType)
	}
}

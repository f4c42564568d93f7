package queue

import (
	"context"
	"fmt"

	"server/internal/domain"
)

// Stats aggregates job counts for dashboards: status counts over the last
// 24 hours of created jobs, and per-type counts of currently active
// (pending or processing) jobs. Read-only.
func (q *Queue) Stats(ctx context.Context) (*domain.QueueStats, error) {
	stats := &domain.QueueStats{
		ByStatus:     make(map[domain.JobStatus]int),
		ActiveByType: make(map[domain.JobType]int),
	}

	byStatus := `
SELECT status, COUNT(*)
FROM jobs
WHERE created_at > now() - INTERVAL '24 hours'
GROUP BY status;
`
	rows, err := q.db.Query(ctx, byStatus)
	if err != nil {
		return nil, fmt.Errorf("stats by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status domain.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("stats by status: %w", err)
		}
		stats.ByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats by status: %w", err)
	}

	activeByType := `
SELECT type, COUNT(*)
FROM jobs
WHERE status IN ('pending', 'processing')
GROUP BY type;
`
	rows, err = q.db.Query(ctx, activeByType)
	if err != nil {
		return nil, fmt.Errorf("stats by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var jobType domain.JobType
		var count int
		if err := rows.Scan(&jobType, &count); err != nil {
			return nil, fmt.Errorf("stats by type: %w", err)
		}
		stats.ActiveByType[jobType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats by type: %w", err)
	}

	return stats, nil
}

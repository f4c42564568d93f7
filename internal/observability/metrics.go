// Package observability exposes Prometheus counters for the queue and
// ledger hot paths, served on /metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_created_total",
		Help: "Jobs accepted into the queue, by type.",
	}, []string{"type"})

	JobsClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_claimed_total",
		Help: "Jobs handed to a worker, by type.",
	}, []string{"type"})

	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_completed_total",
		Help: "Jobs finished successfully, by type.",
	}, []string{"type"})

	JobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_failed_total",
		Help: "Job attempts that ended in failure, by type.",
	}, []string{"type"})

	ClaimsEmpty = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claims_empty_total",
		Help: "Claim calls that found no eligible job.",
	})

	JobsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobs_reaped_total",
		Help: "Stuck processing jobs recovered by the reaper.",
	})

	CreditsDebited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credits_debited_total",
		Help: "Credits charged for completed generation work.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

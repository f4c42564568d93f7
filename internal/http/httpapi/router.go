// Package httpapi assembles the internal service router: job submission and
// inspection for CRUD handlers, ledger operations for billing code, and
// stats for observability consumers.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/middleware"
	"server/internal/observability"
)

// Options tunes router middleware.
type Options struct {
	RateLimitPerMin int
}

// NewRouter builds the HTTP surface around the handler container.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", observability.Handler())

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", app.CreateJob)
		r.Get("/", app.ListJobs)
		r.Get("/{id}", app.GetJob)
		r.Post("/{id}/cancel", app.CancelJob)
	})

	r.Get("/v1/stats", app.QueueStats)

	r.Route("/v1/accounts/{id}", func(r chi.Router) {
		r.Get("/credits", app.GetBalance)
		r.Post("/credits/debit", app.Debit)
		r.Post("/credits/credit", app.Credit)
		r.Get("/credits/transactions", app.ListTransactions)
		r.Put("/subscription", app.SetSubscription)
	})

	return r
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/notify"
)

// App bundles the dependencies shared by all handlers.
type App struct {
	Queue    domain.JobQueue
	Ledger   domain.CreditsLedger
	Notifier notify.Notifier
	Logger   zerolog.Logger
}

// NewApp wires the handler container.
func NewApp(queue domain.JobQueue, ledger domain.CreditsLedger, notifier notify.Notifier, logger zerolog.Logger) *App {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &App{Queue: queue, Ledger: ledger, Notifier: notifier, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps domain errors to HTTP status codes and writes a JSON error body.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUserNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientCredits):
		code = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidJobType),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidTransaction),
		errors.Is(err, domain.ErrInvalidTier):
		code = http.StatusBadRequest
	}
	if code == http.StatusInternalServerError {
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("handler error")
	}
	a.json(w, code, map[string]string{"error": err.Error()})
}

func (a *App) badRequest(w http.ResponseWriter, msg string) {
	a.json(w, http.StatusBadRequest, map[string]string{"error": msg})
}

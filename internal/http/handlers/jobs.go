package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/observability"
)

type createJobRequest struct {
	Type         domain.JobType     `json:"type"`
	OwnerID      uuid.UUID          `json:"owner_id"`
	Payload      json.RawMessage    `json:"payload"`
	Priority     domain.JobPriority `json:"priority,omitempty"`
	MaxAttempts  int                `json:"max_attempts,omitempty"`
	ScheduledFor *time.Time         `json:"scheduled_for,omitempty"`
}

type jobResponse struct {
	ID           uuid.UUID          `json:"id"`
	Type         domain.JobType     `json:"type"`
	Status       domain.JobStatus   `json:"status"`
	Priority     domain.JobPriority `json:"priority"`
	OwnerID      uuid.UUID          `json:"owner_id"`
	Payload      json.RawMessage    `json:"payload,omitempty"`
	Result       json.RawMessage    `json:"result,omitempty"`
	Error        string             `json:"error,omitempty"`
	Attempts     int                `json:"attempts"`
	MaxAttempts  int                `json:"max_attempts"`
	CreatedAt    time.Time          `json:"created_at"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
	ScheduledFor time.Time          `json:"scheduled_for"`
}

func toJobResponse(job *domain.Job) jobResponse {
	return jobResponse{
		ID:           job.ID,
		Type:         job.Type,
		Status:       job.Status,
		Priority:     job.Priority,
		OwnerID:      job.OwnerID,
		Payload:      job.Payload,
		Result:       job.Result,
		Error:        job.Error,
		Attempts:     job.Attempts,
		MaxAttempts:  job.MaxAttempts,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		ScheduledFor: job.ScheduledFor,
	}
}

// CreateJob accepts a new generation task and signals waiting workers.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, "invalid json body")
		return
	}

	params := domain.CreateJobParams{
		Type:        req.Type,
		OwnerID:     req.OwnerID,
		Payload:     req.Payload,
		Priority:    req.Priority,
		MaxAttempts: req.MaxAttempts,
	}
	if req.ScheduledFor != nil {
		params.ScheduledFor = *req.ScheduledFor
	}

	job, err := a.Queue.Create(r.Context(), params)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	observability.JobsCreated.WithLabelValues(string(job.Type)).Inc()

	// A wake signal is only useful for immediately-claimable work.
	if !job.ScheduledFor.After(time.Now()) {
		a.Notifier.JobCreated(r.Context())
	}

	a.json(w, http.StatusCreated, toJobResponse(job))
}

// GetJob returns one job by id.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.badRequest(w, "invalid job id")
		return
	}
	job, err := a.Queue.GetByID(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

// ListJobs returns an account's jobs, newest first.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uuid.Parse(r.URL.Query().Get("owner_id"))
	if err != nil {
		a.badRequest(w, "owner_id query parameter is required")
		return
	}
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	jobs, err := a.Queue.ListByOwner(r.Context(), ownerID, limit, offset)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, toJobResponse(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// CancelJob cancels a pending or processing job. Cancelling a job a worker
// is already executing does not interrupt the worker; the row just becomes
// terminal.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.badRequest(w, "invalid job id")
		return
	}
	cancelled, err := a.Queue.Cancel(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !cancelled {
		// The guarded update touches no row for unknown ids and terminal
		// jobs alike; look the job up to tell the two apart.
		if _, err := a.Queue.GetByID(r.Context(), jobID); err != nil {
			a.fail(w, r, err)
			return
		}
		a.json(w, http.StatusConflict, map[string]any{"cancelled": false})
		return
	}
	a.json(w, http.StatusOK, map[string]any{"cancelled": true})
}

// QueueStats serves the observability snapshot.
func (a *App) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Queue.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, stats)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobType enumerates supported generation job categories.
type JobType string

const (
	JobTypeImageGeneration JobType = "image_generation"
	JobTypeVideoGeneration JobType = "video_generation"
	JobTypeAudioGeneration JobType = "audio_generation"
	JobTypeTextExpansion   JobType = "text_expansion"
)

// KnownJobTypes lists every job type the queue accepts.
var KnownJobTypes = []JobType{
	JobTypeImageGeneration,
	JobTypeVideoGeneration,
	JobTypeAudioGeneration,
	JobTypeTextExpansion,
}

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	for _, known := range KnownJobTypes {
		if t == known {
			return true
		}
	}
	return false
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transition can occur from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobPriority is a claim-ordering tier. The numeric weights are spaced
// (1/5/10/20) so intermediate tiers can be added without a migration.
type JobPriority string

const (
	JobPriorityLow    JobPriority = "low"
	JobPriorityNormal JobPriority = "normal"
	JobPriorityHigh   JobPriority = "high"
	JobPriorityUrgent JobPriority = "urgent"
)

var priorityWeights = map[JobPriority]int{
	JobPriorityLow:    1,
	JobPriorityNormal: 5,
	JobPriorityHigh:   10,
	JobPriorityUrgent: 20,
}

// Weight returns the stored numeric weight for p, or 0 for unknown tiers.
func (p JobPriority) Weight() int {
	return priorityWeights[p]
}

// Valid reports whether p is a known priority tier.
func (p JobPriority) Valid() bool {
	_, ok := priorityWeights[p]
	return ok
}

// PriorityFromWeight maps a stored weight back to its tier. Unknown weights
// fall back to normal so reads never fail on headroom values.
func PriorityFromWeight(w int) JobPriority {
	for p, weight := range priorityWeights {
		if weight == w {
			return p
		}
	}
	return JobPriorityNormal
}

// Job is a unit of deferred, retryable generation work.
type Job struct {
	ID           uuid.UUID
	Type         JobType
	Status       JobStatus
	Priority     JobPriority
	OwnerID      uuid.UUID
	Payload      []byte
	Result       []byte
	Error        string
	Attempts     int
	MaxAttempts  int
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ScheduledFor time.Time
}

// QueueStats is the observability snapshot returned by Stats.
type QueueStats struct {
	ByStatus     map[JobStatus]int `json:"by_status"`
	ActiveByType map[JobType]int   `json:"active_by_type"`
}

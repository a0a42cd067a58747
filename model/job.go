package model

import "time"

// JobStatus is the job state machine. Transitions are monotonic
// (pending, processing, then completed or failed); a claimed job
// never goes back to pending.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is legal.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one generation request. Created once, mutated only by the worker
// that claimed it, never deleted (kept for audit and polling).
type Job struct {
	ID           string           `json:"id"`
	Key          GenerationKey    `json:"key"`
	Status       JobStatus        `json:"status"`
	Segments     []Segment        `json:"segments"`
	FileCount    int              `json:"fileCount"`
	ProgramURL   string           `json:"programUrl,omitempty"`
	Manifest     *ProgramManifest `json:"manifest,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	StartedAt    *time.Time       `json:"startedAt,omitempty"`
	CompletedAt  *time.Time       `json:"completedAt,omitempty"`
}

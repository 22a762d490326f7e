package model

import (
	"time"
)

// JobKind selects the workflow a ProcessingJob runs.
type JobKind string

const (
	JobKindVerification        JobKind = "verification"
	JobKindProspecting         JobKind = "prospecting"
	JobKindAIProspecting       JobKind = "ai-prospecting"
	JobKindLocationProspecting JobKind = "location-prospecting"
)

// Valid reports whether k names a known workflow.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindVerification, JobKindProspecting, JobKindAIProspecting, JobKindLocationProspecting:
		return true
	default:
		return false
	}
}

// JobStatus represents the state of a ProcessingJob.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusStopped   JobStatus = "stopped"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusStopped
}

// CanTransition reports whether a job may move from s to next.
//
//	pending -> running | stopped | failed
//	running -> completed | failed | stopped
//
// Terminal states accept nothing, including a repeat of themselves.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusStopped || next == JobStatusFailed
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed || next == JobStatusStopped
	default:
		return false
	}
}

// Job is one execution of a workflow against an UploadBatch.
type Job struct {
	ID            string     `json:"id"`
	UploadBatchID string     `json:"upload_batch_id"`
	Kind          JobKind    `json:"kind"`
	Status        JobStatus  `json:"status"`
	Progress      int        `json:"progress"`
	Result        *JobResult `json:"result,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// JobUpdate is a partial update for a Job. Nil fields are left unchanged.
type JobUpdate struct {
	Status       *JobStatus
	Progress     *int
	Result       *JobResult
	ErrorMessage *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// Apply merges u into j and reports whether the status change it carries
// is legal. Progress is clamped to [0,100] and never decreases. On an
// illegal transition j is left untouched.
func (u JobUpdate) Apply(j *Job) bool {
	if j.Status.Terminal() {
		return false
	}
	if u.Status != nil && *u.Status != j.Status && !j.Status.CanTransition(*u.Status) {
		return false
	}
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.Progress != nil {
		p := ClampProgress(*u.Progress)
		if p > j.Progress {
			j.Progress = p
		}
	}
	if u.Result != nil {
		j.Result = u.Result
	}
	if u.ErrorMessage != nil {
		j.ErrorMessage = *u.ErrorMessage
	}
	if u.StartedAt != nil {
		t := u.StartedAt.UTC()
		j.StartedAt = &t
	}
	if u.CompletedAt != nil {
		t := u.CompletedAt.UTC()
		j.CompletedAt = &t
	}
	return true
}

// ClampProgress bounds p to [0,100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Ptr returns a pointer to v. Handy for building partial updates.
func Ptr[T any](v T) *T {
	return &v
}

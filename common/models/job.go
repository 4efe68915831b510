package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a propagation job
type JobStatus string

const (
	JobPending        JobStatus = "pending"
	JobRunning        JobStatus = "running"
	JobCompleted      JobStatus = "completed"
	JobFailed         JobStatus = "failed"
	JobPartialFailure JobStatus = "partial_failure"
	JobCancelled      JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobPartialFailure, JobCancelled:
		return true
	}
	return false
}

// ProcessingMethod describes how a job's items are executed
type ProcessingMethod string

const (
	MethodSynchronous ProcessingMethod = "synchronous"
	MethodBackground  ProcessingMethod = "background"
	MethodChunked     ProcessingMethod = "chunked"
)

// ErrorHandling selects the per-item failure policy for a run
type ErrorHandling string

const (
	// ErrorContinue keeps processing remaining items after a failure
	ErrorContinue ErrorHandling = "continue"
	// ErrorStop aborts remaining work on the first failure
	ErrorStop ErrorHandling = "stop"
)

// PropagationJob is the durable record of one propagation run.
// Maps to: propagation_job table
type PropagationJob struct {
	ID uuid.UUID `db:"id" json:"id"`

	// Correlates AuditEntry records produced by this run
	BatchID uuid.UUID `db:"batch_id" json:"batch_id"`

	WorkspaceID uuid.UUID `db:"workspace_id" json:"workspace_id"`

	Status JobStatus `db:"status" json:"status"`

	// Invariant: ProcessedStrings + FailedStrings <= TotalStrings
	TotalStrings     int `db:"total_strings" json:"total_strings"`
	ProcessedStrings int `db:"processed_strings" json:"processed_strings"`
	FailedStrings    int `db:"failed_strings" json:"failed_strings"`

	ProcessingMethod ProcessingMethod `db:"processing_method" json:"processing_method"`

	// Set only on job-level failure
	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`

	// Free-form run metadata (submitter, options, source)
	Metadata map[string]any `db:"metadata" json:"metadata,omitempty"`

	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Progress returns completion percentage over total items
func (j *PropagationJob) Progress() float64 {
	if j.TotalStrings == 0 {
		return 0
	}
	return float64(j.ProcessedStrings+j.FailedStrings) / float64(j.TotalStrings) * 100
}

// SuccessRate returns the fraction of attempted items that succeeded
func (j *PropagationJob) SuccessRate() float64 {
	attempted := j.ProcessedStrings + j.FailedStrings
	if attempted == 0 {
		return 0
	}
	return float64(j.ProcessedStrings) / float64(attempted)
}

// Duration returns wall-clock duration once both timestamps are set
func (j *PropagationJob) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

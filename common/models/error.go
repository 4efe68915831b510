package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrorType is the closed taxonomy of propagation failures. Executor,
// job runner and conflict detector all consume this one enum.
type ErrorType string

const (
	// Renderer failed to produce a value, e.g. missing required slot
	ErrGeneration ErrorType = "generation_error"
	// Persistence failure
	ErrDatabase ErrorType = "database_error"
	// Proposed value fails type/length/business rules
	ErrValidation ErrorType = "validation_error"
	// Parent-assignment or inheritance cycle detected
	ErrCircularDependency ErrorType = "circular_dependency"
	// Unresolved conflict blocking the write
	ErrConflict ErrorType = "conflict_error"
	// Actor lacks rights, surfaced from the auth layer
	ErrPermission ErrorType = "permission_error"
	ErrTimeout    ErrorType = "timeout_error"
	ErrUnknown    ErrorType = "unknown_error"
)

// IsRetryable reports whether failures of this type may be retried
// automatically. Transient infrastructure classes are; semantic
// failures never are.
func (t ErrorType) IsRetryable() bool {
	switch t {
	case ErrDatabase, ErrTimeout, ErrUnknown:
		return true
	}
	return false
}

// EngineError carries a classified error through the engine
type EngineError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a classified engine error
func NewEngineError(t ErrorType, message string, err error) *EngineError {
	return &EngineError{Type: t, Message: message, Err: err}
}

// Classify maps an arbitrary error to the closed taxonomy. Already
// classified errors keep their type.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrUnknown
	}

	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Type
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	return ErrUnknown
}

// PropagationError is one durable record of a failed item within a job.
// Owned by exactly one PropagationJob (cascade delete).
// Maps to: propagation_error table
type PropagationError struct {
	ID    uuid.UUID `db:"id" json:"id"`
	JobID uuid.UUID `db:"job_id" json:"job_id"`

	// Offending string/slot, when known
	StringID *uuid.UUID `db:"string_id" json:"string_id,omitempty"`
	SlotID   *uuid.UUID `db:"slot_id" json:"slot_id,omitempty"`

	ErrorType ErrorType `db:"error_type" json:"error_type"`
	Message   string    `db:"message" json:"message"`

	RetryCount  int  `db:"retry_count" json:"retry_count"`
	IsRetryable bool `db:"is_retryable" json:"is_retryable"`

	Resolved   bool       `db:"resolved" json:"resolved"`
	ResolvedBy *string    `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/convexa/nameforge/common/models"
)

// ErrVersionMismatch is returned by StringStore.UpdateValue when the
// expected version no longer matches persisted state (optimistic
// concurrency failure).
var ErrVersionMismatch = errors.New("version mismatch")

// ErrNotFound is returned by stores when a record does not exist
var ErrNotFound = errors.New("not found")

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// StringStore reads and mutates NameStrings. Every operation is
// workspace-scoped; the engine never relies on ambient request state.
type StringStore interface {
	GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.NameString, error)
	ListChildren(ctx context.Context, workspaceID, parentID uuid.UUID) ([]*models.NameString, error)
	// FindByValue returns a different string holding the given generated
	// value at the same workspace/rule/level, or ErrNotFound
	FindByValue(ctx context.Context, workspaceID, ruleID, levelID uuid.UUID, value string, excludeID uuid.UUID) (*models.NameString, error)
	// UpdateValue persists a new value and metadata iff the persisted
	// version still equals expectedVersion; returns the new version or
	// ErrVersionMismatch
	UpdateValue(ctx context.Context, workspaceID, id uuid.UUID, value string, expectedVersion int, meta models.GenerationMetadata) (int, error)
}

// SlotStore reads and mutates slots
type SlotStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Slot, error)
	ListByString(ctx context.Context, stringID uuid.UUID) ([]*models.Slot, error)
	Update(ctx context.Context, slot *models.Slot) error
}

// AuditStore appends and reads immutable audit entries
type AuditStore interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	// ListByString returns entries most-recent-first
	ListByString(ctx context.Context, stringID uuid.UUID) ([]*models.AuditEntry, error)
	GetByVersion(ctx context.Context, stringID uuid.UUID, version int) (*models.AuditEntry, error)
	Latest(ctx context.Context, stringID uuid.UUID) (*models.AuditEntry, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*models.AuditEntry, error)
}

// JobStore persists propagation job bookkeeping
type JobStore interface {
	Create(ctx context.Context, job *models.PropagationJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PropagationJob, error)
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, status models.JobStatus, limit int) ([]*models.PropagationJob, error)
	MarkStarted(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, processed, failed int) error
	// MarkCompleted sets a terminal status, final counts and completed_at
	MarkCompleted(ctx context.Context, id uuid.UUID, status models.JobStatus, processed, failed int, errorMessage *string) error
}

// ErrorStore persists per-item propagation errors
type ErrorStore interface {
	Create(ctx context.Context, propErr *models.PropagationError) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PropagationError, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.PropagationError, error)
	// ListRetryable returns unresolved, retryable errors for a batch
	ListRetryable(ctx context.Context, jobID uuid.UUID) ([]*models.PropagationError, error)
	MarkResolved(ctx context.Context, id uuid.UUID, resolvedBy string) error
	IncrementRetry(ctx context.Context, id uuid.UUID) (int, error)
	SetRetryable(ctx context.Context, id uuid.UUID, retryable bool) error
}

// TemplateStore resolves rule templates for rendering
type TemplateStore interface {
	GetByLevel(ctx context.Context, ruleID, levelID uuid.UUID) (*models.RuleTemplate, error)
}

// Stores bundles the per-transaction store set handed to executor units
type Stores struct {
	Strings   StringStore
	Slots     SlotStore
	Audits    AuditStore
	Templates TemplateStore
}

// TxRunner runs one propagation unit atomically. The pgx implementation
// opens a database transaction; test fakes run the function directly.
type TxRunner interface {
	InTx(ctx context.Context, fn func(s Stores) error) error
}

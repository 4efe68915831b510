package models

import (
	"time"

	"github.com/google/uuid"
)

// ChangeType categorizes what produced an audit entry
type ChangeType string

const (
	ChangeTypeDirect      ChangeType = "direct"
	ChangeTypeInheritance ChangeType = "inheritance_update"
	ChangeTypeRollback    ChangeType = "rollback"
	ChangeTypeBatch       ChangeType = "batch_update"
)

// FieldChange captures one field's before/after values
type FieldChange struct {
	Old        string `json:"old"`
	New        string `json:"new"`
	OldDisplay string `json:"old_display,omitempty"`
	NewDisplay string `json:"new_display,omitempty"`
}

// ChangeSet maps logical field names to their changes
type ChangeSet map[string]FieldChange

// AuditEntry is an immutable log record of one NameString mutation.
// Append-only: entries are never updated or deleted.
// Maps to: audit_entry table
type AuditEntry struct {
	ID uuid.UUID `db:"id" json:"id"`

	// Mutated string and its workspace
	StringID    uuid.UUID `db:"string_id" json:"string_id"`
	WorkspaceID uuid.UUID `db:"workspace_id" json:"workspace_id"`

	// Version the mutation produced
	Version int `db:"version" json:"version"`

	// For inherited updates, the parent's version this change derives from
	ParentVersion *int `db:"parent_version" json:"parent_version,omitempty"`

	// Field-level changes applied, with previous values
	Changes ChangeSet `db:"changes" json:"changes"`

	// Composite value before and after the mutation
	OriginalValue string `db:"original_value" json:"original_value"`
	StringValue   string `db:"string_value" json:"string_value"`

	ChangeType ChangeType `db:"change_type" json:"change_type"`

	// Who or what produced the mutation
	Actor string `db:"actor" json:"actor"`

	// Correlates all modifications from one propagation run
	BatchID *uuid.UUID `db:"batch_id" json:"batch_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

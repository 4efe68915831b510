package models

import (
	"github.com/google/uuid"
)

// ConflictType classifies findings of the conflict detector
type ConflictType string

const (
	// Caller's snapshot token no longer matches persisted state, or a
	// different actor modified the string within the recency window
	ConflictConcurrentEdit ConflictType = "concurrent_edit"
	// Another string in the same workspace/rule/level already holds the
	// proposed generated value
	ConflictDuplicateValue ConflictType = "duplicate_value"
	// A proposed field is itself inherited from the string's parent
	ConflictInheritance ConflictType = "inheritance_conflict"
	// Removing a parent link would leave children depending on
	// inherited data
	ConflictOrphanedChildren ConflictType = "orphaned_children"
	// Proposed value fails type/length constraints
	ConflictValidation ConflictType = "validation_conflict"
	// Proposed parent assignment closes a cycle
	ConflictCircular ConflictType = "circular_dependency"
)

// Severity grades warnings and conflicts
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Conflict is a detector finding. Conflicts are data, not errors: the
// caller or a resolution policy decides whether one is blocking.
type Conflict struct {
	Type     ConflictType `json:"type"`
	StringID uuid.UUID    `json:"string_id"`
	Field    string       `json:"field,omitempty"`
	Message  string       `json:"message"`
	Proposed string       `json:"proposed,omitempty"`
	Current  string       `json:"current,omitempty"`
	Severity Severity     `json:"severity"`

	// For circular findings, every id in the affected chain
	RelatedIDs []uuid.UUID `json:"related_ids,omitempty"`
}

// Warning is a non-blocking impact analysis finding
type Warning struct {
	Type     string    `json:"type"`
	StringID uuid.UUID `json:"string_id"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
}

// ResolutionStrategy selects how a conflict is resolved
type ResolutionStrategy string

const (
	// No change applied
	ResolveSkip ResolutionStrategy = "skip"
	// Apply the proposed value, overriding persisted state
	ResolveTakeMine ResolutionStrategy = "take_mine"
	// Discard the proposed value, keep persisted state
	ResolveTakeTheirs ResolutionStrategy = "take_theirs"
	// Apply a caller-supplied merged value
	ResolveMerge ResolutionStrategy = "merge"
)

// ProposedUpdate is one caller-submitted change considered by the
// conflict detector
type ProposedUpdate struct {
	StringID uuid.UUID `json:"string_id"`

	// Claimed version the caller last observed (optimistic token)
	BaseVersion int `json:"base_version"`

	// Proposed generated value, when precomputed
	NewValue *string `json:"new_value,omitempty"`

	// Proposed parent reassignment
	NewParentID *uuid.UUID `json:"new_parent_id,omitempty"`

	// Proposed slot field values keyed "{field}_{dimension_name}", the
	// same key generation metadata records provenance under. Qualified
	// keys keep same-field changes on different dimensions distinct.
	FieldValues map[string]string `json:"field_values,omitempty"`

	Actor string `json:"actor,omitempty"`
}

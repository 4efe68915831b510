package models

import (
	"time"

	"github.com/google/uuid"
)

// NameString represents one generated composite name within a workspace.
// Maps to: name_string table
type NameString struct {
	// Stable globally-unique identifier
	ID uuid.UUID `db:"id" json:"id"`

	// Owning workspace; every query is scoped by it
	WorkspaceID uuid.UUID `db:"workspace_id" json:"workspace_id"`

	// Naming rule the value is generated from
	RuleID uuid.UUID `db:"rule_id" json:"rule_id"`

	// Hierarchy level within the rule's entity/field levels
	LevelID uuid.UUID `db:"level_id" json:"level_id"`

	// Optional parent in the inheritance tree. Must share workspace and
	// rule lineage; the tree is acyclic.
	ParentID *uuid.UUID `db:"parent_id" json:"parent_id,omitempty"`

	// Generated composite value, e.g. "US-Q4-Awareness"
	Value string `db:"value" json:"value"`

	// Monotonic version, incremented on every mutation
	Version int `db:"version" json:"version"`

	// Records which fields were inherited and from where
	GenerationMetadata GenerationMetadata `db:"generation_metadata" json:"generation_metadata"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GenerationMetadata maps a logical field name to its provenance
type GenerationMetadata map[string]FieldOrigin

// FieldOrigin records where a field's current value came from
type FieldOrigin struct {
	Inherited bool       `json:"inherited"`
	SourceID  *uuid.UUID `json:"source_id,omitempty"`
}

// HasParent reports whether the string participates in a hierarchy as a child
func (s *NameString) HasParent() bool {
	return s.ParentID != nil
}

// IsInherited reports whether a logical field currently holds an
// inherited value
func (s *NameString) IsInherited(field string) bool {
	if s.GenerationMetadata == nil {
		return false
	}
	origin, ok := s.GenerationMetadata[field]
	return ok && origin.Inherited
}

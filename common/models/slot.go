package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Logical field names used by change detection and inheritance rules
const (
	FieldDimensionValue = "dimension_value"
	FieldFreetext       = "freetext"
)

// Slot holds one dimension's resolved value within a NameString: either a
// reference into the dimension value catalog or a free-text override,
// never both.
// Maps to: string_slot table
type Slot struct {
	ID uuid.UUID `db:"id" json:"id"`

	// Owning string
	StringID uuid.UUID `db:"string_id" json:"string_id"`

	// Dimension this slot resolves
	DimensionID   uuid.UUID `db:"dimension_id" json:"dimension_id"`
	DimensionName string    `db:"dimension_name" json:"dimension_name"`

	// Catalog reference (exclusive with Freetext)
	DimensionValueID   *uuid.UUID `db:"dimension_value_id" json:"dimension_value_id,omitempty"`
	DimensionValueName *string    `db:"dimension_value_name" json:"dimension_value_name,omitempty"`

	// Free-text override (exclusive with DimensionValueID)
	Freetext *string `db:"freetext" json:"freetext,omitempty"`
}

// Validate enforces the exactly-one-of invariant
func (s *Slot) Validate() error {
	hasRef := s.DimensionValueID != nil
	hasText := s.Freetext != nil && *s.Freetext != ""

	if hasRef && hasText {
		return fmt.Errorf("slot %s: dimension_value and freetext are mutually exclusive", s.ID)
	}
	if !hasRef && !hasText {
		return fmt.Errorf("slot %s: one of dimension_value or freetext is required", s.ID)
	}
	return nil
}

// ResolvedValue returns the value the renderer substitutes for this slot
func (s *Slot) ResolvedValue() string {
	if s.Freetext != nil && *s.Freetext != "" {
		return *s.Freetext
	}
	if s.DimensionValueName != nil {
		return *s.DimensionValueName
	}
	return ""
}

// IsEmpty reports whether the slot carries no value at all; the
// inherit_if_empty policy inspects this
func (s *Slot) IsEmpty() bool {
	return s == nil || (s.DimensionValueID == nil && (s.Freetext == nil || *s.Freetext == ""))
}

// FieldValue returns the slot's raw value for a logical field name
func (s *Slot) FieldValue(field string) string {
	switch field {
	case FieldDimensionValue:
		if s.DimensionValueID != nil {
			return s.DimensionValueID.String()
		}
		return ""
	case FieldFreetext:
		if s.Freetext != nil {
			return *s.Freetext
		}
		return ""
	}
	return ""
}

// DisplayValue returns the human-readable value for a logical field name
func (s *Slot) DisplayValue(field string) string {
	switch field {
	case FieldDimensionValue:
		if s.DimensionValueName != nil {
			return *s.DimensionValueName
		}
		return ""
	case FieldFreetext:
		if s.Freetext != nil {
			return *s.Freetext
		}
		return ""
	}
	return ""
}

package models

import (
	"github.com/google/uuid"
)

// TemplateSlot is one ordered dimension position in a rule template
type TemplateSlot struct {
	DimensionID   uuid.UUID `db:"dimension_id" json:"dimension_id"`
	DimensionName string    `db:"dimension_name" json:"dimension_name"`

	// Literal text wrapped around the resolved value
	Prefix string `db:"prefix" json:"prefix,omitempty"`
	Suffix string `db:"suffix" json:"suffix,omitempty"`

	// Rendering fails with generation_error when a required slot has no value
	Required bool `db:"required" json:"required"`

	// Position within the composite value
	Order int `db:"slot_order" json:"order"`
}

// RuleTemplate describes how a level's composite value is assembled from
// dimension slots.
// Maps to: rule_template table
type RuleTemplate struct {
	RuleID    uuid.UUID      `db:"rule_id" json:"rule_id"`
	LevelID   uuid.UUID      `db:"level_id" json:"level_id"`
	Delimiter string         `db:"delimiter" json:"delimiter"`
	Slots     []TemplateSlot `db:"slots" json:"slots"`
}

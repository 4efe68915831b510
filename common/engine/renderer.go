package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/convexa/nameforge/common/models"
)

// Render assembles a composite value from a rule template and resolved
// slot values. Pure function: identical inputs always produce the
// identical string.
func Render(tmpl *models.RuleTemplate, slots []*models.Slot) (string, error) {
	if tmpl == nil {
		return "", models.NewEngineError(models.ErrGeneration, "rule template is required", nil)
	}

	byDimension := make(map[uuid.UUID]*models.Slot, len(slots))
	for _, slot := range slots {
		byDimension[slot.DimensionID] = slot
	}

	ordered := make([]models.TemplateSlot, len(tmpl.Slots))
	copy(ordered, tmpl.Slots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	parts := make([]string, 0, len(ordered))
	for _, ts := range ordered {
		slot := byDimension[ts.DimensionID]

		var value string
		if slot != nil {
			value = slot.ResolvedValue()
		}

		if value == "" {
			if ts.Required {
				return "", models.NewEngineError(
					models.ErrGeneration,
					fmt.Sprintf("missing required slot for dimension %q", ts.DimensionName),
					nil,
				)
			}
			// Optional empty slots are omitted entirely, including affixes
			continue
		}

		parts = append(parts, ts.Prefix+value+ts.Suffix)
	}

	return strings.Join(parts, tmpl.Delimiter), nil
}

// ProjectValue renders the value a string would have if the given
// changes were applied to its current slots, without mutating anything.
// Used by dry-run impact analysis.
func ProjectValue(tmpl *models.RuleTemplate, slots []*models.Slot, changes []Change) (string, error) {
	projected := make([]*models.Slot, len(slots))
	for i, slot := range slots {
		copied := *slot
		projected[i] = &copied
	}

	for _, change := range changes {
		for _, slot := range projected {
			if slot.DimensionID != change.DimensionID {
				continue
			}
			applyChangeToSlot(slot, change)
		}
	}

	return Render(tmpl, projected)
}

// applyChangeToSlot writes a change's new value into a slot, preserving
// the exactly-one-of invariant
func applyChangeToSlot(slot *models.Slot, change Change) {
	switch change.Field {
	case models.FieldFreetext:
		text := change.New
		slot.Freetext = &text
		slot.DimensionValueID = nil
		slot.DimensionValueName = nil
	case models.FieldDimensionValue:
		if id, err := uuid.Parse(change.New); err == nil {
			slot.DimensionValueID = &id
		}
		display := change.NewDisplay
		slot.DimensionValueName = &display
		slot.Freetext = nil
	}
}

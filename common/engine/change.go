package engine

import (
	"github.com/google/uuid"

	"github.com/convexa/nameforge/common/models"
)

// Change is one normalized slot change flowing through the engine. The
// dimension identifies which slot of a descendant the change maps onto;
// Field is the logical field name within that slot.
type Change struct {
	DimensionID   uuid.UUID `json:"dimension_id"`
	DimensionName string    `json:"dimension_name"`
	Field         string    `json:"field"`

	Old        string `json:"old"`
	New        string `json:"new"`
	OldDisplay string `json:"old_display,omitempty"`
	NewDisplay string `json:"new_display,omitempty"`
}

// Key returns the inheritance lookup key "{field}_{dimension_name}"
func (c Change) Key() string {
	return c.Field + "_" + c.DimensionName
}

// DetectChanges compares a slot's prior persisted state against its new
// state and returns the non-trivial field changes. A nil before snapshot
// means snapshot capture was skipped; the detector then fails open and
// reports every populated field as changed, so propagation is redundant
// rather than missed.
func DetectChanges(before, after *models.Slot) []Change {
	if after == nil {
		return nil
	}

	if before == nil {
		return allFieldsChanged(after)
	}

	var changes []Change
	for _, field := range []string{models.FieldDimensionValue, models.FieldFreetext} {
		oldVal := before.FieldValue(field)
		newVal := after.FieldValue(field)
		if oldVal == newVal {
			continue
		}
		changes = append(changes, Change{
			DimensionID:   after.DimensionID,
			DimensionName: after.DimensionName,
			Field:         field,
			Old:           oldVal,
			New:           newVal,
			OldDisplay:    before.DisplayValue(field),
			NewDisplay:    after.DisplayValue(field),
		})
	}

	return changes
}

func allFieldsChanged(after *models.Slot) []Change {
	var changes []Change
	for _, field := range []string{models.FieldDimensionValue, models.FieldFreetext} {
		newVal := after.FieldValue(field)
		if newVal == "" {
			continue
		}
		changes = append(changes, Change{
			DimensionID:   after.DimensionID,
			DimensionName: after.DimensionName,
			Field:         field,
			New:           newVal,
			NewDisplay:    after.DisplayValue(field),
		})
	}
	return changes
}

// ToChangeSet converts engine changes into the audit representation,
// keyed by "{dimension}.{field}" so multi-slot batches don't collide
func ToChangeSet(changes []Change) models.ChangeSet {
	set := make(models.ChangeSet, len(changes))
	for _, c := range changes {
		key := c.Field
		if c.DimensionName != "" {
			key = c.DimensionName + "." + c.Field
		}
		set[key] = models.FieldChange{
			Old:        c.Old,
			New:        c.New,
			OldDisplay: c.OldDisplay,
			NewDisplay: c.NewDisplay,
		}
	}
	return set
}

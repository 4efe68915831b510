package engine_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/models"
)

func TestDetectChangesCatalogValue(t *testing.T) {
	dim := uuid.New()
	oldID, newID := uuid.New(), uuid.New()
	oldName, newName := "US", "EMEA"

	before := &models.Slot{DimensionID: dim, DimensionName: "geo", DimensionValueID: &oldID, DimensionValueName: &oldName}
	after := &models.Slot{DimensionID: dim, DimensionName: "geo", DimensionValueID: &newID, DimensionValueName: &newName}

	changes := engine.DetectChanges(before, after)

	require.Len(t, changes, 1)
	assert.Equal(t, models.FieldDimensionValue, changes[0].Field)
	assert.Equal(t, oldID.String(), changes[0].Old)
	assert.Equal(t, newID.String(), changes[0].New)
	assert.Equal(t, "US", changes[0].OldDisplay)
	assert.Equal(t, "EMEA", changes[0].NewDisplay)
	assert.Equal(t, "dimension_value_geo", changes[0].Key())
}

func TestDetectChangesNoChange(t *testing.T) {
	dim := uuid.New()
	id := uuid.New()
	name := "US"

	before := &models.Slot{DimensionID: dim, DimensionName: "geo", DimensionValueID: &id, DimensionValueName: &name}
	after := &models.Slot{DimensionID: dim, DimensionName: "geo", DimensionValueID: &id, DimensionValueName: &name}

	assert.Empty(t, engine.DetectChanges(before, after))
}

func TestDetectChangesCatalogToFreetext(t *testing.T) {
	dim := uuid.New()
	id := uuid.New()
	name := "US"
	text := "Global"

	before := &models.Slot{DimensionID: dim, DimensionName: "geo", DimensionValueID: &id, DimensionValueName: &name}
	after := &models.Slot{DimensionID: dim, DimensionName: "geo", Freetext: &text}

	changes := engine.DetectChanges(before, after)

	// Both logical fields move: the catalog ref clears and freetext appears
	require.Len(t, changes, 2)
	fields := []string{changes[0].Field, changes[1].Field}
	assert.Contains(t, fields, models.FieldDimensionValue)
	assert.Contains(t, fields, models.FieldFreetext)
}

func TestDetectChangesNilBeforeFailsOpen(t *testing.T) {
	dim := uuid.New()
	text := "Global"
	after := &models.Slot{DimensionID: dim, DimensionName: "geo", Freetext: &text}

	changes := engine.DetectChanges(nil, after)

	require.Len(t, changes, 1)
	assert.Equal(t, models.FieldFreetext, changes[0].Field)
	assert.Equal(t, "Global", changes[0].New)
	assert.Empty(t, changes[0].Old)
}

func TestDetectChangesNilAfter(t *testing.T) {
	assert.Nil(t, engine.DetectChanges(&models.Slot{}, nil))
}

func TestToChangeSetKeysByDimensionAndField(t *testing.T) {
	set := engine.ToChangeSet([]engine.Change{
		{DimensionName: "geo", Field: models.FieldDimensionValue, Old: "a", New: "b", NewDisplay: "EMEA"},
		{DimensionName: "purpose", Field: models.FieldFreetext, Old: "Awareness", New: "Launch"},
	})

	require.Len(t, set, 2)
	assert.Equal(t, "b", set["geo.dimension_value"].New)
	assert.Equal(t, "EMEA", set["geo.dimension_value"].NewDisplay)
	assert.Equal(t, "Launch", set["purpose.freetext"].New)
}

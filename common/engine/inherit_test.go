package engine_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/models"
)

func TestShouldInheritDefaultIsAlways(t *testing.T) {
	child := &models.NameString{ID: uuid.New(), Version: 1}
	change := engine.Change{DimensionName: "geo", Field: models.FieldDimensionValue}

	ok, err := engine.DefaultRuleSet().ShouldInherit(child, nil, change, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestShouldInheritNever(t *testing.T) {
	rules := &engine.RuleSet{
		Fields: map[string]engine.InheritanceRule{
			models.FieldDimensionValue: {Policy: engine.InheritNever},
		},
		Default: engine.InheritAlways,
	}
	child := &models.NameString{ID: uuid.New()}
	change := engine.Change{DimensionName: "geo", Field: models.FieldDimensionValue}

	ok, err := rules.ShouldInherit(child, nil, change, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShouldInheritIfEmptyInspectsChildSlot(t *testing.T) {
	rules := &engine.RuleSet{Default: engine.InheritIfEmpty}
	child := &models.NameString{ID: uuid.New()}
	change := engine.Change{DimensionName: "geo", Field: models.FieldDimensionValue}

	// Child has no slot for the dimension at all
	ok, err := rules.ShouldInherit(child, nil, change, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	// Child slot exists but carries no value
	ok, err = rules.ShouldInherit(child, &models.Slot{DimensionName: "geo"}, change, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	// Child slot holds its own value: the change must not propagate
	text := "Local"
	ok, err = rules.ShouldInherit(child, &models.Slot{DimensionName: "geo", Freetext: &text}, change, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShouldInheritOverrideBeatsFieldRule(t *testing.T) {
	rules := &engine.RuleSet{
		Overrides: map[string]engine.InheritanceRule{
			"dimension_value_geo": {Policy: engine.InheritNever},
		},
		Fields: map[string]engine.InheritanceRule{
			models.FieldDimensionValue: {Policy: engine.InheritAlways},
		},
	}
	child := &models.NameString{ID: uuid.New()}

	ok, err := rules.ShouldInherit(child, nil, engine.Change{DimensionName: "geo", Field: models.FieldDimensionValue}, nil)
	require.NoError(t, err)
	assert.False(t, ok, "dimension override must win")

	ok, err = rules.ShouldInherit(child, nil, engine.Change{DimensionName: "quarter", Field: models.FieldDimensionValue}, nil)
	require.NoError(t, err)
	assert.True(t, ok, "other dimensions fall through to the field rule")
}

func TestShouldInheritConditionGates(t *testing.T) {
	rules := &engine.RuleSet{
		Fields: map[string]engine.InheritanceRule{
			models.FieldFreetext: {
				Policy:    engine.InheritAlways,
				Condition: `change.new != "" && child.version < 5`,
			},
		},
	}
	eval := engine.NewConditionEvaluator()
	change := engine.Change{DimensionName: "purpose", Field: models.FieldFreetext, New: "Launch"}

	ok, err := rules.ShouldInherit(&models.NameString{ID: uuid.New(), Version: 2}, nil, change, eval)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rules.ShouldInherit(&models.NameString{ID: uuid.New(), Version: 9}, nil, change, eval)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShouldInheritUnknownPolicy(t *testing.T) {
	rules := &engine.RuleSet{Default: engine.Policy("sometimes")}

	_, err := rules.ShouldInherit(&models.NameString{ID: uuid.New()}, nil, engine.Change{Field: models.FieldFreetext}, nil)
	require.Error(t, err)
	assert.Equal(t, models.ErrValidation, models.Classify(err))
}

func TestInheritedSubsetFilters(t *testing.T) {
	geoDim, purposeDim := uuid.New(), uuid.New()
	rules := &engine.RuleSet{
		Fields: map[string]engine.InheritanceRule{
			models.FieldDimensionValue: {Policy: engine.InheritAlways},
			models.FieldFreetext:       {Policy: engine.InheritIfEmpty},
		},
	}

	text := "Local"
	childSlots := []*models.Slot{
		{DimensionID: geoDim, DimensionName: "geo"},
		{DimensionID: purposeDim, DimensionName: "purpose", Freetext: &text},
	}
	changes := []engine.Change{
		{DimensionID: geoDim, DimensionName: "geo", Field: models.FieldDimensionValue, New: uuid.New().String()},
		{DimensionID: purposeDim, DimensionName: "purpose", Field: models.FieldFreetext, New: "Launch"},
	}

	inherited, err := rules.InheritedSubset(&models.NameString{ID: uuid.New()}, childSlots, changes, nil)
	require.NoError(t, err)

	require.Len(t, inherited, 1)
	assert.Equal(t, "geo", inherited[0].DimensionName)
}

func TestConditionEvaluatorCachesPrograms(t *testing.T) {
	eval := engine.NewConditionEvaluator()

	vars := map[string]interface{}{"version": 1}
	change := map[string]interface{}{"new": "x"}

	ok, err := eval.Evaluate(`change.new == "x"`, vars, change)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, eval.CacheSize())

	_, err = eval.Evaluate(`change.new == "x"`, vars, change)
	require.NoError(t, err)
	assert.Equal(t, 1, eval.CacheSize(), "recompilation must not happen")

	eval.ClearCache()
	assert.Equal(t, 0, eval.CacheSize())
}

func TestConditionEvaluatorRejectsNonBoolean(t *testing.T) {
	eval := engine.NewConditionEvaluator()

	_, err := eval.Evaluate(`change.new`, map[string]interface{}{}, map[string]interface{}{"new": "x"})
	require.Error(t, err)
}

package engine_test

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/convexa/nameforge/common/config"
	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/engine/enginetest"
	"github.com/convexa/nameforge/common/models"
)

// fixture wires an in-memory environment around one workspace, one
// naming rule and a three-slot template: geo (required, catalog-backed),
// quarter (optional, "Q" prefix) and purpose (required, freetext).
type fixture struct {
	env *enginetest.Env
	cfg config.EngineConfig

	workspace uuid.UUID
	rule      uuid.UUID
	level     uuid.UUID

	geoDim     uuid.UUID
	quarterDim uuid.UUID
	purposeDim uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		env: enginetest.NewEnv(),
		cfg: config.EngineConfig{
			MaxDepth:               10,
			DepthWarnThreshold:     5,
			ChildWarnThreshold:     25,
			ChildCriticalThreshold: 100,
			BackgroundThreshold:    100,
			BaseTimePerItem:        50 * time.Millisecond,
			DepthMultiplier:        0.1,
			ConcurrentEditWindow:   30 * time.Second,
			MaxValueLength:         255,
		},
		workspace:  uuid.New(),
		rule:       uuid.New(),
		level:      uuid.New(),
		geoDim:     uuid.New(),
		quarterDim: uuid.New(),
		purposeDim: uuid.New(),
	}

	f.env.SetTemplate(&models.RuleTemplate{
		RuleID:    f.rule,
		LevelID:   f.level,
		Delimiter: "-",
		Slots: []models.TemplateSlot{
			{DimensionID: f.geoDim, DimensionName: "geo", Required: true, Order: 1},
			{DimensionID: f.quarterDim, DimensionName: "quarter", Prefix: "Q", Order: 2},
			{DimensionID: f.purposeDim, DimensionName: "purpose", Required: true, Order: 3},
		},
	})

	return f
}

// addString creates a string with geo and purpose slots populated and
// its value rendered from them
func (f *fixture) addString(parent *models.NameString, geoValue, purposeValue string) *models.NameString {
	str := &models.NameString{
		ID:          uuid.New(),
		WorkspaceID: f.workspace,
		RuleID:      f.rule,
		LevelID:     f.level,
		Value:       geoValue + "-" + purposeValue,
		Version:     1,
	}
	if parent != nil {
		parentID := parent.ID
		str.ParentID = &parentID
	}
	f.env.AddString(str)

	geoID := uuid.New()
	geoName := geoValue
	f.env.AddSlot(&models.Slot{
		ID:                 uuid.New(),
		StringID:           str.ID,
		DimensionID:        f.geoDim,
		DimensionName:      "geo",
		DimensionValueID:   &geoID,
		DimensionValueName: &geoName,
	})

	purpose := purposeValue
	f.env.AddSlot(&models.Slot{
		ID:            uuid.New(),
		StringID:      str.ID,
		DimensionID:   f.purposeDim,
		DimensionName: "purpose",
		Freetext:      &purpose,
	})

	return str
}

// addChain builds a parent chain of the given length under root and
// returns the strings root-first
func (f *fixture) addChain(root *models.NameString, length int) []*models.NameString {
	out := []*models.NameString{root}
	prev := root
	for i := 0; i < length; i++ {
		prev = f.addString(prev, "US", fmt.Sprintf("Level%d", i+1))
		out = append(out, prev)
	}
	return out
}

// geoChange returns a catalog-value change on the geo dimension
func (f *fixture) geoChange(oldDisplay, newDisplay string) engine.Change {
	return engine.Change{
		DimensionID:   f.geoDim,
		DimensionName: "geo",
		Field:         models.FieldDimensionValue,
		Old:           uuid.New().String(),
		New:           uuid.New().String(),
		OldDisplay:    oldDisplay,
		NewDisplay:    newDisplay,
	}
}

func (f *fixture) newAnalyzer() *engine.Analyzer {
	return engine.NewAnalyzer(f.env.Strings, f.env.Slots, f.env.Templates, f.cfg, enginetest.NopLogger{})
}

func (f *fixture) newExecutor() *engine.Executor {
	return engine.NewExecutor(f.env, f.env.Jobs, f.env.Errors, f.cfg, enginetest.NopLogger{})
}

func (f *fixture) newDetector() *engine.Detector {
	return engine.NewDetector(f.env.Strings, f.env.Audits, f.cfg, enginetest.NopLogger{})
}

func strPtr(s string) *string { return &s }

func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }

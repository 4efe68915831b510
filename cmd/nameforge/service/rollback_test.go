package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convexa/nameforge/cmd/nameforge/service"
	"github.com/convexa/nameforge/common/config"
	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/engine/enginetest"
	"github.com/convexa/nameforge/common/models"
)

type rollbackFixture struct {
	env  *enginetest.Env
	exec *engine.Executor
	svc  *service.RollbackService

	workspace uuid.UUID
	rule      uuid.UUID
	level     uuid.UUID
	geoDim    uuid.UUID
	nameDim   uuid.UUID
}

func newRollbackFixture() *rollbackFixture {
	f := &rollbackFixture{
		env:       enginetest.NewEnv(),
		workspace: uuid.New(),
		rule:      uuid.New(),
		level:     uuid.New(),
		geoDim:    uuid.New(),
		nameDim:   uuid.New(),
	}

	cfg := config.EngineConfig{MaxDepth: 10, BackgroundThreshold: 100, MaxValueLength: 255}
	f.exec = engine.NewExecutor(f.env, f.env.Jobs, f.env.Errors, cfg, enginetest.NopLogger{})
	f.svc = service.NewRollbackService(f.env, f.env.Audits, enginetest.NopLogger{})

	f.env.SetTemplate(&models.RuleTemplate{
		RuleID:    f.rule,
		LevelID:   f.level,
		Delimiter: "-",
		Slots: []models.TemplateSlot{
			{DimensionID: f.geoDim, DimensionName: "geo", Required: true, Order: 1},
			{DimensionID: f.nameDim, DimensionName: "name", Required: true, Order: 2},
		},
	})

	return f
}

func (f *rollbackFixture) addString(geo, name string) *models.NameString {
	str := f.env.AddString(&models.NameString{
		ID:          uuid.New(),
		WorkspaceID: f.workspace,
		RuleID:      f.rule,
		LevelID:     f.level,
		Value:       geo + "-" + name,
		Version:     1,
	})
	g, n := geo, name
	f.env.AddSlot(&models.Slot{ID: uuid.New(), StringID: str.ID, DimensionID: f.geoDim, DimensionName: "geo", Freetext: &g})
	f.env.AddSlot(&models.Slot{ID: uuid.New(), StringID: str.ID, DimensionID: f.nameDim, DimensionName: "name", Freetext: &n})
	return str
}

// setGeo applies one audited freetext change through the executor
func (f *rollbackFixture) setGeo(t *testing.T, str *models.NameString, old, new string) {
	t.Helper()
	_, err := f.exec.Execute(context.Background(), &engine.ExecuteRequest{
		WorkspaceID: f.workspace,
		Actor:       "alice",
		Changes: []engine.RootChange{{
			StringID: str.ID,
			Changes: []engine.Change{{
				DimensionID:   f.geoDim,
				DimensionName: "geo",
				Field:         models.FieldFreetext,
				Old:           old,
				New:           new,
			}},
		}},
	})
	require.NoError(t, err)
}

func TestRollbackStringRestoresEarlierContent(t *testing.T) {
	f := newRollbackFixture()
	str := f.addString("A", "Launch")

	// v1 = A, v2 = B, v3 = C, v4 = D, v5 = E
	f.setGeo(t, str, "A", "B")
	f.setGeo(t, str, "B", "C")
	f.setGeo(t, str, "C", "D")
	f.setGeo(t, str, "D", "E")

	result, err := f.svc.RollbackString(context.Background(), f.workspace, str.ID, 3, "admin")
	require.NoError(t, err)

	assert.Equal(t, 3, result.RestoredVersion)
	assert.Equal(t, 6, result.NewVersion, "rollback moves forward, never rewinds the counter")
	assert.Equal(t, "C-Launch", result.Value)

	persisted, err := f.env.Strings.GetByID(context.Background(), f.workspace, str.ID)
	require.NoError(t, err)
	assert.Equal(t, "C-Launch", persisted.Value)
	assert.Equal(t, 6, persisted.Version)

	entry, err := f.env.Audits.Latest(context.Background(), str.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeTypeRollback, entry.ChangeType)
	assert.Equal(t, "E-Launch", entry.OriginalValue)
	assert.Equal(t, "C-Launch", entry.StringValue)
	assert.Equal(t, "admin", entry.Actor)

	// History before the rollback is intact
	history, err := f.env.Audits.ListByString(context.Background(), str.ID)
	require.NoError(t, err)
	assert.Len(t, history, 5)
}

func TestRollbackRejectsInvalidTargets(t *testing.T) {
	f := newRollbackFixture()
	str := f.addString("A", "Launch")
	f.setGeo(t, str, "A", "B")

	// Current version
	_, err := f.svc.RollbackString(context.Background(), f.workspace, str.ID, 2, "admin")
	require.Error(t, err)
	assert.Equal(t, models.ErrValidation, models.Classify(err))

	// Future version
	_, err = f.svc.RollbackString(context.Background(), f.workspace, str.ID, 9, "admin")
	require.Error(t, err)

	// Version with no audit record
	_, err = f.svc.RollbackString(context.Background(), f.workspace, str.ID, 1, "admin")
	require.Error(t, err)
}

func TestRollbackUnknownString(t *testing.T) {
	f := newRollbackFixture()

	_, err := f.svc.RollbackString(context.Background(), f.workspace, uuid.New(), 1, "admin")
	require.Error(t, err)
}

func TestRollbackBatchRevertsEveryTouchedString(t *testing.T) {
	f := newRollbackFixture()
	root := f.addString("A", "Root")
	child := f.env.AddString(&models.NameString{
		ID:          uuid.New(),
		WorkspaceID: f.workspace,
		RuleID:      f.rule,
		LevelID:     f.level,
		ParentID:    &root.ID,
		Value:       "A-Child",
		Version:     1,
	})
	g, n := "A", "Child"
	f.env.AddSlot(&models.Slot{ID: uuid.New(), StringID: child.ID, DimensionID: f.geoDim, DimensionName: "geo", Freetext: &g})
	f.env.AddSlot(&models.Slot{ID: uuid.New(), StringID: child.ID, DimensionID: f.nameDim, DimensionName: "name", Freetext: &n})

	// One run mutates both root and child
	execResult, err := f.exec.Execute(context.Background(), &engine.ExecuteRequest{
		WorkspaceID: f.workspace,
		Actor:       "alice",
		Changes: []engine.RootChange{{
			StringID: root.ID,
			Changes: []engine.Change{{
				DimensionID:   f.geoDim,
				DimensionName: "geo",
				Field:         models.FieldFreetext,
				Old:           "A",
				New:           "B",
			}},
		}},
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{root.ID, child.ID}, execResult.Updated)

	result, err := f.svc.RollbackBatch(context.Background(), execResult.Job.BatchID, "admin")
	require.NoError(t, err)
	require.Len(t, result.RolledBack, 2)

	for _, id := range []uuid.UUID{root.ID, child.ID} {
		persisted, err := f.env.Strings.GetByID(context.Background(), f.workspace, id)
		require.NoError(t, err)
		assert.Equal(t, byte('A'), persisted.Value[0], fmt.Sprintf("string %s should be back on A", id))
		assert.Equal(t, 3, persisted.Version)

		entry, err := f.env.Audits.Latest(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.ChangeTypeRollback, entry.ChangeType)
	}
}

func TestRollbackBatchUnknown(t *testing.T) {
	f := newRollbackFixture()

	_, err := f.svc.RollbackBatch(context.Background(), uuid.New(), "admin")
	assert.Equal(t, engine.ErrNotFound, err)
}

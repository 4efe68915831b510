package engine_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/models"
)

func TestExecutePropagatesToDescendants(t *testing.T) {
	f := newFixture()
	exec := f.newExecutor()
	root := f.addString(nil, "US", "Awareness")
	child := f.addString(root, "US", "Social")

	result, err := exec.Execute(context.Background(), &engine.ExecuteRequest{
		WorkspaceID: f.workspace,
		Actor:       "alice",
		Changes: []engine.RootChange{
			{StringID: root.ID, Changes: []engine.Change{f.geoChange("US", "EMEA")}, BaseVersion: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, models.JobCompleted, result.Job.Status)
	assert.Equal(t, 1, result.Job.ProcessedStrings)
	assert.Equal(t, 0, result.Job.FailedStrings)
	assert.ElementsMatch(t, []uuid.UUID{root.ID, child.ID}, result.Updated)

	ctx := context.Background()

	gotRoot, err := f.env.Strings.GetByID(ctx, f.workspace, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "EMEA-Awareness", gotRoot.Value)
	assert.Equal(t, 2, gotRoot.Version)

	gotChild, err := f.env.Strings.GetByID(ctx, f.workspace, child.ID)
	require.NoError(t, err)
	assert.Equal(t, "EMEA-Social", gotChild.Value)
	assert.Equal(t, 2, gotChild.Version)

	// Inherited provenance points back at the parent
	origin, ok := gotChild.GenerationMetadata["dimension_value_geo"]
	require.True(t, ok)
	assert.True(t, origin.Inherited)
	require.NotNil(t, origin.SourceID)
	assert.Equal(t, root.ID, *origin.SourceID)
}

func TestExecuteAuditEntriesShareBatch(t *testing.T) {
	f := newFixture()
	exec := f.newExecutor()
	root := f.addString(nil, "US", "Awareness")
	child := f.addString(root, "US", "Social")

	result, err := exec.Execute(context.Background(), &engine.ExecuteRequest{
		WorkspaceID: f.workspace,
		Actor:       "alice",
		Changes: []engine.RootChange{
			{StringID: root.ID, Changes: []engine.Change{f.geoChange("US", "EMEA")}},
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	entries, err := f.env.Audits.ListByBatch(ctx, result.Job.BatchID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	rootEntry, err := f.env.Audits.Latest(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeTypeDirect, rootEntry.ChangeType)
	assert.Equal(t, "US-Awareness", rootEntry.OriginalValue)
	assert.Equal(t, "EMEA-Awareness", rootEntry.StringValue)
	assert.Equal(t, 2, rootEntry.Version)
	assert.Nil(t, rootEntry.ParentVersion)

	childEntry, err := f.env.Audits.Latest(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeTypeInheritance, childEntry.ChangeType)
	require.NotNil(t, childEntry.ParentVersion)
	assert.Equal(t, 2, *childEntry.ParentVersion)
	assert.Contains(t, childEntry.Changes, "geo.dimension_value")
}

func TestExecuteStaleBaseVersion(t *testing.T) {
	f := newFixture()
	exec := f.newExecutor()
	root := f.addString(nil, "US", "Awareness")

	result, err := exec.Execute(context.Background(), &engine.ExecuteRequest{
		WorkspaceID: f.workspace,
		Actor:       "alice",
		Changes: []engine.RootChange{
			{StringID: root.ID, Changes: []engine.Change{f.geoChange("US", "EMEA")}, BaseVersion: 7},
		},
	})
	require.NoError(t, err, "item failures are recorded, not raised")

	assert.Equal(t, models.JobPartialFailure, result.Job.Status)
	assert.Equal(t, 1, result.Job.FailedStrings)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.ErrConflict, result.Errors[0].ErrorType)
	assert.False(t, result.Errors[0].IsRetryable)

	persisted, err := f.env.Strings.GetByID(context.Background(), f.workspace, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "US-Awareness", persisted.Value)
	assert.Equal(t, 1, persisted.Version)
}

func TestExecuteRollsBackWholeUnitOnFailure(t *testing.T) {
	f := newFixture()
	exec := f.newExecutor()
	root := f.addString(nil, "US", "Awareness")

	// Child missing its required purpose slot: rendering the child fails
	// after the parent write, so the whole unit must roll back
	child := &models.NameString{
		ID:          uuid.New(),
		WorkspaceID: f.workspace,
		RuleID:      f.rule,
		LevelID:     f.level,
		ParentID:    uuidPtr(root.ID),
		Value:       "US",
		Version:     1,
	}
	f.env.AddString(child)
	geoID := uuid.New()
	geoName := "US"
	f.env.AddSlot(&models.Slot{
		ID:                 uuid.New(),
		StringID:           child.ID,
		DimensionID:        f.geoDim,
		DimensionName:      "geo",
		DimensionValueID:   &geoID,
		DimensionValueName: &geoName,
	})

	result, err := exec.Execute(context.Background(), &engine.ExecuteRequest{
		WorkspaceID: f.workspace,
		Actor:       "alice",
		Changes: []engine.RootChange{
			{StringID: root.ID, Changes: []engine.Change{f.geoChange("US", "EMEA")}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, models.JobPartialFailure, result.Job.Status)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.ErrGeneration, result.Errors[0].ErrorType)

	persisted, err := f.env.Strings.GetByID(context.Background(), f.workspace, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "US-Awareness", persisted.Value, "parent write must not survive the failed unit")
	assert.Equal(t, 1, persisted.Version)
}

func TestExecuteStopPolicyAbortsRemainingItems(t *testing.T) {
	f := newFixture()
	exec := f.newExecutor()
	good := f.addString(nil, "US", "Good")

	result, err := exec.Execute(context.Background(), &engine.ExecuteRequest{
		WorkspaceID: f.workspace,
		Actor:       "alice",
		Changes: []engine.RootChange{
			{StringID: uuid.New(), Changes: []engine.Change{f.geoChange("US", "EMEA")}},
			{StringID: good.ID, Changes: []engine.Change{f.geoChange("US", "EMEA")}},
		},
		Options: engine.ExecuteOptions{ErrorHandling: models.ErrorStop},
	})
	require.NoError(t, err)

	assert.Equal(t, models.JobFailed, result.Job.Status)
	require.NotNil(t, result.Job.ErrorMessage)

	persisted, err := f.env.Strings.GetByID(context.Background(), f.workspace, good.ID)
	require.NoError(t, err)
	assert.Equal(t, "US-Good", persisted.Value, "items after the failure stay unprocessed")
}

func TestExecuteContinuePolicyProcessesRemainingItems(t *testing.T) {
	f := newFixture()
	exec := f.newExecutor()
	good := f.addString(nil, "US", "Good")

	result, err := exec.Execute(context.Background(), &engine.ExecuteRequest{
		WorkspaceID: f.workspace,
		Actor:       "alice",
		Changes: []engine.RootChange{
			{StringID: uuid.New(), Changes: []engine.Change{f.geoChange("US", "EMEA")}},
			{StringID: good.ID, Changes: []engine.Change{f.geoChange("US", "EMEA")}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, models.JobPartialFailure, result.Job.Status)
	assert.Equal(t, 1, result.Job.ProcessedStrings)
	assert.Equal(t, 1, result.Job.FailedStrings)

	persisted, err := f.env.Strings.GetByID(context.Background(), f.workspace, good.ID)
	require.NoError(t, err)
	assert.Equal(t, "EMEA-Good", persisted.Value)
}

func TestExecuteRespectsInheritIfEmpty(t *testing.T) {
	f := newFixture()
	exec := f.newExecutor()
	root := f.addString(nil, "US", "Awareness")
	child := f.addString(root, "FR", "Social")

	rules := &engine.RuleSet{Default: engine.InheritIfEmpty}
	result, err := exec.Execute(context.Background(), &engine.ExecuteRequest{
		WorkspaceID: f.workspace,
		Actor:       "alice",
		Changes: []engine.RootChange{
			{StringID: root.ID, Changes: []engine.Change{f.geoChange("US", "EMEA")}},
		},
		Rules: rules,
	})
	require.NoError(t, err)

	// The child holds its own geo value, so only the root mutates
	assert.Equal(t, []uuid.UUID{root.ID}, result.Updated)

	persisted, err := f.env.Strings.GetByID(context.Background(), f.workspace, child.ID)
	require.NoError(t, err)
	assert.Equal(t, "FR-Social", persisted.Value)
	assert.Equal(t, 1, persisted.Version)
}

func TestExecuteNoChanges(t *testing.T) {
	f := newFixture()
	exec := f.newExecutor()

	_, err := exec.Execute(context.Background(), &engine.ExecuteRequest{
		WorkspaceID: f.workspace,
		Actor:       "alice",
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrValidation, models.Classify(err))
}

func TestExecuteClearsInFlightGuard(t *testing.T) {
	f := newFixture()
	exec := f.newExecutor()
	root := f.addString(nil, "US", "Awareness")

	_, err := exec.Execute(context.Background(), &engine.ExecuteRequest{
		WorkspaceID: f.workspace,
		Actor:       "alice",
		Changes: []engine.RootChange{
			{StringID: root.ID, Changes: []engine.Change{f.geoChange("US", "EMEA")}},
		},
	})
	require.NoError(t, err)
	assert.False(t, exec.InFlight(root.ID))
}

func TestRegenerateRerendersFromCurrentSlots(t *testing.T) {
	f := newFixture()
	exec := f.newExecutor()
	root := f.addString(nil, "US", "Awareness")
	batchID := uuid.New()

	require.NoError(t, exec.Regenerate(context.Background(), f.workspace, root.ID, "admin", batchID))

	persisted, err := f.env.Strings.GetByID(context.Background(), f.workspace, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "US-Awareness", persisted.Value)
	assert.Equal(t, 2, persisted.Version)

	entry, err := f.env.Audits.Latest(context.Background(), root.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeTypeDirect, entry.ChangeType)
	require.NotNil(t, entry.BatchID)
	assert.Equal(t, batchID, *entry.BatchID)
}

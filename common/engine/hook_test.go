package engine_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/engine/enginetest"
	"github.com/convexa/nameforge/common/models"
)

type fakeEnqueuer struct {
	payloads [][]byte
}

func (f *fakeEnqueuer) EnqueueJob(_ context.Context, payload []byte) error {
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fixture) newHook(enq engine.JobEnqueuer) *engine.SlotWriteHook {
	return engine.NewSlotWriteHook(
		f.env.Strings,
		f.newAnalyzer(),
		f.newExecutor(),
		f.env.Jobs,
		enq,
		enginetest.NopLogger{},
	)
}

// geoSwap returns the before snapshot and mutated state of a string's
// geo slot, as the persistence layer would hand them to the hook
func (f *fixture) geoSwap(t *testing.T, str *models.NameString, newDisplay string) (*models.Slot, *models.Slot) {
	t.Helper()
	slots, err := f.env.Slots.ListByString(context.Background(), str.ID)
	require.NoError(t, err)
	for _, slot := range slots {
		if slot.DimensionName != "geo" {
			continue
		}
		before := *slot
		newID := uuid.New()
		name := newDisplay
		slot.DimensionValueID = &newID
		slot.DimensionValueName = &name
		require.NoError(t, f.env.Slots.Update(context.Background(), slot))
		return &before, slot
	}
	t.Fatalf("string %s has no geo slot", str.ID)
	return nil, nil
}

func TestSlotHookExecutesSynchronously(t *testing.T) {
	f := newFixture()
	root := f.addString(nil, "US", "Awareness")
	child := f.addString(root, "US", "Social")

	enq := &fakeEnqueuer{}
	hook := f.newHook(enq)

	before, after := f.geoSwap(t, root, "EMEA")
	err := hook.OnSlotWritten(context.Background(), f.workspace, "alice", before, after, nil)
	require.NoError(t, err)

	got, err := f.env.Strings.GetByID(context.Background(), f.workspace, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "EMEA-Awareness", got.Value)

	kid, err := f.env.Strings.GetByID(context.Background(), f.workspace, child.ID)
	require.NoError(t, err)
	assert.Equal(t, "EMEA-Social", kid.Value)

	assert.Empty(t, enq.payloads, "small impact set must not be queued")
}

func TestSlotHookIgnoresNoopWrites(t *testing.T) {
	f := newFixture()
	root := f.addString(nil, "US", "Awareness")

	enq := &fakeEnqueuer{}
	hook := f.newHook(enq)

	slots, err := f.env.Slots.ListByString(context.Background(), root.ID)
	require.NoError(t, err)
	same := *slots[0]

	err = hook.OnSlotWritten(context.Background(), f.workspace, "alice", &same, slots[0], nil)
	require.NoError(t, err)

	got, err := f.env.Strings.GetByID(context.Background(), f.workspace, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Empty(t, enq.payloads)
}

func TestSlotHookQueuesLargeImpactSets(t *testing.T) {
	f := newFixture()
	f.cfg.BackgroundThreshold = 1

	root := f.addString(nil, "US", "Awareness")
	f.addString(root, "US", "Social")
	f.addString(root, "US", "Display")

	enq := &fakeEnqueuer{}
	hook := f.newHook(enq)

	before, after := f.geoSwap(t, root, "EMEA")
	err := hook.OnSlotWritten(context.Background(), f.workspace, "alice", before, after, nil)
	require.NoError(t, err)

	require.Len(t, enq.payloads, 1)

	var queued engine.QueuedJob
	require.NoError(t, json.Unmarshal(enq.payloads[0], &queued))
	assert.Equal(t, f.workspace, queued.WorkspaceID)
	assert.Equal(t, "alice", queued.Actor)
	require.Len(t, queued.Items, 1)
	assert.Equal(t, root.ID, queued.Items[0].StringID)

	// The durable job record exists in pending state
	job, err := f.env.Jobs.GetByID(context.Background(), queued.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, models.MethodBackground, job.ProcessingMethod)

	// No value changed yet; the worker owns execution
	got, err := f.env.Strings.GetByID(context.Background(), f.workspace, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "US-Awareness", got.Value)
}

func TestSlotHookRejectsMissingAfterState(t *testing.T) {
	f := newFixture()
	hook := f.newHook(&fakeEnqueuer{})

	err := hook.OnSlotWritten(context.Background(), f.workspace, "alice", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, models.ErrValidation, models.Classify(err))
}

package engine_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/models"
)

func TestDetectSelfParentCycle(t *testing.T) {
	f := newFixture()
	str := f.addString(nil, "US", "Awareness")

	conflicts, err := f.newDetector().Detect(context.Background(), f.workspace, []models.ProposedUpdate{
		{StringID: str.ID, NewParentID: uuidPtr(str.ID), Actor: "alice"},
	})
	require.NoError(t, err)

	circular := filterConflicts(conflicts, models.ConflictCircular)
	require.Len(t, circular, 1, "a self-parent proposal is exactly one cycle finding")
	assert.Equal(t, str.ID, circular[0].StringID)
	assert.Equal(t, models.SeverityCritical, circular[0].Severity)

	// Detection never mutates
	persisted, err := f.env.Strings.GetByID(context.Background(), f.workspace, str.ID)
	require.NoError(t, err)
	assert.Nil(t, persisted.ParentID)
	assert.Equal(t, 1, persisted.Version)
}

func TestDetectCrossParentCycle(t *testing.T) {
	f := newFixture()
	a := f.addString(nil, "US", "A")
	b := f.addString(a, "US", "B")

	// b is already a child of a; proposing a under b closes the loop
	conflicts, err := f.newDetector().Detect(context.Background(), f.workspace, []models.ProposedUpdate{
		{StringID: a.ID, NewParentID: uuidPtr(b.ID), Actor: "alice"},
	})
	require.NoError(t, err)

	circular := filterConflicts(conflicts, models.ConflictCircular)
	require.Len(t, circular, 2, "every id in the chain is reported")
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, []uuid.UUID{circular[0].StringID, circular[1].StringID})
}

func TestDetectStaleVersion(t *testing.T) {
	f := newFixture()
	str := f.addString(nil, "US", "Awareness")
	str.Version = 4

	conflicts, err := f.newDetector().Detect(context.Background(), f.workspace, []models.ProposedUpdate{
		{StringID: str.ID, BaseVersion: 2, Actor: "alice"},
	})
	require.NoError(t, err)

	edits := filterConflicts(conflicts, models.ConflictConcurrentEdit)
	require.Len(t, edits, 1)
	assert.Equal(t, models.SeverityCritical, edits[0].Severity)
	assert.Equal(t, "4", edits[0].Current)
	assert.Equal(t, "2", edits[0].Proposed)
}

func TestDetectRecentEditByAnotherActor(t *testing.T) {
	f := newFixture()
	str := f.addString(nil, "US", "Awareness")

	require.NoError(t, f.env.Audits.Append(context.Background(), &models.AuditEntry{
		ID:        uuid.New(),
		StringID:  str.ID,
		Version:   1,
		Actor:     "bob",
		CreatedAt: time.Now().Add(-5 * time.Second),
	}))

	conflicts, err := f.newDetector().Detect(context.Background(), f.workspace, []models.ProposedUpdate{
		{StringID: str.ID, BaseVersion: 1, Actor: "alice"},
	})
	require.NoError(t, err)

	edits := filterConflicts(conflicts, models.ConflictConcurrentEdit)
	require.Len(t, edits, 1)
	assert.Equal(t, models.SeverityWarning, edits[0].Severity)
	assert.Contains(t, edits[0].Message, "bob")
}

func TestDetectOldEditByAnotherActorIsQuiet(t *testing.T) {
	f := newFixture()
	str := f.addString(nil, "US", "Awareness")

	require.NoError(t, f.env.Audits.Append(context.Background(), &models.AuditEntry{
		ID:        uuid.New(),
		StringID:  str.ID,
		Version:   1,
		Actor:     "bob",
		CreatedAt: time.Now().Add(-time.Hour),
	}))

	conflicts, err := f.newDetector().Detect(context.Background(), f.workspace, []models.ProposedUpdate{
		{StringID: str.ID, BaseVersion: 1, Actor: "alice"},
	})
	require.NoError(t, err)
	assert.Empty(t, filterConflicts(conflicts, models.ConflictConcurrentEdit))
}

func TestDetectValidationFailures(t *testing.T) {
	f := newFixture()
	str := f.addString(nil, "US", "Awareness")

	conflicts, err := f.newDetector().Detect(context.Background(), f.workspace, []models.ProposedUpdate{
		{StringID: str.ID, NewValue: strPtr(""), Actor: "alice"},
		{StringID: str.ID, NewValue: strPtr(strings.Repeat("x", 300)), Actor: "alice"},
	})
	require.NoError(t, err)

	validation := filterConflicts(conflicts, models.ConflictValidation)
	require.Len(t, validation, 2)
	for _, c := range validation {
		assert.Equal(t, models.SeverityCritical, c.Severity)
	}
}

func TestDetectMissingString(t *testing.T) {
	f := newFixture()

	conflicts, err := f.newDetector().Detect(context.Background(), f.workspace, []models.ProposedUpdate{
		{StringID: uuid.New(), Actor: "alice"},
	})
	require.NoError(t, err)

	validation := filterConflicts(conflicts, models.ConflictValidation)
	require.Len(t, validation, 1)
	assert.Equal(t, models.SeverityCritical, validation[0].Severity)
}

func TestDetectInheritedFieldOverride(t *testing.T) {
	f := newFixture()
	str := f.addString(nil, "US", "Awareness")
	key := models.FieldFreetext + "_purpose"
	str.GenerationMetadata = models.GenerationMetadata{
		key: {Inherited: true},
	}

	conflicts, err := f.newDetector().Detect(context.Background(), f.workspace, []models.ProposedUpdate{
		{StringID: str.ID, FieldValues: map[string]string{key: "Local"}, Actor: "alice"},
	})
	require.NoError(t, err)

	inheritance := filterConflicts(conflicts, models.ConflictInheritance)
	require.Len(t, inheritance, 1)
	assert.Equal(t, models.SeverityWarning, inheritance[0].Severity)
	assert.Equal(t, key, inheritance[0].Field)
}

func TestDetectInheritedFieldOverrideAfterPropagation(t *testing.T) {
	f := newFixture()
	root := f.addString(nil, "US", "Awareness")
	child := f.addString(root, "US", "Social")

	_, err := f.newExecutor().Execute(context.Background(), &engine.ExecuteRequest{
		WorkspaceID: f.workspace,
		Actor:       "alice",
		Changes: []engine.RootChange{
			{StringID: root.ID, Changes: []engine.Change{f.geoChange("US", "EMEA")}},
		},
	})
	require.NoError(t, err)

	key := models.FieldDimensionValue + "_geo"
	persisted, err := f.env.Strings.GetByID(context.Background(), f.workspace, child.ID)
	require.NoError(t, err)
	require.True(t, persisted.IsInherited(key), "propagated geo value carries inherited provenance")

	conflicts, err := f.newDetector().Detect(context.Background(), f.workspace, []models.ProposedUpdate{
		{StringID: child.ID, BaseVersion: persisted.Version, FieldValues: map[string]string{key: uuid.New().String()}, Actor: "bob"},
	})
	require.NoError(t, err)

	inheritance := filterConflicts(conflicts, models.ConflictInheritance)
	require.Len(t, inheritance, 1, "a local edit of a propagated field is flagged")
	assert.Equal(t, child.ID, inheritance[0].StringID)
	assert.Equal(t, key, inheritance[0].Field)
	assert.Equal(t, models.SeverityWarning, inheritance[0].Severity)
}

func TestDetectOrphanedChildren(t *testing.T) {
	f := newFixture()
	grand := f.addString(nil, "US", "Grand")
	parent := f.addString(grand, "US", "Parent")
	child := f.addString(parent, "US", "Child")
	child.GenerationMetadata = models.GenerationMetadata{
		"dimension_value_geo": {Inherited: true, SourceID: uuidPtr(parent.ID)},
	}

	conflicts, err := f.newDetector().Detect(context.Background(), f.workspace, []models.ProposedUpdate{
		{StringID: parent.ID, NewParentID: uuidPtr(uuid.Nil), Actor: "alice"},
	})
	require.NoError(t, err)

	orphans := filterConflicts(conflicts, models.ConflictOrphanedChildren)
	require.Len(t, orphans, 1)
	assert.Equal(t, models.SeverityWarning, orphans[0].Severity)
	assert.Equal(t, []uuid.UUID{child.ID}, orphans[0].RelatedIDs)
}

func TestDetectDuplicateTargetsInBatch(t *testing.T) {
	f := newFixture()
	a := f.addString(nil, "US", "A")
	b := f.addString(nil, "US", "B")

	conflicts, err := f.newDetector().Detect(context.Background(), f.workspace, []models.ProposedUpdate{
		{StringID: a.ID, NewValue: strPtr("EMEA-Launch"), Actor: "alice"},
		{StringID: b.ID, NewValue: strPtr("EMEA-Launch"), Actor: "alice"},
	})
	require.NoError(t, err)

	dupes := filterConflicts(conflicts, models.ConflictDuplicateValue)
	require.Len(t, dupes, 2, "both claimants are flagged")
	for _, c := range dupes {
		assert.Equal(t, models.SeverityCritical, c.Severity)
		assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, c.RelatedIDs)
	}
}

func TestDetectCleanUpdateHasNoFindings(t *testing.T) {
	f := newFixture()
	str := f.addString(nil, "US", "Awareness")

	conflicts, err := f.newDetector().Detect(context.Background(), f.workspace, []models.ProposedUpdate{
		{StringID: str.ID, BaseVersion: 1, NewValue: strPtr("EMEA-Awareness"), Actor: "alice"},
	})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func filterConflicts(conflicts []models.Conflict, kind models.ConflictType) []models.Conflict {
	var out []models.Conflict
	for _, c := range conflicts {
		if c.Type == kind {
			out = append(out, c)
		}
	}
	return out
}

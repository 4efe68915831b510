package engine_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/models"
)

func TestAnalyzeWalksTreePreOrder(t *testing.T) {
	f := newFixture()
	root := f.addString(nil, "US", "Awareness")
	child := f.addString(root, "US", "Social")
	grandchild := f.addString(child, "US", "Paid")

	report, err := f.newAnalyzer().Analyze(context.Background(), f.workspace, root, []engine.Change{f.geoChange("US", "EMEA")}, engine.AnalyzeOptions{})
	require.NoError(t, err)

	require.Len(t, report.Affected, 3)
	assert.Equal(t, root.ID, report.Affected[0].StringID)
	assert.Equal(t, 0, report.Affected[0].Level)
	assert.Equal(t, models.ChangeTypeDirect, report.Affected[0].ChangeType)
	assert.Equal(t, []uuid.UUID{child.ID}, report.Affected[0].ChildIDs)

	assert.Equal(t, child.ID, report.Affected[1].StringID)
	assert.Equal(t, 1, report.Affected[1].Level)
	assert.Equal(t, models.ChangeTypeInheritance, report.Affected[1].ChangeType)

	assert.Equal(t, grandchild.ID, report.Affected[2].StringID)
	assert.Equal(t, 2, report.Affected[2].Level)

	assert.Equal(t, 3, report.AffectedCount)
	assert.False(t, report.BackgroundRequired)
	assert.False(t, report.MaxDepthReached)
}

func TestAnalyzeProjectsValuesWithoutMutating(t *testing.T) {
	f := newFixture()
	root := f.addString(nil, "US", "Awareness")

	report, err := f.newAnalyzer().Analyze(context.Background(), f.workspace, root, []engine.Change{f.geoChange("US", "EMEA")}, engine.AnalyzeOptions{})
	require.NoError(t, err)

	require.Len(t, report.Affected, 1)
	assert.Equal(t, "US-Awareness", report.Affected[0].CurrentValue)
	assert.Equal(t, "EMEA-Awareness", report.Affected[0].ProjectedValue)

	persisted, err := f.env.Strings.GetByID(context.Background(), f.workspace, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "US-Awareness", persisted.Value)
	assert.Equal(t, 1, persisted.Version)
}

func TestAnalyzeStopsAtMaxDepth(t *testing.T) {
	f := newFixture()
	root := f.addString(nil, "US", "Root")
	f.addChain(root, 8)

	report, err := f.newAnalyzer().Analyze(context.Background(), f.workspace, root, []engine.Change{f.geoChange("US", "EMEA")}, engine.AnalyzeOptions{MaxDepth: 5})
	require.NoError(t, err)

	assert.True(t, report.MaxDepthReached)
	assert.Len(t, report.Affected, 5)
	for _, node := range report.Affected {
		assert.Less(t, node.Level, 5)
	}
}

func TestAnalyzeCycleGuardTerminates(t *testing.T) {
	f := newFixture()
	a := f.addString(nil, "US", "A")
	b := f.addString(a, "US", "B")

	// Corrupt the tree into a cycle: a's parent becomes b
	a.ParentID = &b.ID

	report, err := f.newAnalyzer().Analyze(context.Background(), f.workspace, a, []engine.Change{f.geoChange("US", "EMEA")}, engine.AnalyzeOptions{})
	require.NoError(t, err)

	// Each node visited exactly once
	assert.Len(t, report.Affected, 2)
}

func TestAnalyzeFlagsBackgroundForLargeTrees(t *testing.T) {
	f := newFixture()
	root := f.addString(nil, "US", "Root")
	for i := 0; i < 120; i++ {
		f.addString(root, "US", fmt.Sprintf("Child%d", i))
	}

	report, err := f.newAnalyzer().Analyze(context.Background(), f.workspace, root, []engine.Change{f.geoChange("US", "EMEA")}, engine.AnalyzeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 121, report.AffectedCount)
	assert.True(t, report.BackgroundRequired)
	assert.Positive(t, report.EstimatedDuration)

	// 120 direct children also trips the many_children escalation
	var critical bool
	for _, w := range report.Warnings {
		if w.Type == "many_children" && w.Severity == models.SeverityCritical {
			critical = true
		}
	}
	assert.True(t, critical)
}

func TestAnalyzeReportsDuplicateValueConflict(t *testing.T) {
	f := newFixture()
	root := f.addString(nil, "US", "Awareness")
	holder := f.addString(nil, "EMEA", "Awareness")

	report, err := f.newAnalyzer().Analyze(context.Background(), f.workspace, root, []engine.Change{f.geoChange("US", "EMEA")}, engine.AnalyzeOptions{})
	require.NoError(t, err)

	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, models.ConflictDuplicateValue, report.Conflicts[0].Type)
	assert.Equal(t, models.SeverityWarning, report.Conflicts[0].Severity)
	assert.Equal(t, []uuid.UUID{holder.ID}, report.Conflicts[0].RelatedIDs)
}

func TestAnalyzeHonorsInheritanceRules(t *testing.T) {
	f := newFixture()
	root := f.addString(nil, "US", "Awareness")
	f.addString(root, "US", "Social")

	rules := &engine.RuleSet{Default: engine.InheritNever}
	report, err := f.newAnalyzer().Analyze(context.Background(), f.workspace, root, []engine.Change{f.geoChange("US", "EMEA")}, engine.AnalyzeOptions{Rules: rules})
	require.NoError(t, err)

	// Root is always affected directly; the child receives nothing
	assert.Len(t, report.Affected, 1)
}

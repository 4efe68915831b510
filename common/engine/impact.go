package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/convexa/nameforge/common/config"
	"github.com/convexa/nameforge/common/models"
)

// ImpactNode describes one string the proposed changes would touch
type ImpactNode struct {
	StringID uuid.UUID `json:"string_id"`

	// 0 = root (direct change), >0 = inherited at that depth
	Level int `json:"level"`

	ChangeType models.ChangeType `json:"change_type"`

	CurrentValue   string `json:"current_value"`
	ProjectedValue string `json:"projected_value"`

	// Changes this node would receive
	Changes []Change `json:"changes"`

	// Direct children reached from this node, for traceability
	ChildIDs []uuid.UUID `json:"child_ids,omitempty"`
}

// Report is the analyzer's dry-run result. All findings are data; the
// analyzer never raises for conflicts it discovers.
type Report struct {
	Affected        []ImpactNode      `json:"affected"`
	Warnings        []models.Warning  `json:"warnings"`
	Conflicts       []models.Conflict `json:"conflicts"`
	MaxDepthReached bool              `json:"max_depth_reached"`

	// Cost estimate feeding the sync-vs-background decision
	AffectedCount      int           `json:"affected_count"`
	EstimatedDuration  time.Duration `json:"estimated_duration"`
	BackgroundRequired bool          `json:"background_required"`
}

// AnalyzeOptions bounds one analysis walk
type AnalyzeOptions struct {
	MaxDepth int
	Rules    *RuleSet
}

// Analyzer computes the full impact set of proposed slot changes without
// mutating any persisted state. Safe to call repeatedly.
type Analyzer struct {
	strings   StringStore
	slots     SlotStore
	templates TemplateStore
	eval      *ConditionEvaluator
	cfg       config.EngineConfig
	log       Logger
}

// NewAnalyzer creates an impact analyzer
func NewAnalyzer(strings StringStore, slots SlotStore, templates TemplateStore, cfg config.EngineConfig, log Logger) *Analyzer {
	return &Analyzer{
		strings:   strings,
		slots:     slots,
		templates: templates,
		eval:      NewConditionEvaluator(),
		cfg:       cfg,
		log:       log,
	}
}

// Analyze walks the inheritance tree from root, pre-order, bounded by
// maxDepth and a visited-set, and reports every descendant the changes
// would reach
func (a *Analyzer) Analyze(ctx context.Context, workspaceID uuid.UUID, root *models.NameString, changes []Change, opts AnalyzeOptions) (*Report, error) {
	if root == nil {
		return nil, models.NewEngineError(models.ErrValidation, "root string is required", nil)
	}

	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = a.cfg.MaxDepth
	}
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRuleSet()
	}

	report := &Report{}
	visited := map[uuid.UUID]bool{}

	maxLevel, err := a.visit(ctx, workspaceID, root, changes, 0, maxDepth, visited, rules, models.ChangeTypeDirect, report)
	if err != nil {
		return nil, err
	}

	report.AffectedCount = len(report.Affected)
	report.EstimatedDuration = a.estimate(report.AffectedCount, maxLevel)
	report.BackgroundRequired = report.AffectedCount > a.cfg.BackgroundThreshold

	a.log.Debug("impact analysis complete",
		"root_id", root.ID,
		"affected", report.AffectedCount,
		"conflicts", len(report.Conflicts),
		"warnings", len(report.Warnings),
		"max_depth_reached", report.MaxDepthReached)

	return report, nil
}

// visit processes one node and recurses into its children. The visited
// set is copied per child branch so sibling subtrees cannot poison each
// other's cycle detection. Returns the deepest level reached.
func (a *Analyzer) visit(
	ctx context.Context,
	workspaceID uuid.UUID,
	node *models.NameString,
	changes []Change,
	depth, maxDepth int,
	visited map[uuid.UUID]bool,
	rules *RuleSet,
	changeType models.ChangeType,
	report *Report,
) (int, error) {
	// Cycle guard
	if visited[node.ID] {
		return depth - 1, nil
	}
	// Depth bound
	if depth >= maxDepth {
		report.MaxDepthReached = true
		return depth - 1, nil
	}
	visited[node.ID] = true

	projected, err := a.project(ctx, node, changes)
	if err != nil {
		return depth, err
	}

	// Pre-order: record the node before its descendants; child links are
	// patched in place once children are known
	idx := len(report.Affected)
	report.Affected = append(report.Affected, ImpactNode{
		StringID:       node.ID,
		Level:          depth,
		ChangeType:     changeType,
		CurrentValue:   node.Value,
		ProjectedValue: projected,
		Changes:        changes,
	})

	// Duplicate-value probe: non-fatal, surfaced to the caller
	if projected != node.Value {
		holder, err := a.strings.FindByValue(ctx, workspaceID, node.RuleID, node.LevelID, projected, node.ID)
		if err != nil && err != ErrNotFound {
			return depth, fmt.Errorf("failed to probe duplicate value: %w", err)
		}
		if holder != nil {
			report.Conflicts = append(report.Conflicts, models.Conflict{
				Type:       models.ConflictDuplicateValue,
				StringID:   node.ID,
				Message:    fmt.Sprintf("value %q already held by %s", projected, holder.ID),
				Proposed:   projected,
				Severity:   models.SeverityWarning,
				RelatedIDs: []uuid.UUID{holder.ID},
			})
		}
	}

	children, err := a.strings.ListChildren(ctx, workspaceID, node.ID)
	if err != nil {
		return depth, fmt.Errorf("failed to list children: %w", err)
	}

	a.warnOnShape(node, len(children), depth, report)

	maxLevel := depth
	for _, child := range children {
		report.Affected[idx].ChildIDs = append(report.Affected[idx].ChildIDs, child.ID)

		childSlots, err := a.slots.ListByString(ctx, child.ID)
		if err != nil {
			return depth, fmt.Errorf("failed to load child slots: %w", err)
		}

		inherited, err := rules.InheritedSubset(child, childSlots, changes, a.eval)
		if err != nil {
			return depth, err
		}
		if len(inherited) == 0 {
			continue
		}

		// Copy, not share: siblings keep independent visited state
		branchVisited := make(map[uuid.UUID]bool, len(visited))
		for id := range visited {
			branchVisited[id] = true
		}

		level, err := a.visit(ctx, workspaceID, child, inherited, depth+1, maxDepth, branchVisited, rules, models.ChangeTypeInheritance, report)
		if err != nil {
			return depth, err
		}
		if level > maxLevel {
			maxLevel = level
		}
	}

	return maxLevel, nil
}

func (a *Analyzer) project(ctx context.Context, node *models.NameString, changes []Change) (string, error) {
	slots, err := a.slots.ListByString(ctx, node.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load slots: %w", err)
	}

	tmpl, err := a.templates.GetByLevel(ctx, node.RuleID, node.LevelID)
	if err != nil {
		return "", fmt.Errorf("failed to load template: %w", err)
	}

	return ProjectValue(tmpl, slots, changes)
}

func (a *Analyzer) warnOnShape(node *models.NameString, childCount, depth int, report *Report) {
	if childCount > a.cfg.ChildWarnThreshold {
		severity := models.SeverityWarning
		if childCount > a.cfg.ChildCriticalThreshold {
			severity = models.SeverityCritical
		}
		report.Warnings = append(report.Warnings, models.Warning{
			Type:     "many_children",
			StringID: node.ID,
			Message:  fmt.Sprintf("string has %d direct children", childCount),
			Severity: severity,
		})
	}

	if depth > a.cfg.DepthWarnThreshold {
		report.Warnings = append(report.Warnings, models.Warning{
			Type:     "deep_inheritance",
			StringID: node.ID,
			Message:  fmt.Sprintf("inheritance depth %d exceeds soft limit %d", depth, a.cfg.DepthWarnThreshold),
			Severity: models.SeverityWarning,
		})
	}
}

// estimate computes processing time as
// count * base_time_per_item * (1 + depth * depth_multiplier)
func (a *Analyzer) estimate(count, depth int) time.Duration {
	base := a.cfg.BaseTimePerItem
	if base == 0 {
		base = 50 * time.Millisecond
	}
	factor := 1 + float64(depth)*a.cfg.DepthMultiplier
	return time.Duration(float64(count) * float64(base) * factor)
}

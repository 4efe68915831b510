package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/convexa/nameforge/common/config"
	"github.com/convexa/nameforge/common/models"
)

// Detector classifies conflicts among proposed updates. Findings are
// data: Detect always returns a list (possibly empty) and fails only on
// store errors, never on the conflicts themselves.
type Detector struct {
	strings StringStore
	audits  AuditStore
	cfg     config.EngineConfig
	log     Logger

	// Injectable clock for concurrent-edit window tests
	now func() time.Time
}

// NewDetector creates a conflict detector
func NewDetector(strings StringStore, audits AuditStore, cfg config.EngineConfig, log Logger) *Detector {
	return &Detector{
		strings: strings,
		audits:  audits,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// Detect runs per-update and cross-batch checks over proposed updates
func (d *Detector) Detect(ctx context.Context, workspaceID uuid.UUID, updates []models.ProposedUpdate) ([]models.Conflict, error) {
	conflicts := make([]models.Conflict, 0)

	current := make(map[uuid.UUID]*models.NameString, len(updates))
	for _, update := range updates {
		str, err := d.strings.GetByID(ctx, workspaceID, update.StringID)
		if err == ErrNotFound {
			conflicts = append(conflicts, models.Conflict{
				Type:     models.ConflictValidation,
				StringID: update.StringID,
				Message:  "string does not exist in workspace",
				Severity: models.SeverityCritical,
			})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load string %s: %w", update.StringID, err)
		}
		current[update.StringID] = str

		conflicts = append(conflicts, d.checkConcurrentEdit(ctx, update, str)...)
		conflicts = append(conflicts, d.checkInheritedFields(update, str)...)
		conflicts = append(conflicts, d.checkValidation(update)...)

		orphans, err := d.checkOrphaning(ctx, workspaceID, update, str)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, orphans...)
	}

	conflicts = append(conflicts, d.checkDuplicateTargets(updates)...)

	circular, err := d.checkCircular(ctx, workspaceID, updates, current)
	if err != nil {
		return nil, err
	}
	conflicts = append(conflicts, circular...)

	return conflicts, nil
}

// checkConcurrentEdit flags stale optimistic tokens and recent
// modifications by a different actor
func (d *Detector) checkConcurrentEdit(ctx context.Context, update models.ProposedUpdate, str *models.NameString) []models.Conflict {
	var conflicts []models.Conflict

	if update.BaseVersion > 0 && update.BaseVersion != str.Version {
		conflicts = append(conflicts, models.Conflict{
			Type:     models.ConflictConcurrentEdit,
			StringID: str.ID,
			Message:  fmt.Sprintf("claimed version %d, persisted version %d", update.BaseVersion, str.Version),
			Current:  fmt.Sprintf("%d", str.Version),
			Proposed: fmt.Sprintf("%d", update.BaseVersion),
			Severity: models.SeverityCritical,
		})
		return conflicts
	}

	latest, err := d.audits.Latest(ctx, str.ID)
	if err != nil || latest == nil {
		// No history; nothing recent to compare against
		return conflicts
	}

	window := d.cfg.ConcurrentEditWindow
	if window == 0 {
		window = 30 * time.Second
	}
	if latest.Actor != "" && latest.Actor != update.Actor && d.now().Sub(latest.CreatedAt) < window {
		conflicts = append(conflicts, models.Conflict{
			Type:     models.ConflictConcurrentEdit,
			StringID: str.ID,
			Message:  fmt.Sprintf("modified by %s %s ago", latest.Actor, d.now().Sub(latest.CreatedAt).Round(time.Millisecond)),
			Severity: models.SeverityWarning,
		})
	}

	return conflicts
}

// checkInheritedFields flags locally editing a field that is currently
// inherited from the parent. FieldValues keys are dimension-qualified
// ("{field}_{dimension_name}"), the same form generation metadata
// records provenance under. Flagged, not blocked.
func (d *Detector) checkInheritedFields(update models.ProposedUpdate, str *models.NameString) []models.Conflict {
	var conflicts []models.Conflict
	for field := range update.FieldValues {
		if str.IsInherited(field) {
			conflicts = append(conflicts, models.Conflict{
				Type:     models.ConflictInheritance,
				StringID: str.ID,
				Field:    field,
				Message:  fmt.Sprintf("field %q is inherited from parent; local edit overrides it", field),
				Severity: models.SeverityWarning,
			})
		}
	}
	return conflicts
}

// checkValidation enforces basic type/length constraints on proposed values
func (d *Detector) checkValidation(update models.ProposedUpdate) []models.Conflict {
	var conflicts []models.Conflict

	maxLen := d.cfg.MaxValueLength
	if maxLen == 0 {
		maxLen = 255
	}

	if update.NewValue != nil {
		if *update.NewValue == "" {
			conflicts = append(conflicts, models.Conflict{
				Type:     models.ConflictValidation,
				StringID: update.StringID,
				Message:  "proposed value is empty",
				Severity: models.SeverityCritical,
			})
		} else if len(*update.NewValue) > maxLen {
			conflicts = append(conflicts, models.Conflict{
				Type:     models.ConflictValidation,
				StringID: update.StringID,
				Message:  fmt.Sprintf("proposed value exceeds %d characters", maxLen),
				Proposed: *update.NewValue,
				Severity: models.SeverityCritical,
			})
		}
	}

	for field, value := range update.FieldValues {
		if len(value) > maxLen {
			conflicts = append(conflicts, models.Conflict{
				Type:     models.ConflictValidation,
				StringID: update.StringID,
				Field:    field,
				Message:  fmt.Sprintf("proposed %s exceeds %d characters", field, maxLen),
				Severity: models.SeverityCritical,
			})
		}
	}

	return conflicts
}

// checkOrphaning flags parent-link removals that would strand children
// depending on inherited data
func (d *Detector) checkOrphaning(ctx context.Context, workspaceID uuid.UUID, update models.ProposedUpdate, str *models.NameString) ([]models.Conflict, error) {
	// Only a removal (explicit nil-uuid) can orphan
	if update.NewParentID == nil || *update.NewParentID != uuid.Nil || !str.HasParent() {
		return nil, nil
	}

	children, err := d.strings.ListChildren(ctx, workspaceID, str.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", str.ID, err)
	}

	var dependent []uuid.UUID
	for _, child := range children {
		for _, origin := range child.GenerationMetadata {
			if origin.Inherited {
				dependent = append(dependent, child.ID)
				break
			}
		}
	}

	if len(dependent) == 0 {
		return nil, nil
	}

	return []models.Conflict{{
		Type:       models.ConflictOrphanedChildren,
		StringID:   str.ID,
		Message:    fmt.Sprintf("%d children depend on inherited data", len(dependent)),
		Severity:   models.SeverityWarning,
		RelatedIDs: dependent,
	}}, nil
}

// checkDuplicateTargets flags identical proposed values within one batch
func (d *Detector) checkDuplicateTargets(updates []models.ProposedUpdate) []models.Conflict {
	var conflicts []models.Conflict

	seen := make(map[string][]uuid.UUID)
	for _, update := range updates {
		if update.NewValue == nil || *update.NewValue == "" {
			continue
		}
		seen[*update.NewValue] = append(seen[*update.NewValue], update.StringID)
	}

	for value, ids := range seen {
		if len(ids) < 2 {
			continue
		}
		for _, id := range ids {
			conflicts = append(conflicts, models.Conflict{
				Type:       models.ConflictDuplicateValue,
				StringID:   id,
				Message:    fmt.Sprintf("value %q proposed for %d strings in this batch", value, len(ids)),
				Proposed:   value,
				Severity:   models.SeverityCritical,
				RelatedIDs: ids,
			})
		}
	}

	return conflicts
}

// checkCircular builds the directed graph of proposed entity->new_parent
// edges and walks each updated node's ancestor chain, bounded by the
// configured depth and a visited-set. A cycle is reported against every
// id in the affected chain.
func (d *Detector) checkCircular(ctx context.Context, workspaceID uuid.UUID, updates []models.ProposedUpdate, current map[uuid.UUID]*models.NameString) ([]models.Conflict, error) {
	proposed := make(map[uuid.UUID]uuid.UUID)
	for _, update := range updates {
		if update.NewParentID != nil && *update.NewParentID != uuid.Nil {
			proposed[update.StringID] = *update.NewParentID
		}
	}
	if len(proposed) == 0 {
		return nil, nil
	}

	maxDepth := d.cfg.MaxDepth
	if maxDepth == 0 {
		maxDepth = 10
	}

	var conflicts []models.Conflict
	flagged := make(map[uuid.UUID]bool)

	for start := range proposed {
		if flagged[start] {
			continue
		}

		chain := []uuid.UUID{start}
		visited := map[uuid.UUID]bool{start: true}
		node := start

		for step := 0; step < maxDepth*2; step++ {
			parent, ok := proposed[node]
			if !ok {
				// Fall back to the persisted parent link
				str := current[node]
				if str == nil {
					loaded, err := d.strings.GetByID(ctx, workspaceID, node)
					if err == ErrNotFound {
						break
					}
					if err != nil {
						return nil, fmt.Errorf("failed to walk ancestors of %s: %w", start, err)
					}
					str = loaded
					current[node] = loaded
				}
				if str.ParentID == nil {
					break
				}
				parent = *str.ParentID
			}

			if visited[parent] {
				// Cycle closed; report against every id in the chain
				cycle := chainFrom(chain, parent)
				for _, id := range cycle {
					flagged[id] = true
					conflicts = append(conflicts, models.Conflict{
						Type:       models.ConflictCircular,
						StringID:   id,
						Message:    "proposed parent assignment closes an inheritance cycle",
						Severity:   models.SeverityCritical,
						RelatedIDs: cycle,
					})
				}
				break
			}

			visited[parent] = true
			chain = append(chain, parent)
			node = parent
		}
	}

	return conflicts, nil
}

// chainFrom returns the cycle portion of a walk chain starting at entry
func chainFrom(chain []uuid.UUID, entry uuid.UUID) []uuid.UUID {
	for i, id := range chain {
		if id == entry {
			return append([]uuid.UUID{}, chain[i:]...)
		}
	}
	return chain
}

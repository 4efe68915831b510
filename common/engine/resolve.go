package engine

import (
	"fmt"

	"github.com/convexa/nameforge/common/models"
)

// Resolution is the outcome of applying a strategy to one conflict
type Resolution struct {
	Strategy models.ResolutionStrategy `json:"strategy"`
	// Whether any write should happen at all
	Apply bool `json:"apply"`
	// The value to write when Apply is true
	Value string `json:"value,omitempty"`
}

// Resolve applies one strategy to one conflict. merged must be supplied
// for the merge strategy and is rejected otherwise-nil.
func Resolve(strategy models.ResolutionStrategy, proposed, persisted string, merged *string) (Resolution, error) {
	switch strategy {
	case models.ResolveSkip:
		return Resolution{Strategy: strategy, Apply: false}, nil
	case models.ResolveTakeMine:
		return Resolution{Strategy: strategy, Apply: true, Value: proposed}, nil
	case models.ResolveTakeTheirs:
		return Resolution{Strategy: strategy, Apply: true, Value: persisted}, nil
	case models.ResolveMerge:
		if merged == nil {
			return Resolution{}, models.NewEngineError(models.ErrConflict, "merge strategy requires an explicit merged value", nil)
		}
		return Resolution{Strategy: strategy, Apply: true, Value: *merged}, nil
	default:
		return Resolution{}, models.NewEngineError(models.ErrValidation, fmt.Sprintf("unknown resolution strategy %q", strategy), nil)
	}
}

// AutoResolver maps conflict types to strategies and applies them
// without interaction
type AutoResolver struct {
	policies map[models.ConflictType]models.ResolutionStrategy
}

// NewAutoResolver creates an auto-resolver with the given policy map.
// Conflict types without a policy resolve to skip.
func NewAutoResolver(policies map[models.ConflictType]models.ResolutionStrategy) *AutoResolver {
	if policies == nil {
		policies = make(map[models.ConflictType]models.ResolutionStrategy)
	}
	return &AutoResolver{policies: policies}
}

// Resolve picks the configured strategy for a conflict's type. merge is
// not auto-resolvable (no merged value available) and degrades to skip.
func (r *AutoResolver) Resolve(conflict models.Conflict, proposed, persisted string) (Resolution, error) {
	strategy, ok := r.policies[conflict.Type]
	if !ok {
		strategy = models.ResolveSkip
	}
	if strategy == models.ResolveMerge {
		strategy = models.ResolveSkip
	}
	return Resolve(strategy, proposed, persisted, nil)
}

// Blocking reports whether any conflict in the list is severe enough to
// stop a write under the default policy: critical findings block,
// warnings surface but do not.
func Blocking(conflicts []models.Conflict) []models.Conflict {
	var blocking []models.Conflict
	for _, c := range conflicts {
		if c.Severity == models.SeverityCritical {
			blocking = append(blocking, c)
		}
	}
	return blocking
}

package engine

import (
	"fmt"

	"github.com/convexa/nameforge/common/models"
)

// Policy decides whether a changed field propagates to a child
type Policy string

const (
	// Propagate unconditionally
	InheritAlways Policy = "inherit_always"
	// Never propagate to this field
	InheritNever Policy = "inherit_never"
	// Propagate only if the child's current slot for the dimension
	// carries no value
	InheritIfEmpty Policy = "inherit_if_empty"
)

// InheritanceRule is one configured policy, optionally gated by a CEL
// condition over the child and the inbound change
type InheritanceRule struct {
	Policy    Policy `json:"policy"`
	Condition string `json:"condition,omitempty"`
}

// RuleSet is a workspace's inheritance configuration. Lookup order for a
// changed field: dimension-specific override ("{field}_{dimension}"),
// then field-level rule, then the global default.
type RuleSet struct {
	Overrides map[string]InheritanceRule `json:"overrides,omitempty"`
	Fields    map[string]InheritanceRule `json:"fields,omitempty"`
	Default   Policy                     `json:"default,omitempty"`
}

// DefaultRuleSet returns the global fallback configuration
func DefaultRuleSet() *RuleSet {
	return &RuleSet{Default: InheritAlways}
}

// ruleFor resolves the three-tier lookup for one change
func (rs *RuleSet) ruleFor(change Change) InheritanceRule {
	if rs == nil {
		return InheritanceRule{Policy: InheritAlways}
	}
	if rule, ok := rs.Overrides[change.Key()]; ok {
		return rule
	}
	if rule, ok := rs.Fields[change.Field]; ok {
		return rule
	}
	if rs.Default != "" {
		return InheritanceRule{Policy: rs.Default}
	}
	return InheritanceRule{Policy: InheritAlways}
}

// ShouldInherit decides whether one change propagates to a child. Pure
// function of the child, its current slot for the change's dimension,
// and configuration; childSlot may be nil when the child has no slot for
// the dimension. inherit_if_empty inspects the child's persisted slot
// state rather than assuming "inherit".
func (rs *RuleSet) ShouldInherit(child *models.NameString, childSlot *models.Slot, change Change, eval *ConditionEvaluator) (bool, error) {
	rule := rs.ruleFor(change)

	var inherit bool
	switch rule.Policy {
	case InheritNever:
		return false, nil
	case InheritIfEmpty:
		inherit = childSlot.IsEmpty()
	case InheritAlways, "":
		inherit = true
	default:
		return false, models.NewEngineError(
			models.ErrValidation,
			fmt.Sprintf("unknown inheritance policy %q", rule.Policy),
			nil,
		)
	}

	if !inherit || rule.Condition == "" {
		return inherit, nil
	}

	if eval == nil {
		eval = NewConditionEvaluator()
	}

	ok, err := eval.Evaluate(rule.Condition, childConditionVars(child, childSlot), changeConditionVars(change))
	if err != nil {
		return false, models.NewEngineError(
			models.ErrValidation,
			fmt.Sprintf("inheritance condition for %s failed", change.Key()),
			err,
		)
	}

	return ok, nil
}

// InheritedSubset filters the changes a specific child receives
func (rs *RuleSet) InheritedSubset(child *models.NameString, childSlots []*models.Slot, changes []Change, eval *ConditionEvaluator) ([]Change, error) {
	byDimension := make(map[string]*models.Slot, len(childSlots))
	for _, slot := range childSlots {
		byDimension[slot.DimensionID.String()] = slot
	}

	var inherited []Change
	for _, change := range changes {
		slot := byDimension[change.DimensionID.String()]
		ok, err := rs.ShouldInherit(child, slot, change, eval)
		if err != nil {
			return nil, err
		}
		if ok {
			inherited = append(inherited, change)
		}
	}

	return inherited, nil
}

func childConditionVars(child *models.NameString, slot *models.Slot) map[string]interface{} {
	vars := map[string]interface{}{
		"id":         child.ID.String(),
		"value":      child.Value,
		"version":    child.Version,
		"slot_empty": slot.IsEmpty(),
	}
	return vars
}

func changeConditionVars(change Change) map[string]interface{} {
	return map[string]interface{}{
		"field":     change.Field,
		"dimension": change.DimensionName,
		"old":       change.Old,
		"new":       change.New,
	}
}

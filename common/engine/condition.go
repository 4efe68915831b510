package engine

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// ConditionEvaluator evaluates inheritance rule conditions using CEL
// (Common Expression Language)
type ConditionEvaluator struct {
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewConditionEvaluator creates a new condition evaluator with caching
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{
		cache: make(map[string]cel.Program),
	}
}

// Evaluate evaluates a CEL expression against a child string and the
// inbound change. Expressions see two variables: `child` (id, value,
// version, level, slot_empty) and `change` (field, dimension, old, new).
func (e *ConditionEvaluator) Evaluate(expr string, child, change map[string]interface{}) (bool, error) {
	if expr == "" {
		return true, nil
	}

	// Check cache first
	e.mu.RLock()
	prg, exists := e.cache[expr]
	e.mu.RUnlock()

	if !exists {
		// Compile and cache
		var err error
		prg, err = e.compile(expr)
		if err != nil {
			return false, err
		}

		e.mu.Lock()
		e.cache[expr] = prg
		e.mu.Unlock()
	}

	// Evaluate
	out, _, err := prg.Eval(map[string]interface{}{
		"child":  child,
		"change": change,
	})

	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean, got %T", out.Value())
	}

	return result, nil
}

// compile compiles a CEL expression
func (e *ConditionEvaluator) compile(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("child", cel.DynType),
		cel.Variable("change", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return prg, nil
}

// ClearCache clears the compiled expression cache
func (e *ConditionEvaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}

// CacheSize returns the number of cached expressions
func (e *ConditionEvaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

package engine

import (
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/attrflow/attrflow/internal/engine/conditioncache"
)

// evalExpr compiles (or reuses a cached compile of) expression against deps
// and metadata, and returns the resulting number.
func evalExpr(cache *conditioncache.Cache, expression string, deps map[string]float64, metadata map[string]any) (float64, error) {
	env := map[string]any{
		"deps":     deps,
		"metadata": metadata,
	}

	program, err := cache.CompileAndCache(expression, env)
	if err != nil {
		return 0, fmt.Errorf("compile expression %q: %w", expression, err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return 0, fmt.Errorf("evaluate expression %q: %w", expression, err)
	}

	value, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("expression %q did not evaluate to a number, got %T", expression, result)
	}

	return value, nil
}

package engine

import (
	"fmt"
	"strings"

	"github.com/attrflow/attrflow/internal/engine/conditioncache"
	"github.com/attrflow/attrflow/pkg/models"
)

// MissingDependencyFunc is invoked once for every dependency id that could
// not be resolved to a present value while building a calculation's
// dependency map (§7: substituted with the sentinel 0, logged, never
// fatal).
type MissingDependencyFunc func(attributeID, dependencyID string)

// buildDependencyMap resolves attr's declared dependencies against the
// registry's current values. A dependency whose attribute is unregistered
// or whose value is still Null is substituted with 0 and reported via
// onMissing; the engine never aborts a run for this.
func buildDependencyMap(reg *AttributeRegistry, attr *models.Attribute, onMissing MissingDependencyFunc) map[string]float64 {
	deps := make(map[string]float64, len(attr.Dependencies))

	for _, depID := range attr.Dependencies {
		depAttr, ok := reg.Find(depID)
		if !ok {
			if onMissing != nil {
				onMissing(attr.ID, depID)
			}
			deps[depID] = 0
			continue
		}

		value, present := depAttr.Value.Float64()
		if !present {
			if onMissing != nil {
				onMissing(attr.ID, depID)
			}
			deps[depID] = 0
			continue
		}

		deps[depID] = value
	}

	return deps
}

// evaluateAttribute runs attr's calculation (native function takes
// precedence over CalculateExpr) against deps and attr.Metadata. Recovers
// from a panicking CalculateFunc, since user code is assumed pure and fast
// but must not be allowed to crash the orchestrator.
func evaluateAttribute(cache *conditioncache.Cache, attr *models.Attribute, deps map[string]float64) (result float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("calculate panicked: %v", r)
		}
	}()

	if attr.Calculate != nil {
		return attr.Calculate(deps, attr.Metadata)
	}

	if attr.CalculateExpr != "" {
		return evalExpr(cache, attr.CalculateExpr, deps, attr.Metadata)
	}

	return 0, fmt.Errorf("attribute %q has no calculation", attr.ID)
}

// kindBasedDefault returns the fallback value substituted when an
// attribute's calculation fails (§4.3). Recognized by case-insensitive id
// substring; these defaults are not business-meaningful, they only exist so
// downstream calculations still receive a number.
func kindBasedDefault(id string) float64 {
	lower := strings.ToLower(id)
	switch {
	case strings.Contains(lower, "price"):
		return 50.0
	case strings.Contains(lower, "demand"):
		return 1000
	case strings.Contains(lower, "margin"):
		return 20.0
	default:
		return 0
	}
}

// seedValue returns the bootstrap value assigned to a cyclic attribute
// whose current value is still Null before the first solver iteration
// (§4.4 Step 2). Seeds exist only to bootstrap iteration; convergence must
// overwrite them.
func seedValue(id string) float64 {
	lower := strings.ToLower(id)
	switch {
	case strings.Contains(lower, "selling_price"):
		return 50.0
	case strings.Contains(lower, "market_demand"):
		return 1000
	default:
		return 100.0
	}
}

// CalculationFailureFunc is invoked when a Calculated attribute's
// calculation errors or panics, after the kind-based default has already
// been substituted and stored.
type CalculationFailureFunc func(attributeID string, substituted float64, cause error)

// evaluateOne computes a single attribute's value in place. Input
// attributes are left untouched (their value was set at construction, by a
// scenario override, or by the solver); Calculated attributes have their
// dependency map built from the registry's current state and their
// calculation invoked, substituting a kind-based default on failure.
func evaluateOne(reg *AttributeRegistry, cache *conditioncache.Cache, attr *models.Attribute, onMissing MissingDependencyFunc, onCalcFail CalculationFailureFunc) {
	if attr.Kind == models.Input {
		return
	}

	deps := buildDependencyMap(reg, attr, onMissing)
	value, err := evaluateAttribute(cache, attr, deps)
	if err != nil {
		value = kindBasedDefault(attr.ID)
		if onCalcFail != nil {
			onCalcFail(attr.ID, value, err)
		}
	}

	attr.Value = models.NumberValue(value)
}

// snapshotValues returns every registered attribute's current value as a
// plain float64 map (Null values are omitted), used by the iterative cycle
// solver to build a whole-model context each step (§4.4 Step 3: "most
// recent wins", making the scheme Gauss-Seidel within one iteration).
func snapshotValues(reg *AttributeRegistry) map[string]float64 {
	snapshot := make(map[string]float64, reg.Len())
	for _, attr := range reg.All() {
		if v, ok := attr.Value.Float64(); ok {
			snapshot[attr.ID] = v
		}
	}
	return snapshot
}

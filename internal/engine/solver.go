package engine

import (
	"math"

	"github.com/attrflow/attrflow/internal/config"
	"github.com/attrflow/attrflow/internal/engine/conditioncache"
	"github.com/attrflow/attrflow/pkg/models"
)

// ResolveOutcome reports how ResolveCycle's fixed-point iteration (§4.4
// Step 3) terminated for one cycle.
type ResolveOutcome string

const (
	// Converged means every cycle member's relative change fell at or
	// below the convergence threshold in the same iteration.
	Converged ResolveOutcome = "converged"
	// Oscillated means the solver detected an alternating-value pattern
	// and stabilized every member to a windowed mean instead of
	// continuing to iterate.
	Oscillated ResolveOutcome = "oscillated"
	// DidNotConverge means MAX_ITERATIONS was exhausted without either
	// convergence or oscillation tripping; the last computed values are
	// kept as-is (§9 design note 5, a documented weakness).
	DidNotConverge ResolveOutcome = "did_not_converge"
)

// IterationObserver is invoked once after every solver iteration (including
// the final one) so a caller can emit a per-iteration event or debug log.
type IterationObserver func(cycle []string, iteration int, outcome ResolveOutcome)

// ResolveCycle drives the full pre-cycle / seed / iterate / post-cycle
// pipeline for a single cycle returned by DependencyGraph.FindCycles (which
// closes the loop by repeating the first id as the last element).
func ResolveCycle(
	reg *AttributeRegistry,
	graph *DependencyGraph,
	cache *conditioncache.Cache,
	cfg config.SolverConfig,
	cycle []string,
	onMissing MissingDependencyFunc,
	onCalcFail CalculationFailureFunc,
	onIteration IterationObserver,
) ResolveOutcome {
	members := cycleMemberSet(cycle)
	order := uniqueOrder(cycle)

	evaluatePreCycle(reg, graph, cache, members, onMissing, onCalcFail)
	seedCycle(reg, order)

	outcome := iterateCycle(reg, cache, cfg, order, onCalcFail, onIteration)

	evaluatePostCycle(reg, graph, cache, members, onMissing, onCalcFail)

	return outcome
}

// uniqueOrder strips FindCycles' trailing repeated id, preserving the order
// the cycle was given (§5: "cyclic iterations follow the order of the cycle
// list as returned by find_cycles()").
func uniqueOrder(cycle []string) []string {
	if len(cycle) > 1 && cycle[0] == cycle[len(cycle)-1] {
		return append([]string{}, cycle[:len(cycle)-1]...)
	}
	return append([]string{}, cycle...)
}

// seedCycle assigns a bootstrap value to every cycle member still Null
// (§4.4 Step 2). Members already seeded by an earlier pre-cycle evaluation,
// or carrying a real value from a prior run, are left untouched.
func seedCycle(reg *AttributeRegistry, order []string) {
	for _, id := range order {
		attr, ok := reg.Find(id)
		if !ok {
			continue
		}
		if attr.Value.IsNull() {
			attr.Value = models.NumberValue(seedValue(id))
		}
	}
}

// iterateCycle runs the bounded Gauss-Seidel fixed-point loop (§4.4 Step 3).
// Every member's calculation sees a fresh whole-model snapshot before each
// of its own steps, so a member updated earlier in the same iteration is
// immediately visible to the next one.
func iterateCycle(
	reg *AttributeRegistry,
	cache *conditioncache.Cache,
	cfg config.SolverConfig,
	order []string,
	onCalcFail CalculationFailureFunc,
	onIteration IterationObserver,
) ResolveOutcome {
	history := make(map[string][]float64, len(order))

	for iteration := 1; iteration <= cfg.MaxIterations; iteration++ {
		relChanges := make(map[string]float64, len(order))

		for _, id := range order {
			attr, ok := reg.Find(id)
			if !ok {
				continue
			}

			context := snapshotValues(reg)
			prev := attr.Value.FloatOr(0)

			newValue, err := evaluateAttribute(cache, attr, context)
			if err != nil {
				newValue = kindBasedDefault(id)
				if onCalcFail != nil {
					onCalcFail(id, newValue, err)
				}
			}

			history[id] = append(history[id], newValue)
			relChanges[id] = math.Abs(newValue-prev) / math.Max(math.Abs(prev), 1e-6)
			attr.Value = models.NumberValue(newValue)
		}

		if allConverged(order, relChanges, cfg.ConvergenceThreshold) {
			notifyIteration(onIteration, order, iteration, Converged)
			return Converged
		}

		if iteration >= 4 && anyOscillating(order, history) {
			stabilizeOscillation(reg, order, history, cfg.OscillationWindow)
			notifyIteration(onIteration, order, iteration, Oscillated)
			return Oscillated
		}

		notifyIteration(onIteration, order, iteration, DidNotConverge)
	}

	return DidNotConverge
}

func notifyIteration(onIteration IterationObserver, order []string, iteration int, outcome ResolveOutcome) {
	if onIteration != nil {
		onIteration(order, iteration, outcome)
	}
}

func allConverged(order []string, relChanges map[string]float64, threshold float64) bool {
	for _, id := range order {
		if relChanges[id] > threshold {
			return false
		}
	}
	return true
}

// anyOscillating implements the literal §4.4 Step 3.3 pattern: any single
// member whose last four history entries alternate (h[-1]≈h[-3] and
// h[-2]≈h[-4], within 0.1) is enough to declare the whole cycle oscillating.
func anyOscillating(order []string, history map[string][]float64) bool {
	for _, id := range order {
		h := history[id]
		if len(h) < 4 {
			continue
		}
		last, prev2, prev3, prev4 := h[len(h)-1], h[len(h)-2], h[len(h)-3], h[len(h)-4]
		if math.Abs(last-prev3) < 0.1 && math.Abs(prev2-prev4) < 0.1 {
			return true
		}
	}
	return false
}

// stabilizeOscillation sets every cycle member to the mean of its last
// (up to) window history entries, rounded to 2 decimals (§4.4 Step 3.4).
func stabilizeOscillation(reg *AttributeRegistry, order []string, history map[string][]float64, window int) {
	for _, id := range order {
		attr, ok := reg.Find(id)
		if !ok {
			continue
		}

		h := history[id]
		n := window
		if n > len(h) {
			n = len(h)
		}
		if n <= 0 {
			continue
		}

		tail := h[len(h)-n:]
		sum := 0.0
		for _, v := range tail {
			sum += v
		}
		mean := sum / float64(len(tail))
		attr.Value = models.NumberValue(math.Round(mean*100) / 100)
	}
}

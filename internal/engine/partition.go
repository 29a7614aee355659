package engine

import (
	"sort"

	"github.com/attrflow/attrflow/internal/engine/conditioncache"
)

// cycleMemberSet turns a FindCycles() entry (first id repeated as the last
// element) into a membership set.
func cycleMemberSet(cycle []string) map[string]bool {
	members := make(map[string]bool, len(cycle))
	for _, id := range cycle {
		members[id] = true
	}
	return members
}

// ancestorsOf walks reverse edges from every member of the cycle, collecting
// every non-member id the cycle transitively depends on (§4.4 Step 1: "every
// non-cyclic ancestor"). A true ancestor can never itself depend on a cycle
// member — if it did, it would lie downstream of the cycle, not upstream of
// it — so the traversal never has to special-case re-entering the cycle.
func ancestorsOf(graph *DependencyGraph, members map[string]bool) []string {
	visited := make(map[string]bool)
	stack := make([]string, 0, len(members))
	for id := range members {
		stack = append(stack, id)
	}

	var result []string
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, dep := range graph.Dependencies(id) {
			if members[dep] || visited[dep] {
				continue
			}
			visited[dep] = true
			result = append(result, dep)
			stack = append(stack, dep)
		}
	}

	sort.Strings(result)
	return result
}

// descendantsOf walks forward edges from every member of the cycle,
// collecting every non-member id that directly or transitively depends on
// the cycle (§4.4 Step 4).
func descendantsOf(graph *DependencyGraph, members map[string]bool) []string {
	visited := make(map[string]bool)
	stack := make([]string, 0, len(members))
	for id := range members {
		stack = append(stack, id)
	}

	var result []string
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, dependent := range graph.Dependents(id) {
			if members[dependent] || visited[dependent] {
				continue
			}
			visited[dependent] = true
			result = append(result, dependent)
			stack = append(stack, dependent)
		}
	}

	sort.Strings(result)
	return result
}

// subgraphOrder restricts graph to exactly the ids in nodeSet (plus edges
// between them) and topologically sorts that restriction. Used to order both
// the pre-cycle ancestor set and the post-cycle descendant set independently
// of the full model graph, which still contains the cycle itself. Falls back
// to nodes in id order if the restriction is somehow not a DAG (defensive:
// a subset of a graph whose only cycle was C, with C excluded, is always
// acyclic).
func subgraphOrder(graph *DependencyGraph, nodes []string) []string {
	nodeSet := make(map[string]bool, len(nodes))
	for _, id := range nodes {
		nodeSet[id] = true
	}

	sub := NewDependencyGraph()
	for _, id := range nodes {
		sub.AddNode(id)
	}
	for _, id := range nodes {
		for _, dep := range graph.Dependencies(id) {
			if nodeSet[dep] {
				sub.AddEdge(dep, id)
			}
		}
	}

	order, err := sub.TopologicalSort()
	if err != nil {
		fallback := append([]string{}, nodes...)
		sort.Strings(fallback)
		return fallback
	}
	return order
}

// evaluatePreCycle computes every non-cyclic ancestor of the cycle in
// dependency order before the solver seeds and iterates the cycle itself
// (§4.4 Step 1). Returns the ids it evaluated, for observability.
func evaluatePreCycle(reg *AttributeRegistry, graph *DependencyGraph, cache *conditioncache.Cache, members map[string]bool, onMissing MissingDependencyFunc, onCalcFail CalculationFailureFunc) []string {
	order := subgraphOrder(graph, ancestorsOf(graph, members))
	for _, id := range order {
		attr, ok := reg.Find(id)
		if !ok {
			continue
		}
		evaluateOne(reg, cache, attr, onMissing, onCalcFail)
	}
	return order
}

// evaluatePostCycle computes every attribute outside the cycle that depends,
// directly or transitively, on a converged cycle member, each exactly once
// in dependency order (§4.4 Step 4). By the time this runs the cycle's own
// values are final, so these attributes see them like any other resolved
// dependency.
func evaluatePostCycle(reg *AttributeRegistry, graph *DependencyGraph, cache *conditioncache.Cache, members map[string]bool, onMissing MissingDependencyFunc, onCalcFail CalculationFailureFunc) []string {
	order := subgraphOrder(graph, descendantsOf(graph, members))
	for _, id := range order {
		attr, ok := reg.Find(id)
		if !ok {
			continue
		}
		evaluateOne(reg, cache, attr, onMissing, onCalcFail)
	}
	return order
}

// Package engine implements the dependency graph, iterative cycle solver,
// and evaluation orchestrator that together compute attribute values for a
// simulation run.
package engine

import (
	"sort"

	"github.com/attrflow/attrflow/pkg/models"
)

// DependencyGraph stores attribute ids as nodes and directed edges
// "dependency → dependent": forward[u] contains v iff u must be computed
// before v. reverse is the transpose, kept consistent by every mutator.
//
// Edge-direction worked example (§4.2, §9.1): given forward["a"] = {"c"}
// (a is a dependency of c), in-degree of "c" counts how many things c
// depends on, i.e. len(reverse["c"]), NOT len(forward["c"]). Kahn's
// algorithm below starts from nodes with in-degree zero — nodes with no
// dependencies of their own — and relaxes an edge by walking
// forward[u] and decrementing in-degree of each v it reaches. A prior
// implementation in this lineage walked forward[u] as "successors" while
// treating in-degree as an out-edge count; that happens to terminate on a
// graph where every node has equal fan-in and fan-out, but silently
// inverts the order as soon as a node has more dependents than
// dependencies. The convention pinned here is the opposite and intentional:
// dependencies always come first in forward_edges, never the reverse.
type DependencyGraph struct {
	nodes   map[string]struct{}
	forward map[string]map[string]struct{}
	reverse map[string]map[string]struct{}
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:   make(map[string]struct{}),
		forward: make(map[string]map[string]struct{}),
		reverse: make(map[string]map[string]struct{}),
	}
}

// AddNode registers an id with no edges. Idempotent.
func (g *DependencyGraph) AddNode(id string) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = struct{}{}
	g.forward[id] = make(map[string]struct{})
	g.reverse[id] = make(map[string]struct{})
}

// AddEdge records that dependency must be computed before dependent.
// Idempotent; both endpoints are auto-added as nodes.
func (g *DependencyGraph) AddEdge(dependency, dependent string) {
	g.AddNode(dependency)
	g.AddNode(dependent)
	g.forward[dependency][dependent] = struct{}{}
	g.reverse[dependent][dependency] = struct{}{}
}

// Nodes returns every node id, sorted for deterministic iteration.
func (g *DependencyGraph) Nodes() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dependents returns the ids that directly depend on id (forward edges).
func (g *DependencyGraph) Dependents(id string) []string {
	return sortedKeys(g.forward[id])
}

// Dependencies returns the ids that id directly depends on (reverse edges).
func (g *DependencyGraph) Dependencies(id string) []string {
	return sortedKeys(g.reverse[id])
}

// EdgeCount returns the total number of directed edges in the graph.
func (g *DependencyGraph) EdgeCount() int {
	count := 0
	for _, dependents := range g.forward {
		count += len(dependents)
	}
	return count
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TopologicalSort runs Kahn's algorithm, ordering dependencies before their
// dependents. Ties among independent nodes are broken by id for
// reproducibility. Returns a *models.CycleDetectedError (carrying every
// cycle found) if the graph is not a DAG.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = len(g.reverse[id])
	}

	ready := make([]string, 0)
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		// Pop the smallest id to keep the order deterministic.
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		next := make([]string, 0)
		for _, dependent := range g.Dependents(id) {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				next = append(next, dependent)
			}
		}
		sort.Strings(next)
		ready = mergeSorted(ready, next)
	}

	if len(order) != len(g.nodes) {
		return nil, &models.CycleDetectedError{Cycles: g.FindCycles()}
	}

	return order, nil
}

// mergeSorted merges two already-sorted slices of ids into one sorted
// slice, preserving the deterministic-tie-break property of
// TopologicalSort across multiple relaxation rounds.
func mergeSorted(a, b []string) []string {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	merged := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			merged = append(merged, a[i])
			i++
		} else {
			merged = append(merged, b[j])
			j++
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)
	return merged
}

// FindCycles returns every simple cycle reachable from some start node,
// each as an ordered id list whose last element repeats its first. Uses DFS
// with an explicit recursion stack; a global visited set prevents the same
// cycle from being reported once per DFS root.
func (g *DependencyGraph) FindCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	path := make([]string, 0)

	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, next := range g.Dependents(id) {
			if onStack[next] {
				// Found a back edge into the current stack: emit the path
				// slice from next's first occurrence through here.
				start := indexOf(path, next)
				if start >= 0 {
					cycle := append(append([]string{}, path[start:]...), next)
					cycles = append(cycles, cycle)
				}
				continue
			}
			if !visited[next] {
				visit(next)
			}
		}

		path = path[:len(path)-1]
		onStack[id] = false
	}

	for _, id := range g.Nodes() {
		if !visited[id] {
			visit(id)
		}
	}

	return cycles
}

func indexOf(path []string, id string) int {
	for i, v := range path {
		if v == id {
			return i
		}
	}
	return -1
}

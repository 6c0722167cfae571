package dependency

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conceptixx/AEON/internal/manifest"
	"github.com/conceptixx/AEON/pkg/logging"
)

// Plan is the resolver output: a total order over unit ids, its partition
// into waves, and the non-fatal warnings collected along the way. Every wave
// is a maximal set whose members have no hard dependency among themselves; a
// unit lands in wave k+1 iff every hard dependency landed in some wave <= k.
type Plan struct {
	Order    []string
	Waves    [][]string
	Warnings []string
}

// ReverseOrder returns the order for stop and unload: the reverse of the load
// order, derived once from the resolver output.
func (p Plan) ReverseOrder() []string {
	out := make([]string, len(p.Order))
	for i, id := range p.Order {
		out[len(p.Order)-1-i] = id
	}
	return out
}

// Graph accumulates manifests and resolves them into a Plan. It is not
// thread-safe; the orchestrator builds and resolves it under its own lock.
// Resolution itself is purely synchronous and runs to completion without
// suspension.
type Graph struct {
	manifests map[string]manifest.Manifest
	// edges[b] holds the ids that hard-depend on b.
	edges map[string][]string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		manifests: make(map[string]manifest.Manifest),
		edges:     make(map[string][]string),
	}
}

// Add inserts a manifest into the graph. A second manifest under the same id
// with a different version fails with VersionConflictError.
func (g *Graph) Add(m manifest.Manifest) error {
	if existing, ok := g.manifests[m.ID]; ok && existing.Version != m.Version {
		return &VersionConflictError{ID: m.ID, Existing: existing.Version, New: m.Version}
	}
	g.manifests[m.ID] = m
	for _, dep := range m.HardDeps {
		g.edges[dep] = append(g.edges[dep], m.ID)
	}
	logging.Debug("Dependency", "Added %s to dependency graph (hard deps: %v)", m.ID, m.HardDeps)
	return nil
}

// Resolve computes the load order and its wave partition.
//
// The algorithm is Kahn's: compute in-degree over the edge b -> a present iff
// b is a hard dependency of a, emit all in-degree-zero nodes as one wave,
// remove them, repeat. Within a wave ids are sorted for determinism.
func (g *Graph) Resolve() (Plan, error) {
	// Every hard dep must be a registered manifest.
	for _, m := range g.manifests {
		for _, dep := range m.HardDeps {
			if _, ok := g.manifests[dep]; !ok {
				return Plan{}, &MissingDependencyError{ID: m.ID, Missing: dep}
			}
		}
	}

	inDegree := make(map[string]int, len(g.manifests))
	for id := range g.manifests {
		inDegree[id] = len(g.manifests[id].HardDeps)
	}

	var order []string
	var waves [][]string
	remaining := len(g.manifests)

	current := make([]string, 0)
	for id, deg := range inDegree {
		if deg == 0 {
			current = append(current, id)
		}
	}

	for len(current) > 0 {
		sort.Strings(current)
		wave := make([]string, len(current))
		copy(wave, current)
		waves = append(waves, wave)
		order = append(order, wave...)
		remaining -= len(wave)

		next := make([]string, 0)
		for _, id := range wave {
			for _, dependent := range g.edges[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if remaining > 0 {
		stuck := make(map[string]bool, remaining)
		for id, deg := range inDegree {
			if deg > 0 {
				stuck[id] = true
			}
		}
		cycle := g.findCycle(stuck)
		logging.Error("Dependency", nil, "Circular dependency detected: %s", cycle)
		return Plan{}, &CycleError{Cycle: cycle}
	}

	warnings := g.checkSoftDeps(order)

	logging.Info("Dependency", "Resolution complete: %d units in %d waves, %d warnings",
		len(order), len(waves), len(warnings))

	return Plan{Order: order, Waves: waves, Warnings: warnings}, nil
}

// findCycle runs a DFS over the residual subgraph and renders one concrete
// cycle as "a -> b -> ... -> a".
func (g *Graph) findCycle(nodes map[string]bool) string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var path []string

	var dfs func(id string) string
	dfs = func(id string) string {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		// Walk hard deps that are also stuck; the cycle lies entirely within
		// the residual subgraph.
		for _, dep := range g.manifests[id].HardDeps {
			if !nodes[dep] {
				continue
			}
			if !visited[dep] {
				if found := dfs(dep); found != "" {
					return found
				}
			} else if onStack[dep] {
				start := 0
				for i, p := range path {
					if p == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), dep)
				return strings.Join(cycle, " -> ")
			}
		}

		path = path[:len(path)-1]
		onStack[id] = false
		return ""
	}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if !visited[id] {
			if found := dfs(id); found != "" {
				return found
			}
		}
	}
	return "unknown cycle"
}

// checkSoftDeps emits one warning per missing soft dependency. The dependent
// unit is still scheduled.
func (g *Graph) checkSoftDeps(order []string) []string {
	scheduled := make(map[string]bool, len(order))
	for _, id := range order {
		scheduled[id] = true
	}

	var warnings []string
	for _, id := range order {
		for _, soft := range g.manifests[id].SoftDeps {
			if !scheduled[soft] {
				warning := fmt.Sprintf(
					"unit %q has optional dependency %q which is not available; some features may be disabled",
					id, soft)
				warnings = append(warnings, warning)
				logging.Warn("Dependency", "%s", warning)
			}
		}
	}
	return warnings
}

// Dependents returns the ids that hard-depend on id, directly.
func (g *Graph) Dependents(id string) []string {
	out := make([]string, len(g.edges[id]))
	copy(out, g.edges[id])
	sort.Strings(out)
	return out
}

// Tree renders an ASCII dependency tree rooted at id, for status output.
func (g *Graph) Tree(id string) string {
	return g.tree(id, 0)
}

func (g *Graph) tree(id string, depth int) string {
	indent := strings.Repeat("  ", depth)
	m, ok := g.manifests[id]
	if !ok {
		return fmt.Sprintf("%s└─ %s (NOT FOUND)", indent, id)
	}

	lines := []string{fmt.Sprintf("%s└─ %s v%s", indent, id, m.Version)}
	for _, dep := range m.HardDeps {
		lines = append(lines, g.tree(dep, depth+1))
	}
	return strings.Join(lines, "\n")
}

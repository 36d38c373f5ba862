package pipeline

import (
	"sort"

	"ngbuild/internal/stage"
)

// Edge is a barrier: To may only start after From completed.
type Edge struct {
	From stage.Name
	To   stage.Name
}

type edgeIndex struct {
	from int
	to   int
}

// Graph is an immutable, validated stage graph.
//
// Node indices follow declaration order, so ties between ready stages are
// broken by the order the pipeline lists them in. A Graph is safe for
// concurrent reads.
type Graph struct {
	names   []stage.Name
	indexOf map[stage.Name]int

	edges    []edgeIndex
	outgoing [][]int
	incoming [][]int
	indeg    []int
	depth    []int
}

// NewGraph builds and validates a graph.
//
// It rejects empty or duplicate stage names, edges referencing unknown
// stages, duplicate edges, self-loops and any cycle.
func NewGraph(names []stage.Name, edges []Edge) (*Graph, error) {
	if len(names) == 0 {
		return nil, invalidf("no stages")
	}

	indexOf := make(map[stage.Name]int, len(names))
	for i, n := range names {
		if n == "" {
			return nil, invalidf("stage name is required")
		}
		if _, dup := indexOf[n]; dup {
			return nil, invalidf("duplicate stage: %q", n)
		}
		indexOf[n] = i
	}

	mapped := make([]edgeIndex, 0, len(edges))
	seen := make(map[edgeIndex]struct{}, len(edges))
	for _, e := range edges {
		from, okFrom := indexOf[e.From]
		to, okTo := indexOf[e.To]
		if !okFrom {
			return nil, invalidf("edge references unknown stage (from): %q", e.From)
		}
		if !okTo {
			return nil, invalidf("edge references unknown stage (to): %q", e.To)
		}
		if from == to {
			return nil, invalidf("self-loop: %q -> %q", e.From, e.To)
		}
		pair := edgeIndex{from: from, to: to}
		if _, dup := seen[pair]; dup {
			return nil, invalidf("duplicate edge: %q -> %q", e.From, e.To)
		}
		seen[pair] = struct{}{}
		mapped = append(mapped, pair)
	}
	sort.Slice(mapped, func(i, j int) bool {
		a, b := mapped[i], mapped[j]
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})

	outgoing := make([][]int, len(names))
	incoming := make([][]int, len(names))
	indeg := make([]int, len(names))
	for _, e := range mapped {
		outgoing[e.from] = append(outgoing[e.from], e.to)
		incoming[e.to] = append(incoming[e.to], e.from)
		indeg[e.to]++
	}

	g := &Graph{
		names:    append([]stage.Name(nil), names...),
		indexOf:  indexOf,
		edges:    mapped,
		outgoing: outgoing,
		incoming: incoming,
		indeg:    indeg,
	}
	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}
	g.depth = g.computeDepth()
	return g, nil
}

// Chain builds the linear graph names[0] -> names[1] -> ... .
func Chain(names ...stage.Name) (*Graph, error) {
	edges := make([]Edge, 0, len(names))
	for i := 1; i < len(names); i++ {
		edges = append(edges, Edge{From: names[i-1], To: names[i]})
	}
	return NewGraph(names, edges)
}

// Stages returns the stage names in declaration order.
func (g *Graph) Stages() []stage.Name {
	return append([]stage.Name(nil), g.names...)
}

// Index returns the declaration index of a stage.
func (g *Graph) Index(name stage.Name) (int, bool) {
	i, ok := g.indexOf[name]
	return i, ok
}

// Edges returns the barriers in canonical order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Edge{From: g.names[e.from], To: g.names[e.to]})
	}
	return out
}

// Depth is the length of the longest path from any root to the stage.
func (g *Graph) Depth(name stage.Name) (int, bool) {
	i, ok := g.indexOf[name]
	if !ok {
		return 0, false
	}
	return g.depth[i], true
}

// TopologicalOrder returns a deterministic topological ordering.
func (g *Graph) TopologicalOrder() []stage.Name {
	order := g.topoOrderIndices()
	out := make([]stage.Name, 0, len(order))
	for _, i := range order {
		out = append(out, g.names[i])
	}
	return out
}

func (g *Graph) computeDepth() []int {
	depth := make([]int, len(g.names))
	for _, u := range g.topoOrderIndices() {
		longest := 0
		for _, p := range g.incoming[u] {
			if d := depth[p] + 1; d > longest {
				longest = d
			}
		}
		depth[u] = longest
	}
	return depth
}

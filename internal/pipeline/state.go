package pipeline

import (
	"container/heap"
	"fmt"
	"sort"

	"ngbuild/internal/stage"
)

// StageState is the runtime state of one stage in a run. It is kept apart
// from Graph so a graph can be run many times.
type StageState string

const (
	StagePending   StageState = "PENDING"
	StageRunning   StageState = "RUNNING"
	StageCompleted StageState = "COMPLETED"
	StageFailed    StageState = "FAILED"
	StageAborted   StageState = "ABORTED"
	StageSkipped   StageState = "SKIPPED"
)

// ExecutionState maps stage name to its current state.
type ExecutionState map[stage.Name]StageState

// IsTerminal reports whether the state is final.
func IsTerminal(s StageState) bool {
	switch s {
	case StageCompleted, StageFailed, StageAborted, StageSkipped:
		return true
	default:
		return false
	}
}

// Transition performs one validated transition. from is the expected prior
// state; the map is changed only when the transition is allowed.
func Transition(state ExecutionState, name stage.Name, from, to StageState) error {
	cur, ok := state[name]
	if !ok {
		return fmt.Errorf("unknown stage in state: %q", name)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", name, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", name, from, to)
	}
	state[name] = to
	return nil
}

func isAllowedTransition(from, to StageState) bool {
	switch from {
	case StagePending:
		return to == StageRunning || to == StageSkipped
	case StageRunning:
		return to == StageCompleted || to == StageFailed || to == StageAborted
	default:
		return false
	}
}

// HaltAndPropagate moves name from RUNNING to final (FAILED or ABORTED) and
// marks every pending stage reachable from it SKIPPED. The skipped stages are
// returned in declaration order.
func HaltAndPropagate(g *Graph, state ExecutionState, name stage.Name, final StageState) ([]stage.Name, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	if final != StageFailed && final != StageAborted {
		return nil, fmt.Errorf("cannot halt %q as %s", name, final)
	}
	start, ok := g.indexOf[name]
	if !ok {
		return nil, fmt.Errorf("unknown stage: %q", name)
	}
	if err := Transition(state, name, StageRunning, final); err != nil {
		return nil, err
	}

	visited := make([]bool, len(g.names))
	visited[start] = true
	hq := &intMinHeap{}
	heap.Init(hq)
	for _, d := range g.outgoing[start] {
		heap.Push(hq, d)
	}

	var skipped []int
	for hq.Len() > 0 {
		u := heap.Pop(hq).(int)
		if visited[u] {
			continue
		}
		visited[u] = true

		n := g.names[u]
		switch st := state[n]; st {
		case StagePending:
			state[n] = StageSkipped
			skipped = append(skipped, u)
		case StageRunning:
			return nil, fmt.Errorf("invariant violation: downstream stage %q is RUNNING during propagation", n)
		}
		for _, v := range g.outgoing[u] {
			if !visited[v] {
				heap.Push(hq, v)
			}
		}
	}

	out := make([]stage.Name, len(skipped))
	for i, u := range skipped {
		out[i] = g.names[u]
	}
	return out, nil
}

// ReadyStages returns the pending stages whose upstream stages all completed,
// ordered by depth and then declaration index. It does not mutate anything.
func ReadyStages(g *Graph, state ExecutionState) []stage.Name {
	if g == nil {
		return nil
	}
	var ready []int
	for i, n := range g.names {
		if state[n] != StagePending {
			continue
		}
		ok := true
		for _, p := range g.incoming[i] {
			if state[g.names[p]] != StageCompleted {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, i)
		}
	}
	// ready is in index order, so a stable sort keeps it as the tie-breaker.
	sort.SliceStable(ready, func(i, j int) bool {
		return g.depth[ready[i]] < g.depth[ready[j]]
	})

	out := make([]stage.Name, len(ready))
	for i, u := range ready {
		out[i] = g.names[u]
	}
	return out
}

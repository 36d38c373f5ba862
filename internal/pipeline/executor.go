package pipeline

import (
	"context"
	"fmt"
	"sync"

	"ngbuild/internal/stage"
	"ngbuild/internal/trace"
)

// Skip reasons recorded in traces.
const (
	ReasonUpstreamFailed  = "UpstreamFailed"
	ReasonUpstreamAborted = "UpstreamAborted"
)

// Runner executes a single stage.
//
// A Failed or Aborted result halts the pipeline. A returned error is treated
// the same as a Failed result carrying that error.
type Runner interface {
	Run(ctx context.Context, name stage.Name) (*stage.Result, error)
}

// Report is the outcome of one pipeline run.
type Report struct {
	FinalState ExecutionState
	// Results holds one entry per stage that ran, in execution order.
	Results []*stage.Result
	// Halted is the first Failed or Aborted result, if any.
	Halted *stage.Result
	// Skipped lists stages that never ran because of Halted.
	Skipped []stage.Name
}

// Status summarises the run.
func (r *Report) Status() stage.Status {
	if r == nil || r.Halted == nil {
		return stage.Completed
	}
	return r.Halted.Status
}

// Executor runs a Graph one stage at a time.
type Executor struct {
	Graph  *Graph
	Runner Runner
	Sink   trace.Sink

	mu    sync.Mutex
	state ExecutionState
}

// NewExecutor creates an executor with every stage PENDING.
func NewExecutor(g *Graph, runner Runner, sink trace.Sink) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	if runner == nil {
		return nil, fmt.Errorf("nil runner")
	}
	if sink == nil {
		sink = trace.NopSink{}
	}
	state := make(ExecutionState, len(g.names))
	for _, n := range g.names {
		state[n] = StagePending
	}
	return &Executor{Graph: g, Runner: runner, Sink: sink, state: state}, nil
}

// StateSnapshot returns a copy of the current execution state.
func (e *Executor) StateSnapshot() ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make(ExecutionState, len(e.state))
	for k, v := range e.state {
		cp[k] = v
	}
	return cp
}

// RunSerial executes the graph. The next stage is always the first entry of
// ReadyStages, and a stage starts only after its predecessor returned.
// Cancellation is checked between stages; a cancelled run returns an error.
func (e *Executor) RunSerial(ctx context.Context) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	report := &Report{}

	for {
		e.mu.Lock()
		ready := ReadyStages(e.Graph, e.state)
		if len(ready) == 0 {
			done := true
			for _, st := range e.state {
				if !IsTerminal(st) {
					done = false
					break
				}
			}
			e.mu.Unlock()
			if !done {
				return nil, fmt.Errorf("no ready stages but pipeline not finished")
			}
			report.FinalState = e.StateSnapshot()
			return report, nil
		}

		next := ready[0]
		if err := ctx.Err(); err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("pipeline cancelled before %s: %w", next, err)
		}
		if err := Transition(e.state, next, StagePending, StageRunning); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.mu.Unlock()

		res, err := e.Runner.Run(ctx, next)
		if err == nil && res == nil {
			err = fmt.Errorf("stage %s returned no result", next)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("pipeline cancelled in %s: %w", next, err)
			}
			res = &stage.Result{Stage: next, Status: stage.Failed, Err: err}
		}
		if res.Stage == "" {
			res.Stage = next
		}

		e.mu.Lock()
		report.Results = append(report.Results, res)
		idx := e.Graph.indexOf[next]
		switch res.Status {
		case stage.Completed:
			if err := Transition(e.state, next, StageRunning, StageCompleted); err != nil {
				e.mu.Unlock()
				return nil, err
			}
			trace.SafeRecord(e.Sink, trace.Event{
				Kind:  trace.EventStageCompleted,
				Index: idx,
				Stage: string(next),
				Files: res.Written,
			})
		case stage.Failed, stage.Aborted:
			final, kind, reason := StageFailed, trace.EventStageFailed, ReasonUpstreamFailed
			if res.Status == stage.Aborted {
				final, kind, reason = StageAborted, trace.EventStageAborted, ReasonUpstreamAborted
			}
			skipped, err := HaltAndPropagate(e.Graph, e.state, next, final)
			if err != nil {
				e.mu.Unlock()
				return nil, err
			}
			report.Halted = res
			report.Skipped = skipped
			trace.SafeRecord(e.Sink, trace.Event{Kind: kind, Index: idx, Stage: string(next), Files: res.Written})
			for _, s := range skipped {
				trace.SafeRecord(e.Sink, trace.Event{
					Kind:       trace.EventStageSkipped,
					Index:      e.Graph.indexOf[s],
					Stage:      string(s),
					Reason:     reason,
					CauseStage: string(next),
				})
			}
		default:
			e.mu.Unlock()
			return nil, fmt.Errorf("stage %s returned unknown status %q", next, res.Status)
		}
		e.mu.Unlock()
	}
}

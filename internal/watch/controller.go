package watch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"ngbuild/internal/pipeline"
	"ngbuild/internal/stage"
)

// State is the controller's dispatch state.
type State string

const (
	Idle        State = "idle"
	Dispatching State = "dispatching"
)

// RunFunc runs a chain of stages; pipeline.Sequencer.RunStages satisfies it.
type RunFunc func(ctx context.Context, name string, stages ...stage.Name) (*pipeline.Report, error)

// Reloader is told when a dispatch completed.
type Reloader interface {
	Reload()
}

// Controller coalesces change notifications per group and dispatches them.
//
// At most one entry per group is pending. Notifications that arrive while a
// dispatch is running are queued and handled after it, in Groups order.
type Controller struct {
	classify func(rel string) []Group
	run      RunFunc
	reload   Reloader
	debounce time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	pending map[Group]struct{}
	state   State
	wake    chan struct{}
}

// NewController builds a controller. A nil reload or log is allowed.
func NewController(classify func(rel string) []Group, run RunFunc, reload Reloader, debounce time.Duration, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		classify: classify,
		run:      run,
		reload:   reload,
		debounce: debounce,
		log:      log,
		pending:  make(map[Group]struct{}),
		state:    Idle,
		wake:     make(chan struct{}, 1),
	}
}

// Notify records a change to the project-relative path rel and reports
// whether it belongs to any group.
func (c *Controller) Notify(rel string) bool {
	groups := c.classify(rel)
	if len(groups) == 0 {
		return false
	}
	c.mu.Lock()
	for _, g := range groups {
		c.pending[g] = struct{}{}
	}
	c.mu.Unlock()
	c.log.Debug("change queued", zap.String("path", rel), zap.Any("groups", groups))

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// State reports whether a dispatch is running.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the queued groups in dispatch order.
func (c *Controller) Pending() []Group {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *Controller) pendingLocked() []Group {
	var out []Group
	for _, g := range Groups {
		if _, ok := c.pending[g]; ok {
			out = append(out, g)
		}
	}
	return out
}

// Run dispatches queued groups until ctx is done. It returns nil on
// cancellation.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.wake:
		}

		if c.debounce > 0 {
			t := time.NewTimer(c.debounce)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		}

		c.mu.Lock()
		batch := c.pendingLocked()
		c.pending = make(map[Group]struct{})
		if len(batch) > 0 {
			c.state = Dispatching
		}
		c.mu.Unlock()

		for _, g := range batch {
			if ctx.Err() != nil {
				break
			}
			c.dispatch(ctx, g)
		}

		c.mu.Lock()
		c.state = Idle
		c.mu.Unlock()
	}
}

func (c *Controller) dispatch(ctx context.Context, g Group) {
	log := c.log.With(zap.String("group", string(g)))
	report, err := c.run(ctx, "watch:"+string(g), g.Stages()...)
	switch {
	case err != nil:
		if ctx.Err() == nil {
			log.Error("dispatch errored", zap.Error(err))
		}
		return
	case report.Status() != stage.Completed:
		log.Error("dispatch failed", zap.String("stage", string(report.Halted.Stage)), zap.Error(report.Halted.Err))
		return
	}
	log.Info("rebuilt")
	if c.reload != nil {
		c.reload.Reload()
	}
}

package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"ngbuild/internal/stage"
)

var (
	ErrInvalidPipeline = errors.New("invalid pipeline")
	ErrCycleFound      = errors.New("cycle detected")
)

// GraphError wraps deterministic pipeline validation failures.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidPipeline, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(path []stage.Name) error {
	msg := "cycle"
	if len(path) > 0 {
		names := make([]string, len(path))
		for i, n := range path {
			names[i] = string(n)
		}
		msg = "cycle: " + strings.Join(names, " -> ")
	}
	return &GraphError{Kind: ErrCycleFound, Msg: msg}
}

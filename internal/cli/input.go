package cli

import (
	"context"
	"errors"
	"fmt"

	"ngbuild/internal/ci"
	"ngbuild/internal/config"
	"ngbuild/internal/pipeline"
	"ngbuild/internal/registry"
	"ngbuild/internal/stage"
	"ngbuild/internal/toolchain"
)

const (
	ExitSuccess           = 0
	ExitStageFailure      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
	ExitAborted           = 5
)

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// StageError reports the stage that halted a pipeline.
type StageError struct {
	Pipeline string
	Result   *stage.Result
}

func (e *StageError) Error() string {
	if e.Result.Err == nil {
		return fmt.Sprintf("%s: stage %s %s", e.Pipeline, e.Result.Stage, e.Result.Status)
	}
	return fmt.Sprintf("%s: stage %s %s: %v", e.Pipeline, e.Result.Stage, e.Result.Status, e.Result.Err)
}

func (e *StageError) Unwrap() error { return e.Result.Err }

// ExitCode maps an error returned by Run to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var inv *InvocationError
	if errors.As(err, &inv) {
		return inv.ExitCode
	}

	var se *StageError
	if errors.As(err, &se) {
		if se.Result.Status == stage.Aborted {
			return ExitAborted
		}
		if configProblem(se.Result.Err) {
			return ExitConfigError
		}
		return ExitStageFailure
	}

	if configProblem(err) {
		return ExitConfigError
	}

	var ge *pipeline.GraphError
	if errors.As(err, &ge) {
		return ExitInvalidInvocation
	}

	var status *ci.StatusError
	if errors.As(err, &status) || errors.Is(err, ci.ErrUnreachable) {
		return ExitStageFailure
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ExitStageFailure
	}
	return ExitInternalError
}

func configProblem(err error) bool {
	if err == nil {
		return false
	}
	var ce *config.Error
	var pe *registry.PatternError
	return errors.As(err, &ce) ||
		errors.As(err, &pe) ||
		errors.Is(err, toolchain.ErrToolNotConfigured) ||
		errors.Is(err, ci.ErrNoEndpoint) ||
		errors.Is(err, ci.ErrNoToken)
}

package stage

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// CleanProdQuestion is asked before the production directory is deleted.
const CleanProdQuestion = "WARNING: Executing this task will delete the current production build on this machine. Proceed? (y/n)"

func runClean(_ context.Context, env *Env) (*Result, error) {
	dir := env.Config.BuildRoot()
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("remove %s: %w", env.rel(dir), err)
	}
	env.log().Debug("removed build directory", zap.String("path", env.rel(dir)))
	return &Result{Stage: Clean, Status: Completed}, nil
}

func runCleanProd(ctx context.Context, env *Env) (*Result, error) {
	p := env.Prompter
	if p == nil {
		p = AutoDecline{}
	}
	ok, err := p.Confirm(ctx, CleanProdQuestion)
	if err != nil {
		return nil, fmt.Errorf("confirm: %w", err)
	}
	if !ok {
		env.log().Warn("production clean declined", zap.String("path", env.Config.ProdDir))
		return &Result{Stage: CleanProd, Status: Aborted}, nil
	}

	dir := env.Config.ProdRoot()
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("remove %s: %w", env.rel(dir), err)
	}
	env.log().Debug("removed production directory", zap.String("path", env.rel(dir)))
	return &Result{Stage: CleanProd, Status: Completed}, nil
}

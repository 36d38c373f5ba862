package stage

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"ngbuild/internal/registry"
)

// TestVendorEnv names the variable that lists test-only vendor scripts for
// the test runner.
const TestVendorEnv = "NGBUILD_TEST_VENDOR"

func runLint(ctx context.Context, env *Env) (*Result, error) {
	var paths []string
	for _, c := range []registry.Category{registry.AppScript, registry.BuildScript} {
		files, err := env.Registry.Resolve(c, env.Config.Root)
		if err != nil {
			return failed(Lint, err), nil
		}
		paths = append(paths, registry.Paths(files)...)
	}
	if len(paths) == 0 {
		env.log().Info("nothing to lint")
		return &Result{Stage: Lint, Status: Completed}, nil
	}

	if err := env.Tools.Lint.RunFiles(ctx, paths); err != nil {
		if toolFailure(err) {
			return failed(Lint, err), nil
		}
		return nil, err
	}
	env.log().Debug("lint passed", zap.Int("files", len(paths)))
	return &Result{Stage: Lint, Status: Completed}, nil
}

func runTest(ctx context.Context, env *Env) (*Result, error) {
	vendor, err := env.Registry.Resolve(registry.TestVendorScript, env.Config.Root)
	if err != nil {
		return failed(Test, err), nil
	}
	tool := env.Tools.Test.WithEnv(map[string]string{
		TestVendorEnv: strings.Join(registry.Paths(vendor), " "),
	})
	if err := tool.RunFiles(ctx, nil); err != nil {
		if toolFailure(err) {
			return failed(Test, err), nil
		}
		return nil, err
	}
	return &Result{Stage: Test, Status: Completed}, nil
}

// Package toolchain runs the external programs the build delegates to.
//
// A Tool is a shell command executed with "sh -c". Two call shapes exist:
//
//   - Transform feeds one file on stdin and reads the result from stdout. The
//     source path is available to the command as $1.
//   - RunFiles passes a list of files as positional parameters ("$@") and
//     streams the tool's output. If the command does not mention "$@" it is
//     appended.
//
// Only declared variables reach the tool. PATH and HOME are passed through
// from the host by default; PassEnv names further host variables to forward.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"

	"ngbuild/internal/config"
)

// ErrToolNotConfigured is returned when a tool has no command.
var ErrToolNotConfigured = errors.New("tool not configured")

// ToolError reports a tool that ran and exited non-zero.
type ToolError struct {
	Tool     string
	Path     string
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, msg)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

var defaultPassEnv = []string{"PATH", "HOME"}

// Tool is one configured external command.
type Tool struct {
	Name    string
	Command string
	Env     map[string]string
	PassEnv []string

	// Dir is the working directory, normally the project root.
	Dir string

	// Stdout and Stderr receive streamed output from RunFiles. Nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

// New builds a tool from its configuration.
func New(name string, tc config.ToolConfig, dir string) *Tool {
	env := make(map[string]string, len(tc.Env))
	for k, v := range tc.Env {
		env[k] = v
	}
	return &Tool{
		Name:    name,
		Command: tc.Command,
		Env:     env,
		PassEnv: append([]string(nil), tc.PassEnv...),
		Dir:     dir,
	}
}

// Configured reports whether the tool has a command.
func (t *Tool) Configured() bool {
	return t != nil && strings.TrimSpace(t.Command) != ""
}

// WithEnv returns a copy of t with extra variables declared.
func (t *Tool) WithEnv(extra map[string]string) *Tool {
	cp := *t
	cp.Env = make(map[string]string, len(t.Env)+len(extra))
	for k, v := range t.Env {
		cp.Env[k] = v
	}
	for k, v := range extra {
		cp.Env[k] = v
	}
	return &cp
}

// Transform pipes input through the tool and returns its stdout.
func (t *Tool) Transform(ctx context.Context, path string, input []byte) ([]byte, error) {
	if !t.Configured() {
		return nil, fmt.Errorf("%s: %w", t.name(), ErrToolNotConfigured)
	}
	var stdout, stderr bytes.Buffer
	cmd := t.command(ctx, t.Command, []string{path})
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := t.run(ctx, cmd, path, &stderr); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// RunFiles runs the tool once over files, streaming its output.
func (t *Tool) RunFiles(ctx context.Context, files []string) error {
	if !t.Configured() {
		return fmt.Errorf("%s: %w", t.name(), ErrToolNotConfigured)
	}
	script := t.Command
	if !strings.Contains(script, "$@") {
		script += ` "$@"`
	}

	var stderr bytes.Buffer
	cmd := t.command(ctx, script, files)
	cmd.Stdout = writerOrDiscard(t.Stdout)
	cmd.Stderr = io.MultiWriter(writerOrDiscard(t.Stderr), &stderr)

	return t.run(ctx, cmd, "", &stderr)
}

func (t *Tool) command(ctx context.Context, script string, args []string) *exec.Cmd {
	// "sh -c script name args..." binds args to $1..$n.
	argv := append([]string{"-c", script, t.name()}, args...)
	cmd := exec.CommandContext(ctx, "sh", argv...)
	cmd.Dir = t.Dir
	cmd.Env = t.environ()
	// Own process group so cancellation reaches grandchildren too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	return cmd
}

func (t *Tool) run(ctx context.Context, cmd *exec.Cmd, path string, stderr *bytes.Buffer) error {
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s cancelled: %w", t.name(), ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ToolError{
				Tool:     t.name(),
				Path:     path,
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			}
		}
		return fmt.Errorf("failed to execute %s: %w", t.name(), err)
	}
	return nil
}

// environ builds the allow-listed environment, sorted for stable output.
func (t *Tool) environ() []string {
	vars := make(map[string]string, len(t.Env)+len(defaultPassEnv)+len(t.PassEnv))
	for _, k := range append(append([]string(nil), defaultPassEnv...), t.PassEnv...) {
		if v, ok := os.LookupEnv(k); ok {
			vars[k] = v
		}
	}
	for k, v := range t.Env {
		vars[k] = v
	}
	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func (t *Tool) name() string {
	if t == nil || t.Name == "" {
		return "tool"
	}
	return t.Name
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

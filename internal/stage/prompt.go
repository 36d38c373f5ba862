package stage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// LinePrompter writes the question to Out and reads one line from In. Only
// "y" (any case, surrounding space ignored) confirms.
type LinePrompter struct {
	In  io.Reader
	Out io.Writer
}

func (p LinePrompter) Confirm(ctx context.Context, question string) (bool, error) {
	if p.Out != nil {
		fmt.Fprintf(p.Out, "%s ", question)
	}
	if p.In == nil {
		return false, nil
	}

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.err != io.EOF {
			return false, a.err
		}
		return strings.EqualFold(strings.TrimSpace(a.line), "y"), nil
	}
}

// AutoConfirm answers yes without asking.
type AutoConfirm struct{}

func (AutoConfirm) Confirm(context.Context, string) (bool, error) { return true, nil }

// AutoDecline answers no without asking.
type AutoDecline struct{}

func (AutoDecline) Confirm(context.Context, string) (bool, error) { return false, nil }

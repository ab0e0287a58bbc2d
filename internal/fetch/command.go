package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// ExitError reports an external fetch program that exited non-zero.
type ExitError struct {
	Program string
	Code    int
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Program, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Command runs an external program as the capability. The date is appended
// as the final argument.
type Command struct {
	Program string
	Args    []string
	Dir     string
	Env     []string
}

// NewCommand builds a Command from an argv list.
func NewCommand(argv []string) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("fetch command must not be empty")
	}
	return &Command{Program: argv[0], Args: append([]string(nil), argv[1:]...)}, nil
}

// FetchGearForDate starts the program and resolves once it exits. Both stdout
// and stderr of the child are copied to out.
func (c *Command) FetchGearForDate(ctx context.Context, date string, out io.Writer) Completion {
	args := append(append([]string(nil), c.Args...), date)
	cmd := exec.CommandContext(ctx, c.Program, args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = c.Env
	}
	if out == nil {
		out = io.Discard
	}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return Done(fmt.Errorf("start %s: %w", c.Program, err))
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		err := cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			done <- &ExitError{Program: c.Program, Code: exitErr.ExitCode(), Err: err}
			return
		}
		if err != nil {
			done <- fmt.Errorf("wait %s: %w", c.Program, err)
			return
		}
		done <- nil
	}()
	return done
}

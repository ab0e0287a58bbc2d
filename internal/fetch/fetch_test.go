package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"testing"
)

func TestFuncResolvesImmediately(t *testing.T) {
	calls := 0
	var gotDate string
	capability := Func(func(_ context.Context, date string, out io.Writer) error {
		calls++
		gotDate = date
		_, err := io.WriteString(out, "fetched\n")
		return err
	})

	var buf bytes.Buffer
	c := capability.FetchGearForDate(context.Background(), "2024-01-15", &buf)

	// The work has already happened before anyone awaits.
	if calls != 1 {
		t.Fatalf("calls = %d before Await, want 1", calls)
	}
	select {
	case err := <-c:
		if err != nil {
			t.Fatalf("completion error = %v", err)
		}
	default:
		t.Fatal("expected completion to be resolved")
	}
	if gotDate != "2024-01-15" || buf.String() != "fetched\n" {
		t.Fatalf("date=%q out=%q", gotDate, buf.String())
	}
}

func TestAsyncFuncAwaitWaitsForResult(t *testing.T) {
	release := make(chan struct{})
	capability := AsyncFunc(func(_ context.Context, _ string, _ io.Writer) <-chan error {
		ch := make(chan error, 1)
		go func() {
			<-release
			ch <- errors.New("upstream down")
			close(ch)
		}()
		return ch
	})

	c := capability.FetchGearForDate(context.Background(), "2024-01-15", io.Discard)
	result := make(chan error, 1)
	go func() { result <- Await(c) }()

	select {
	case <-result:
		t.Fatal("Await returned before the work finished")
	default:
	}
	close(release)
	if err := <-result; err == nil || err.Error() != "upstream down" {
		t.Fatalf("Await error = %v, want upstream down", err)
	}
}

func TestAwaitNilAndClosed(t *testing.T) {
	if err := Await(nil); err != nil {
		t.Fatalf("Await(nil) = %v", err)
	}
	ch := make(chan error)
	close(ch)
	if err := Await(ch); err != nil {
		t.Fatalf("Await(closed) = %v", err)
	}
}

func TestNewCommandRejectsEmpty(t *testing.T) {
	if _, err := NewCommand(nil); err == nil {
		t.Fatal("expected error for empty argv")
	}
	if _, err := NewCommand([]string{"  "}); err == nil {
		t.Fatal("expected error for blank program")
	}
}

func requireShell(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell commands not available")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not found")
	}
	return sh
}

func TestCommandAppendsDateAndCapturesOutput(t *testing.T) {
	sh := requireShell(t)
	cmd, err := NewCommand([]string{sh, "-c", `echo "gear for $1"; echo "warn" >&2`, "fetch"})
	if err != nil {
		t.Fatalf("NewCommand returned error: %v", err)
	}

	var buf bytes.Buffer
	if err := Await(cmd.FetchGearForDate(context.Background(), "2024-07-15", &buf)); err != nil {
		t.Fatalf("Await returned error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "gear for 2024-07-15") || !strings.Contains(out, "warn") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCommandPropagatesExitStatus(t *testing.T) {
	sh := requireShell(t)
	cmd, err := NewCommand([]string{sh, "-c", "exit 3", "fetch"})
	if err != nil {
		t.Fatalf("NewCommand returned error: %v", err)
	}

	err = Await(cmd.FetchGearForDate(context.Background(), "2024-07-15", io.Discard))
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v, want *ExitError", err)
	}
	if exitErr.Code != 3 {
		t.Fatalf("Code = %d, want 3", exitErr.Code)
	}
}

func TestCommandStartFailure(t *testing.T) {
	cmd := &Command{Program: "/nonexistent/gear-fetch"}
	if err := Await(cmd.FetchGearForDate(context.Background(), "2024-07-15", io.Discard)); err == nil {
		t.Fatal("expected start error")
	}
}

// Package cron implements the daily gear invoker: resolve today's Melbourne
// date, run the fetch capability once for it and record the run in
// logs/gear_cron.<date>.log.
//
// Control flow is strictly linear (runtime check, date, invocation,
// completion) and the first error ends the run. Retrying is left to whatever
// scheduler launched the process, which sees the exit status.
package cron

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/sstent/gearcron/internal/calendar"
	"github.com/sstent/gearcron/internal/deps"
	"github.com/sstent/gearcron/internal/fetch"
	"github.com/sstent/gearcron/internal/logging"
)

const (
	logPrefix    = "gear_cron"
	errorLogName = "gear_cron.error.log"
)

var (
	// ErrRuntimeMissing reports that the fetch runtime is not installed where configured.
	ErrRuntimeMissing = errors.New("runtime not found")
	// ErrNoCapability reports a run attempted without any fetch capability wired in.
	ErrNoCapability = errors.New("fetch capability not configured")
	// ErrLocked reports another run for the same date holding the run lock.
	ErrLocked = errors.New("another gear_cron run holds the lock")
)

// ExitError carries the process exit status a failed run should end with.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// LogPath returns the per-day run log path.
func LogPath(dir, date string) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s.log", logPrefix, date))
}

// ErrorLogPath returns the path of the runtime error log.
func ErrorLogPath(dir string) string {
	return filepath.Join(dir, errorLogName)
}

func lockPath(dir, date string) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s.lock", logPrefix, date))
}

// Invoker runs the fetch capability once for the current logical date.
type Invoker struct {
	LogDir     string
	Location   *time.Location
	Clock      calendar.Clock
	Runtime    deps.Requirement
	Capability fetch.Capability
	// Lock takes an exclusive per-date file lock for the duration of the run.
	Lock bool
	// Level is the minimum level of diagnostics written to the run log and the
	// terminal. Run markers are always written.
	Level  slog.Leveler
	Stdout io.Writer
	Stderr io.Writer
}

// Run executes one invocation. Failures come back as *ExitError.
func (inv *Invoker) Run(ctx context.Context) error {
	logDir := inv.LogDir
	if logDir == "" {
		logDir = "logs"
	}
	stdout, stderr := inv.Stdout, inv.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("ensure log directory: %w", err)}
	}

	if status := deps.Check(inv.Runtime); !status.Available {
		return inv.runtimeMissing(ctx, logDir, status, stderr)
	}

	loc := inv.Location
	if loc == nil {
		var err error
		if loc, err = calendar.LoadLocation(calendar.DefaultZone); err != nil {
			fmt.Fprintf(stderr, "gear_cron: %v\n", err)
			return &ExitError{Code: 1, Err: err}
		}
	}
	date := calendar.Today(inv.clock(), loc)

	if inv.Lock {
		lock := flock.New(lockPath(logDir, date))
		ok, err := lock.TryLock()
		if err != nil {
			return &ExitError{Code: 1, Err: fmt.Errorf("acquire lock: %w", err)}
		}
		if !ok {
			fmt.Fprintf(stderr, "gear_cron: %v (%s)\n", ErrLocked, lock.Path())
			return &ExitError{Code: 1, Err: ErrLocked}
		}
		defer func() { _ = lock.Unlock() }()
	}

	file, err := logging.OpenAppend(LogPath(logDir, date))
	if err != nil {
		fmt.Fprintf(stderr, "gear_cron: %v\n", err)
		return &ExitError{Code: 1, Err: err}
	}
	defer file.Close()

	level := inv.level()
	logger := slog.New(logging.TeeHandler(
		logging.NewLineHandler(file, level),
		logging.NewTerminalHandler(stdout, level),
	))

	inv.emit(ctx, logger, slog.LevelInfo, "gear_cron start", slog.String("date", date))

	if inv.Capability == nil {
		return inv.fail(ctx, logger, date, ErrNoCapability)
	}
	out := io.MultiWriter(file, stdout)
	fetchCtx := logging.WithLogger(ctx, logger)
	if err := fetch.Await(inv.Capability.FetchGearForDate(fetchCtx, date, out)); err != nil {
		return inv.fail(ctx, logger, date, err)
	}

	inv.emit(ctx, logger, slog.LevelInfo, "gear_cron finished OK", slog.String("date", date))
	return nil
}

func (inv *Invoker) runtimeMissing(ctx context.Context, logDir string, status deps.Status, stderr io.Writer) error {
	err := fmt.Errorf("%w: %s", ErrRuntimeMissing, status.Path)

	file, openErr := logging.OpenAppend(ErrorLogPath(logDir))
	if openErr != nil {
		fmt.Fprintf(stderr, "gear_cron: %v (and %v)\n", err, openErr)
		return &ExitError{Code: 1, Err: err}
	}
	defer file.Close()

	logger := slog.New(logging.TeeHandler(
		logging.NewLineHandler(file, slog.LevelInfo),
		logging.NewTerminalHandler(stderr, slog.LevelInfo),
	))
	inv.emit(ctx, logger, slog.LevelError, "runtime not found", slog.String("path", status.Path))
	return &ExitError{Code: 1, Err: err}
}

func (inv *Invoker) fail(ctx context.Context, logger *slog.Logger, date string, err error) error {
	inv.emit(ctx, logger, slog.LevelError, "gear_cron failed",
		slog.String("date", date),
		slog.String("error", err.Error()),
	)
	code := 1
	var exitErr *fetch.ExitError
	if errors.As(err, &exitErr) && exitErr.Code > 0 {
		code = exitErr.Code
	}
	return &ExitError{Code: code, Err: fmt.Errorf("fetch gear for %s: %w", date, err)}
}

// emit stamps records with the injected clock rather than slog's own time.Now.
func (inv *Invoker) emit(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	handler := logger.Handler()
	if !handler.Enabled(ctx, level) {
		return
	}
	rec := slog.NewRecord(inv.clock().Now(), level, msg, 0)
	rec.AddAttrs(attrs...)
	_ = handler.Handle(ctx, rec)
}

// level caps the configured level at info so the run markers survive.
func (inv *Invoker) level() slog.Level {
	if inv.Level == nil || inv.Level.Level() > slog.LevelInfo {
		return slog.LevelInfo
	}
	return inv.Level.Level()
}

func (inv *Invoker) clock() calendar.Clock {
	if inv.Clock == nil {
		return calendar.SystemClock{}
	}
	return inv.Clock
}

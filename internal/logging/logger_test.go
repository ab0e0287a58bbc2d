package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLineHandlerFormatsUTC(t *testing.T) {
	var buf bytes.Buffer
	h := NewLineHandler(&buf, slog.LevelInfo)

	melbourne := time.FixedZone("AEDT", 11*60*60)
	rec := slog.NewRecord(time.Date(2024, 1, 15, 10, 0, 0, 0, melbourne), slog.LevelInfo, "gear_cron start", 0)
	rec.AddAttrs(slog.String("date", "2024-01-15"))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	want := "2024-01-14T23:00:00Z INFO gear_cron start date=2024-01-15\n"
	if buf.String() != want {
		t.Fatalf("line = %q, want %q", buf.String(), want)
	}
}

func TestLineHandlerComponentAndQuoting(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewLineHandler(&buf, slog.LevelInfo)).With(FieldComponent, "gear")
	logger.Error("fetch failed", "error", errors.New("PF call failed: 502"), "attempts", 2)

	line := buf.String()
	if !strings.Contains(line, " ERROR gear: fetch failed ") {
		t.Fatalf("missing component prefix in %q", line)
	}
	if !strings.Contains(line, `error="PF call failed: 502"`) || !strings.Contains(line, "attempts=2") {
		t.Fatalf("unexpected attrs in %q", line)
	}
}

func TestLineHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewLineHandler(&buf, slog.LevelWarn))
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
}

func TestLineHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewLineHandler(&buf, slog.LevelInfo)).WithGroup("pf")
	logger.Info("request", "status", 200)
	if !strings.Contains(buf.String(), "pf.status=200") {
		t.Fatalf("expected grouped key, got %q", buf.String())
	}
}

func TestTeeHandlerDuplicates(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(TeeHandler(NewLineHandler(&a, slog.LevelInfo), nil, NewLineHandler(&b, slog.LevelInfo)))
	logger.Info("finished OK")
	if !strings.Contains(a.String(), "finished OK") || a.String() != b.String() {
		t.Fatalf("tee mismatch: %q vs %q", a.String(), b.String())
	}
}

func TestTeeHandlerCollapses(t *testing.T) {
	if _, ok := TeeHandler(nil, nil).(noopHandler); !ok {
		t.Fatal("expected noop handler for all-nil input")
	}
	var buf bytes.Buffer
	inner := NewLineHandler(&buf, nil)
	if TeeHandler(inner) != inner {
		t.Fatal("expected single handler to be returned unwrapped")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewJSONUsesTSKey(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "json", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("json message", "k", "v")
	out := buf.String()
	if !strings.Contains(out, `"ts":`) || !strings.Contains(out, `"level":"debug"`) {
		t.Fatalf("unexpected json output %q", out)
	}
}

func TestTerminalHandlerWithoutTTYHasNoColour(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTerminalHandler(&buf, slog.LevelInfo))
	logger.Info("plain")
	if strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("expected no ANSI escapes, got %q", buf.String())
	}
	if IsTerminal(&buf) {
		t.Fatal("buffer reported as terminal")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"invalid": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOpenAppendCreatesDirectoryAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gear_cron.2024-01-15.log")
	for _, line := range []string{"first\n", "second\n"} {
		f, err := OpenAppend(path)
		if err != nil {
			t.Fatalf("OpenAppend returned error: %v", err)
		}
		if _, err := f.WriteString(line); err != nil {
			t.Fatalf("write: %v", err)
		}
		_ = f.Close()
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(content) != "first\nsecond\n" {
		t.Fatalf("content = %q", content)
	}
}

func TestTeeHandlerKeepsAttrsPerHandler(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(TeeHandler(NewLineHandler(&a, slog.LevelDebug), NewLineHandler(&b, slog.LevelWarn)))
	logger.With(FieldComponent, "pf").Debug("pf request", "status", 403)
	if !strings.Contains(a.String(), "pf: pf request status=403") {
		t.Fatalf("debug handler missed record: %q", a.String())
	}
	if b.Len() != 0 {
		t.Fatalf("warn handler received debug record: %q", b.String())
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	fallback := slog.New(NewLineHandler(&buf, slog.LevelInfo))
	if FromContext(context.Background(), fallback, "gear") != fallback {
		t.Fatal("expected fallback without a context logger")
	}
	if FromContext(context.Background(), nil, "gear") == nil {
		t.Fatal("expected a nop logger, got nil")
	}

	var runLog bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(NewLineHandler(&runLog, slog.LevelDebug)))
	FromContext(ctx, fallback, "gear").Debug("meeting collected")
	if !strings.Contains(runLog.String(), "DEBUG gear: meeting collected") {
		t.Fatalf("context logger not used: %q", runLog.String())
	}
	if buf.Len() != 0 {
		t.Fatalf("fallback written: %q", buf.String())
	}
}

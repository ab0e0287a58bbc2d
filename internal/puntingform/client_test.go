package puntingform_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sstent/gearcron/internal/logging"
	"github.com/sstent/gearcron/internal/puntingform"
)

func newServer(t *testing.T, handler http.HandlerFunc) *puntingform.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return puntingform.New("key", puntingform.WithBaseURL(server.URL))
}

func TestGetJSONUnwrapsPayload(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key" {
			t.Fatalf("expected X-Api-Key header, got %q", r.Header.Get("X-Api-Key"))
		}
		if r.URL.Path != "/Updates/Scratchings" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"statusCode":200,"payLoad":[{"meetingId":7}]}`))
	})

	items, err := client.GetJSONList(context.Background(), puntingform.PathScratchings, nil)
	if err != nil {
		t.Fatalf("GetJSONList returned error: %v", err)
	}
	if len(items) != 1 || items[0]["meetingId"] != float64(7) {
		t.Fatalf("unexpected items %#v", items)
	}
}

func TestGetJSONFallsBackToQueryKey(t *testing.T) {
	var sawQuery bool
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("header auth disabled"))
			return
		}
		if r.URL.Query().Get("apiKey") != "key" {
			t.Fatalf("expected apiKey query, got %q", r.URL.RawQuery)
		}
		sawQuery = true
		_, _ = w.Write([]byte(`[{"track":"Flemington"}]`))
	})

	payload, err := client.GetJSON(context.Background(), puntingform.PathConditions, nil)
	if err != nil {
		t.Fatalf("GetJSON returned error: %v", err)
	}
	if !sawQuery {
		t.Fatal("expected query-parameter attempt")
	}
	if list, ok := payload.([]any); !ok || len(list) != 1 {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

func TestGetJSONAllAttemptsFail(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("nope"))
	})

	_, err := client.GetJSON(context.Background(), puntingform.PathConditions, nil)
	var statusErr *puntingform.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.LastErr != "403 nope" {
		t.Fatalf("LastErr = %q", statusErr.LastErr)
	}
}

func TestMissingAPIKey(t *testing.T) {
	client := puntingform.New("")
	if _, err := client.GetJSON(context.Background(), puntingform.PathConditions, nil); !errors.Is(err, puntingform.ErrMissingAPIKey) {
		t.Fatalf("GetJSON error = %v, want ErrMissingAPIKey", err)
	}
	if _, err := client.GetCSV(context.Background(), puntingform.PathFormCSV, nil); !errors.Is(err, puntingform.ErrMissingAPIKey) {
		t.Fatalf("GetCSV error = %v, want ErrMissingAPIKey", err)
	}
	raw, err := client.GetCSVRaw(context.Background(), puntingform.PathFormCSV, nil)
	if err != nil || raw.OK || raw.Error != "PF_API_KEY not set" {
		t.Fatalf("GetCSVRaw = %#v, %v", raw, err)
	}
}

func TestGetCSVParsesRowsAndPassesParams(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("meetingId") != "42" || r.URL.Query().Get("raceNumber") != "3" {
			t.Fatalf("unexpected query %q", r.URL.RawQuery)
		}
		if r.Header.Get("Accept") != "text/csv" {
			t.Fatalf("Accept = %q", r.Header.Get("Accept"))
		}
		_, _ = w.Write([]byte("\uFEFFTrack Name,Horse Name,GearChanges\r\nFlemington,Bold Runner,Blinkers first time\r\n"))
	})

	rows, err := client.GetCSV(context.Background(), puntingform.PathFormCSV, url.Values{"meetingId": {"42"}, "raceNumber": {"3"}})
	if err != nil {
		t.Fatalf("GetCSV returned error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0]["Track Name"] != "Flemington" || rows[0]["GearChanges"] != "Blinkers first time" {
		t.Fatalf("unexpected row %#v", rows[0])
	}
}

func TestGetCSVFailureIsEmpty(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	rows, err := client.GetCSV(context.Background(), puntingform.PathFormCSV, nil)
	if err != nil {
		t.Fatalf("GetCSV returned error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %v, want empty", rows)
	}
}

func TestGetCSVRawReportsColumns(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("RaceNumber,HorseName\n1,Alpha\n2,Beta\n"))
	})
	raw, err := client.GetCSVRaw(context.Background(), puntingform.PathFormCSV, nil)
	if err != nil {
		t.Fatalf("GetCSVRaw returned error: %v", err)
	}
	if !raw.OK || len(raw.Columns) != 2 || raw.FirstRow["HorseName"] != "Alpha" {
		t.Fatalf("unexpected raw result %#v", raw)
	}
}

func TestGetCSVRawReportsTries(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad key"))
	})
	raw, err := client.GetCSVRaw(context.Background(), puntingform.PathFormCSV, nil)
	if err != nil {
		t.Fatalf("GetCSVRaw returned error: %v", err)
	}
	if raw.OK || len(raw.Tries) != 2 {
		t.Fatalf("unexpected raw result %#v", raw)
	}
	if raw.Tries[0].StatusCode != http.StatusUnauthorized || raw.Tries[0].Preview != "bad key" {
		t.Fatalf("unexpected first try %#v", raw.Tries[0])
	}
}

func TestParseCSVEmpty(t *testing.T) {
	rows, columns, err := puntingform.ParseCSV([]byte("\r\n"))
	if err != nil || rows != nil || columns != nil {
		t.Fatalf("ParseCSV(empty) = %v, %v, %v", rows, columns, err)
	}
}

func TestWithTimeoutLeavesSharedClientAlone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(server.Close)

	shared := &http.Client{Timeout: time.Minute}
	client := puntingform.New("key",
		puntingform.WithBaseURL(server.URL),
		puntingform.WithHTTPClient(shared),
		puntingform.WithTimeout(20*time.Millisecond),
	)
	if shared.Timeout != time.Minute {
		t.Fatalf("shared client timeout changed to %v", shared.Timeout)
	}

	_, err := client.GetJSON(context.Background(), puntingform.PathConditions, nil)
	var statusErr *puntingform.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected timeout to fail both attempts, got %v", err)
	}
}

func TestDiagnosticsUseContextLogger(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("denied"))
	})

	var runLog bytes.Buffer
	ctx := logging.WithLogger(context.Background(), slog.New(logging.NewLineHandler(&runLog, slog.LevelDebug)))
	rows, err := client.GetCSV(ctx, puntingform.PathFormCSV, nil)
	if err != nil || rows != nil {
		t.Fatalf("expected empty result, got %v, %v", rows, err)
	}
	if !strings.Contains(runLog.String(), "DEBUG pf: pf csv attempt rejected") {
		t.Fatalf("diagnostics not written to context logger: %q", runLog.String())
	}
}

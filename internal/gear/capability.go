package gear

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sstent/gearcron/internal/calendar"
	"github.com/sstent/gearcron/internal/db"
	"github.com/sstent/gearcron/internal/fetch"
)

// SnapshotStore persists fetched reports.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, date string, fetchedAt time.Time, meetings, runners int, payload []byte) (db.SyncResult, error)
}

// Capability exposes the service as the cron's fetch capability. The fetch
// runs on its own goroutine; the completion resolves once the report has been
// written to out and, when store is non-nil, saved.
func (s *Service) Capability(store SnapshotStore, clock calendar.Clock) fetch.Capability {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return fetch.AsyncFunc(func(ctx context.Context, date string, out io.Writer) <-chan error {
		done := make(chan error, 1)
		go func() {
			defer close(done)
			done <- s.runOnce(ctx, store, clock, date, out)
		}()
		return done
	})
}

func (s *Service) runOnce(ctx context.Context, store SnapshotStore, clock calendar.Clock, date string, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	report, err := s.FetchGearForDate(ctx, date)
	if err != nil {
		return err
	}
	if err := WriteSummary(out, report); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if _, err := fmt.Fprintf(out, "%s\n", payload); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if store == nil {
		return nil
	}
	meetings, runners := report.Counts()
	res, err := store.SaveSnapshot(ctx, date, clock.Now(), meetings, runners, payload)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	state := "unchanged"
	if res.Inserted {
		state = "new"
	}
	_, err = fmt.Fprintf(out, "snapshot %s id=%s\n", state, res.ID)
	return err
}

// WriteSummary prints one line per meeting followed by a totals line.
func WriteSummary(w io.Writer, report *Report) error {
	for _, m := range report.Meetings {
		id := "-"
		if m.MeetingID != nil {
			id = fmt.Sprint(*m.MeetingID)
		}
		changes := 0
		for _, race := range m.Races {
			changes += len(race.Runners)
		}
		if _, err := fmt.Fprintf(w, "meeting id=%s name=%q races=%d gear_changes=%d\n",
			id, deref(m.Meeting), len(m.Races), changes); err != nil {
			return err
		}
	}
	meetings, runners := report.Counts()
	_, err := fmt.Fprintf(w, "date=%s meetings=%d gear_changes=%d\n", report.Date, meetings, runners)
	return err
}

package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SyncResult reports what SaveSnapshot did.
type SyncResult struct {
	ID       string
	Inserted bool
}

// SaveSnapshot records a fetched report for date. When the latest stored
// snapshot for the date has an identical payload only its fetch time is
// bumped; otherwise a new row is inserted so intra-day changes are kept.
func (d *SQLiteDatabase) SaveSnapshot(ctx context.Context, date string, fetchedAt time.Time, meetings, runners int, payload []byte) (SyncResult, error) {
	latest, err := d.Latest(ctx, date)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return SyncResult{}, fmt.Errorf("failed to get local snapshot: %w", err)
	}

	if latest != nil && bytes.Equal(latest.Payload, payload) {
		if err := d.Touch(ctx, latest.ID, fetchedAt); err != nil {
			return SyncResult{}, err
		}
		return SyncResult{ID: latest.ID}, nil
	}

	snapshot := Snapshot{
		ID:        uuid.NewString(),
		Date:      date,
		FetchedAt: fetchedAt,
		Meetings:  meetings,
		Runners:   runners,
		Payload:   payload,
	}
	if err := d.Insert(ctx, snapshot); err != nil {
		return SyncResult{}, err
	}
	return SyncResult{ID: snapshot.ID, Inserted: true}, nil
}

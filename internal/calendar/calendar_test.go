package calendar

import (
	"errors"
	"testing"
	"time"
)

func melbourne(t *testing.T) *time.Location {
	t.Helper()
	loc, err := LoadLocation("")
	if err != nil {
		t.Fatalf("LoadLocation returned error: %v", err)
	}
	return loc
}

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return ts
}

func TestLogicalDateMelbourne(t *testing.T) {
	loc := melbourne(t)
	tests := []struct {
		name string
		now  string
		want string
	}{
		{name: "summer time", now: "2024-01-15T10:00:00+11:00", want: "2024-01-15"},
		{name: "winter time", now: "2024-07-15T10:00:00+10:00", want: "2024-07-15"},
		// Local midnight is still the previous day in UTC.
		{name: "after local midnight in summer", now: "2024-01-14T13:30:00Z", want: "2024-01-15"},
		{name: "before local midnight in summer", now: "2024-01-14T12:59:59Z", want: "2024-01-14"},
		{name: "after local midnight in winter", now: "2024-07-14T14:00:00Z", want: "2024-07-15"},
		{name: "before local midnight in winter", now: "2024-07-14T13:59:59Z", want: "2024-07-14"},
		// 2024-04-07 03:00 AEDT falls back to 02:00 AEST; 02:30 happens twice.
		{name: "first 02:30 on fall-back day", now: "2024-04-07T02:30:00+11:00", want: "2024-04-07"},
		{name: "second 02:30 on fall-back day", now: "2024-04-07T02:30:00+10:00", want: "2024-04-07"},
		// 2024-10-06 02:00 AEST springs forward to 03:00 AEDT.
		{name: "spring-forward instant", now: "2024-10-05T16:00:00Z", want: "2024-10-06"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LogicalDate(mustParse(t, tt.now), loc); got != tt.want {
				t.Fatalf("LogicalDate(%s) = %q, want %q", tt.now, got, tt.want)
			}
		})
	}
}

func TestFallBackHourResolvesToOneDate(t *testing.T) {
	loc := melbourne(t)
	start := mustParse(t, "2024-04-06T15:00:00Z") // 02:00 AEDT
	for offset := time.Duration(0); offset < 2*time.Hour; offset += 15 * time.Minute {
		if got := LogicalDate(start.Add(offset), loc); got != "2024-04-07" {
			t.Fatalf("offset %v: got %q, want 2024-04-07", offset, got)
		}
	}
}

func TestTodayUsesClock(t *testing.T) {
	clock := FixedClock(mustParse(t, "2024-01-15T10:00:00+11:00"))
	if got := Today(clock, melbourne(t)); got != "2024-01-15" {
		t.Fatalf("Today = %q, want 2024-01-15", got)
	}
}

func TestLoadLocationUnknownZone(t *testing.T) {
	if _, err := LoadLocation("Mars/Olympus_Mons"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}

func TestParseDate(t *testing.T) {
	if _, err := ParseDate("2024-02-29"); err != nil {
		t.Fatalf("ParseDate leap day returned error: %v", err)
	}
	for _, bad := range []string{"", "2024-2-29", "29-02-2024", "2023-02-29", "2024-13-01"} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParseDate(%q) error = %v, want ErrInvalidDate", bad, err)
		}
	}
}

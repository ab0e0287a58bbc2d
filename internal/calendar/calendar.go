// Package calendar resolves the civil "today" the gear cron runs for.
//
// Wall-clock time is always supplied through a Clock so the date boundary and
// daylight-saving behaviour can be tested against fixed instants.
package calendar

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	// Hosts without zoneinfo still need Australia/Melbourne.
	_ "time/tzdata"
)

// DefaultZone is the civil timezone gear days are counted in.
const DefaultZone = "Australia/Melbourne"

// DateLayout is the YYYY-MM-DD layout used for logical dates.
const DateLayout = "2006-01-02"

// ErrInvalidDate reports a date string that is not a real YYYY-MM-DD date.
var ErrInvalidDate = errors.New("invalid date")

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }

// LoadLocation resolves an IANA zone name, defaulting to DefaultZone.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// LogicalDate returns the civil date of now observed in loc.
func LogicalDate(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(DateLayout)
}

// Today returns the logical date for the clock's current instant.
func Today(clock Clock, loc *time.Location) string {
	if clock == nil {
		clock = SystemClock{}
	}
	return LogicalDate(clock.Now(), loc)
}

// ParseDate validates s as a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !datePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidDate, s)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidDate, s, err)
	}
	return t, nil
}

package gear

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sstent/gearcron/internal/calendar"
	"github.com/sstent/gearcron/internal/logging"
	"github.com/sstent/gearcron/internal/puntingform"
)

const (
	maxRaces            = 15
	maxConsecutiveEmpty = 2
)

// Source is the subset of the Punting Form client the collector uses.
type Source interface {
	GetJSONList(ctx context.Context, path string, params url.Values) ([]map[string]any, error)
	GetCSV(ctx context.Context, path string, params url.Values) ([]puntingform.Row, error)
	GetCSVRaw(ctx context.Context, path string, params url.Values) (*puntingform.RawResult, error)
}

var _ Source = (*puntingform.Client)(nil)

// Runner is one gear change for a runner in a race.
type Runner struct {
	RunnerNumber *int    `json:"runner_number"`
	HorseName    *string `json:"horse_name"`
	RunnerID     *int    `json:"runner_id"`
	GearChange   string  `json:"gear_change"`
}

// Race groups the gear changes of one race.
type Race struct {
	RaceNumber int      `json:"race_number"`
	Runners    []Runner `json:"runners"`
}

// Meeting is one race meeting on the requested date.
type Meeting struct {
	MeetingID *int    `json:"meeting_id"`
	Meeting   *string `json:"meeting"`
	Races     []Race  `json:"races"`
}

// Report is the gear change summary for one date.
type Report struct {
	Date     string    `json:"date"`
	Meetings []Meeting `json:"meetings"`
}

// Counts returns the number of meetings and gear-change runners in r.
func (r *Report) Counts() (meetings, runners int) {
	if r == nil {
		return 0, 0
	}
	for _, m := range r.Meetings {
		for _, race := range m.Races {
			runners += len(race.Runners)
		}
	}
	return len(r.Meetings), runners
}

// MeetingRef identifies a meeting found during discovery.
type MeetingRef struct {
	MeetingID *int    `json:"meeting_id"`
	Meeting   *string `json:"meeting"`
}

func (m MeetingRef) key() string {
	id := 0
	if m.MeetingID != nil {
		id = *m.MeetingID
	}
	venue := ""
	if m.Meeting != nil {
		venue = strings.ToLower(*m.Meeting)
	}
	return strconv.Itoa(id) + "|" + venue
}

// DebugMeetings lists what each discovery source returned for a date.
type DebugMeetings struct {
	Date           string       `json:"date"`
	FromMeetingCSV []MeetingRef `json:"from_meeting_csv"`
	FromUpdates    []MeetingRef `json:"from_updates"`
}

// Service collects gear changes from Punting Form.
type Service struct {
	source Source
	logger *slog.Logger
}

// NewService wires a collector to its data source.
func NewService(source Source, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{source: source, logger: logger.With(logging.FieldComponent, "gear")}
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger, "gear")
}

// FetchGearForDate builds the gear report for a YYYY-MM-DD date.
func (s *Service) FetchGearForDate(ctx context.Context, date string) (*Report, error) {
	if _, err := calendar.ParseDate(date); err != nil {
		return nil, err
	}
	meetings, err := s.meetingsForDate(ctx, date)
	if err != nil {
		return nil, err
	}

	report := &Report{Date: date, Meetings: make([]Meeting, 0, len(meetings))}
	for _, ref := range meetings {
		if ref.MeetingID == nil {
			report.Meetings = append(report.Meetings, Meeting{Meeting: ref.Meeting, Races: []Race{}})
			continue
		}
		rows, trackName, err := s.gearForMeeting(ctx, *ref.MeetingID)
		if err != nil {
			return nil, err
		}
		label := ref.Meeting
		if trackName != "" {
			label = &trackName
		}
		report.Meetings = append(report.Meetings, Meeting{
			MeetingID: ref.MeetingID,
			Meeting:   label,
			Races:     groupRaces(rows),
		})
		s.log(ctx).Debug("meeting collected",
			slog.Int("meeting_id", *ref.MeetingID),
			slog.Int("gear_changes", len(rows)),
		)
	}
	return report, nil
}

// DebugMeetings reports both discovery sources separately.
func (s *Service) DebugMeetings(ctx context.Context, date string) (*DebugMeetings, error) {
	if _, err := calendar.ParseDate(date); err != nil {
		return nil, err
	}
	fromCSV, err := s.meetingsFromMeetingCSV(ctx, date)
	if err != nil {
		return nil, err
	}
	fromUpdates, err := s.meetingsFromUpdates(ctx, date)
	if err != nil {
		return nil, err
	}
	return &DebugMeetings{Date: date, FromMeetingCSV: fromCSV, FromUpdates: fromUpdates}, nil
}

// DebugFormCSV probes the form CSV for a meeting and reports raw results.
func (s *Service) DebugFormCSV(ctx context.Context, meetingID int) (*puntingform.RawResult, error) {
	params := url.Values{}
	params.Set("meetingId", strconv.Itoa(meetingID))
	params.Set("raceNumber", "0")
	return s.source.GetCSVRaw(ctx, puntingform.PathFormCSV, params)
}

func (s *Service) meetingsForDate(ctx context.Context, date string) ([]MeetingRef, error) {
	fromCSV, err := s.meetingsFromMeetingCSV(ctx, date)
	if err != nil {
		return nil, err
	}
	fromUpdates, err := s.meetingsFromUpdates(ctx, date)
	if err != nil {
		return nil, err
	}
	return dedupeMeetings(append(fromCSV, fromUpdates...)), nil
}

func dedupeMeetings(refs []MeetingRef) []MeetingRef {
	seen := make(map[string]struct{}, len(refs))
	out := make([]MeetingRef, 0, len(refs))
	for _, ref := range refs {
		key := ref.key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ref)
	}
	return out
}

func dmy(date string) string {
	t, err := time.Parse(calendar.DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("02-01-2006")
}

// meetingsFromMeetingCSV tries every parameter spelling the meeting CSV has
// accepted over time, in both date orders.
func (s *Service) meetingsFromMeetingCSV(ctx context.Context, date string) ([]MeetingRef, error) {
	alt := dmy(date)
	tries := []url.Values{
		{"meetingDate": {date}},
		{"date": {date}},
		{"meeting_date": {date}},
		{"meetingDate": {alt}},
		{"date": {alt}},
	}
	var refs []MeetingRef
	for _, params := range tries {
		rows, err := s.source.GetCSV(ctx, puntingform.PathMeetingCSV, params)
		if err != nil {
			return nil, err
		}
		for _, raw := range rows {
			c := canoniseRow(raw)
			refs = append(refs, MeetingRef{
				MeetingID: c.meetingID(),
				Meeting:   optional(c.first("venue", "track", "course", "meeting")),
			})
		}
	}
	return dedupeMeetings(refs), nil
}

// meetingsFromUpdates harvests meeting ids from the scratchings and track
// condition feeds. Items with no recognisable date are assumed to belong to
// the requested date.
func (s *Service) meetingsFromUpdates(ctx context.Context, date string) ([]MeetingRef, error) {
	feeds := []struct {
		path     string
		dateKeys []string
	}{
		{puntingform.PathScratchings, []string{"meeting_date", "meetingdate", "meetingdateutc", "timestamp"}},
		{puntingform.PathConditions, []string{"meeting_date", "meetingdate", "last_update", "timestamp"}},
	}

	byID := make(map[int]MeetingRef)
	var order []int
	for _, feed := range feeds {
		items, err := s.source.GetJSONList(ctx, feed.path, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", feed.path, err)
		}
		for _, item := range items {
			c := canoniseObject(item)
			itemDate := normaliseDate(c.first(feed.dateKeys...))
			if itemDate == "" {
				itemDate = date
			}
			if itemDate != date {
				continue
			}
			id := c.meetingID()
			if id == nil {
				continue
			}
			if _, ok := byID[*id]; ok {
				continue
			}
			byID[*id] = MeetingRef{MeetingID: id, Meeting: optional(c.first("track", "venue"))}
			order = append(order, *id)
		}
	}

	refs := make([]MeetingRef, 0, len(order))
	for _, id := range order {
		refs = append(refs, byID[id])
	}
	return refs, nil
}

type gearRow struct {
	race   int
	runner Runner
}

// gearForMeeting walks the form CSV race by race so each gear change is tied
// to its race, stopping after two consecutive empty races.
func (s *Service) gearForMeeting(ctx context.Context, meetingID int) ([]gearRow, string, error) {
	var (
		out       []gearRow
		trackName string
		empty     int
	)
	for race := 1; race <= maxRaces; race++ {
		params := url.Values{}
		params.Set("meetingId", strconv.Itoa(meetingID))
		params.Set("raceNumber", strconv.Itoa(race))
		rows, err := s.source.GetCSV(ctx, puntingform.PathFormCSV, params)
		if err != nil {
			return nil, "", err
		}
		if len(rows) == 0 {
			empty++
			if empty >= maxConsecutiveEmpty {
				break
			}
			continue
		}
		empty = 0

		for _, raw := range rows {
			c := canoniseRow(raw)
			if trackName == "" {
				trackName = strings.TrimSpace(c["track_name"])
			}
			// Only the current race's column; historical form lines carry
			// their own GearChanges that must not leak in.
			change := strings.TrimSpace(c["gearchanges"])
			if change == "" || c.scratched() {
				continue
			}
			runner := Runner{
				RunnerNumber: c.runnerNumber(),
				HorseName:    c.horseName(),
				RunnerID:     parseID(c["runner_id"]),
				GearChange:   change,
			}
			if runner.HorseName == nil && runner.RunnerID == nil {
				continue
			}
			out = append(out, gearRow{race: race, runner: runner})
		}
	}
	return out, trackName, nil
}

func groupRaces(rows []gearRow) []Race {
	byRace := make(map[int][]Runner)
	for _, row := range rows {
		byRace[row.race] = append(byRace[row.race], row.runner)
	}
	numbers := make([]int, 0, len(byRace))
	for n := range byRace {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	races := make([]Race, 0, len(numbers))
	for _, n := range numbers {
		runners := byRace[n]
		sort.SliceStable(runners, func(i, j int) bool { return runnerLess(runners[i], runners[j]) })
		races = append(races, Race{RaceNumber: n, Runners: runners})
	}
	return races
}

// runnerLess orders by runner number with unnumbered runners last, then by
// folded horse name.
func runnerLess(a, b Runner) bool {
	if (a.RunnerNumber == nil) != (b.RunnerNumber == nil) {
		return b.RunnerNumber == nil
	}
	if a.RunnerNumber != nil && *a.RunnerNumber != *b.RunnerNumber {
		return *a.RunnerNumber < *b.RunnerNumber
	}
	return NormName(deref(a.HorseName)) < NormName(deref(b.HorseName))
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

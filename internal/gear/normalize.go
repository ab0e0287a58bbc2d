package gear

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sstent/gearcron/internal/puntingform"
)

var (
	nonAlnumRun   = regexp.MustCompile(`[^a-z0-9]+`)
	whitespaceRun = regexp.MustCompile(`\s+`)
	isoPrefix     = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[T ]`)
	ymdExact      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dmyExact      = regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{4})$`)
)

// Column aliases seen across Punting Form exports, checked in order.
var (
	runnerNumberKeys = []string{
		"runner_number", "runnernumber", "no", "number",
		"saddle_number", "saddlenumber", "saddle_no",
		"tab_no", "tabno", "cloth", "cloth_number", "program_number",
	}
	horseNameKeys = []string{"horse_name", "runnername", "name", "horse"}
	scratchKeys   = []string{"scratched", "is_scratched", "scratch"}
	meetingIDKeys = []string{"meeting_id", "meetingid"}
)

// record is a row with snake_case keys and string values.
type record map[string]string

// snakify lowercases s and collapses every non-alphanumeric run to "_".
func snakify(s string) string {
	return nonAlnumRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
}

func canoniseRow(row puntingform.Row) record {
	out := make(record, len(row))
	for k, v := range row {
		out[snakify(k)] = v
	}
	return out
}

func canoniseObject(obj map[string]any) record {
	out := make(record, len(obj))
	for k, v := range obj {
		out[snakify(k)] = stringify(v)
	}
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// first returns the first non-empty value among keys.
func (r record) first(keys ...string) string {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// parseID parses a positive identifier; zero and garbage mean "absent".
func parseID(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n == 0 {
		return nil
	}
	return &n
}

func (r record) runnerNumber() *int { return parseID(r.first(runnerNumberKeys...)) }

func (r record) meetingID() *int { return parseID(r.first(meetingIDKeys...)) }

func (r record) horseName() *string {
	v := strings.TrimSpace(r.first(horseNameKeys...))
	if v == "" {
		return nil
	}
	return &v
}

func (r record) scratched() bool {
	switch strings.ToLower(strings.TrimSpace(r.first(scratchKeys...))) {
	case "1", "true", "y", "yes", "t":
		return true
	default:
		return false
	}
}

// NormName folds a horse name for comparison: NFKD, combining marks dropped,
// lowercase, punctuation collapsed to single spaces.
func NormName(name string) string {
	if name == "" {
		return ""
	}
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = nonAlnumRun.ReplaceAllString(strings.ToLower(folded), " ")
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(folded, " "))
}

// normaliseDate accepts YYYY-MM-DD, an ISO timestamp or DD-MM-YYYY and returns
// YYYY-MM-DD, or "" when the value is none of those.
func normaliseDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if m := isoPrefix.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if ymdExact.MatchString(s) {
		return s
	}
	if m := dmyExact.FindStringSubmatch(s); m != nil {
		return m[3] + "-" + m[2] + "-" + m[1]
	}
	return ""
}

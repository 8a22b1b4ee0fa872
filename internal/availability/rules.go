package availability

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const metadataKey = "_metadata"

var (
	ErrMalformedRules  = errors.New("malformed availability rules")
	ErrInvalidInterval = errors.New("end must be after start")
)

// RulesError describes why a rules blob was rejected.
type RulesError struct {
	Key    string
	Reason string
}

func (e *RulesError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s", ErrMalformedRules, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrMalformedRules, e.Key, e.Reason)
}

func (e *RulesError) Unwrap() error {
	return ErrMalformedRules
}

var weekdayNames = [7]string{
	time.Sunday:    "sunday",
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
}

// WeekdayName returns the rules key for a weekday.
func WeekdayName(day time.Weekday) string {
	return weekdayNames[day]
}

// ParseWeekday maps a rules key to a weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for day, n := range weekdayNames {
		if n == name {
			return time.Weekday(day), true
		}
	}
	return 0, false
}

// Clock is a wall-clock time of day in minutes after midnight.
type Clock int

// ParseClock accepts 24-hour "HH:MM" and "H:MM".
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock(h*60 + m), nil
}

// ClockOf returns the wall-clock position of t, truncated to the minute.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant of c on the calendar date of day, in day's location.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, day.Location())
}

// Window is an open interval within one day.
type Window struct {
	Start Clock
	End   Clock
}

// DefaultWindow applies to resources that carry no rules at all.
var DefaultWindow = Window{Start: 9 * 60, End: 17 * 60}

// ParseWindow parses "HH:MM-HH:MM".
func ParseWindow(s string) (Window, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return Window{}, fmt.Errorf("window %q is not HH:MM-HH:MM", s)
	}
	start, err := ParseClock(from)
	if err != nil {
		return Window{}, err
	}
	end, err := ParseClock(to)
	if err != nil {
		return Window{}, err
	}
	if start >= end {
		return Window{}, fmt.Errorf("window %q starts at or after its end", s)
	}
	return Window{Start: start, End: end}, nil
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Contains reports whether iv lies inside the window on the date iv starts.
// Seconds are significant, so 16:59:30-17:00:30 does not fit a window ending at 17:00.
func (w Window) Contains(iv Interval) bool {
	if !sameDate(iv.Start, iv.End) {
		return false
	}
	return !iv.Start.Before(w.Start.On(iv.Start)) && !iv.End.After(w.End.On(iv.Start))
}

// Schedule maps weekdays to their open window. A missing weekday is closed.
type Schedule map[time.Weekday]Window

func (s Schedule) WindowFor(day time.Weekday) (Window, bool) {
	w, ok := s[day]
	return w, ok
}

// Strings renders the schedule keyed by weekday name.
func (s Schedule) Strings() map[string]string {
	out := make(map[string]string, len(s))
	for day, w := range s {
		out[WeekdayName(day)] = w.String()
	}
	return out
}

func (s Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// ParseDays builds a rule set from weekday-name keys. Empty values are
// treated as closed days.
func ParseDays(days map[string]string) (RuleSet, error) {
	m := make(map[string]any, len(days))
	for k, v := range days {
		m[k] = v
	}
	return ParseMap(m)
}

// ParseSchedule is ParseDays reduced to the open windows.
func ParseSchedule(days map[string]string) (Schedule, error) {
	set, err := ParseDays(days)
	if err != nil {
		return nil, err
	}
	return set.Schedule, nil
}

// RuleSet is a decoded rules blob: the weekly schedule and the approval flag
// kept apart.
type RuleSet struct {
	Schedule         Schedule
	RequiresApproval bool
	// Declared is set when the blob names at least one weekday, even if
	// every named day is closed.
	Declared bool
}

// Parse decodes a JSON rules blob. An empty blob yields an empty schedule.
func Parse(raw string) (RuleSet, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return RuleSet{Schedule: Schedule{}}, nil
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return RuleSet{}, &RulesError{Reason: "not a JSON object"}
	}
	return ParseMap(m)
}

// ParseMap decodes an already unmarshalled rules mapping. The _metadata key is
// read for flags and never becomes part of the schedule; keys that are not
// weekday names are ignored.
func ParseMap(m map[string]any) (RuleSet, error) {
	set := RuleSet{Schedule: make(Schedule, len(m))}

	for key, value := range m {
		if key == metadataKey {
			approval, err := readApproval(value)
			if err != nil {
				return RuleSet{}, err
			}
			set.RequiresApproval = approval
			continue
		}

		day, ok := ParseWeekday(key)
		if !ok {
			continue
		}
		set.Declared = true

		s, ok := value.(string)
		if !ok {
			if value == nil {
				continue
			}
			return RuleSet{}, &RulesError{Key: key, Reason: "window must be a string"}
		}
		if strings.TrimSpace(s) == "" {
			continue
		}

		w, err := ParseWindow(s)
		if err != nil {
			return RuleSet{}, &RulesError{Key: key, Reason: err.Error()}
		}
		set.Schedule[day] = w
	}

	return set, nil
}

func readApproval(value any) (bool, error) {
	meta, ok := value.(map[string]any)
	if !ok {
		if value == nil {
			return false, nil
		}
		return false, &RulesError{Key: metadataKey, Reason: "must be an object"}
	}
	switch v := meta["requires_approval"].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, &RulesError{Key: metadataKey, Reason: "requires_approval must be a boolean"}
	}
}

// RequiresApproval reads _metadata.requires_approval from a raw blob.
// Unparseable blobs report false.
func RequiresApproval(raw string) bool {
	set, err := Parse(raw)
	if err != nil {
		return false
	}
	return set.RequiresApproval
}

// Encode serializes the rule set, carrying the approval flag under _metadata.
// A declared rule set writes every weekday so that closed days survive the
// round trip.
func (s RuleSet) Encode() (string, error) {
	out := make(map[string]any, 8)
	if s.Declared {
		for day := time.Sunday; day <= time.Saturday; day++ {
			out[WeekdayName(day)] = ""
		}
	}
	for day, w := range s.Schedule {
		out[WeekdayName(day)] = w.String()
	}
	if s.RequiresApproval {
		out[metadataKey] = map[string]any{"requires_approval": true}
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode rules: %w", err)
	}
	return string(raw), nil
}

// OnParseError selects how a consumer treats a rules blob that fails to parse.
type OnParseError int

const (
	// Open treats malformed rules as absent, so no window restriction applies.
	Open OnParseError = iota
	// Closed treats malformed rules as a resource closed on every day.
	Closed
)

func (p OnParseError) String() string {
	if p == Closed {
		return "closed"
	}
	return "open"
}

// Policies of the call sites that consume rules.
const (
	// SlotPolicy governs slot grids and day summaries: never offer slots
	// that cannot be reasoned about.
	SlotPolicy = Closed
	// SearchPolicy governs the point-in-time search filter: a broken
	// schedule never hides a resource from search.
	SearchPolicy = Open
	// BookingPolicy governs the booking availability check, which only
	// enforces windows it can read; conflicts are still checked.
	BookingPolicy = Open
)

// Rules is a schedule resolved under an explicit parse-error policy.
type Rules struct {
	schedule Schedule
	declared bool
	closed   bool
	err      error
}

// Load parses raw and applies onErr when parsing fails.
func Load(raw string, onErr OnParseError) Rules {
	set, err := Parse(raw)
	if err != nil {
		return Rules{closed: onErr == Closed, err: err}
	}
	return Rules{schedule: set.Schedule, declared: set.Declared}
}

// FromSchedule wraps an already validated schedule.
func FromSchedule(s Schedule) Rules {
	return Rules{schedule: s, declared: len(s) > 0}
}

// Err returns the parse error the policy absorbed, if any.
func (r Rules) Err() error {
	return r.err
}

// Unrestricted reports whether no schedule applies: the blob named no
// weekday, or it was malformed and loaded with Open.
func (r Rules) Unrestricted() bool {
	return !r.closed && !r.declared
}

// WindowFor returns the open window for day. Unrestricted rules report false;
// callers decide what an absent schedule means for them.
func (r Rules) WindowFor(day time.Weekday) (Window, bool) {
	if r.closed {
		return Window{}, false
	}
	return r.schedule.WindowFor(day)
}

// Admits reports whether iv passes the window check.
func (r Rules) Admits(iv Interval) bool {
	if r.Unrestricted() {
		return true
	}
	w, ok := r.WindowFor(iv.Start.Weekday())
	if !ok {
		return false
	}
	return w.Contains(iv)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

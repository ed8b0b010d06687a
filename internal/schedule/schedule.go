// Package schedule tells the agent what its character is doing right now,
// based on a weekly timetable.
package schedule

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/avaestate/ava-agent/internal/agent/model"
)

//go:embed default.yaml
var defaultSchedule []byte

// Slot is one activity of a day. End is exclusive; a slot whose End is not
// after its Start runs past midnight into the next day.
type Slot struct {
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Activity string `yaml:"activity"`

	start, end int // minutes since midnight
}

func (s Slot) overnight() bool { return s.end <= s.start }

type file struct {
	Days map[string][]Slot `yaml:"days"`
}

// Schedule implements model.ActivitySource.
type Schedule struct {
	days map[time.Weekday][]Slot
	loc  *time.Location
	now  func() time.Time
}

var _ model.ActivitySource = (*Schedule)(nil)

type Option func(*Schedule)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Schedule) {
		s.now = now
	}
}

// Load reads the schedule at path, or the embedded default when path is
// empty, and evaluates it in timezone.
func Load(path, timezone string, opts ...Option) (*Schedule, error) {
	raw := defaultSchedule
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schedule: %w", err)
		}
		raw = b
	}
	return Parse(raw, timezone, opts...)
}

// Parse decodes a YAML schedule.
func Parse(raw []byte, timezone string, opts ...Option) (*Schedule, error) {
	loc := time.Local
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("schedule timezone %q: %w", timezone, err)
		}
		loc = l
	}

	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}

	s := &Schedule{days: make(map[time.Weekday][]Slot, len(f.Days)), loc: loc, now: time.Now}
	for name, slots := range f.Days {
		day, ok := weekday(name)
		if !ok {
			return nil, fmt.Errorf("schedule: unknown day %q", name)
		}
		parsed := make([]Slot, 0, len(slots))
		for i, slot := range slots {
			var err error
			if slot.start, err = clock(slot.Start); err != nil {
				return nil, fmt.Errorf("schedule %s slot %d start: %w", name, i, err)
			}
			if slot.end, err = clock(slot.End); err != nil {
				return nil, fmt.Errorf("schedule %s slot %d end: %w", name, i, err)
			}
			slot.Activity = strings.TrimSpace(slot.Activity)
			parsed = append(parsed, slot)
		}
		s.days[day] = parsed
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CurrentActivity returns the activity scheduled for now, or "" when the
// timetable has a gap.
func (s *Schedule) CurrentActivity(context.Context) string {
	return s.At(s.now())
}

// At returns the activity scheduled at t.
func (s *Schedule) At(t time.Time) string {
	t = t.In(s.loc)
	minute := t.Hour()*60 + t.Minute()

	for _, slot := range s.days[t.Weekday()] {
		if slot.overnight() {
			if minute >= slot.start {
				return slot.Activity
			}
			continue
		}
		if minute >= slot.start && minute < slot.end {
			return slot.Activity
		}
	}

	yesterday := (t.Weekday() + 6) % 7
	for _, slot := range s.days[yesterday] {
		if slot.overnight() && minute < slot.end {
			return slot.Activity
		}
	}
	return ""
}

func weekday(name string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(name)) {
			return d, true
		}
	}
	return 0, false
}

// clock parses "HH:MM" into minutes since midnight.
func clock(v string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}

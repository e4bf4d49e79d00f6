// Package calendar knows on which days a unit is open. Units default to a
// Monday to Friday week; a YAML file can override the weekdays per unit and
// list closed dates.
package calendar

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/caltime"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Provider returns the operational days of a unit within [start, end].
type Provider interface {
	OperationalDays(unitID uuid.UUID, start, end caltime.Date) []caltime.Date
}

var defaultWeek = []time.Weekday{
	time.Monday,
	time.Tuesday,
	time.Wednesday,
	time.Thursday,
	time.Friday,
}

type unitFile struct {
	Weekdays []string       `yaml:"weekdays"`
	Closed   []caltime.Date `yaml:"closed"`
}

type file struct {
	Default unitFile            `yaml:"default"`
	Units   map[string]unitFile `yaml:"units"`
}

type unitCalendar struct {
	weekdays []time.Weekday
	closed   map[caltime.Date]struct{}
}

func (u unitCalendar) isOpen(d caltime.Date) bool {
	if _, ok := u.closed[d]; ok {
		return false
	}
	return slices.Contains(u.weekdays, d.Weekday())
}

// Calendar is an immutable Provider.
type Calendar struct {
	fallback unitCalendar
	units    map[uuid.UUID]unitCalendar
}

// Default returns a calendar where every unit is open Monday to Friday.
func Default() *Calendar {
	return &Calendar{
		fallback: unitCalendar{weekdays: defaultWeek},
		units:    map[uuid.UUID]unitCalendar{},
	}
}

// Load reads a calendar file. An empty path yields Default().
func Load(path string) (*Calendar, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calendar file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a calendar document:
//
//	default:
//	  weekdays: [mon, tue, wed, thu, fri]
//	  closed: [2024-12-24]
//	units:
//	  3f0c...:
//	    weekdays: [mon, tue, wed, thu, fri, sat]
func Parse(data []byte) (*Calendar, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}

	fallback, err := f.Default.compile(defaultWeek)
	if err != nil {
		return nil, fmt.Errorf("default: %w", err)
	}

	c := &Calendar{fallback: fallback, units: make(map[uuid.UUID]unitCalendar, len(f.Units))}
	for key, u := range f.Units {
		id, err := uuid.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("unit %q: %w", key, err)
		}
		uc, err := u.compile(fallback.weekdays)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", key, err)
		}
		for d := range fallback.closed {
			uc.closed[d] = struct{}{}
		}
		c.units[id] = uc
	}
	return c, nil
}

func (u unitFile) compile(fallbackWeek []time.Weekday) (unitCalendar, error) {
	uc := unitCalendar{weekdays: fallbackWeek, closed: make(map[caltime.Date]struct{}, len(u.Closed))}
	if len(u.Weekdays) > 0 {
		uc.weekdays = make([]time.Weekday, 0, len(u.Weekdays))
		for _, name := range u.Weekdays {
			wd, err := parseWeekday(name)
			if err != nil {
				return unitCalendar{}, err
			}
			uc.weekdays = append(uc.weekdays, wd)
		}
	}
	for _, d := range u.Closed {
		uc.closed[d] = struct{}{}
	}
	return uc, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		full := strings.ToLower(wd.String())
		if name == full || name == full[:3] {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// OperationalDays lists the unit's working days from start to end inclusive.
// Units without their own calendar use the default one.
func (c *Calendar) OperationalDays(unitID uuid.UUID, start, end caltime.Date) []caltime.Date {
	uc, ok := c.units[unitID]
	if !ok {
		uc = c.fallback
	}

	var days []caltime.Date
	for _, d := range caltime.Range(start, end) {
		if uc.isOpen(d) {
			days = append(days, d)
		}
	}
	return days
}

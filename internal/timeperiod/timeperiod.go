// Package timeperiod provides named time periods and the activity predicate
// used to evaluate time-specific parameters.
package timeperiod

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kneutral-org/checkconfig/internal/params"
)

// AlwaysName is the built-in period that is always active.
const AlwaysName = "24X7"

var (
	// ErrInvalidTimePeriod is returned for a period that cannot be parsed.
	ErrInvalidTimePeriod = errors.New("invalid time period")
	// ErrUnknownTimePeriod is returned when a period name is not defined.
	ErrUnknownTimePeriod = errors.New("unknown time period")
)

// Window is a daily time range on a set of weekdays. An empty Days list means
// every day. End before Start denotes an overnight window; "24:00" ends at
// midnight.
type Window struct {
	Days  []time.Weekday
	Start string
	End   string
}

// Period is a named set of windows evaluated in a timezone. The period is
// inactive whenever one of the Exclude periods is active.
type Period struct {
	Name     string
	Alias    string
	Timezone string
	Windows  []Window
	Exclude  []string
}

type compiledWindow struct {
	days         map[time.Weekday]bool
	startMinutes int
	endMinutes   int
}

type compiledPeriod struct {
	period  Period
	loc     *time.Location
	windows []compiledWindow
}

// Catalog holds compiled periods. It is immutable after construction and
// safe for concurrent use.
type Catalog struct {
	periods map[string]*compiledPeriod
}

// NewCatalog compiles periods. Exclusions must reference defined periods and
// must not form cycles.
func NewCatalog(periods ...Period) (*Catalog, error) {
	c := &Catalog{periods: make(map[string]*compiledPeriod, len(periods)+1)}
	c.periods[AlwaysName] = &compiledPeriod{
		period: Period{Name: AlwaysName, Alias: "Always"},
		loc:    time.UTC,
	}

	for _, p := range periods {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrInvalidTimePeriod)
		}
		if _, exists := c.periods[name]; exists {
			return nil, fmt.Errorf("%w: %s defined twice", ErrInvalidTimePeriod, name)
		}
		p.Name = name
		compiled, err := compile(p)
		if err != nil {
			return nil, err
		}
		c.periods[name] = compiled
	}

	for name, cp := range c.periods {
		for _, ex := range cp.period.Exclude {
			if _, ok := c.periods[ex]; !ok {
				return nil, fmt.Errorf("%w: %s excludes %s", ErrUnknownTimePeriod, name, ex)
			}
		}
	}
	for name := range c.periods {
		if err := c.checkCycle(name, map[string]bool{}); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Catalog) checkCycle(name string, visiting map[string]bool) error {
	if visiting[name] {
		return fmt.Errorf("%w: exclusion cycle through %s", ErrInvalidTimePeriod, name)
	}
	visiting[name] = true
	for _, ex := range c.periods[name].period.Exclude {
		if err := c.checkCycle(ex, visiting); err != nil {
			return err
		}
	}
	delete(visiting, name)
	return nil
}

func compile(p Period) (*compiledPeriod, error) {
	loc := time.UTC
	if p.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(p.Timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: timezone %q: %v", ErrInvalidTimePeriod, p.Name, p.Timezone, err)
		}
	}

	cp := &compiledPeriod{period: p, loc: loc}
	for i, w := range p.Windows {
		startHour, startMin, err := parseTimeString(w.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: %s window %d start: %v", ErrInvalidTimePeriod, p.Name, i, err)
		}
		endHour, endMin, err := parseTimeString(w.End)
		if err != nil {
			return nil, fmt.Errorf("%w: %s window %d end: %v", ErrInvalidTimePeriod, p.Name, i, err)
		}

		cw := compiledWindow{
			startMinutes: startHour*60 + startMin,
			endMinutes:   endHour*60 + endMin,
		}
		if len(w.Days) > 0 {
			cw.days = make(map[time.Weekday]bool, len(w.Days))
			for _, d := range w.Days {
				cw.days[d] = true
			}
		}
		cp.windows = append(cp.windows, cw)
	}
	return cp, nil
}

// Names returns every defined period name in lexical order, including the
// built-in one.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.periods))
	for name := range c.periods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a period is defined.
func (c *Catalog) Has(name string) bool {
	_, ok := c.periods[name]
	return ok
}

// Period returns a period definition.
func (c *Catalog) Period(name string) (Period, bool) {
	cp, ok := c.periods[name]
	if !ok {
		return Period{}, false
	}
	return cp.period, true
}

// IsActive reports whether the named period is active at t.
func (c *Catalog) IsActive(name string, t time.Time) (bool, error) {
	cp, ok := c.periods[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownTimePeriod, name)
	}
	return c.isActive(cp, t), nil
}

func (c *Catalog) isActive(cp *compiledPeriod, t time.Time) bool {
	if cp.period.Name == AlwaysName {
		return true
	}
	for _, ex := range cp.period.Exclude {
		if c.isActive(c.periods[ex], t) {
			return false
		}
	}

	localTime := t.In(cp.loc)
	for _, w := range cp.windows {
		if w.contains(localTime) {
			return true
		}
	}
	return false
}

// ActiveFunc binds the catalog to a point in time. Unknown periods are
// treated as inactive.
func (c *Catalog) ActiveFunc(t time.Time) params.ActiveFunc {
	return func(name string) bool {
		active, err := c.IsActive(name, t)
		return err == nil && active
	}
}

// contains checks if a local time falls within the window. An overnight
// window belongs to the day it starts on.
func (w compiledWindow) contains(t time.Time) bool {
	currentMinutes := t.Hour()*60 + t.Minute()

	// Handle overnight windows (e.g., 22:00 - 06:00)
	if w.endMinutes < w.startMinutes {
		if currentMinutes >= w.startMinutes {
			return w.dayMatches(t.Weekday())
		}
		if currentMinutes < w.endMinutes {
			return w.dayMatches((t.Weekday() + 6) % 7)
		}
		return false
	}

	return w.dayMatches(t.Weekday()) &&
		currentMinutes >= w.startMinutes && currentMinutes < w.endMinutes
}

func (w compiledWindow) dayMatches(d time.Weekday) bool {
	return w.days == nil || w.days[d]
}

// parseTimeString parses a time string in "HH:MM" format. "24:00" is
// accepted as the end of the day.
func parseTimeString(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time format, expected HH:MM: %s", s)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, 0, fmt.Errorf("invalid hour: %s", parts[0])
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, 0, fmt.Errorf("invalid minute: %s", parts[1])
	}

	return hour, minute, nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekday parses a weekday name ("mon", "monday") or number (0 = Sunday).
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if d, ok := weekdays[s]; ok {
		return d, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < 7 {
		return time.Weekday(n), nil
	}
	return 0, fmt.Errorf("%w: weekday %q", ErrInvalidTimePeriod, s)
}

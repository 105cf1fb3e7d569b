// Package calendar answers business-time questions for an entity's weekly
// open hours.
package calendar

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

const (
	secondsPerDay = 24 * 60 * 60

	// DefaultHorizon bounds every calendar walk.
	DefaultHorizon = 2 * 365 * 24 * time.Hour
)

// endOfDayThreshold maps "23:59" and later onto 24:00 so that 00:00-23:59 is a full day.
const endOfDayThreshold = 23*3600 + 59*60

type interval struct {
	start int // seconds after local midnight
	end   int
}

// Calendar is an immutable weekly schedule in one timezone.
type Calendar struct {
	loc          *time.Location
	week         [7][]interval
	unrestricted bool
	openPerWeek  int
	horizon      time.Duration
}

// Unrestricted returns a calendar where every instant is business time.
func Unrestricted(loc *time.Location, horizon time.Duration) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Calendar{loc: loc, unrestricted: true, horizon: horizon}
}

// New builds a calendar from business-hours entries. Inactive entries are
// ignored. Invalid entries are skipped and reported; when no valid active entry
// remains the calendar is unrestricted.
func New(loc *time.Location, entries []domain.BusinessHoursEntry, horizon time.Duration) (*Calendar, []error) {
	cal := Unrestricted(loc, horizon)
	var problems []error
	var week [7][]interval
	valid := 0
	for _, entry := range entries {
		if !entry.IsActive {
			continue
		}
		iv, err := parseEntry(entry)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		week[entry.DayOfWeek] = append(week[entry.DayOfWeek], iv)
		valid++
	}
	if valid == 0 {
		return cal, problems
	}
	cal.unrestricted = false
	for day := range week {
		cal.week[day] = mergeIntervals(week[day])
		for _, iv := range cal.week[day] {
			cal.openPerWeek += iv.end - iv.start
		}
	}
	return cal, problems
}

// Location returns the timezone the schedule is evaluated in.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsUnrestricted reports whether every instant counts as business time.
func (c *Calendar) IsUnrestricted() bool {
	return c.unrestricted
}

// Horizon returns the maximum span a walk may cover.
func (c *Calendar) Horizon() time.Duration {
	return c.horizon
}

// IsBusinessTime reports whether t falls inside an open interval.
func (c *Calendar) IsBusinessTime(t time.Time) bool {
	if c.unrestricted {
		return true
	}
	local := t.In(c.loc)
	secs := local.Hour()*3600 + local.Minute()*60 + local.Second()
	for _, iv := range c.week[local.Weekday()] {
		if secs >= iv.start && secs < iv.end {
			return true
		}
	}
	return false
}

// AddBusinessDuration advances start by d counting only business time. The
// boolean reports that the result was capped at start+horizon, either because
// d exceeds the horizon or because the schedule never accumulates d.
func (c *Calendar) AddBusinessDuration(start time.Time, d time.Duration) (time.Time, bool) {
	due, capped, _ := c.addBusinessDuration(start, d)
	return due, capped
}

func (c *Calendar) addBusinessDuration(start time.Time, d time.Duration) (time.Time, bool, int) {
	if d <= 0 {
		return start, false, 0
	}
	limit := start.Add(c.horizon)
	if d > c.horizon {
		return limit, true, 0
	}
	if c.unrestricted {
		return start.Add(d), false, 0
	}
	if c.openPerWeek == 0 {
		return limit, true, 0
	}

	maxSteps := int(c.horizon/(24*time.Hour)) + 2
	remaining := d
	cur := start.In(c.loc)
	for steps := 1; steps <= maxSteps; steps++ {
		y, m, day := cur.Date()
		for _, iv := range c.week[cur.Weekday()] {
			ivStart := wallClock(y, m, day, iv.start, c.loc)
			ivEnd := wallClock(y, m, day, iv.end, c.loc)
			if !ivEnd.After(cur) {
				continue
			}
			from := cur
			if ivStart.After(from) {
				from = ivStart
			}
			avail := ivEnd.Sub(from)
			if remaining <= avail {
				due := from.Add(remaining)
				if due.After(limit) {
					return limit, true, steps
				}
				return due.In(start.Location()), false, steps
			}
			remaining -= avail
			cur = ivEnd
		}
		next := time.Date(y, m, day+1, 0, 0, 0, 0, c.loc)
		if next.After(limit) {
			return limit, true, steps
		}
		cur = next
	}
	return limit, true, maxSteps
}

// BusinessDurationBetween measures the business time elapsed in [from, to).
// Spans longer than the horizon are truncated to it.
func (c *Calendar) BusinessDurationBetween(from, to time.Time) time.Duration {
	if !to.After(from) {
		return 0
	}
	if limit := from.Add(c.horizon); to.After(limit) {
		to = limit
	}
	if c.unrestricted {
		return to.Sub(from)
	}

	var total time.Duration
	cur := from.In(c.loc)
	end := to.In(c.loc)
	for cur.Before(end) {
		y, m, day := cur.Date()
		for _, iv := range c.week[cur.Weekday()] {
			ivStart := wallClock(y, m, day, iv.start, c.loc)
			ivEnd := wallClock(y, m, day, iv.end, c.loc)
			lo := maxTime(ivStart, cur)
			hi := minTime(ivEnd, end)
			if hi.After(lo) {
				total += hi.Sub(lo)
			}
		}
		cur = time.Date(y, m, day+1, 0, 0, 0, 0, c.loc)
	}
	return total
}

func wallClock(y int, m time.Month, day, secs int, loc *time.Location) time.Time {
	return time.Date(y, m, day, secs/3600, (secs%3600)/60, secs%60, 0, loc)
}

func parseEntry(entry domain.BusinessHoursEntry) (interval, error) {
	if entry.DayOfWeek < 0 || entry.DayOfWeek > 6 {
		return interval{}, fmt.Errorf("business hours %s: day_of_week %d out of range", entry.ID, entry.DayOfWeek)
	}
	start, err := parseClock(entry.StartTime)
	if err != nil {
		return interval{}, fmt.Errorf("business hours %s: start_time: %w", entry.ID, err)
	}
	end, err := parseClock(entry.EndTime)
	if err != nil {
		return interval{}, fmt.Errorf("business hours %s: end_time: %w", entry.ID, err)
	}
	if end >= endOfDayThreshold {
		end = secondsPerDay
	}
	if end < start {
		return interval{}, fmt.Errorf("business hours %s: end_time %s before start_time %s", entry.ID, entry.EndTime, entry.StartTime)
	}
	return interval{start: start, end: end}, nil
}

// parseClock reads "HH:MM" or "HH:MM:SS"; "24:00" is accepted as end of day.
func parseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	fields := [3]int{}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid clock value %q", value)
		}
		fields[i] = n
	}
	h, m, s := fields[0], fields[1], fields[2]
	if h == 24 && m == 0 && s == 0 {
		return secondsPerDay, nil
	}
	if h > 23 || m > 59 || s > 59 {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	return h*3600 + m*60 + s, nil
}

func mergeIntervals(ivs []interval) []interval {
	if len(ivs) == 0 {
		return nil
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].start < ivs[j].start })
	merged := []interval{}
	for _, iv := range ivs {
		if iv.end == iv.start {
			continue
		}
		if n := len(merged); n > 0 && iv.start <= merged[n-1].end {
			if iv.end > merged[n-1].end {
				merged[n-1].end = iv.end
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

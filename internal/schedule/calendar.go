// Package schedule computes sprint schedules: it walks working time on a
// business calendar and levels users across the tasks assigned to them.
package schedule

import (
	"errors"
	"math"
	"time"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

const (
	// DefaultDayStart is the time of day work begins
	DefaultDayStart = 8 * time.Hour
	// DefaultWorkingMinutesPerDay is 7.5 hours
	DefaultWorkingMinutesPerDay = 450
	// maxSearchDays bounds the search for the next working time
	maxSearchDays = 3660
)

// ErrNoWorkingTime is returned when no working time exists within ten years
var ErrNoWorkingTime = errors.New("no working time available")

// Calendar describes business hours: one working window per working day
type Calendar struct {
	Location             *time.Location
	DayStart             time.Duration
	WorkingMinutesPerDay int
	WorkingDays          [7]bool
	holidays             map[int]bool
}

// DefaultCalendar returns a Monday to Friday calendar, 08:00 to 15:30
func DefaultCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	c := &Calendar{
		Location:             loc,
		DayStart:             DefaultDayStart,
		WorkingMinutesPerDay: DefaultWorkingMinutesPerDay,
		holidays:             make(map[int]bool),
	}
	for d := time.Monday; d <= time.Friday; d++ {
		c.WorkingDays[d] = true
	}
	return c
}

// AddHoliday marks a calendar day as non-working for everyone
func (c *Calendar) AddHoliday(day time.Time) {
	if c.holidays == nil {
		c.holidays = make(map[int]bool)
	}
	c.holidays[types.DayKey(day.In(c.Location))] = true
}

// IsHoliday reports whether the day of t is a holiday
func (c *Calendar) IsHoliday(t time.Time) bool {
	return c.holidays[types.DayKey(t.In(c.Location))]
}

// IsWorkingDay reports whether the day of t is a working day and not a holiday
func (c *Calendar) IsWorkingDay(t time.Time) bool {
	t = t.In(c.Location)
	return c.WorkingDays[t.Weekday()] && !c.IsHoliday(t)
}

// Availability reports whether someone works on the given day. A nil
// Availability follows the calendar alone.
type Availability func(day time.Time) bool

// DayStartOf returns the beginning of the working window on the day of t.
// DayStart is wall clock time, so the window opens at the same hour on days
// with a DST switch.
func (c *Calendar) DayStartOf(t time.Time) time.Time {
	y, m, d := t.In(c.Location).Date()
	h := int(c.DayStart / time.Hour)
	minute := int(c.DayStart % time.Hour / time.Minute)
	return time.Date(y, m, d, h, minute, 0, 0, c.Location)
}

// DayEndOf returns the end of the working window on the day of t
func (c *Calendar) DayEndOf(t time.Time) time.Time {
	return c.DayStartOf(t).Add(time.Duration(c.WorkingMinutesPerDay) * time.Minute)
}

func (c *Calendar) workable(day time.Time, avail Availability) bool {
	if !c.IsWorkingDay(day) {
		return false
	}
	return avail == nil || avail(day)
}

// NextWorkingTime returns t itself when it lies inside a working window,
// otherwise the start of the next one.
func (c *Calendar) NextWorkingTime(t time.Time, avail Availability) (time.Time, error) {
	t = t.In(c.Location)
	for i := 0; i < maxSearchDays; i++ {
		start := c.DayStartOf(t)
		if c.workable(start, avail) {
			if t.Before(start) {
				return start, nil
			}
			if t.Before(c.DayEndOf(t)) {
				return t, nil
			}
		}
		y, m, d := start.Date()
		t = time.Date(y, m, d+1, 0, 0, 0, 0, c.Location)
	}
	return time.Time{}, ErrNoWorkingTime
}

// Add walks work minutes of working time from start. Availability below 1
// stretches the work: half availability doubles the elapsed working time.
func (c *Calendar) Add(start time.Time, work int, availability float64, avail Availability) (time.Time, error) {
	if availability <= 0 || availability > 1 {
		availability = 1
	}
	t, err := c.NextWorkingTime(start, avail)
	if err != nil {
		return time.Time{}, err
	}
	remaining := time.Duration(math.Ceil(float64(work)/availability)) * time.Minute
	for remaining > 0 {
		end := c.DayEndOf(t)
		left := end.Sub(t)
		if remaining <= left {
			return t.Add(remaining), nil
		}
		remaining -= left
		if t, err = c.NextWorkingTime(end, avail); err != nil {
			return time.Time{}, err
		}
	}
	return t, nil
}

// WorkingMinutesBetween counts working minutes in [from, to)
func (c *Calendar) WorkingMinutesBetween(from, to time.Time, avail Availability) int {
	total := time.Duration(0)
	t, err := c.NextWorkingTime(from, avail)
	for err == nil && t.Before(to) {
		end := c.DayEndOf(t)
		if to.Before(end) {
			end = to
		}
		total += end.Sub(t)
		t, err = c.NextWorkingTime(c.DayEndOf(t), avail)
	}
	return int(total / time.Minute)
}

package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

// 2025-03-03 is a Monday
func at(day, hour, minute int) time.Time {
	return time.Date(2025, 3, day, hour, minute, 0, 0, time.UTC)
}

func TestNextWorkingTime(t *testing.T) {
	cal := DefaultCalendar(time.UTC)
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"inside window", at(5, 10, 0), at(5, 10, 0)},
		{"before day start", at(5, 7, 0), at(5, 8, 0)},
		{"at day end", at(5, 15, 30), at(6, 8, 0)},
		{"friday evening", at(7, 16, 0), at(10, 8, 0)},
		{"saturday", at(1, 10, 0), at(3, 8, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cal.NextWorkingTime(tt.in, nil)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestCalendarAdd(t *testing.T) {
	cal := DefaultCalendar(time.UTC)
	tests := []struct {
		name         string
		start        time.Time
		work         int
		availability float64
		want         time.Time
	}{
		{"one full day", at(3, 8, 0), 450, 1, at(3, 15, 30)},
		{"spills into next day", at(3, 8, 0), 451, 1, at(4, 8, 1)},
		{"over the weekend", at(7, 15, 0), 60, 1, at(10, 8, 30)},
		{"half availability", at(3, 8, 0), 450, 0.5, at(4, 15, 30)},
		{"zero work", at(1, 12, 0), 0, 1, at(3, 8, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cal.Add(tt.start, tt.work, tt.availability, nil)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestCalendarSkipsHolidaysAndUnavailableDays(t *testing.T) {
	cal := DefaultCalendar(time.UTC)
	cal.AddHoliday(at(4, 0, 0))
	assert.False(t, cal.IsWorkingDay(at(4, 9, 0)))

	got, err := cal.Add(at(3, 8, 0), 900, 1, nil)
	require.NoError(t, err)
	assert.True(t, at(5, 15, 30).Equal(got), "got %v", got)

	notWednesday := func(day time.Time) bool { return day.Weekday() != time.Wednesday }
	got, err = cal.Add(at(3, 8, 0), 900, 1, notWednesday)
	require.NoError(t, err)
	assert.True(t, at(6, 15, 30).Equal(got), "got %v", got)

	never := func(time.Time) bool { return false }
	_, err = cal.NextWorkingTime(at(3, 8, 0), never)
	assert.ErrorIs(t, err, ErrNoWorkingTime)
}

func TestWorkingMinutesBetween(t *testing.T) {
	cal := DefaultCalendar(time.UTC)
	assert.Equal(t, 900, cal.WorkingMinutesBetween(at(3, 8, 0), at(5, 8, 0), nil))
	assert.Equal(t, 90, cal.WorkingMinutesBetween(at(7, 14, 0), at(10, 8, 0), nil))
	assert.Equal(t, 0, cal.WorkingMinutesBetween(at(8, 8, 0), at(9, 20, 0), nil))
}

func TestCalendarLocation(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	cal := DefaultCalendar(berlin)

	// 07:30 UTC is 08:30 in Berlin
	got, err := cal.NextWorkingTime(at(3, 7, 30), nil)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Hour())
	assert.Equal(t, 30, got.Minute())
}

func TestDayStartOnDSTSwitch(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	cal := DefaultCalendar(berlin)
	cal.WorkingDays[time.Sunday] = true

	// clocks go forward at 02:00 on 2026-03-29
	switchDay := time.Date(2026, 3, 29, 12, 0, 0, 0, berlin)
	start := cal.DayStartOf(switchDay)
	assert.Equal(t, 8, start.Hour())
	assert.Equal(t, 0, start.Minute())
	assert.Equal(t, 15, cal.DayEndOf(switchDay).Hour())

	got, err := cal.NextWorkingTime(time.Date(2026, 3, 29, 0, 0, 0, 0, berlin), nil)
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 3, 29, 8, 0, 0, 0, berlin).Equal(got), "got %v", got)
}

func TestResourceAvailabilityUsesCalendarDates(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	// working period entered as Berlin midnights, read back in UTC
	first := time.Date(2025, 3, 4, 0, 0, 0, 0, berlin).UTC()
	last := time.Date(2025, 3, 6, 0, 0, 0, 0, berlin).UTC()
	r := &Resource{User: &types.User{Name: "bob", Availability: 1, FirstWorkingDay: &first, LastWorkingDay: &last}}
	avail := r.Availability(berlin)

	assert.False(t, avail(time.Date(2025, 3, 3, 9, 0, 0, 0, berlin)))
	assert.True(t, avail(time.Date(2025, 3, 4, 9, 0, 0, 0, berlin)))
	assert.True(t, avail(time.Date(2025, 3, 6, 9, 0, 0, 0, berlin)))
	assert.False(t, avail(time.Date(2025, 3, 7, 9, 0, 0, 0, berlin)))
}

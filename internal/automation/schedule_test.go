package automation

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-03-02 是周一
var monday = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func TestNextRun(t *testing.T) {
	tests := []struct {
		name     string
		schedule Schedule
		after    time.Time
		want     time.Time
	}{
		{
			name:     "daily later today",
			schedule: Schedule{Frequency: FrequencyDaily, TimeOfDay: "09:00"},
			after:    monday,
			want:     time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "daily at exact time moves to tomorrow",
			schedule: Schedule{Frequency: FrequencyDaily, TimeOfDay: "08:00"},
			after:    monday,
			want:     time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC),
		},
		{
			name:     "hourly keeps minute",
			schedule: Schedule{Frequency: FrequencyHourly, TimeOfDay: "00:15"},
			after:    monday.Add(20 * time.Minute),
			want:     time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC),
		},
		{
			name:     "every six hours from midnight",
			schedule: Schedule{Frequency: FrequencyEveryXHours, IntervalHours: 6},
			after:    monday.Add(-time.Hour),
			want:     time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "weekly next listed day",
			schedule: Schedule{Frequency: FrequencyWeekly, TimeOfDay: "10:00", DaysOfWeek: []int{1, 3}},
			after:    monday.Add(3 * time.Hour),
			want:     time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "weekly wraps to next week",
			schedule: Schedule{Frequency: FrequencyWeekly, TimeOfDay: "07:00", DaysOfWeek: []int{1}},
			after:    monday,
			want:     time.Date(2026, 3, 9, 7, 0, 0, 0, time.UTC),
		},
		{
			name:     "timezone anchored",
			schedule: Schedule{Frequency: FrequencyDaily, TimeOfDay: "09:00", Timezone: "America/New_York"},
			after:    monday.Add(4 * time.Hour),
			want:     time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextRun(tt.schedule, tt.after)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestNextRunUnresolvable(t *testing.T) {
	for _, s := range []Schedule{
		{Frequency: FrequencyDaily},
		{Frequency: FrequencyWeekly, TimeOfDay: "10:00"},
		{Frequency: FrequencyEveryXHours},
		{Frequency: "monthly", TimeOfDay: "10:00"},
		{Frequency: FrequencyDaily, TimeOfDay: "25:00"},
	} {
		_, ok := NextRun(s, monday)
		assert.False(t, ok, "%+v", s)
	}

	next := NextRunOrTomorrow(Schedule{Frequency: FrequencyDaily}, monday)
	assert.True(t, monday.Add(24*time.Hour).Equal(next))
}

func TestScheduleValidate(t *testing.T) {
	assert.NoError(t, Schedule{Frequency: FrequencyWeekly, TimeOfDay: "10:30", DaysOfWeek: []int{0, 6}}.Validate())
	assert.Error(t, Schedule{Frequency: FrequencyEveryXHours}.Validate())
	assert.Error(t, Schedule{Frequency: FrequencyDaily, TimeOfDay: "9am"}.Validate())
	assert.Error(t, Schedule{Frequency: FrequencyWeekly, DaysOfWeek: []int{7}}.Validate())
	assert.Error(t, Schedule{Frequency: FrequencyDaily, Timezone: "Mars/Olympus"}.Validate())
	assert.Error(t, Schedule{}.Validate())
}

func TestNextRunProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	properties.Property("daily run is strictly later and within a day", prop.ForAll(
		func(offsetMin, hour, minute int) bool {
			after := base.Add(time.Duration(offsetMin) * time.Minute)
			s := Schedule{Frequency: FrequencyDaily, TimeOfDay: time.Date(0, 1, 1, hour, minute, 0, 0, time.UTC).Format("15:04")}
			next, ok := NextRun(s, after)
			return ok && next.After(after) && next.Sub(after) <= 24*time.Hour &&
				next.Hour() == hour && next.Minute() == minute
		},
		gen.IntRange(0, 60*24*365),
		gen.IntRange(0, 23),
		gen.IntRange(0, 59),
	))

	properties.Property("interval run is strictly later and within the interval", prop.ForAll(
		func(offsetMin, interval int) bool {
			after := base.Add(time.Duration(offsetMin) * time.Minute)
			next, ok := NextRun(Schedule{Frequency: FrequencyEveryXHours, IntervalHours: interval}, after)
			return ok && next.After(after) && next.Sub(after) <= time.Duration(interval)*time.Hour
		},
		gen.IntRange(0, 60*24*365),
		gen.IntRange(1, 48),
	))

	properties.TestingRun(t)
}

package automation

import (
	"testing"
	"time"

	"storepilot/internal/execution"

	"github.com/stretchr/testify/assert"
)

func records(at time.Time, n int, success bool) []execution.Record {
	out := make([]execution.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, execution.Record{ExecutedAt: at.AddDate(0, 0, -i), Success: success})
	}
	return out
}

func TestRecommendPicksBestHour(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	history := append(
		records(time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC), 30, true),
		records(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), 10, false)...,
	)

	rec := Recommend(Schedule{Frequency: FrequencyDaily, TimeOfDay: "09:30"}, history, now)
	assert.Equal(t, FrequencyDaily, rec.Frequency)
	assert.Equal(t, "14:30", rec.TimeOfDay)
	assert.Equal(t, 1.0, rec.Confidence)
	assert.Contains(t, rec.Reasoning, "40 executions")
	assert.False(t, rec.Applied)
}

func TestRecommendConfidenceScalesWithSamples(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	history := records(time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC), 15, true)

	rec := Recommend(Schedule{Frequency: FrequencyDaily, TimeOfDay: "09:00"}, history, now)
	assert.Equal(t, 0.5, rec.Confidence)
}

func TestRecommendSkippedCountsAsFailure(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	history := []execution.Record{
		{ExecutedAt: at, Success: true},
		{ExecutedAt: at, Success: true, Skipped: true},
	}
	rec := Recommend(Schedule{Frequency: FrequencyDaily, TimeOfDay: "10:00"}, history, now)
	assert.Equal(t, "10:00", rec.TimeOfDay)
	// 2/30 * 0.5
	assert.Equal(t, 0.03, rec.Confidence)
}

func TestRecommendWeeklyDays(t *testing.T) {
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	var history []execution.Record
	// 周二成功，周五失败
	for i := 0; i < 4; i++ {
		history = append(history,
			execution.Record{ExecutedAt: time.Date(2026, 2, 10+7*i, 8, 0, 0, 0, time.UTC), Success: true},
			execution.Record{ExecutedAt: time.Date(2026, 2, 13+7*i, 8, 0, 0, 0, time.UTC), Success: false},
		)
	}
	rec := Recommend(Schedule{Frequency: FrequencyWeekly, TimeOfDay: "08:00", DaysOfWeek: []int{5}}, history, now)
	assert.Equal(t, []int{2}, rec.DaysOfWeek)
	assert.Equal(t, "08:00", rec.TimeOfDay)
}

func TestRecommendHourlyKeepsTimeOfDay(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	history := records(time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC), 5, true)
	rec := Recommend(Schedule{Frequency: FrequencyHourly, TimeOfDay: "00:20"}, history, now)
	assert.Equal(t, "00:20", rec.TimeOfDay)
}

func TestRecommendWithoutHistory(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	current := Schedule{Frequency: FrequencyDaily, TimeOfDay: "06:00"}
	rec := Recommend(current, nil, now)
	assert.Equal(t, current, rec.Schedule)
	assert.Zero(t, rec.Confidence)
	assert.NotEmpty(t, rec.Reasoning)
}

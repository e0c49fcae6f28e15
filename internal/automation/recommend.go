package automation

import (
	"fmt"
	"math"
	"time"

	"storepilot/internal/execution"
)

// 达到满置信度所需的样本数
const fullConfidenceSamples = 30

type bucket struct {
	total     int
	succeeded int
}

func (b bucket) rate() float64 {
	if b.total == 0 {
		return 0
	}
	return float64(b.succeeded) / float64(b.total)
}

// Recommend 按小时与星期统计历史成功率，给出排期建议
// 频率沿用当前配置，只调整锚定的时间与星期
func Recommend(current Schedule, history []execution.Record, now time.Time) Recommendation {
	rec := Recommendation{Schedule: current, ComputedAt: now.UTC()}
	if rec.Frequency == "" {
		rec.Frequency = FrequencyDaily
	}
	if len(history) == 0 {
		rec.Reasoning = "No execution history yet; keeping the configured schedule"
		return rec
	}

	loc := location(current.Timezone)
	var hours [24]bucket
	var weekdays [7]bucket
	overall := bucket{}
	for _, r := range history {
		t := r.ExecutedAt.In(loc)
		ok := r.Success && !r.Skipped
		for _, b := range []*bucket{&hours[t.Hour()], &weekdays[int(t.Weekday())], &overall} {
			b.total++
			if ok {
				b.succeeded++
			}
		}
	}

	bestHour := -1
	for h := range hours {
		if hours[h].total == 0 {
			continue
		}
		if bestHour < 0 || hours[h].rate() > hours[bestHour].rate() ||
			(hours[h].rate() == hours[bestHour].rate() && hours[h].total > hours[bestHour].total) {
			bestHour = h
		}
	}

	_, minute, hasTime := parseTimeOfDay(current.TimeOfDay)
	if !hasTime {
		minute = 0
	}
	if rec.Frequency != FrequencyHourly {
		rec.TimeOfDay = fmt.Sprintf("%02d:%02d", bestHour, minute)
	}

	if rec.Frequency == FrequencyWeekly {
		days := map[int]bool{}
		bestDay := -1
		for d := range weekdays {
			if weekdays[d].total == 0 {
				continue
			}
			if weekdays[d].rate() >= 0.5 {
				days[d] = true
			}
			if bestDay < 0 || weekdays[d].rate() > weekdays[bestDay].rate() {
				bestDay = d
			}
		}
		days[bestDay] = true
		rec.DaysOfWeek = sortedDays(days)
	}

	sampleFactor := math.Min(1, float64(len(history))/fullConfidenceSamples)
	rec.Confidence = math.Round(sampleFactor*hours[bestHour].rate()*100) / 100
	rec.Reasoning = fmt.Sprintf(
		"Based on %d executions, runs around %02d:00 succeeded %.0f%% of the time (overall %.0f%%)",
		len(history), bestHour, hours[bestHour].rate()*100, overall.rate()*100,
	)
	return rec
}

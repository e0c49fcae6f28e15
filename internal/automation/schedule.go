package automation

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

func parseTimeOfDay(s string) (int, int, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

func location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NextRun 计算 after 之后（严格晚于）的下一次运行时间
// 每种频率都锚定在 time_of_day / days_of_week 上；无法解析时返回 false
func NextRun(s Schedule, after time.Time) (time.Time, bool) {
	loc := location(s.Timezone)
	local := after.In(loc)

	h, m, hasTime := parseTimeOfDay(s.TimeOfDay)
	if s.TimeOfDay != "" && !hasTime {
		return time.Time{}, false
	}

	switch s.Frequency {
	case FrequencyHourly:
		next := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), m, 0, 0, loc)
		if !next.After(local) {
			next = next.Add(time.Hour)
		}
		return next.UTC(), true

	case FrequencyEveryXHours:
		if s.IntervalHours < 1 {
			return time.Time{}, false
		}
		interval := time.Duration(s.IntervalHours) * time.Hour
		anchor := time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, loc)
		k := math.Floor(float64(local.Sub(anchor))/float64(interval)) + 1
		next := anchor.Add(time.Duration(k) * interval)
		return next.UTC(), true

	case FrequencyDaily:
		if !hasTime {
			return time.Time{}, false
		}
		next := time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, loc)
		if !next.After(local) {
			next = next.AddDate(0, 0, 1)
		}
		return next.UTC(), true

	case FrequencyWeekly:
		if !hasTime || len(s.DaysOfWeek) == 0 {
			return time.Time{}, false
		}
		days := map[int]bool{}
		for _, d := range s.DaysOfWeek {
			days[d] = true
		}
		for i := 0; i <= 7; i++ {
			day := local.AddDate(0, 0, i)
			next := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
			if days[int(next.Weekday())] && next.After(local) {
				return next.UTC(), true
			}
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

// NextRunOrTomorrow 无法解析排期时退回到明天同一时间
func NextRunOrTomorrow(s Schedule, after time.Time) time.Time {
	if next, ok := NextRun(s, after); ok {
		return next
	}
	return after.Add(24 * time.Hour).UTC()
}

func sortedDays(days map[int]bool) []int {
	out := make([]int, 0, len(days))
	for d, ok := range days {
		if ok {
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out
}

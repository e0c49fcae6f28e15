// Package automation 保存周期性执行的动作计划，并决定它们何时运行
package automation

import (
	"encoding/json"
	"fmt"
	"time"

	"storepilot/internal/action"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Frequency 执行频率
type Frequency string

const (
	FrequencyHourly      Frequency = "hourly"
	FrequencyEveryXHours Frequency = "every_x_hours"
	FrequencyDaily       Frequency = "daily"
	FrequencyWeekly      Frequency = "weekly"
)

// Schedule 排期配置
// DaysOfWeek 取值 0-6，0 为周日
type Schedule struct {
	Frequency     Frequency `json:"frequency"`
	IntervalHours int       `json:"interval_hours,omitempty"`
	TimeOfDay     string    `json:"time_of_day,omitempty"`
	DaysOfWeek    []int     `json:"days_of_week,omitempty"`
	Timezone      string    `json:"timezone,omitempty"`
}

// Validate 校验排期配置
func (s Schedule) Validate() error {
	switch s.Frequency {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly:
	case FrequencyEveryXHours:
		if s.IntervalHours < 1 || s.IntervalHours > 168 {
			return fmt.Errorf("interval_hours must be between 1 and 168")
		}
	default:
		return fmt.Errorf("frequency must be one of hourly, every_x_hours, daily, weekly")
	}
	if s.TimeOfDay != "" {
		if _, _, ok := parseTimeOfDay(s.TimeOfDay); !ok {
			return fmt.Errorf("time_of_day must be HH:MM")
		}
	}
	for _, d := range s.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("days_of_week values must be 0-6")
		}
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("unknown timezone %q", s.Timezone)
		}
	}
	return nil
}

// Recommendation 根据历史执行记录计算出的排期建议
type Recommendation struct {
	Schedule
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	ComputedAt time.Time `json:"computed_at"`
	Applied    bool      `json:"applied"`
}

// Automation 周期性执行的动作计划
type Automation struct {
	ID                    string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID                string         `gorm:"type:varchar(64);index" json:"user_id"`
	Name                  string         `gorm:"size:255" json:"name"`
	Enabled               bool           `gorm:"index" json:"enabled"`
	Interpretation        datatypes.JSON `json:"interpretation"`
	PlatformTargets       datatypes.JSON `json:"platform_targets"`
	ScheduleConfig        datatypes.JSON `json:"schedule_config"`
	AIRecommendedSchedule datatypes.JSON `json:"ai_recommended_schedule,omitempty"`
	NextAIScheduledRun    *time.Time     `gorm:"index" json:"next_ai_scheduled_run,omitempty"`
	LastExecutedAt        *time.Time     `json:"last_executed_at,omitempty"`
	TriggerCount          int            `json:"trigger_count"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// TableName 表名
func (Automation) TableName() string { return "automations" }

// BeforeCreate 自动生成 ID
func (a *Automation) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// Schedule 解析 schedule_config
func (a *Automation) Schedule() Schedule {
	var s Schedule
	if len(a.ScheduleConfig) > 0 {
		_ = json.Unmarshal(a.ScheduleConfig, &s)
	}
	return s
}

// Recommendation 解析已保存的排期建议
func (a *Automation) Recommendation() *Recommendation {
	if len(a.AIRecommendedSchedule) == 0 || string(a.AIRecommendedSchedule) == "null" {
		return nil
	}
	var r Recommendation
	if err := json.Unmarshal(a.AIRecommendedSchedule, &r); err != nil {
		return nil
	}
	return &r
}

// EffectiveSchedule 已应用的建议优先，否则使用用户配置
func (a *Automation) EffectiveSchedule() Schedule {
	if r := a.Recommendation(); r != nil && r.Applied {
		return r.Schedule
	}
	return a.Schedule()
}

// Actions 解析保存的动作计划
func (a *Automation) Actions() ([]action.Action, error) {
	var actions []action.Action
	if len(a.Interpretation) == 0 {
		return nil, fmt.Errorf("automation %s has no saved actions", a.ID)
	}
	if err := json.Unmarshal(a.Interpretation, &actions); err != nil {
		var interp action.Interpretation
		if err2 := json.Unmarshal(a.Interpretation, &interp); err2 != nil {
			return nil, fmt.Errorf("解析自动化动作失败: %w", err)
		}
		actions = interp.Actions
	}
	return actions, nil
}

// Targets 目标平台
func (a *Automation) Targets() []string {
	var out []string
	if len(a.PlatformTargets) > 0 {
		_ = json.Unmarshal(a.PlatformTargets, &out)
	}
	return out
}

func toJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(raw)
}

package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storepilot/internal/action"
	"storepilot/internal/risk"

	"gorm.io/gorm"
)

var (
	// ErrNotFound 自动化不存在或不属于当前用户
	ErrNotFound = errors.New("automation not found")
	// ErrInvalidAutomation 自动化参数不合法
	ErrInvalidAutomation = errors.New("invalid automation")
)

// Service 自动化增改查
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService 创建服务
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// AutoMigrate 迁移表结构
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&Automation{})
}

// CreateInput 创建参数
type CreateInput struct {
	UserID          string          `json:"-"`
	Name            string          `json:"name"`
	Actions         []action.Action `json:"actions"`
	PlatformTargets []string        `json:"platform_targets"`
	Schedule        Schedule        `json:"schedule"`
	Enabled         *bool           `json:"enabled"`
}

// Create 保存自动化并计算首次运行时间
func (s *Service) Create(ctx context.Context, in CreateInput) (*Automation, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidAutomation)
	}
	if len(in.Actions) == 0 {
		return nil, fmt.Errorf("%w: at least one action is required", ErrInvalidAutomation)
	}
	if err := action.ValidateActions(in.Actions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAutomation, err)
	}
	// 定时运行时无人回答澄清问题
	if c := risk.Clarify(&action.Interpretation{Actions: in.Actions}); c != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAutomation, strings.Join(c.Questions, " "))
	}
	if err := in.Schedule.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAutomation, err)
	}

	a := &Automation{
		UserID:          in.UserID,
		Name:            name,
		Enabled:         in.Enabled == nil || *in.Enabled,
		Interpretation:  toJSON(in.Actions),
		PlatformTargets: toJSON(nonNil(in.PlatformTargets)),
		ScheduleConfig:  toJSON(in.Schedule),
	}
	if a.Enabled {
		next := NextRunOrTomorrow(in.Schedule, s.now())
		a.NextAIScheduledRun = &next
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, fmt.Errorf("保存自动化失败: %w", err)
	}
	return a, nil
}

// Get 获取自动化
func (s *Service) Get(ctx context.Context, userID, id string) (*Automation, error) {
	var a Automation
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// List 列出用户的自动化
func (s *Service) List(ctx context.Context, userID string) ([]Automation, error) {
	var list []Automation
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&list).Error
	return list, err
}

// UpdateInput 更新参数，nil 字段保持不变
type UpdateInput struct {
	Name     *string   `json:"name"`
	Enabled  *bool     `json:"enabled"`
	Schedule *Schedule `json:"schedule"`
}

// Update 启用/停用或修改排期
// 修改排期会清除已应用的建议；停用会清空下一次运行时间
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*Automation, error) {
	a, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidAutomation)
		}
		updates["name"] = name
		a.Name = name
	}
	if in.Schedule != nil {
		if err := in.Schedule.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAutomation, err)
		}
		a.ScheduleConfig = toJSON(*in.Schedule)
		a.AIRecommendedSchedule = nil
		updates["schedule_config"] = a.ScheduleConfig
		updates["ai_recommended_schedule"] = nil
	}
	if in.Enabled != nil {
		a.Enabled = *in.Enabled
		updates["enabled"] = a.Enabled
	}

	switch {
	case !a.Enabled:
		a.NextAIScheduledRun = nil
		updates["next_ai_scheduled_run"] = nil
	case in.Schedule != nil || in.Enabled != nil || a.NextAIScheduledRun == nil:
		next := NextRunOrTomorrow(a.EffectiveSchedule(), s.now())
		a.NextAIScheduledRun = &next
		updates["next_ai_scheduled_run"] = next
	}

	if len(updates) == 0 {
		return a, nil
	}
	if err := s.db.WithContext(ctx).Model(&Automation{}).Where("id = ? AND user_id = ?", id, userID).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("更新自动化失败: %w", err)
	}
	return a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

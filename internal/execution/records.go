package execution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Record 逐条持久化的执行结果，调度分析读取它
type Record struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID       string    `gorm:"type:varchar(64);index:idx_exec_user_time" json:"user_id"`
	CommandID    string    `gorm:"type:varchar(36);index" json:"command_id"`
	AutomationID *string   `gorm:"type:varchar(36);index" json:"automation_id,omitempty"`
	PlatformID   string    `gorm:"type:varchar(36)" json:"platform_id"`
	PlatformType string    `gorm:"size:32" json:"platform_type"`
	ActionType   string    `gorm:"size:32" json:"action_type"`
	StepNumber   int       `json:"step_number"`
	Success      bool      `json:"success"`
	Skipped      bool      `json:"skipped"`
	Error        string    `gorm:"type:text" json:"error,omitempty"`
	ItemsTotal   int       `json:"items_total"`
	ItemsFailed  int       `json:"items_failed"`
	ExecutedAt   time.Time `gorm:"index:idx_exec_user_time" json:"executed_at"`
}

// TableName 表名
func (Record) TableName() string { return "execution_records" }

// BeforeCreate 自动生成 ID
func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// Records 执行记录存储
type Records struct {
	db *gorm.DB
}

// NewRecords 创建执行记录存储
func NewRecords(db *gorm.DB) *Records {
	return &Records{db: db}
}

// AutoMigrate 确保表结构存在
func (s *Records) AutoMigrate() error {
	return s.db.AutoMigrate(&Record{})
}

// Save 批量写入
func (s *Records) Save(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(records, 100).Error
}

// History 查询自动化在 since 之后的执行记录，按时间倒序，最多 limit 条
func (s *Records) History(ctx context.Context, userID, automationID string, since time.Time, limit int) ([]Record, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ? AND executed_at >= ?", userID, since)
	if automationID != "" {
		q = q.Where("automation_id = ?", automationID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Record
	err := q.Order("executed_at DESC").Find(&out).Error
	return out, err
}

func toRecords(req Request, results []Result, at time.Time) []Record {
	records := make([]Record, 0, len(results))
	var automationID *string
	if req.AutomationID != "" {
		id := req.AutomationID
		automationID = &id
	}
	for _, r := range results {
		records = append(records, Record{
			UserID:       req.UserID,
			CommandID:    req.CommandID,
			AutomationID: automationID,
			PlatformID:   r.PlatformID,
			PlatformType: string(r.PlatformType),
			ActionType:   string(r.ActionType),
			StepNumber:   r.StepNumber,
			Success:      r.Success,
			Skipped:      r.Skipped,
			Error:        r.Error,
			ItemsTotal:   r.Summary.Total,
			ItemsFailed:  r.Summary.Failed,
			ExecutedAt:   at,
		})
	}
	return records
}

package platform

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Repository 已连接平台的只读访问
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建仓储
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AutoMigrate 确保表结构存在
func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Platform{})
}

// ResolveTargets 把命令的目标平台解析为可用连接
// targets 中每一项可以是平台 ID 或平台类型；为空时返回用户全部可用平台
// 只返回状态为 connected 且启用的连接，结果按创建时间排序且不重复
func (r *Repository) ResolveTargets(ctx context.Context, userID string, targets []string) ([]Platform, error) {
	var active []Platform
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND is_active = ?", userID, StatusConnected, true).
		Order("created_at ASC").
		Find(&active).Error; err != nil {
		return nil, fmt.Errorf("查询平台失败: %w", err)
	}
	if len(targets) == 0 {
		return active, nil
	}

	out := make([]Platform, 0, len(active))
	for _, p := range active {
		for _, t := range targets {
			if t == p.ID || Type(t) == p.PlatformType {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

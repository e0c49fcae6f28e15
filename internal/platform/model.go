// Package platform 封装已连接电商平台的 REST API
package platform

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Type 平台类型
type Type string

const (
	TypeShopify     Type = "shopify"
	TypeWooCommerce Type = "woocommerce"
	TypeEtsy        Type = "etsy"
	TypeFaire       Type = "faire"
)

// Known 是否为支持的平台类型
func (t Type) Known() bool {
	switch t {
	case TypeShopify, TypeWooCommerce, TypeEtsy, TypeFaire:
		return true
	}
	return false
}

// 连接状态
const (
	StatusConnected = "connected"
	StatusError     = "error"
)

// Platform 用户连接的店铺
// 本服务只读，连接流程由外部负责写入
type Platform struct {
	ID           string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID       string         `gorm:"type:varchar(64);index;not null" json:"user_id"`
	PlatformType Type           `gorm:"size:32;index" json:"platform_type"`
	Name         string         `gorm:"size:255" json:"name"`
	AccessToken  string         `gorm:"type:text" json:"-"`
	Credentials  datatypes.JSON `json:"-"`
	ShopDomain   string         `gorm:"size:255" json:"shop_domain,omitempty"`
	StoreURL     string         `gorm:"size:512" json:"store_url,omitempty"`
	Status       string         `gorm:"size:32;index" json:"status"`
	IsActive     bool           `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName 表名
func (Platform) TableName() string { return "platforms" }

// BeforeCreate 自动生成 ID
func (p *Platform) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// Label 日志与结果中使用的平台名称
func (p *Platform) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return string(p.PlatformType)
}

// Credentials 平台附加凭证
type Credentials struct {
	ConsumerKey    string `json:"consumer_key,omitempty"`
	ConsumerSecret string `json:"consumer_secret,omitempty"`
	APIKey         string `json:"api_key,omitempty"`
	ShopID         string `json:"shop_id,omitempty"`
	APIVersion     string `json:"api_version,omitempty"`
}

// ParseCredentials 解析 credentials JSON 列
func (p *Platform) ParseCredentials() (Credentials, error) {
	var c Credentials
	if len(p.Credentials) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(p.Credentials, &c); err != nil {
		return c, fmt.Errorf("解析平台凭证失败: %w", err)
	}
	return c, nil
}

func withScheme(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" || strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}

package action

import "strings"

// Scope 商品作用范围
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeFiltered Scope = "filtered"
	ScopeSelected Scope = "selected"
)

// Filter 商品筛选条件，仅在 scope=filtered 时生效
type Filter struct {
	TitleContains string   `json:"title_contains,omitempty"`
	Tag           string   `json:"tag,omitempty"`
	Vendor        string   `json:"vendor,omitempty"`
	ProductType   string   `json:"product_type,omitempty"`
	Status        string   `json:"status,omitempty"`
	MinPrice      *float64 `json:"min_price,omitempty"`
	MaxPrice      *float64 `json:"max_price,omitempty"`
	MinInventory  *int     `json:"min_inventory,omitempty"`
	MaxInventory  *int     `json:"max_inventory,omitempty"`
}

// IsEmpty 是否没有任何筛选条件
func (f *Filter) IsEmpty() bool {
	if f == nil {
		return true
	}
	return f.TitleContains == "" && f.Tag == "" && f.Vendor == "" && f.ProductType == "" && f.Status == "" &&
		f.MinPrice == nil && f.MaxPrice == nil && f.MinInventory == nil && f.MaxInventory == nil
}

// Target 动作的目标商品集合
// JSON 中与参数平铺在同一层：{"operation": "...", "scope": "all"}
type Target struct {
	Scope        Scope    `json:"scope,omitempty"`
	ProductIDs   []string `json:"product_ids,omitempty"`
	SKU          string   `json:"sku,omitempty"`
	ProductTitle string   `json:"product_title,omitempty"`
	Filter       *Filter  `json:"filter,omitempty"`
}

// TargetRef 返回目标指针，便于解释器补全上下文中选中的商品
func (t *Target) TargetRef() *Target { return t }

// HasIdentifiers 是否包含可直接定位商品的键
func (t *Target) HasIdentifiers() bool {
	return len(t.ProductIDs) > 0 || strings.TrimSpace(t.SKU) != "" || strings.TrimSpace(t.ProductTitle) != ""
}

// Resolvable 目标能否在不猜测的前提下解析为具体商品
func (t *Target) Resolvable() bool {
	switch t.Scope {
	case ScopeAll:
		return true
	case ScopeFiltered:
		return !t.Filter.IsEmpty() || t.HasIdentifiers()
	default:
		return t.HasIdentifiers()
	}
}

// EffectiveScope 推断实际作用范围：未声明 scope 但给出了商品标识时视为 selected
func (t *Target) EffectiveScope() Scope {
	if t.Scope != "" {
		return t.Scope
	}
	if t.HasIdentifiers() {
		return ScopeSelected
	}
	if !t.Filter.IsEmpty() {
		return ScopeFiltered
	}
	return ""
}

func (t *Target) validate() error {
	switch t.Scope {
	case "", ScopeAll, ScopeFiltered, ScopeSelected:
		return nil
	default:
		return paramError("scope", "must be one of all, filtered, selected")
	}
}

// Targeted 带目标集合的参数
type Targeted interface {
	TargetRef() *Target
}

// TargetOf 取出参数中的目标，无目标的动作返回 nil
func TargetOf(p Params) *Target {
	if t, ok := p.(Targeted); ok {
		return t.TargetRef()
	}
	return nil
}

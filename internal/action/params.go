package action

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Params 各动作类型的强类型参数
// 只允许本包内的参数记录实现该接口
type Params interface {
	Type() Type
	Validate() error
	sealed()
}

// ParamError 参数校验失败
type ParamError struct {
	Field  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Reason)
}

func paramError(field, reason string) error {
	return &ParamError{Field: field, Reason: reason}
}

// GetProductsParams 查询商品
type GetProductsParams struct {
	Target
	Limit int `json:"limit,omitempty"`
}

func (*GetProductsParams) Type() Type { return TypeGetProducts }
func (*GetProductsParams) sealed()    {}

func (p *GetProductsParams) Validate() error {
	if p.Limit < 0 {
		return paramError("limit", "must not be negative")
	}
	return p.Target.validate()
}

// 价格操作
const (
	OpIncrease = "increase"
	OpDecrease = "decrease"
	OpSet      = "set"
	OpAdd      = "add"
	OpSubtract = "subtract"
)

// 数值单位
const (
	UnitPercent = "percent"
	UnitFixed   = "fixed"
)

// PriceParams 调整价格
type PriceParams struct {
	Target
	Operation string  `json:"operation"`
	Unit      string  `json:"unit,omitempty"`
	Value     float64 `json:"value"`
}

func (*PriceParams) Type() Type { return TypeUpdatePrice }
func (*PriceParams) sealed()    {}

func (p *PriceParams) Validate() error {
	p.Operation = strings.ToLower(strings.TrimSpace(p.Operation))
	p.Unit = normalizeUnit(p.Unit)
	switch p.Operation {
	case OpIncrease, OpDecrease:
		if p.Value <= 0 {
			return paramError("value", "must be greater than zero")
		}
	case OpSet:
		if p.Value < 0 {
			return paramError("value", "must not be negative")
		}
		p.Unit = UnitFixed
	case "":
		return paramError("operation", "is required")
	default:
		return paramError("operation", "must be one of increase, decrease, set")
	}
	if p.Unit == UnitPercent && p.Operation == OpDecrease && p.Value >= 100 {
		return paramError("value", "percentage decrease must be below 100")
	}
	return p.Target.validate()
}

func normalizeUnit(u string) string {
	switch strings.ToLower(strings.TrimSpace(u)) {
	case "", "percent", "percentage", "%", "pct":
		return UnitPercent
	case "fixed", "amount", "fixed_amount", "absolute":
		return UnitFixed
	default:
		return u
	}
}

// InventoryParams 调整库存
type InventoryParams struct {
	Target
	Operation  string `json:"operation,omitempty"`
	Available  *int   `json:"available"`
	LocationID string `json:"location_id,omitempty"`
}

func (*InventoryParams) Type() Type { return TypeUpdateInventory }
func (*InventoryParams) sealed()    {}

func (p *InventoryParams) Validate() error {
	p.Operation = strings.ToLower(strings.TrimSpace(p.Operation))
	if p.Operation == "" {
		p.Operation = OpSet
	}
	switch p.Operation {
	case OpSet, OpAdd, OpSubtract:
	default:
		return paramError("operation", "must be one of set, add, subtract")
	}
	if p.Available == nil {
		return paramError("available", "is required")
	}
	if *p.Available < 0 {
		return paramError("available", "must not be negative")
	}
	return p.Target.validate()
}

// ListingParams 更新商品信息
type ListingParams struct {
	Target
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Status      string   `json:"status,omitempty"`
	Vendor      string   `json:"vendor,omitempty"`
	ProductType string   `json:"product_type,omitempty"`
}

func (*ListingParams) Type() Type { return TypeUpdateListing }
func (*ListingParams) sealed()    {}

func (p *ListingParams) Validate() error {
	if p.Title == "" && p.Description == "" && len(p.Tags) == 0 && p.Status == "" && p.Vendor == "" && p.ProductType == "" {
		return paramError("parameters", "at least one listing field is required")
	}
	switch p.Status {
	case "", "active", "draft", "archived":
	default:
		return paramError("status", "must be one of active, draft, archived")
	}
	return p.Target.validate()
}

// 折扣类型
const (
	DiscountPercentage  = "percentage"
	DiscountFixedAmount = "fixed_amount"
)

// DiscountParams 创建折扣
type DiscountParams struct {
	Target
	Title      string  `json:"title,omitempty"`
	Code       string  `json:"code,omitempty"`
	ValueType  string  `json:"value_type,omitempty"`
	Value      float64 `json:"value"`
	StartsAt   string  `json:"starts_at,omitempty"`
	EndsAt     string  `json:"ends_at,omitempty"`
	UsageLimit int     `json:"usage_limit,omitempty"`
}

func (*DiscountParams) Type() Type { return TypeApplyDiscount }
func (*DiscountParams) sealed()    {}

func (p *DiscountParams) Validate() error {
	if p.ValueType == "" {
		p.ValueType = DiscountPercentage
	}
	switch p.ValueType {
	case DiscountPercentage:
		if p.Value >= 100 {
			return paramError("value", "percentage discount must be below 100")
		}
	case DiscountFixedAmount:
	default:
		return paramError("value_type", "must be percentage or fixed_amount")
	}
	if p.Value <= 0 {
		return paramError("value", "must be greater than zero")
	}
	if strings.TrimSpace(p.Title) == "" && strings.TrimSpace(p.Code) == "" {
		return paramError("title", "title or code is required")
	}
	if p.UsageLimit < 0 {
		return paramError("usage_limit", "must not be negative")
	}
	return p.Target.validate()
}

// SEOParams 更新 SEO 元信息，模板中可使用 {title}
type SEOParams struct {
	Target
	MetaTitle       string `json:"meta_title,omitempty"`
	MetaDescription string `json:"meta_description,omitempty"`
}

func (*SEOParams) Type() Type { return TypeUpdateSEO }
func (*SEOParams) sealed()    {}

func (p *SEOParams) Validate() error {
	if p.MetaTitle == "" && p.MetaDescription == "" {
		return paramError("parameters", "meta_title or meta_description is required")
	}
	return p.Target.validate()
}

// Render 用商品标题替换模板占位符
func (p *SEOParams) Render(productTitle string) (string, string) {
	r := strings.NewReplacer("{title}", productTitle)
	return r.Replace(p.MetaTitle), r.Replace(p.MetaDescription)
}

// BulkItem 批量操作中的单个商品
type BulkItem struct {
	PlatformID string   `json:"platform_id,omitempty"`
	ProductID  string   `json:"product_id"`
	VariantID  string   `json:"variant_id,omitempty"`
	Price      *float64 `json:"price,omitempty"`
	Inventory  *int     `json:"inventory,omitempty"`
	Title      string   `json:"title,omitempty"`
}

// BulkParams 批量修改
type BulkParams struct {
	Items []BulkItem `json:"items"`
}

func (*BulkParams) Type() Type { return TypeBulkOperation }
func (*BulkParams) sealed()    {}

func (p *BulkParams) Validate() error {
	if len(p.Items) == 0 {
		return paramError("items", "at least one item is required")
	}
	for i, item := range p.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return paramError(fmt.Sprintf("items[%d].product_id", i), "is required")
		}
		if item.Price == nil && item.Inventory == nil && item.Title == "" {
			return paramError(fmt.Sprintf("items[%d]", i), "price, inventory or title is required")
		}
		if item.Price != nil && *item.Price < 0 {
			return paramError(fmt.Sprintf("items[%d].price", i), "must not be negative")
		}
		if item.Inventory != nil && *item.Inventory < 0 {
			return paramError(fmt.Sprintf("items[%d].inventory", i), "must not be negative")
		}
	}
	return nil
}

// ConditionalParams 条件更新：对目标商品逐个求值 Condition，成立时执行 Then
type ConditionalParams struct {
	Target
	Condition string `json:"condition"`
	Then      Action `json:"then"`
}

func (*ConditionalParams) Type() Type { return TypeConditionalUpdate }
func (*ConditionalParams) sealed()    {}

func (p *ConditionalParams) Validate() error {
	if strings.TrimSpace(p.Condition) == "" {
		return paramError("condition", "is required")
	}
	if p.Then.Params == nil {
		return paramError("then", "is required")
	}
	switch p.Then.Type {
	case TypeUpdatePrice, TypeUpdateInventory, TypeUpdateListing:
	default:
		return paramError("then.type", "must be update_price, update_inventory or update_listing")
	}
	return p.Target.validate()
}

// CustomParams 直接调用平台 REST 接口
type CustomParams struct {
	Method   string          `json:"method"`
	Endpoint string          `json:"endpoint"`
	Body     json.RawMessage `json:"body,omitempty"`
}

func (*CustomParams) Type() Type { return TypeCustomCommand }
func (*CustomParams) sealed()    {}

func (p *CustomParams) Validate() error {
	p.Method = strings.ToUpper(strings.TrimSpace(p.Method))
	switch p.Method {
	case "GET", "POST", "PUT":
	case "":
		return paramError("method", "is required")
	default:
		return paramError("method", "must be GET, POST or PUT")
	}
	if strings.TrimSpace(p.Endpoint) == "" {
		return paramError("endpoint", "is required")
	}
	if strings.Contains(p.Endpoint, "://") {
		return paramError("endpoint", "must be a path relative to the platform API")
	}
	return nil
}

// Package action 定义命令解释后的结构化动作计划
package action

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Type 动作类型
type Type string

const (
	TypeGetProducts       Type = "get_products"
	TypeUpdatePrice       Type = "update_price"
	TypeUpdateInventory   Type = "update_inventory"
	TypeUpdateListing     Type = "update_listing"
	TypeApplyDiscount     Type = "apply_discount"
	TypeUpdateSEO         Type = "update_seo"
	TypeBulkOperation     Type = "bulk_operation"
	TypeConditionalUpdate Type = "conditional_update"
	TypeCustomCommand     Type = "custom_command"
)

var paramFactories = map[Type]func() Params{
	TypeGetProducts:       func() Params { return &GetProductsParams{} },
	TypeUpdatePrice:       func() Params { return &PriceParams{} },
	TypeUpdateInventory:   func() Params { return &InventoryParams{} },
	TypeUpdateListing:     func() Params { return &ListingParams{} },
	TypeApplyDiscount:     func() Params { return &DiscountParams{} },
	TypeUpdateSEO:         func() Params { return &SEOParams{} },
	TypeBulkOperation:     func() Params { return &BulkParams{} },
	TypeConditionalUpdate: func() Params { return &ConditionalParams{} },
	TypeCustomCommand:     func() Params { return &CustomParams{} },
}

// Types 返回全部已知动作类型（按固定顺序）
func Types() []Type {
	return []Type{
		TypeGetProducts, TypeUpdatePrice, TypeUpdateInventory, TypeUpdateListing, TypeApplyDiscount,
		TypeUpdateSEO, TypeBulkOperation, TypeConditionalUpdate, TypeCustomCommand,
	}
}

// Known 是否为已知动作类型
func (t Type) Known() bool {
	_, ok := paramFactories[t]
	return ok
}

// IsWrite 是否会修改平台数据
func (t Type) IsWrite() bool {
	return t.Known() && t != TypeGetProducts
}

// ErrUnknownType 未知的动作类型
var ErrUnknownType = errors.New("unknown action type")

// Action 一个可执行单元
type Action struct {
	Type                 Type
	StepNumber           int
	DependsOnStep        *int
	RequiresConfirmation bool
	Params               Params
}

type wireAction struct {
	Type                 Type            `json:"type"`
	StepNumber           int             `json:"step_number,omitempty"`
	DependsOnStep        *int            `json:"depends_on_step,omitempty"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
	Parameters           json.RawMessage `json:"parameters"`
}

// New 以参数记录构造动作
func New(step int, params Params) Action {
	return Action{Type: params.Type(), StepNumber: step, Params: params}
}

// MarshalJSON 输出 {type, step_number, depends_on_step, requires_confirmation, parameters}
func (a Action) MarshalJSON() ([]byte, error) {
	params := json.RawMessage("{}")
	if a.Params != nil {
		raw, err := json.Marshal(a.Params)
		if err != nil {
			return nil, err
		}
		params = raw
	}
	return json.Marshal(wireAction{
		Type:                 a.Type,
		StepNumber:           a.StepNumber,
		DependsOnStep:        a.DependsOnStep,
		RequiresConfirmation: a.RequiresConfirmation,
		Parameters:           params,
	})
}

// UnmarshalJSON 按 type 解码为对应的参数记录并校验
func (a *Action) UnmarshalJSON(data []byte) error {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode action: %w", err)
	}
	factory, ok := paramFactories[w.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}
	params := factory()
	raw := bytes.TrimSpace(w.Parameters)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, params); err != nil {
			return fmt.Errorf("decode %s parameters: %w", w.Type, err)
		}
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%s: %w", w.Type, err)
	}
	*a = Action{
		Type:                 w.Type,
		StepNumber:           w.StepNumber,
		DependsOnStep:        w.DependsOnStep,
		RequiresConfirmation: w.RequiresConfirmation,
		Params:               params,
	}
	if a.Type == TypeCustomCommand {
		a.RequiresConfirmation = true
	}
	return nil
}

// Validate 校验动作整体（参数 + 商品定位键）
func (a *Action) Validate() error {
	if a.Params == nil {
		return paramError("parameters", "is required")
	}
	if a.Params.Type() != a.Type {
		return fmt.Errorf("action type %s does not match parameters %s", a.Type, a.Params.Type())
	}
	if err := a.Params.Validate(); err != nil {
		return err
	}
	if inv, ok := a.Params.(*InventoryParams); ok {
		if a.DependsOnStep == nil && inv.Scope == "" && !inv.HasIdentifiers() {
			return paramError("product", "update_inventory requires product_ids, sku, product_title, scope or depends_on_step")
		}
	}
	if a.Type == TypeCustomCommand {
		a.RequiresConfirmation = true
	}
	return nil
}

// Target 返回动作的目标集合，无目标时返回 nil
func (a *Action) Target() *Target {
	if a.Params == nil {
		return nil
	}
	return TargetOf(a.Params)
}

// DependsOn 返回依赖的步骤号
func (a *Action) DependsOn() (int, bool) {
	if a.DependsOnStep == nil {
		return 0, false
	}
	return *a.DependsOnStep, true
}

// StepRef 构造步骤号指针
func StepRef(step int) *int {
	return &step
}

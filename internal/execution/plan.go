package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"storepilot/internal/action"
	"storepilot/internal/platform"

	"github.com/Knetic/govaluate"
)

var (
	errNoTarget   = errors.New("action has no resolvable product target")
	errNoProducts = errors.New("no products matched the target")
)

// 变更字段
const (
	FieldPrice     = "price"
	FieldInventory = "inventory"
	FieldTitle     = "title"
	FieldListing   = "listing"
	FieldSEO       = "seo"
)

// change 一次待执行的单商品修改
type change struct {
	product platform.Product
	variant *platform.Variant
	field   string
	before  any
	after   any
	err     error
	apply   func(ctx context.Context) error
}

func (c change) item() ItemResult {
	item := ItemResult{
		ProductID: c.product.ID,
		Title:     c.product.Title,
		Field:     c.field,
		Before:    c.before,
		After:     c.after,
	}
	if c.variant != nil {
		item.VariantID = c.variant.ID
	}
	return item
}

// plan 动作在单个平台上的执行计划
type plan struct {
	products   []platform.Product
	changes    []change
	single     func(ctx context.Context) (any, error)
	result     any
	describe   string
	allowEmpty bool
}

// platformRun 单个平台上的执行上下文
type platformRun struct {
	platform *platform.Platform
	catalog  platform.Catalog
	req      platform.Requester
	batches  *platform.BatchIterator
}

type planner func(ctx context.Context, run *platformRun, a *action.Action, deps []platform.Product) (*plan, error)

var planners map[action.Type]planner

func init() {
	planners = map[action.Type]planner{
		action.TypeGetProducts:       planGetProducts,
		action.TypeUpdatePrice:       planPrice,
		action.TypeUpdateInventory:   planInventory,
		action.TypeUpdateListing:     planListing,
		action.TypeApplyDiscount:     planDiscount,
		action.TypeUpdateSEO:         planSEO,
		action.TypeBulkOperation:     planBulk,
		action.TypeConditionalUpdate: planConditional,
		action.TypeCustomCommand:     planCustom,
	}
}

func planFor(ctx context.Context, run *platformRun, a *action.Action, deps []platform.Product) (*plan, error) {
	fn, ok := planners[a.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", action.ErrUnknownType, a.Type)
	}
	return fn(ctx, run, a, deps)
}

// resolve 依赖步骤的商品优先，否则按目标向平台查询
func (r *platformRun) resolve(ctx context.Context, t *action.Target, deps []platform.Product, limit int) ([]platform.Product, error) {
	if deps != nil {
		if t == nil || t.Filter.IsEmpty() {
			return deps, nil
		}
		out := make([]platform.Product, 0, len(deps))
		for _, p := range deps {
			if platform.MatchFilter(p, t.Filter) {
				out = append(out, p)
			}
		}
		return out, nil
	}
	if t == nil || !t.Resolvable() {
		return nil, errNoTarget
	}
	return r.catalog.ListProducts(ctx, platform.QueryFromTarget(t, limit))
}

func planGetProducts(ctx context.Context, run *platformRun, a *action.Action, deps []platform.Product) (*plan, error) {
	params := a.Params.(*action.GetProductsParams)
	var (
		products []platform.Product
		err      error
	)
	if deps == nil && !params.Resolvable() {
		products, err = run.catalog.ListProducts(ctx, platform.ListQuery{Limit: params.Limit})
	} else {
		products, err = run.resolve(ctx, &params.Target, deps, params.Limit)
	}
	if err != nil {
		return nil, err
	}
	return &plan{
		products:   products,
		result:     map[string]any{"count": len(products), "products": products},
		describe:   fmt.Sprintf("read %d products", len(products)),
		allowEmpty: true,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// NewPrice 按价格参数计算新价格
func NewPrice(current float64, p *action.PriceParams) (float64, error) {
	var next float64
	switch p.Operation {
	case action.OpSet:
		next = p.Value
	case action.OpIncrease:
		if p.Unit == action.UnitFixed {
			next = current + p.Value
		} else {
			next = current * (1 + p.Value/100)
		}
	case action.OpDecrease:
		if p.Unit == action.UnitFixed {
			next = current - p.Value
		} else {
			next = current * (1 - p.Value/100)
		}
	default:
		return 0, fmt.Errorf("unknown price operation %q", p.Operation)
	}
	next = round2(next)
	if next < 0 {
		return 0, fmt.Errorf("resulting price %.2f would be negative", next)
	}
	return next, nil
}

// NewInventory 按库存参数计算新库存，不低于 0
func NewInventory(current int, p *action.InventoryParams) int {
	n := *p.Available
	switch p.Operation {
	case action.OpAdd:
		n = current + n
	case action.OpSubtract:
		n = current - n
	}
	if n < 0 {
		return 0
	}
	return n
}

// variantsFor SKU 定位时只取匹配的规格
func variantsFor(p platform.Product, sku string) []platform.Variant {
	if sku == "" {
		return p.Variants
	}
	var out []platform.Variant
	for _, v := range p.Variants {
		if strings.EqualFold(v.SKU, sku) {
			out = append(out, v)
		}
	}
	return out
}

func planPrice(ctx context.Context, run *platformRun, a *action.Action, deps []platform.Product) (*plan, error) {
	params := a.Params.(*action.PriceParams)
	products, err := run.resolve(ctx, &params.Target, deps, 0)
	if err != nil {
		return nil, err
	}
	pl := &plan{products: products}
	for _, prod := range products {
		for _, v := range variantsFor(prod, params.SKU) {
			next, err := NewPrice(v.Price, params)
			pl.changes = append(pl.changes, change{
				product: prod,
				variant: &v,
				field:   FieldPrice,
				before:  v.Price,
				after:   next,
				err:     err,
				apply: func(ctx context.Context) error {
					return run.catalog.UpdateVariantPrice(ctx, prod.ID, v.ID, next)
				},
			})
		}
	}
	return pl, nil
}

func planInventory(ctx context.Context, run *platformRun, a *action.Action, deps []platform.Product) (*plan, error) {
	params := a.Params.(*action.InventoryParams)
	products, err := run.resolve(ctx, &params.Target, deps, 0)
	if err != nil {
		return nil, err
	}
	pl := &plan{products: products}
	for _, prod := range products {
		for _, v := range variantsFor(prod, params.SKU) {
			next := NewInventory(v.InventoryQuantity, params)
			pl.changes = append(pl.changes, change{
				product: prod,
				variant: &v,
				field:   FieldInventory,
				before:  v.InventoryQuantity,
				after:   next,
				apply: func(ctx context.Context) error {
					return run.catalog.SetInventory(ctx, prod.ID, v, next, params.LocationID)
				},
			})
		}
	}
	return pl, nil
}

func listingUpdate(p *action.ListingParams) platform.ProductUpdate {
	var u platform.ProductUpdate
	if p.Title != "" {
		u.Title = &p.Title
	}
	if p.Description != "" {
		u.Description = &p.Description
	}
	if len(p.Tags) > 0 {
		u.Tags = p.Tags
	}
	if p.Status != "" {
		u.Status = &p.Status
	}
	if p.Vendor != "" {
		u.Vendor = &p.Vendor
	}
	if p.ProductType != "" {
		u.ProductType = &p.ProductType
	}
	return u
}

// listingSnapshot 只保留本次修改涉及的字段
func listingSnapshot(prod platform.Product, p *action.ListingParams) (before, after map[string]any) {
	before, after = map[string]any{}, map[string]any{}
	if p.Title != "" {
		before["title"], after["title"] = prod.Title, p.Title
	}
	if p.Description != "" {
		before["description"], after["description"] = prod.Description, p.Description
	}
	if len(p.Tags) > 0 {
		before["tags"], after["tags"] = prod.Tags, p.Tags
	}
	if p.Status != "" {
		before["status"], after["status"] = prod.Status, p.Status
	}
	if p.Vendor != "" {
		before["vendor"], after["vendor"] = prod.Vendor, p.Vendor
	}
	if p.ProductType != "" {
		before["product_type"], after["product_type"] = prod.ProductType, p.ProductType
	}
	return before, after
}

func planListing(ctx context.Context, run *platformRun, a *action.Action, deps []platform.Product) (*plan, error) {
	params := a.Params.(*action.ListingParams)
	products, err := run.resolve(ctx, &params.Target, deps, 0)
	if err != nil {
		return nil, err
	}
	update := listingUpdate(params)
	pl := &plan{products: products}
	for _, prod := range products {
		before, after := listingSnapshot(prod, params)
		pl.changes = append(pl.changes, change{
			product: prod,
			field:   FieldListing,
			before:  before,
			after:   after,
			apply: func(ctx context.Context) error {
				return run.catalog.UpdateProduct(ctx, prod.ID, update)
			},
		})
	}
	return pl, nil
}

func planSEO(ctx context.Context, run *platformRun, a *action.Action, deps []platform.Product) (*plan, error) {
	params := a.Params.(*action.SEOParams)
	products, err := run.resolve(ctx, &params.Target, deps, 0)
	if err != nil {
		return nil, err
	}
	pl := &plan{products: products}
	for _, prod := range products {
		title, desc := params.Render(prod.Title)
		pl.changes = append(pl.changes, change{
			product: prod,
			field:   FieldSEO,
			before:  map[string]any{"meta_title": prod.SEOTitle, "meta_description": prod.SEODescription},
			after:   map[string]any{"meta_title": title, "meta_description": desc},
			apply: func(ctx context.Context) error {
				return run.catalog.UpdateSEO(ctx, prod.ID, title, desc)
			},
		})
	}
	return pl, nil
}

func planDiscount(ctx context.Context, run *platformRun, a *action.Action, deps []platform.Product) (*plan, error) {
	params := a.Params.(*action.DiscountParams)
	discount := platform.DiscountSpec{
		Title:      params.Title,
		Code:       params.Code,
		ValueType:  params.ValueType,
		Value:      params.Value,
		StartsAt:   params.StartsAt,
		EndsAt:     params.EndsAt,
		UsageLimit: params.UsageLimit,
	}
	pl := &plan{}
	// 全店折扣不需要枚举商品
	if deps != nil || (params.EffectiveScope() != action.ScopeAll && params.Resolvable()) {
		products, err := run.resolve(ctx, &params.Target, deps, 0)
		if err != nil {
			return nil, err
		}
		if len(products) == 0 {
			return nil, errNoProducts
		}
		pl.products = products
		for _, p := range products {
			discount.ProductIDs = append(discount.ProductIDs, p.ID)
		}
	}
	scope := "all products"
	if len(discount.ProductIDs) > 0 {
		scope = fmt.Sprintf("%d products", len(discount.ProductIDs))
	}
	pl.describe = fmt.Sprintf("create %s discount %v on %s", discount.ValueType, discount.Value, scope)
	pl.single = func(ctx context.Context) (any, error) {
		id, err := run.catalog.CreateDiscount(ctx, discount)
		if err != nil {
			return nil, err
		}
		return map[string]any{"discount_id": id, "product_count": len(discount.ProductIDs)}, nil
	}
	return pl, nil
}

func planBulk(ctx context.Context, run *platformRun, a *action.Action, _ []platform.Product) (*plan, error) {
	params := a.Params.(*action.BulkParams)
	var items []action.BulkItem
	for _, item := range params.Items {
		if item.PlatformID == "" || item.PlatformID == run.platform.ID {
			items = append(items, item)
		}
	}
	pl := &plan{allowEmpty: true, result: map[string]any{"items": len(items)}}
	if len(items) == 0 {
		return pl, nil
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := run.catalog.ListProducts(ctx, platform.ListQuery{IDs: ids})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]platform.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	pl.products = products

	for _, item := range items {
		prod, ok := byID[item.ProductID]
		if !ok {
			pl.changes = append(pl.changes, change{
				product: platform.Product{ID: item.ProductID},
				field:   bulkField(item),
				err:     fmt.Errorf("product %s not found", item.ProductID),
			})
			continue
		}
		v, err := pickVariant(prod, item.VariantID)
		if item.Price != nil {
			price := *item.Price
			pl.changes = append(pl.changes, change{
				product: prod, variant: v, field: FieldPrice, before: variantPrice(v), after: price, err: err,
				apply: func(ctx context.Context) error {
					return run.catalog.UpdateVariantPrice(ctx, prod.ID, v.ID, price)
				},
			})
		}
		if item.Inventory != nil {
			qty := *item.Inventory
			pl.changes = append(pl.changes, change{
				product: prod, variant: v, field: FieldInventory, before: variantInventory(v), after: qty, err: err,
				apply: func(ctx context.Context) error {
					return run.catalog.SetInventory(ctx, prod.ID, *v, qty, "")
				},
			})
		}
		if item.Title != "" {
			title := item.Title
			pl.changes = append(pl.changes, change{
				product: prod, field: FieldTitle, before: prod.Title, after: title,
				apply: func(ctx context.Context) error {
					return run.catalog.UpdateProduct(ctx, prod.ID, platform.ProductUpdate{Title: &title})
				},
			})
		}
	}
	return pl, nil
}

func bulkField(item action.BulkItem) string {
	switch {
	case item.Price != nil:
		return FieldPrice
	case item.Inventory != nil:
		return FieldInventory
	default:
		return FieldTitle
	}
}

func pickVariant(p platform.Product, variantID string) (*platform.Variant, error) {
	for i := range p.Variants {
		if variantID == "" || p.Variants[i].ID == variantID {
			return &p.Variants[i], nil
		}
	}
	return nil, fmt.Errorf("variant %q not found on product %s", variantID, p.ID)
}

func variantPrice(v *platform.Variant) any {
	if v == nil {
		return nil
	}
	return v.Price
}

func variantInventory(v *platform.Variant) any {
	if v == nil {
		return nil
	}
	return v.InventoryQuantity
}

func planConditional(ctx context.Context, run *platformRun, a *action.Action, deps []platform.Product) (*plan, error) {
	params := a.Params.(*action.ConditionalParams)
	expr, err := govaluate.NewEvaluableExpression(params.Condition)
	if err != nil {
		return nil, fmt.Errorf("invalid condition %q: %w", params.Condition, err)
	}
	products, err := run.resolve(ctx, &params.Target, deps, 0)
	if err != nil {
		return nil, err
	}

	var matched []platform.Product
	for _, p := range products {
		ok, err := evalCondition(expr, p)
		if err != nil {
			return nil, fmt.Errorf("evaluate condition on product %s: %w", p.ID, err)
		}
		if ok {
			matched = append(matched, p)
		}
	}
	summary := map[string]any{"evaluated": len(products), "matched": len(matched)}
	if len(matched) == 0 {
		return &plan{products: matched, result: summary, allowEmpty: true,
			describe: fmt.Sprintf("condition matched 0 of %d products", len(products))}, nil
	}

	then := params.Then
	inner, err := planFor(ctx, run, &then, matched)
	if err != nil {
		return nil, err
	}
	inner.result = summary
	inner.allowEmpty = true
	return inner, nil
}

func evalCondition(expr *govaluate.EvaluableExpression, p platform.Product) (bool, error) {
	out, err := expr.Evaluate(p.Fields())
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition evaluated to %v, not a boolean", out)
	}
	return b, nil
}

func planCustom(_ context.Context, run *platformRun, a *action.Action, _ []platform.Product) (*plan, error) {
	params := a.Params.(*action.CustomParams)
	var body any
	if len(params.Body) > 0 {
		body = params.Body
	}
	return &plan{
		describe: params.Method + " " + params.Endpoint,
		single: func(ctx context.Context) (any, error) {
			raw, err := run.req.Request(ctx, run.platform, params.Method, params.Endpoint, body)
			if err != nil {
				return nil, err
			}
			return json.RawMessage(raw), nil
		},
	}, nil
}

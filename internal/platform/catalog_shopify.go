package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storepilot/internal/action"
)

type shopifyCatalog struct {
	r Requester
	p *Platform
}

type shopifyVariant struct {
	ID                flexID    `json:"id"`
	SKU               string    `json:"sku"`
	Price             flexFloat `json:"price"`
	InventoryQuantity int       `json:"inventory_quantity"`
	InventoryItemID   flexID    `json:"inventory_item_id"`
}

type shopifyProduct struct {
	ID          flexID           `json:"id"`
	Title       string           `json:"title"`
	BodyHTML    string           `json:"body_html"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	Status      string           `json:"status"`
	Tags        string           `json:"tags"`
	Variants    []shopifyVariant `json:"variants"`
}

func (s shopifyProduct) normalize() Product {
	p := Product{
		ID:          string(s.ID),
		Title:       s.Title,
		Description: s.BodyHTML,
		Vendor:      s.Vendor,
		ProductType: s.ProductType,
		Status:      s.Status,
		Tags:        splitTags(s.Tags),
	}
	for _, v := range s.Variants {
		p.Variants = append(p.Variants, Variant{
			ID:                string(v.ID),
			SKU:               v.SKU,
			Price:             float64(v.Price),
			InventoryQuantity: v.InventoryQuantity,
			InventoryItemID:   string(v.InventoryItemID),
		})
	}
	return p
}

const shopifyPageSize = 250

// ListProducts 按 since_id 翻页（商品按 ID 升序返回）
func (c *shopifyCatalog) ListProducts(ctx context.Context, q ListQuery) ([]Product, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(shopifyPageSize))
	if len(q.IDs) > 0 {
		params.Set("ids", strings.Join(q.IDs, ","))
	}
	if q.Title != "" {
		params.Set("title", q.Title)
	}
	if q.Filter != nil {
		if q.Filter.Vendor != "" {
			params.Set("vendor", q.Filter.Vendor)
		}
		if q.Filter.ProductType != "" {
			params.Set("product_type", q.Filter.ProductType)
		}
		if q.Filter.Status != "" {
			params.Set("status", q.Filter.Status)
		}
	}
	return collectPages(ctx, c.r, q, shopifyPageSize, func(_ int, after string) ([]Product, error) {
		if after != "" {
			params.Set("since_id", after)
		}
		raw, err := c.r.Request(ctx, c.p, http.MethodGet, "/products.json?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var resp struct {
			Products []shopifyProduct `json:"products"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("解析 Shopify 商品失败: %w", err)
		}
		products := make([]Product, 0, len(resp.Products))
		for _, sp := range resp.Products {
			products = append(products, sp.normalize())
		}
		return products, nil
	})
}

func (c *shopifyCatalog) UpdateVariantPrice(ctx context.Context, _ string, variantID string, price float64) error {
	body := map[string]any{"variant": map[string]any{"id": variantID, "price": formatPrice(price)}}
	_, err := c.r.Request(ctx, c.p, http.MethodPut, "/variants/"+variantID+".json", body)
	return err
}

func (c *shopifyCatalog) SetInventory(ctx context.Context, _ string, v Variant, available int, locationID string) error {
	if v.InventoryItemID == "" {
		return fmt.Errorf("variant %s has no inventory_item_id", v.ID)
	}
	if locationID == "" {
		loc, err := c.primaryLocation(ctx)
		if err != nil {
			return err
		}
		locationID = loc
	}
	body := map[string]any{
		"location_id":       jsonID(locationID),
		"inventory_item_id": jsonID(v.InventoryItemID),
		"available":         available,
	}
	_, err := c.r.Request(ctx, c.p, http.MethodPost, "/inventory_levels/set.json", body)
	return err
}

func (c *shopifyCatalog) primaryLocation(ctx context.Context) (string, error) {
	raw, err := c.r.Request(ctx, c.p, http.MethodGet, "/locations.json", nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		Locations []struct {
			ID     flexID `json:"id"`
			Active bool   `json:"active"`
		} `json:"locations"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("解析 Shopify 库存地点失败: %w", err)
	}
	for _, l := range resp.Locations {
		if l.Active {
			return string(l.ID), nil
		}
	}
	if len(resp.Locations) > 0 {
		return string(resp.Locations[0].ID), nil
	}
	return "", fmt.Errorf("shopify store has no inventory location")
}

func (c *shopifyCatalog) UpdateProduct(ctx context.Context, productID string, u ProductUpdate) error {
	product := map[string]any{"id": jsonID(productID)}
	if u.Title != nil {
		product["title"] = *u.Title
	}
	if u.Description != nil {
		product["body_html"] = *u.Description
	}
	if u.Tags != nil {
		product["tags"] = strings.Join(u.Tags, ", ")
	}
	if u.Status != nil {
		product["status"] = *u.Status
	}
	if u.Vendor != nil {
		product["vendor"] = *u.Vendor
	}
	if u.ProductType != nil {
		product["product_type"] = *u.ProductType
	}
	_, err := c.r.Request(ctx, c.p, http.MethodPut, "/products/"+productID+".json", map[string]any{"product": product})
	return err
}

func (c *shopifyCatalog) CreateDiscount(ctx context.Context, d DiscountSpec) (string, error) {
	valueType := "percentage"
	if d.ValueType == action.DiscountFixedAmount {
		valueType = "fixed_amount"
	}
	title := d.Title
	if title == "" {
		title = d.Code
	}
	rule := map[string]any{
		"title":              title,
		"target_type":        "line_item",
		"target_selection":   "all",
		"allocation_method":  "across",
		"value_type":         valueType,
		"value":              "-" + formatPrice(d.Value),
		"customer_selection": "all",
		"starts_at":          d.StartsAt,
	}
	if d.StartsAt == "" {
		rule["starts_at"] = nowRFC3339()
	}
	if d.EndsAt != "" {
		rule["ends_at"] = d.EndsAt
	}
	if d.UsageLimit > 0 {
		rule["usage_limit"] = d.UsageLimit
	}
	if len(d.ProductIDs) > 0 {
		ids := make([]any, 0, len(d.ProductIDs))
		for _, id := range d.ProductIDs {
			ids = append(ids, jsonID(id))
		}
		rule["target_selection"] = "entitled"
		rule["allocation_method"] = "each"
		rule["entitled_product_ids"] = ids
	}

	raw, err := c.r.Request(ctx, c.p, http.MethodPost, "/price_rules.json", map[string]any{"price_rule": rule})
	if err != nil {
		return "", err
	}
	var resp struct {
		PriceRule struct {
			ID flexID `json:"id"`
		} `json:"price_rule"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("解析 Shopify 价格规则失败: %w", err)
	}
	ruleID := string(resp.PriceRule.ID)
	if d.Code != "" {
		body := map[string]any{"discount_code": map[string]any{"code": d.Code}}
		if _, err := c.r.Request(ctx, c.p, http.MethodPost, "/price_rules/"+ruleID+"/discount_codes.json", body); err != nil {
			return ruleID, err
		}
	}
	return ruleID, nil
}

func (c *shopifyCatalog) UpdateSEO(ctx context.Context, productID, title, description string) error {
	product := map[string]any{"id": jsonID(productID)}
	if title != "" {
		product["metafields_global_title_tag"] = title
	}
	if description != "" {
		product["metafields_global_description_tag"] = description
	}
	_, err := c.r.Request(ctx, c.p, http.MethodPut, "/products/"+productID+".json", map[string]any{"product": product})
	return err
}

// jsonID 数字 ID 按数字输出，其余按字符串输出
func jsonID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

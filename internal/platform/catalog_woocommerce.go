package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"storepilot/internal/action"
)

type wooCatalog struct {
	r Requester
	p *Platform
}

type wooProduct struct {
	ID            flexID    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Status        string    `json:"status"`
	SKU           string    `json:"sku"`
	Price         flexFloat `json:"price"`
	RegularPrice  flexFloat `json:"regular_price"`
	StockQuantity *int      `json:"stock_quantity"`
	Type          string    `json:"type"`
	Tags          []struct {
		Name string `json:"name"`
	} `json:"tags"`
	Categories []struct {
		Name string `json:"name"`
	} `json:"categories"`
	MetaData []struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	} `json:"meta_data"`
}

const (
	yoastTitleKey       = "_yoast_wpseo_title"
	yoastDescriptionKey = "_yoast_wpseo_metadesc"
)

func (w wooProduct) normalize() Product {
	price := float64(w.RegularPrice)
	if price == 0 {
		price = float64(w.Price)
	}
	stock := 0
	if w.StockQuantity != nil {
		stock = *w.StockQuantity
	}
	p := Product{
		ID:          string(w.ID),
		Title:       w.Name,
		Description: w.Description,
		Status:      wooStatusToCommon(w.Status),
		Variants: []Variant{{
			ID:                string(w.ID),
			SKU:               w.SKU,
			Price:             price,
			InventoryQuantity: stock,
		}},
	}
	for _, t := range w.Tags {
		p.Tags = append(p.Tags, t.Name)
	}
	if len(w.Categories) > 0 {
		p.ProductType = w.Categories[0].Name
	}
	for _, m := range w.MetaData {
		s, _ := m.Value.(string)
		switch m.Key {
		case yoastTitleKey:
			p.SEOTitle = s
		case yoastDescriptionKey:
			p.SEODescription = s
		}
	}
	return p
}

func wooStatusToCommon(s string) string {
	switch s {
	case "publish":
		return "active"
	case "private", "trash":
		return "archived"
	default:
		return s
	}
}

func commonStatusToWoo(s string) string {
	switch s {
	case "active":
		return "publish"
	case "archived":
		return "private"
	default:
		return s
	}
}

const wooPageSize = 100

func (c *wooCatalog) ListProducts(ctx context.Context, q ListQuery) ([]Product, error) {
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(wooPageSize))
	params.Set("orderby", "id")
	params.Set("order", "asc")
	if len(q.IDs) > 0 {
		params.Set("include", strings.Join(q.IDs, ","))
	}
	if q.SKU != "" {
		params.Set("sku", q.SKU)
	}
	if q.Title != "" {
		params.Set("search", q.Title)
	} else if q.Filter != nil && q.Filter.TitleContains != "" {
		params.Set("search", q.Filter.TitleContains)
	}
	return collectPages(ctx, c.r, q, wooPageSize, func(page int, _ string) ([]Product, error) {
		params.Set("page", strconv.Itoa(page))
		raw, err := c.r.Request(ctx, c.p, http.MethodGet, "/products?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var items []wooProduct
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("解析 WooCommerce 商品失败: %w", err)
		}
		products := make([]Product, 0, len(items))
		for _, item := range items {
			products = append(products, item.normalize())
		}
		return products, nil
	})
}

func (c *wooCatalog) UpdateVariantPrice(ctx context.Context, productID, variantID string, price float64) error {
	endpoint := "/products/" + productID
	if variantID != "" && variantID != productID {
		endpoint += "/variations/" + variantID
	}
	_, err := c.r.Request(ctx, c.p, http.MethodPut, endpoint, map[string]any{"regular_price": formatPrice(price)})
	return err
}

func (c *wooCatalog) SetInventory(ctx context.Context, productID string, v Variant, available int, _ string) error {
	endpoint := "/products/" + productID
	if v.ID != "" && v.ID != productID {
		endpoint += "/variations/" + v.ID
	}
	_, err := c.r.Request(ctx, c.p, http.MethodPut, endpoint, map[string]any{"manage_stock": true, "stock_quantity": available})
	return err
}

func (c *wooCatalog) UpdateProduct(ctx context.Context, productID string, u ProductUpdate) error {
	body := map[string]any{}
	if u.Title != nil {
		body["name"] = *u.Title
	}
	if u.Description != nil {
		body["description"] = *u.Description
	}
	if u.Status != nil {
		body["status"] = commonStatusToWoo(*u.Status)
	}
	if u.Tags != nil {
		tags := make([]map[string]string, 0, len(u.Tags))
		for _, t := range u.Tags {
			tags = append(tags, map[string]string{"name": t})
		}
		body["tags"] = tags
	}
	if u.Vendor != nil || u.ProductType != nil {
		// WooCommerce 没有 vendor / product_type 字段，写入自定义 meta
		var meta []map[string]string
		if u.Vendor != nil {
			meta = append(meta, map[string]string{"key": "vendor", "value": *u.Vendor})
		}
		if u.ProductType != nil {
			meta = append(meta, map[string]string{"key": "product_type", "value": *u.ProductType})
		}
		body["meta_data"] = meta
	}
	_, err := c.r.Request(ctx, c.p, http.MethodPut, "/products/"+productID, body)
	return err
}

var couponCodeCleaner = regexp.MustCompile(`[^a-z0-9]+`)

func (c *wooCatalog) CreateDiscount(ctx context.Context, d DiscountSpec) (string, error) {
	code := d.Code
	if code == "" {
		code = strings.Trim(couponCodeCleaner.ReplaceAllString(strings.ToLower(d.Title), "-"), "-")
	}
	discountType := "percent"
	if d.ValueType == action.DiscountFixedAmount {
		discountType = "fixed_cart"
	}
	body := map[string]any{
		"code":          code,
		"discount_type": discountType,
		"amount":        formatPrice(d.Value),
		"description":   d.Title,
	}
	if d.EndsAt != "" {
		body["date_expires"] = d.EndsAt
	}
	if d.UsageLimit > 0 {
		body["usage_limit"] = d.UsageLimit
	}
	if len(d.ProductIDs) > 0 {
		ids := make([]any, 0, len(d.ProductIDs))
		for _, id := range d.ProductIDs {
			ids = append(ids, jsonID(id))
		}
		body["product_ids"] = ids
	}
	raw, err := c.r.Request(ctx, c.p, http.MethodPost, "/coupons", body)
	if err != nil {
		return "", err
	}
	var resp struct {
		ID flexID `json:"id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("解析 WooCommerce 优惠券失败: %w", err)
	}
	return string(resp.ID), nil
}

func (c *wooCatalog) UpdateSEO(ctx context.Context, productID, title, description string) error {
	var meta []map[string]string
	if title != "" {
		meta = append(meta, map[string]string{"key": yoastTitleKey, "value": title})
	}
	if description != "" {
		meta = append(meta, map[string]string{"key": yoastDescriptionKey, "value": description})
	}
	_, err := c.r.Request(ctx, c.p, http.MethodPut, "/products/"+productID, map[string]any{"meta_data": meta})
	return err
}

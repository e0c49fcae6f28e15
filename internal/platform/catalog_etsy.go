package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// etsyCatalog 目前只覆盖在售 listing 的读取与基础字段修改
type etsyCatalog struct {
	r      Requester
	p      *Platform
	shopID string
}

type etsyListing struct {
	ListingID flexID   `json:"listing_id"`
	Title     string   `json:"title"`
	Desc      string   `json:"description"`
	State     string   `json:"state"`
	Tags      []string `json:"tags"`
	SKUs      []string `json:"skus"`
	Quantity  int      `json:"quantity"`
	Price     struct {
		Amount  float64 `json:"amount"`
		Divisor float64 `json:"divisor"`
	} `json:"price"`
}

func (l etsyListing) normalize() Product {
	price := l.Price.Amount
	if l.Price.Divisor > 0 {
		price = l.Price.Amount / l.Price.Divisor
	}
	sku := ""
	if len(l.SKUs) > 0 {
		sku = l.SKUs[0]
	}
	return Product{
		ID:          string(l.ListingID),
		Title:       l.Title,
		Description: l.Desc,
		Status:      l.State,
		Tags:        l.Tags,
		Variants: []Variant{{
			ID:                string(l.ListingID),
			SKU:               sku,
			Price:             price,
			InventoryQuantity: l.Quantity,
		}},
	}
}

func (c *etsyCatalog) shopPath() (string, error) {
	if c.shopID == "" {
		return "", fmt.Errorf("%w: etsy shop_id", ErrMissingCredentials)
	}
	return "/shops/" + url.PathEscape(c.shopID), nil
}

const etsyPageSize = 100

func (c *etsyCatalog) ListProducts(ctx context.Context, q ListQuery) ([]Product, error) {
	shop, err := c.shopPath()
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(etsyPageSize))
	if q.Title != "" {
		params.Set("keywords", q.Title)
	}
	return collectPages(ctx, c.r, q, etsyPageSize, func(page int, _ string) ([]Product, error) {
		params.Set("offset", strconv.Itoa((page-1)*etsyPageSize))
		raw, err := c.r.Request(ctx, c.p, http.MethodGet, shop+"/listings/active?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var resp struct {
			Results []etsyListing `json:"results"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("解析 Etsy listing 失败: %w", err)
		}
		products := make([]Product, 0, len(resp.Results))
		for _, l := range resp.Results {
			products = append(products, l.normalize())
		}
		return products, nil
	})
}

func (c *etsyCatalog) UpdateVariantPrice(context.Context, string, string, float64) error {
	return unsupported(TypeEtsy, "update_price")
}

func (c *etsyCatalog) SetInventory(context.Context, string, Variant, int, string) error {
	return unsupported(TypeEtsy, "update_inventory")
}

func (c *etsyCatalog) UpdateProduct(ctx context.Context, productID string, u ProductUpdate) error {
	shop, err := c.shopPath()
	if err != nil {
		return err
	}
	if _, err := strconv.ParseInt(productID, 10, 64); err != nil {
		return fmt.Errorf("invalid etsy listing id %q", productID)
	}
	body := map[string]any{}
	if u.Title != nil {
		body["title"] = *u.Title
	}
	if u.Description != nil {
		body["description"] = *u.Description
	}
	if u.Tags != nil {
		body["tags"] = strings.Join(u.Tags, ",")
	}
	if u.Status != nil {
		state := *u.Status
		if state == "archived" || state == "draft" {
			state = "inactive"
		}
		body["state"] = state
	}
	_, err = c.r.Request(ctx, c.p, http.MethodPatch, shop+"/listings/"+productID, body)
	return err
}

func (c *etsyCatalog) CreateDiscount(context.Context, DiscountSpec) (string, error) {
	return "", unsupported(TypeEtsy, "apply_discount")
}

func (c *etsyCatalog) UpdateSEO(context.Context, string, string, string) error {
	return unsupported(TypeEtsy, "update_seo")
}

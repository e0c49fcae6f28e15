package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
)

type faireCatalog struct {
	r Requester
	p *Platform
}

type faireProduct struct {
	ID          flexID `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	State       string `json:"lifecycle_state"`
	Variants    []struct {
		ID                flexID `json:"id"`
		SKU               string `json:"sku"`
		RetailPriceCents  int64  `json:"retail_price_cents"`
		AvailableQuantity int    `json:"available_quantity"`
	} `json:"variants"`
}

func (f faireProduct) normalize() Product {
	p := Product{
		ID:          string(f.ID),
		Title:       f.Name,
		Description: f.Description,
		Status:      faireStateToCommon(f.State),
	}
	for _, v := range f.Variants {
		p.Variants = append(p.Variants, Variant{
			ID:                string(v.ID),
			SKU:               v.SKU,
			Price:             float64(v.RetailPriceCents) / 100,
			InventoryQuantity: v.AvailableQuantity,
		})
	}
	return p
}

func faireStateToCommon(s string) string {
	switch s {
	case "PUBLISHED":
		return "active"
	case "UNPUBLISHED":
		return "draft"
	case "":
		return ""
	default:
		return "archived"
	}
}

const fairePageSize = 250

func (c *faireCatalog) ListProducts(ctx context.Context, q ListQuery) ([]Product, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(fairePageSize))
	return collectPages(ctx, c.r, q, fairePageSize, func(page int, _ string) ([]Product, error) {
		params.Set("page", strconv.Itoa(page))
		raw, err := c.r.Request(ctx, c.p, http.MethodGet, "/products?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var resp struct {
			Products []faireProduct `json:"products"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("解析 Faire 商品失败: %w", err)
		}
		products := make([]Product, 0, len(resp.Products))
		for _, fp := range resp.Products {
			products = append(products, fp.normalize())
		}
		return products, nil
	})
}

func (c *faireCatalog) UpdateVariantPrice(ctx context.Context, productID, variantID string, price float64) error {
	body := map[string]any{"retail_price_cents": int64(math.Round(price * 100))}
	_, err := c.r.Request(ctx, c.p, http.MethodPatch, "/products/"+productID+"/variants/"+variantID, body)
	return err
}

func (c *faireCatalog) SetInventory(ctx context.Context, _ string, v Variant, available int, _ string) error {
	if v.SKU == "" {
		return fmt.Errorf("faire variant %s has no sku", v.ID)
	}
	body := map[string]any{
		"inventories": []map[string]any{{"sku": v.SKU, "current_quantity": available}},
	}
	_, err := c.r.Request(ctx, c.p, http.MethodPatch, "/product-inventory/by-skus", body)
	return err
}

func (c *faireCatalog) UpdateProduct(ctx context.Context, productID string, u ProductUpdate) error {
	body := map[string]any{}
	if u.Title != nil {
		body["name"] = *u.Title
	}
	if u.Description != nil {
		body["description"] = *u.Description
	}
	if u.Status != nil {
		switch *u.Status {
		case "active":
			body["lifecycle_state"] = "PUBLISHED"
		case "draft":
			body["lifecycle_state"] = "UNPUBLISHED"
		case "archived":
			body["lifecycle_state"] = "DELETED"
		default:
			return fmt.Errorf("faire does not support product status %q", *u.Status)
		}
	}
	_, err := c.r.Request(ctx, c.p, http.MethodPatch, "/products/"+productID, body)
	return err
}

func (c *faireCatalog) CreateDiscount(context.Context, DiscountSpec) (string, error) {
	return "", unsupported(TypeFaire, "apply_discount")
}

func (c *faireCatalog) UpdateSEO(context.Context, string, string, string) error {
	return unsupported(TypeFaire, "update_seo")
}

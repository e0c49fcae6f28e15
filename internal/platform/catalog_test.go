package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"

	"storepilot/internal/action"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type recordedCall struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

type recorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *recorder) add(req *http.Request) {
	raw, _ := io.ReadAll(req.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	r.mu.Lock()
	r.calls = append(r.calls, recordedCall{Method: req.Method, Path: req.URL.Path, Query: req.URL.RawQuery, Body: body})
	r.mu.Unlock()
}

const shopifyProductsJSON = `{"products":[
 {"id":101,"title":"Blue Shirt","vendor":"Acme","product_type":"Shirts","status":"active","tags":"summer, sale",
  "variants":[{"id":1001,"sku":"ABC","price":"20.00","inventory_quantity":5,"inventory_item_id":9001}]},
 {"id":102,"title":"Red Hat","vendor":"Other","product_type":"Hats","status":"draft","tags":"",
  "variants":[{"id":1002,"sku":"HAT-1","price":"12.50","inventory_quantity":40,"inventory_item_id":9002}]}
]}`

func TestShopifyCatalog(t *testing.T) {
	rec := &recorder{}
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		switch r.URL.Path {
		case "/products.json":
			_, _ = w.Write([]byte(shopifyProductsJSON))
		case "/locations.json":
			_, _ = w.Write([]byte(`{"locations":[{"id":55,"active":false},{"id":77,"active":true}]}`))
		case "/price_rules.json":
			_, _ = w.Write([]byte(`{"price_rule":{"id":3131}}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	})
	cat, err := a.Catalog(&Platform{PlatformType: TypeShopify, AccessToken: "t"})
	require.NoError(t, err)
	ctx := context.Background()

	products, err := cat.ListProducts(ctx, ListQuery{SKU: "abc"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "101", products[0].ID)
	assert.Equal(t, 20.0, products[0].Price())
	assert.Equal(t, []string{"summer", "sale"}, products[0].Tags)
	assert.Equal(t, "9001", products[0].Variants[0].InventoryItemID)

	products, err = cat.ListProducts(ctx, ListQuery{Filter: &action.Filter{Vendor: "Other"}})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Red Hat", products[0].Title)

	require.NoError(t, cat.UpdateVariantPrice(ctx, "101", "1001", 22))
	require.NoError(t, cat.SetInventory(ctx, "101", products[0].Variants[0], 50, ""))

	id, err := cat.CreateDiscount(ctx, DiscountSpec{Title: "Summer", Code: "SUMMER10", ValueType: action.DiscountPercentage, Value: 10})
	require.NoError(t, err)
	assert.Equal(t, "3131", id)

	var paths []string
	for _, c := range rec.calls {
		paths = append(paths, c.Method+" "+c.Path)
	}
	assert.Contains(t, paths, "PUT /variants/1001.json")
	assert.Contains(t, paths, "GET /locations.json")
	assert.Contains(t, paths, "POST /inventory_levels/set.json")
	assert.Contains(t, paths, "POST /price_rules/3131/discount_codes.json")

	for _, c := range rec.calls {
		switch c.Path {
		case "/variants/1001.json":
			assert.Equal(t, "22.00", c.Body["variant"].(map[string]any)["price"])
		case "/inventory_levels/set.json":
			assert.EqualValues(t, 77, c.Body["location_id"])
			assert.EqualValues(t, 9002, c.Body["inventory_item_id"])
			assert.EqualValues(t, 50, c.Body["available"])
		case "/price_rules.json":
			rule := c.Body["price_rule"].(map[string]any)
			assert.Equal(t, "-10.00", rule["value"])
			assert.Equal(t, "percentage", rule["value_type"])
		}
	}
}

func TestWooCommerceCatalog(t *testing.T) {
	rec := &recorder{}
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`[{"id":7,"name":"Mug","status":"publish","sku":"MUG","regular_price":"9.99","stock_quantity":3,
				"tags":[{"name":"kitchen"}],"meta_data":[{"key":"_yoast_wpseo_title","value":"Mug | Shop"}]}]`))
			return
		}
		_, _ = w.Write([]byte(`{"id":44}`))
	})
	p := &Platform{PlatformType: TypeWooCommerce, Credentials: datatypes.JSON(`{"consumer_key":"ck","consumer_secret":"cs"}`)}
	cat, err := a.Catalog(p)
	require.NoError(t, err)
	ctx := context.Background()

	products, err := cat.ListProducts(ctx, ListQuery{SKU: "MUG"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "active", products[0].Status)
	assert.Equal(t, 9.99, products[0].Price())
	assert.Equal(t, 3, products[0].Inventory())
	assert.Equal(t, "Mug | Shop", products[0].SEOTitle)
	assert.Contains(t, rec.calls[0].Query, "sku=MUG")

	require.NoError(t, cat.SetInventory(ctx, "7", products[0].Variants[0], 10, ""))
	last := rec.calls[len(rec.calls)-1]
	assert.Equal(t, "/products/7", last.Path)
	assert.Equal(t, true, last.Body["manage_stock"])
	assert.EqualValues(t, 10, last.Body["stock_quantity"])

	status := "active"
	require.NoError(t, cat.UpdateProduct(ctx, "7", ProductUpdate{Status: &status}))
	last = rec.calls[len(rec.calls)-1]
	assert.Equal(t, "publish", last.Body["status"])

	id, err := cat.CreateDiscount(ctx, DiscountSpec{Title: "Spring Sale", ValueType: action.DiscountFixedAmount, Value: 5})
	require.NoError(t, err)
	assert.Equal(t, "44", id)
	last = rec.calls[len(rec.calls)-1]
	assert.Equal(t, "/coupons", last.Path)
	assert.Equal(t, "spring-sale", last.Body["code"])
	assert.Equal(t, "fixed_cart", last.Body["discount_type"])
}

func TestEtsyAndFaireUnsupportedOperations(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	ctx := context.Background()

	etsy, err := a.Catalog(&Platform{PlatformType: TypeEtsy, AccessToken: "t", Credentials: datatypes.JSON(`{"api_key":"k","shop_id":"9"}`)})
	require.NoError(t, err)
	assert.ErrorIs(t, etsy.UpdateVariantPrice(ctx, "1", "1", 5), ErrUnsupportedOperation)
	_, err = etsy.CreateDiscount(ctx, DiscountSpec{})
	assert.ErrorIs(t, err, ErrUnsupportedOperation)

	faire, err := a.Catalog(&Platform{PlatformType: TypeFaire, AccessToken: "t"})
	require.NoError(t, err)
	assert.ErrorIs(t, faire.UpdateSEO(ctx, "1", "t", "d"), ErrUnsupportedOperation)
	assert.Error(t, faire.SetInventory(ctx, "1", Variant{ID: "v"}, 3, ""))

	_, err = a.Catalog(&Platform{PlatformType: "amazon"})
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestFaireCentsConversion(t *testing.T) {
	rec := &recorder{}
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"products":[{"id":"p_1","name":"Candle","lifecycle_state":"PUBLISHED",
				"variants":[{"id":"v_1","sku":"C-1","retail_price_cents":1850,"available_quantity":4}]}]}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	cat, err := a.Catalog(&Platform{PlatformType: TypeFaire, AccessToken: "t"})
	require.NoError(t, err)

	products, err := cat.ListProducts(context.Background(), ListQuery{})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 18.5, products[0].Price())
	assert.Equal(t, "active", products[0].Status)

	require.NoError(t, cat.UpdateVariantPrice(context.Background(), "p_1", "v_1", 19.99))
	last := rec.calls[len(rec.calls)-1]
	assert.Equal(t, "/products/p_1/variants/v_1", last.Path)
	assert.EqualValues(t, 1999, last.Body["retail_price_cents"])

	archived, unknown := "archived", "hidden"
	require.NoError(t, cat.UpdateProduct(context.Background(), "p_1", ProductUpdate{Status: &archived}))
	assert.Equal(t, "DELETED", rec.calls[len(rec.calls)-1].Body["lifecycle_state"])
	calls := len(rec.calls)
	assert.Error(t, cat.UpdateProduct(context.Background(), "p_1", ProductUpdate{Status: &unknown}))
	assert.Len(t, rec.calls, calls)
}

func TestMatchFilter(t *testing.T) {
	minPrice := 15.0
	p := Product{Title: "Blue Shirt", Tags: []string{"Sale"}, Variants: []Variant{{Price: 20, InventoryQuantity: 2}}}
	assert.True(t, MatchFilter(p, nil))
	assert.True(t, MatchFilter(p, &action.Filter{TitleContains: "shirt", Tag: "sale", MinPrice: &minPrice}))
	assert.False(t, MatchFilter(p, &action.Filter{Tag: "winter"}))

	maxInv := 1
	assert.False(t, MatchFilter(p, &action.Filter{MaxInventory: &maxInv}))
}

func fullPage(size int, prefix string) []Product {
	out := make([]Product, size)
	for i := range out {
		out[i] = Product{ID: fmt.Sprintf("%s-%d", prefix, i)}
	}
	return out
}

func TestCollectPagesFollowsUntilShortPage(t *testing.T) {
	var afters []string
	products, err := collectPages(context.Background(), nil, ListQuery{}, 3, func(page int, after string) ([]Product, error) {
		afters = append(afters, after)
		if page < 3 {
			return fullPage(3, fmt.Sprintf("p%d", page)), nil
		}
		return fullPage(1, "p3"), nil
	})
	require.NoError(t, err)
	assert.Len(t, products, 7)
	assert.Equal(t, []string{"", "p1-2", "p2-2"}, afters)
}

func TestCollectPagesStopsAtLimit(t *testing.T) {
	pages := 0
	products, err := collectPages(context.Background(), nil, ListQuery{Limit: 4}, 3, func(int, string) ([]Product, error) {
		pages++
		return fullPage(3, "x"), nil
	})
	require.NoError(t, err)
	assert.Len(t, products, 4)
	assert.Equal(t, 2, pages)
}

func TestCollectPagesRefusesPartialListing(t *testing.T) {
	pages := 0
	_, err := collectPages(context.Background(), nil, ListQuery{}, 2, func(int, string) ([]Product, error) {
		pages++
		return fullPage(2, "x"), nil
	})
	assert.ErrorIs(t, err, ErrListTruncated)
	assert.Equal(t, maxListPages, pages)
}

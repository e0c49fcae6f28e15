package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"storepilot/internal/action"
)

// Variant 规格（价格与库存所在层级）
type Variant struct {
	ID                string  `json:"id"`
	SKU               string  `json:"sku,omitempty"`
	Price             float64 `json:"price"`
	InventoryQuantity int     `json:"inventory_quantity"`
	InventoryItemID   string  `json:"inventory_item_id,omitempty"`
}

// Product 各平台商品的统一表示
type Product struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Vendor         string    `json:"vendor,omitempty"`
	ProductType    string    `json:"product_type,omitempty"`
	Status         string    `json:"status,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	SEOTitle       string    `json:"seo_title,omitempty"`
	SEODescription string    `json:"seo_description,omitempty"`
	Variants       []Variant `json:"variants"`
}

// Price 首个规格的价格
func (p Product) Price() float64 {
	if len(p.Variants) == 0 {
		return 0
	}
	return p.Variants[0].Price
}

// Inventory 全部规格库存之和
func (p Product) Inventory() int {
	total := 0
	for _, v := range p.Variants {
		total += v.InventoryQuantity
	}
	return total
}

// Fields 条件表达式可引用的字段
func (p Product) Fields() map[string]any {
	sku := ""
	if len(p.Variants) > 0 {
		sku = p.Variants[0].SKU
	}
	return map[string]any{
		"id":           p.ID,
		"title":        p.Title,
		"vendor":       p.Vendor,
		"product_type": p.ProductType,
		"status":       p.Status,
		"price":        p.Price(),
		"inventory":    float64(p.Inventory()),
		"sku":          sku,
		"tag_count":    float64(len(p.Tags)),
	}
}

// ListQuery 商品查询条件
type ListQuery struct {
	IDs    []string
	SKU    string
	Title  string
	Filter *action.Filter
	Limit  int
}

// QueryFromTarget 把动作目标转换为查询条件
func QueryFromTarget(t *action.Target, limit int) ListQuery {
	q := ListQuery{Limit: limit}
	if t == nil || t.EffectiveScope() == action.ScopeAll {
		return q
	}
	q.IDs = t.ProductIDs
	q.SKU = t.SKU
	q.Title = t.ProductTitle
	q.Filter = t.Filter
	return q
}

// ProductUpdate 商品字段修改，nil 表示不修改
type ProductUpdate struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Status      *string  `json:"status,omitempty"`
	Vendor      *string  `json:"vendor,omitempty"`
	ProductType *string  `json:"product_type,omitempty"`
}

// DiscountSpec 折扣定义
type DiscountSpec struct {
	Title      string
	Code       string
	ValueType  string
	Value      float64
	StartsAt   string
	EndsAt     string
	UsageLimit int
	ProductIDs []string
}

// Catalog 规范化的商品操作，各平台实现；不支持的操作返回 ErrUnsupportedOperation
type Catalog interface {
	ListProducts(ctx context.Context, q ListQuery) ([]Product, error)
	UpdateVariantPrice(ctx context.Context, productID, variantID string, price float64) error
	SetInventory(ctx context.Context, productID string, v Variant, available int, locationID string) error
	UpdateProduct(ctx context.Context, productID string, u ProductUpdate) error
	CreateDiscount(ctx context.Context, d DiscountSpec) (string, error)
	UpdateSEO(ctx context.Context, productID, title, description string) error
}

// Catalog 返回平台对应的商品操作实现
func (a *Adapter) Catalog(p *Platform) (Catalog, error) {
	return CatalogFor(a, p)
}

// CatalogFor 基于任意 Requester 构造平台商品操作
func CatalogFor(r Requester, p *Platform) (Catalog, error) {
	switch p.PlatformType {
	case TypeShopify:
		return &shopifyCatalog{r: r, p: p}, nil
	case TypeWooCommerce:
		return &wooCatalog{r: r, p: p}, nil
	case TypeEtsy:
		creds, err := p.ParseCredentials()
		if err != nil {
			return nil, err
		}
		return &etsyCatalog{r: r, p: p, shopID: creds.ShopID}, nil
	case TypeFaire:
		return &faireCatalog{r: r, p: p}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, p.PlatformType)
	}
}

// Match 按查询条件在本地过滤（平台查询参数不一定覆盖全部条件）
func (q ListQuery) Match(p Product) bool {
	if len(q.IDs) > 0 && !contains(q.IDs, p.ID) {
		return false
	}
	if q.SKU != "" {
		found := false
		for _, v := range p.Variants {
			if strings.EqualFold(v.SKU, q.SKU) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Title != "" && !strings.EqualFold(strings.TrimSpace(p.Title), strings.TrimSpace(q.Title)) {
		return false
	}
	return MatchFilter(p, q.Filter)
}

// MatchFilter 判断商品是否满足筛选条件
func MatchFilter(p Product, f *action.Filter) bool {
	if f.IsEmpty() {
		return true
	}
	if f.TitleContains != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(f.TitleContains)) {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range p.Tags {
			if strings.EqualFold(tag, f.Tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Vendor != "" && !strings.EqualFold(p.Vendor, f.Vendor) {
		return false
	}
	if f.ProductType != "" && !strings.EqualFold(p.ProductType, f.ProductType) {
		return false
	}
	if f.Status != "" && !strings.EqualFold(p.Status, f.Status) {
		return false
	}
	price, inv := p.Price(), p.Inventory()
	if f.MinPrice != nil && price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && price > *f.MaxPrice {
		return false
	}
	if f.MinInventory != nil && inv < *f.MinInventory {
		return false
	}
	if f.MaxInventory != nil && inv > *f.MaxInventory {
		return false
	}
	return true
}

// maxListPages 单次查询最多读取的页数
const maxListPages = 200

type pacer interface {
	Batches() *BatchIterator
}

// pagesFor 若 Requester 带批间隔配置，翻页同样按它限速
func pagesFor(r Requester) *BatchIterator {
	if p, ok := r.(pacer); ok {
		return p.Batches()
	}
	return nil
}

// collectPages 逐页读取并在本地过滤，直到某页不足 pageSize
// fetch 的 after 为上一页最后一个商品的 ID（首页为空）
// 读满 maxListPages 仍未结束时返回 ErrListTruncated，不返回部分结果
func collectPages(ctx context.Context, r Requester, q ListQuery, pageSize int, fetch func(page int, after string) ([]Product, error)) ([]Product, error) {
	pace := pagesFor(r)
	var out []Product
	after := ""
	for page := 1; ; page++ {
		if page > 1 && pace != nil {
			if err := pace.Wait(ctx); err != nil {
				return nil, err
			}
		}
		batch, err := fetch(page, after)
		if err != nil {
			return nil, err
		}
		for _, p := range batch {
			if !q.Match(p) {
				continue
			}
			out = append(out, p)
			if q.Limit > 0 && len(out) >= q.Limit {
				return out, nil
			}
		}
		if len(batch) < pageSize {
			return out, nil
		}
		if page >= maxListPages {
			return nil, fmt.Errorf("%w: more than %d pages of %d products", ErrListTruncated, maxListPages, pageSize)
		}
		after = batch[len(batch)-1].ID
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// flexID 兼容数字与字符串形式的 ID
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// flexFloat 兼容 "19.99" 与 19.99
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

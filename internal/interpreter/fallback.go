package interpreter

import (
	"regexp"
	"strconv"
	"strings"

	"storepilot/internal/action"
	"storepilot/internal/risk"
)

// FallbackConfidence 规则命中时的固定置信度
const FallbackConfidence = 0.9

type fallbackRule struct {
	name  string
	re    *regexp.Regexp
	build func(m []string, text string) action.Params
}

var (
	allWords     = regexp.MustCompile(`(?i)\b(all|every|everything|entire (?:store|catalog))\b`)
	namedProduct = regexp.MustCompile(`(?i)\b(?:for|of)\s+(?:the\s+)?(?:product\s+|item\s+|sku\s+)?["']?([\w][\w\s\-]*?)["']?\s*(?:\b(?:to|by)\b|[.!]?\s*$)`)
	skuLike      = regexp.MustCompile(`^[A-Z0-9][A-Z0-9\-_]*$`)
	genericNouns = map[string]bool{"price": true, "prices": true, "inventory": true, "stock": true, "products": true, "items": true}
)

var fallbackRules = []fallbackRule{
	{
		name: "restock",
		re:   regexp.MustCompile(`(?i)\brestock\s+["']?(.+?)["']?\s+to\s+(\d+)(?:\s+units?)?\b`),
		build: func(m []string, _ string) action.Params {
			qty := atoi(m[2])
			return &action.InventoryParams{Operation: action.OpSet, Available: &qty, Target: productTarget(m[1])}
		},
	},
	{
		name: "add_units",
		re:   regexp.MustCompile(`(?i)\badd\s+(\d+)\s+units?\s+(?:of|to)\s+["']?(.+?)["']?\s*[.!]?$`),
		build: func(m []string, _ string) action.Params {
			qty := atoi(m[1])
			return &action.InventoryParams{Operation: action.OpAdd, Available: &qty, Target: productTarget(m[2])}
		},
	},
	{
		name: "remove_units",
		re:   regexp.MustCompile(`(?i)\b(?:remove|subtract|deduct)\s+(\d+)\s+units?\s+(?:of|from)\s+["']?(.+?)["']?\s*[.!]?$`),
		build: func(m []string, _ string) action.Params {
			qty := atoi(m[1])
			return &action.InventoryParams{Operation: action.OpSubtract, Available: &qty, Target: productTarget(m[2])}
		},
	},
	{
		name: "set_inventory",
		re:   regexp.MustCompile(`(?i)\b(?:set|update|change)\b.*?\b(?:inventory|stock|quantity)\b.*?\bto\s+(\d+)`),
		build: func(m []string, text string) action.Params {
			qty := atoi(m[1])
			return &action.InventoryParams{Operation: action.OpSet, Available: &qty, Target: inferTarget(text)}
		},
	},
	{
		name: "relative_price",
		re:   regexp.MustCompile(`(?i)\b(increase|raise|bump|decrease|lower|reduce|drop|cut|mark\s+down)\b.*?\bprices?\b.*?\bby\s+(\$)?(\d+(?:\.\d+)?)\s*(%|percent\b)?`),
		build: func(m []string, text string) action.Params {
			op := action.OpIncrease
			switch strings.ToLower(strings.Fields(m[1])[0]) {
			case "decrease", "lower", "reduce", "drop", "cut", "mark":
				op = action.OpDecrease
			}
			unit := action.UnitFixed
			if m[4] != "" {
				unit = action.UnitPercent
			}
			return &action.PriceParams{Operation: op, Unit: unit, Value: atof(m[3]), Target: inferTarget(text)}
		},
	},
	{
		name: "set_price",
		re:   regexp.MustCompile(`(?i)\bset\b.*?\bprices?\b.*?\bto\s+\$?(\d+(?:\.\d+)?)`),
		build: func(m []string, text string) action.Params {
			return &action.PriceParams{Operation: action.OpSet, Unit: action.UnitFixed, Value: atof(m[1]), Target: inferTarget(text)}
		},
	},
}

// FallbackInterpret 基于正则规则解释高频命令；没有规则命中时返回 nil
func FallbackInterpret(text string) *action.Interpretation {
	interp := fallbackPlan(strings.TrimSpace(text))
	if interp == nil {
		return nil
	}
	risk.Apply(interp)
	return interp
}

// inferTarget "all" 字样视为全部商品，"for/of 商品名" 视为选中商品，否则不设范围交由澄清
func inferTarget(text string) action.Target {
	if allWords.MatchString(text) {
		return action.Target{Scope: action.ScopeAll}
	}
	if m := namedProduct.FindStringSubmatch(text); m != nil {
		name := strings.TrimSpace(m[1])
		if name != "" && !genericNouns[strings.ToLower(name)] {
			return productTarget(name)
		}
	}
	return action.Target{}
}

func productTarget(name string) action.Target {
	name = strings.Trim(strings.TrimSpace(name), `"'`)
	name = strings.TrimPrefix(name, "product ")
	if skuLike.MatchString(name) {
		return action.Target{Scope: action.ScopeSelected, SKU: name}
	}
	return action.Target{Scope: action.ScopeSelected, ProductTitle: name}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

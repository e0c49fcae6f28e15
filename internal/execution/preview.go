package execution

import (
	"context"
	"fmt"
	"strings"

	"storepilot/internal/action"
	"storepilot/internal/platform"

	"github.com/pmezard/go-difflib/difflib"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const previewSampleSize = 5

// PreviewChange 预览中的单条示例修改
type PreviewChange struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Field     string `json:"field"`
	Before    any    `json:"before,omitempty"`
	After     any    `json:"after,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PreviewStep 一个 (平台, 动作) 的预览
type PreviewStep struct {
	Platform      string          `json:"platform"`
	PlatformID    string          `json:"platform_id"`
	ActionType    action.Type     `json:"action_type"`
	StepNumber    int             `json:"step_number"`
	AffectedCount int             `json:"affected_count"`
	Description   string          `json:"description,omitempty"`
	Samples       []PreviewChange `json:"samples,omitempty"`
	Diff          string          `json:"diff,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Preview 试运行结果
type Preview struct {
	Steps         []PreviewStep `json:"steps"`
	TotalAffected int           `json:"total_affected"`
}

// Preview 只读地解析每一步会影响的商品，不向平台写入
func (e *Engine) Preview(ctx context.Context, req Request) (*Preview, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Preview", trace.WithAttributes(attribute.Int("actions", len(req.Actions))))
	defer span.End()

	actions, platforms, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &Preview{Steps: []PreviewStep{}}
	for i := range platforms {
		p := &platforms[i]
		run, runErr := e.newRun(p)
		products := map[int][]platform.Product{}
		failed := map[int]bool{}

		for j := range actions {
			a := &actions[j]
			step := PreviewStep{Platform: p.Label(), PlatformID: p.ID, ActionType: a.Type, StepNumber: a.StepNumber}
			if runErr != nil {
				step.Error = runErr.Error()
				failed[a.StepNumber] = true
				out.Steps = append(out.Steps, step)
				continue
			}

			var deps []platform.Product
			if dep, ok := a.DependsOn(); ok {
				if failed[dep] || len(products[dep]) == 0 {
					step.Error = fmt.Sprintf("skipped: dependency step %d produced no products", dep)
					failed[a.StepNumber] = true
					out.Steps = append(out.Steps, step)
					continue
				}
				deps = products[dep]
			}

			pl, err := planFor(ctx, run, a, deps)
			if err != nil {
				step.Error = err.Error()
				failed[a.StepNumber] = true
				out.Steps = append(out.Steps, step)
				continue
			}
			fillPreviewStep(&step, pl)
			products[a.StepNumber] = pl.products
			if len(pl.changes) > 0 {
				products[a.StepNumber] = changedProducts(pl.changes)
			}
			out.TotalAffected += step.AffectedCount
			out.Steps = append(out.Steps, step)
		}
	}
	return out, nil
}

func fillPreviewStep(step *PreviewStep, pl *plan) {
	step.Description = pl.describe
	if len(pl.changes) == 0 {
		step.AffectedCount = len(pl.products)
		return
	}
	step.AffectedCount = len(changedProducts(pl.changes))
	var diffs []string
	for i, c := range pl.changes {
		if i < previewSampleSize {
			item := c.item()
			pc := PreviewChange{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Title:     item.Title,
				Field:     item.Field,
				Before:    item.Before,
				After:     item.After,
			}
			if c.err != nil {
				pc.Error = c.err.Error()
			}
			step.Samples = append(step.Samples, pc)
			if d := textDiff(c); d != "" {
				diffs = append(diffs, d)
			}
		}
	}
	step.Diff = strings.Join(diffs, "")
}

func changedProducts(changes []change) []platform.Product {
	seen := map[string]bool{}
	var out []platform.Product
	for _, c := range changes {
		if !seen[c.product.ID] {
			seen[c.product.ID] = true
			out = append(out, c.product)
		}
	}
	return out
}

// textDiff 为 listing 与 SEO 文本生成 unified diff
func textDiff(c change) string {
	before, ok1 := c.before.(map[string]any)
	after, ok2 := c.after.(map[string]any)
	if !ok1 || !ok2 {
		return ""
	}
	var sb strings.Builder
	for _, key := range []string{"title", "description", "meta_title", "meta_description"} {
		a, okA := after[key].(string)
		if !okA {
			continue
		}
		b, _ := before[key].(string)
		if a == b {
			continue
		}
		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(b + "\n"),
			B:        difflib.SplitLines(a + "\n"),
			FromFile: fmt.Sprintf("%s/%s (current)", c.product.ID, key),
			ToFile:   fmt.Sprintf("%s/%s (proposed)", c.product.ID, key),
			Context:  1,
		})
		if err == nil {
			sb.WriteString(diff)
		}
	}
	return sb.String()
}

package interpreter

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"storepilot/internal/action"
	"storepilot/internal/logger"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

type promptType struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type promptExample struct {
	Command  string `yaml:"command"`
	Response string `yaml:"response"`
}

// PromptLibrary 内嵌的提示词库
type PromptLibrary struct {
	Version  int             `yaml:"version"`
	System   string          `yaml:"system"`
	Types    []promptType    `yaml:"types"`
	Schema   string          `yaml:"schema"`
	Examples []promptExample `yaml:"examples"`
}

// LoadPromptLibrary 解析内嵌的 prompts.yaml
func LoadPromptLibrary() (*PromptLibrary, error) {
	return parsePromptLibrary(promptsYAML)
}

func parsePromptLibrary(data []byte) (*PromptLibrary, error) {
	var lib PromptLibrary
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("解析提示词库失败: %w", err)
	}
	if strings.TrimSpace(lib.System) == "" {
		return nil, fmt.Errorf("提示词库缺少 system 模板")
	}
	for _, t := range lib.Types {
		if !action.Type(t.Name).Known() {
			return nil, fmt.Errorf("提示词库包含未知动作类型: %s", t.Name)
		}
	}
	return &lib, nil
}

// SystemPrompt 渲染系统提示词：动作类型清单、JSON 结构与示例
func (l *PromptLibrary) SystemPrompt() string {
	var types strings.Builder
	for _, t := range l.Types {
		fmt.Fprintf(&types, "- %s: %s\n", t.Name, t.Description)
	}
	out := strings.NewReplacer(
		"{{types}}", strings.TrimRight(types.String(), "\n"),
		"{{schema}}", strings.TrimSpace(l.Schema),
	).Replace(l.System)

	if len(l.Examples) > 0 {
		var b strings.Builder
		b.WriteString(strings.TrimRight(out, "\n"))
		b.WriteString("\n\nExamples:\n")
		for _, ex := range l.Examples {
			fmt.Fprintf(&b, "Command: %s\nResponse: %s\n", ex.Command, strings.TrimSpace(ex.Response))
		}
		out = b.String()
	}
	return out
}

// BuildUserMessage 组装用户轮次：命令文本 + 序列化上下文
// maxTokens > 0 时按 token 预算从最早的澄清问答开始丢弃
func BuildUserMessage(req *Request, maxTokens int) string {
	turns := req.Context.Clarifications
	msg := renderUserMessage(req, turns)
	if maxTokens <= 0 {
		return msg
	}
	counter := tokenCounter()
	if counter == nil {
		return msg
	}
	for len(turns) > 0 && counter(msg) > maxTokens {
		turns = turns[1:]
		msg = renderUserMessage(req, turns)
	}
	return msg
}

func renderUserMessage(req *Request, turns []action.ClarificationTurn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Command: %s\n", strings.TrimSpace(req.Text))
	if len(req.PlatformTargets) > 0 {
		fmt.Fprintf(&b, "Target platforms: %s\n", strings.Join(req.PlatformTargets, ", "))
	}

	ctx := req.Context
	if len(ctx.SelectedProductIDs) == 0 && len(ctx.Filters) == 0 && len(turns) == 0 {
		return b.String()
	}
	b.WriteString("Context:\n")
	if n := len(ctx.SelectedProductIDs); n > 0 {
		fmt.Fprintf(&b, "- Selected products: %d (ids: %s)\n", n, strings.Join(ctx.SelectedProductIDs, ", "))
	}
	if len(ctx.Filters) > 0 {
		keys := make([]string, 0, len(ctx.Filters))
		for k := range ctx.Filters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			v, _ := json.Marshal(ctx.Filters[k])
			parts = append(parts, fmt.Sprintf("%s=%s", k, v))
		}
		fmt.Fprintf(&b, "- Active filters: %s\n", strings.Join(parts, ", "))
	}
	if len(turns) > 0 {
		b.WriteString("- Previous clarification:\n")
		for _, t := range turns {
			fmt.Fprintf(&b, "  Q: %s\n  A: %s\n", t.Question, t.Answer)
		}
	}
	return b.String()
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// tokenCounter 返回 cl100k_base 计数函数，编码表不可用时返回 nil（不限制）
func tokenCounter() func(string) int {
	encodingOnce.Do(func() {
		tkm, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger.Named("interpreter").Warn("加载 token 编码失败，跳过上下文预算", zap.Error(err))
			return
		}
		encoding = tkm
	})
	if encoding == nil {
		return nil
	}
	return func(s string) int {
		return len(encoding.Encode(s, nil, nil))
	}
}

package ai

import (
	"fmt"
	"strings"

	"storepilot/internal/ai/anthropic"
	"storepilot/internal/ai/openai"
	"storepilot/internal/config"
)

// NewClient 按配置创建命令解释所用的模型客户端
// 未配置 API Key 时返回 *ConfigurationError，调用方据此走规则兜底
func NewClient(cfg config.AIConfig) (ModelClient, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "anthropic"
	}

	switch provider {
	case "anthropic":
		if strings.TrimSpace(cfg.Anthropic.APIKey) == "" {
			return nil, &ConfigurationError{Feature: "AI command interpretation", Setting: "ai.anthropic.api_key"}
		}
		return anthropic.NewClient(&ClientConfig{
			Provider:   provider,
			APIKey:     cfg.Anthropic.APIKey,
			BaseURL:    cfg.Anthropic.BaseURL,
			Model:      cfg.Model,
			MaxRetries: cfg.Anthropic.MaxRetries,
			Timeout:    cfg.TimeoutSeconds,
		})
	case "openai":
		if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
			return nil, &ConfigurationError{Feature: "AI command interpretation", Setting: "ai.openai.api_key"}
		}
		return openai.NewClient(&ClientConfig{
			Provider:   provider,
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			OrgID:      cfg.OpenAI.OrgID,
			Model:      cfg.Model,
			MaxRetries: cfg.OpenAI.MaxRetries,
			Timeout:    cfg.TimeoutSeconds,
		})
	default:
		return nil, fmt.Errorf("不支持的模型提供商: %s", cfg.Provider)
	}
}

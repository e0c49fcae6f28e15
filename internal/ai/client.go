package ai

import (
	"storepilot/pkg/aiinterface"
)

// 重新导出 aiinterface 包的类型，上层只依赖 ai 包
type (
	Message                = aiinterface.Message
	ChatCompletionRequest  = aiinterface.ChatCompletionRequest
	ChatCompletionResponse = aiinterface.ChatCompletionResponse
	Usage                  = aiinterface.Usage
	ModelClient            = aiinterface.ModelClient
	ClientConfig           = aiinterface.ClientConfig
	ClientError            = aiinterface.ClientError
	ErrorType              = aiinterface.ErrorType
)

const (
	ErrorTypeAuth          = aiinterface.ErrorTypeAuth
	ErrorTypeRateLimit     = aiinterface.ErrorTypeRateLimit
	ErrorTypeInvalidParams = aiinterface.ErrorTypeInvalidParams
	ErrorTypeServerError   = aiinterface.ErrorTypeServerError
	ErrorTypeNetwork       = aiinterface.ErrorTypeNetwork
	ErrorTypeUnknown       = aiinterface.ErrorTypeUnknown
)

// ConfigurationError 上游凭证缺失等运维可修复的问题
// 与用户输入错误区分，调用方应提示 "功能不可用，请配置 X"
type ConfigurationError struct {
	Feature string // 受影响的功能
	Setting string // 需要配置的键
}

func (e *ConfigurationError) Error() string {
	return "feature unavailable: " + e.Feature + ", configure " + e.Setting
}

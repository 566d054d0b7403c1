package chat

import (
	"errors"
	"time"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// 请求参数
// ═══════════════════════════════════════════════════════════════════════════

// Params 对话补全请求参数
//
// 结构体直接序列化为请求体。可选数值参数使用指针区分
// "未设置" 与 "零值"，用 openai.Float / openai.Int 等辅助函数赋值：
//
//	params := chat.NewParams("gpt-4o",
//	    chat.System("You are helpful."),
//	    chat.User("Hello!"),
//	)
//	params.Temperature = openai.Float(0.7)
//	params.MaxTokens = openai.Int(1024)
type Params struct {
	// Model 模型名（为空时使用客户端配置的默认模型）
	Model string `json:"model"`

	// Messages 对话消息列表
	Messages []Message `json:"messages"`

	// 采样参数
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	Seed             *int     `json:"seed,omitempty"`

	// 输出控制
	MaxTokens           *int     `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int     `json:"max_completion_tokens,omitempty"`
	N                   *int     `json:"n,omitempty"`
	Stop                []string `json:"stop,omitempty"`

	// Logprobs
	Logprobs    *bool          `json:"logprobs,omitempty"`
	TopLogprobs *int           `json:"top_logprobs,omitempty"`
	LogitBias   map[string]int `json:"logit_bias,omitempty"`

	// 工具调用
	Tools             []Tool `json:"tools,omitempty"`
	ToolChoice        any    `json:"tool_choice,omitempty"` // "auto"/"none"/"required" 或 ToolChoiceFunction 返回的对象
	ParallelToolCalls *bool  `json:"parallel_tool_calls,omitempty"`

	// 结构化输出
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	// 服务参数
	ServiceTier string `json:"service_tier,omitempty"`
	User        string `json:"user,omitempty"`

	// 流式参数（CreateStream 自动设置）
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`

	// ───────────────────────────────────────────────────────────────────────
	// 请求级覆盖（不序列化进请求体）
	// ───────────────────────────────────────────────────────────────────────

	// ExtraHeaders 附加请求头
	ExtraHeaders map[string]string `json:"-"`

	// ExtraQuery 附加查询参数
	ExtraQuery map[string]string `json:"-"`

	// ExtraBody 合并进请求体顶层的附加字段
	ExtraBody map[string]any `json:"-"`

	// Timeout 本次请求的整体超时
	Timeout time.Duration `json:"-"`

	// MaxRetries 本次请求的重试次数（nil 沿用客户端配置）
	MaxRetries *int `json:"-"`
}

// NewParams 构建请求参数
func NewParams(model string, messages ...Message) *Params {
	return &Params{
		Model:    model,
		Messages: messages,
	}
}

// AddMessage 追加一条消息
func (p *Params) AddMessage(msg Message) *Params {
	p.Messages = append(p.Messages, msg)
	return p
}

// validate 校验必填参数
func (p *Params) validate() error {
	if p.Model == "" {
		return openai.NewRequestError("validate", errors.New("model is required"))
	}
	if len(p.Messages) == 0 {
		return openai.NewRequestError("validate", errors.New("messages must not be empty"))
	}
	return nil
}

// requestOptions 提取请求级覆盖配置
func (p *Params) requestOptions() *core.RequestOptions {
	return &core.RequestOptions{
		ExtraHeaders: p.ExtraHeaders,
		ExtraQuery:   p.ExtraQuery,
		ExtraBody:    p.ExtraBody,
		Timeout:      p.Timeout,
		MaxRetries:   p.MaxRetries,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 工具定义
// ═══════════════════════════════════════════════════════════════════════════

// Tool 可供模型调用的工具
type Tool struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition 函数工具定义
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON Schema
	Strict      *bool          `json:"strict,omitempty"`
}

// NewFunctionTool 构建函数工具
func NewFunctionTool(name, description string, parameters map[string]any) Tool {
	return Tool{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// 工具选择策略
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
)

// ToolChoiceFunction 强制调用指定函数
func ToolChoiceFunction(name string) any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name": name,
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 响应格式与流式选项
// ═══════════════════════════════════════════════════════════════════════════

// ResponseFormat 结构化输出配置
type ResponseFormat struct {
	Type       string            `json:"type"` // "text" / "json_object" / "json_schema"
	JSONSchema *JSONSchemaFormat `json:"json_schema,omitempty"`
}

// JSONSchemaFormat JSON Schema 输出定义
type JSONSchemaFormat struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema"`
	Strict      *bool          `json:"strict,omitempty"`
}

// StreamOptions 流式响应选项
type StreamOptions struct {
	// IncludeUsage 在末尾分片附带 token 用量
	IncludeUsage bool `json:"include_usage"`
}

package completions

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// 请求参数
// ═══════════════════════════════════════════════════════════════════════════

// Prompt 补全提示，单条字符串或字符串数组
//
// 数组形式时服务端为每条提示独立生成候选，结果按 choices 的
// index 区分。零值 Prompt 不通过参数校验。
type Prompt struct {
	value any
}

// PromptText 单条提示
func PromptText(text string) Prompt {
	return Prompt{value: text}
}

// PromptList 多条提示
func PromptList(prompts ...string) Prompt {
	return Prompt{value: prompts}
}

// MarshalJSON 按底层形态序列化为字符串或数组
func (p Prompt) MarshalJSON() ([]byte, error) {
	if p.value == nil {
		return []byte(`""`), nil
	}
	return json.Marshal(p.value)
}

func (p Prompt) isZero() bool {
	return p.value == nil
}

// Params 文本补全请求参数
//
// 可选数值参数使用指针区分 "未设置" 与 "零值"，用 openai.Float /
// openai.Int 等辅助函数赋值。
type Params struct {
	// Model 模型名（为空时使用客户端配置的默认模型）
	Model string `json:"model"`

	// Prompt 补全提示
	Prompt Prompt `json:"prompt"`

	// Suffix 插入补全之后的文本
	Suffix string `json:"suffix,omitempty"`

	// 采样参数
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	Seed             *int     `json:"seed,omitempty"`

	// 输出控制
	MaxTokens *int     `json:"max_tokens,omitempty"`
	N         *int     `json:"n,omitempty"`
	BestOf    *int     `json:"best_of,omitempty"`
	Stop      []string `json:"stop,omitempty"`
	Echo      *bool    `json:"echo,omitempty"`

	// Logprobs 返回最可能 token 的对数概率个数（旧版端点为计数而非开关）
	Logprobs  *int           `json:"logprobs,omitempty"`
	LogitBias map[string]int `json:"logit_bias,omitempty"`

	// 服务参数
	User string `json:"user,omitempty"`

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

// StreamOptions 流式行为选项
type StreamOptions struct {
	// IncludeUsage 在末尾分片附带 token 用量
	IncludeUsage bool `json:"include_usage"`
}

// NewParams 构建请求参数
func NewParams(model, prompt string) *Params {
	return &Params{
		Model:  model,
		Prompt: PromptText(prompt),
	}
}

// validate 校验必填参数
func (p *Params) validate() error {
	if p.Model == "" {
		return openai.NewRequestError("validate", errors.New("model is required"))
	}
	if p.Prompt.isZero() {
		return openai.NewRequestError("validate", errors.New("prompt is required"))
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

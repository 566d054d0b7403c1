package embeddings

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

// EncodingFormat 向量的返回形态
type EncodingFormat string

const (
	// EncodingFormatFloat 浮点数组（默认）
	EncodingFormatFloat EncodingFormat = "float"

	// EncodingFormatBase64 base64 编码的小端 float32 字节串，
	// 大向量下传输体积更小
	EncodingFormatBase64 EncodingFormat = "base64"
)

// Input 向量化输入，单条字符串或字符串数组
//
// 零值 Input 不通过参数校验。
type Input struct {
	value any
}

// InputText 单条输入
func InputText(text string) Input {
	return Input{value: text}
}

// InputTexts 多条输入（结果按 data 的 index 对应）
func InputTexts(texts ...string) Input {
	return Input{value: texts}
}

// MarshalJSON 按底层形态序列化为字符串或数组
func (in Input) MarshalJSON() ([]byte, error) {
	if in.value == nil {
		return []byte(`""`), nil
	}
	return json.Marshal(in.value)
}

func (in Input) isZero() bool {
	return in.value == nil
}

// Params 向量化请求参数
type Params struct {
	// Model 模型名（为空时使用客户端配置的默认模型）
	Model string `json:"model"`

	// Input 待向量化的文本
	Input Input `json:"input"`

	// EncodingFormat 返回形态（为空时服务端默认 float）
	EncodingFormat EncodingFormat `json:"encoding_format,omitempty"`

	// Dimensions 输出向量的维度（仅部分模型支持降维）
	Dimensions *int `json:"dimensions,omitempty"`

	// User 终端用户标识
	User string `json:"user,omitempty"`

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
func NewParams(model string, input Input) *Params {
	return &Params{
		Model: model,
		Input: input,
	}
}

// validate 校验必填参数
func (p *Params) validate() error {
	if p.Model == "" {
		return openai.NewRequestError("validate", errors.New("model is required"))
	}
	if p.Input.isZero() {
		return openai.NewRequestError("validate", errors.New("input is required"))
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

// Package completions 提供旧版文本补全端点（/completions）的访问
//
// 旧版接口以纯文本 prompt 换取纯文本补全，无对话结构与工具调用。
// 流式响应的每条载荷是一个完整的 Completion 对象，choices 中携带
// 文本片段，可用 Accumulator 折叠为完整文本。
package completions

import (
	"encoding/json"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
)

// ═══════════════════════════════════════════════════════════════════════════
// 响应类型
// ═══════════════════════════════════════════════════════════════════════════

// Completion 文本补全响应
//
// 非流式调用返回完整对象；流式调用中每条 SSE 载荷也是同一结构，
// choices 内的 text 为增量片段。
type Completion struct {
	ID                string        `json:"id"`
	Object            string        `json:"object"` // "text_completion"
	Created           int64         `json:"created"`
	Model             string        `json:"model"`
	Choices           []Choice      `json:"choices"`
	SystemFingerprint string        `json:"system_fingerprint,omitempty"`
	Usage             *openai.Usage `json:"usage,omitempty"`
}

// FirstText 返回首个候选的文本（无候选时为空串）
func (c *Completion) FirstText() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Text
}

// Choice 一个候选补全
//
// 部分推理模型在旧版端点同样输出思维链，字段名存在 reasoning 与
// reasoning_content 双名方言，解析时归一到 Reasoning。
type Choice struct {
	Index        int                 `json:"index"`
	Text         string              `json:"text"`
	FinishReason openai.FinishReason `json:"finish_reason,omitempty"`
	Logprobs     *Logprobs           `json:"logprobs,omitempty"`
	Reasoning    string              `json:"reasoning,omitempty"`

	// Extra 未识别的扩展字段
	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON 解析候选并完成推理字段归一
func (c *Choice) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	take := func(key string, out any) error {
		raw, ok := fields[key]
		if !ok {
			return nil
		}
		delete(fields, key)
		if string(raw) == "null" {
			return nil
		}
		return json.Unmarshal(raw, out)
	}

	if err := take("index", &c.Index); err != nil {
		return err
	}
	if err := take("text", &c.Text); err != nil {
		return err
	}
	if err := take("finish_reason", &c.FinishReason); err != nil {
		return err
	}
	if err := take("logprobs", &c.Logprobs); err != nil {
		return err
	}

	// 双名归一：reasoning 在场即优先，reasoning_content 兜底
	rawReasoning, hasReasoning := fields["reasoning"]
	rawAlias, hasAlias := fields["reasoning_content"]
	delete(fields, "reasoning")
	delete(fields, "reasoning_content")
	switch {
	case hasReasoning && string(rawReasoning) != "null":
		if err := json.Unmarshal(rawReasoning, &c.Reasoning); err != nil {
			return err
		}
	case hasAlias && string(rawAlias) != "null":
		if err := json.Unmarshal(rawAlias, &c.Reasoning); err != nil {
			return err
		}
	}

	if len(fields) > 0 {
		c.Extra = fields
	}
	return nil
}

// Logprobs 旧版端点的对数概率信息
//
// 与对话端点的 logprobs 结构不同，按 token 位置平铺。
type Logprobs struct {
	TextOffset    []int64              `json:"text_offset,omitempty"`
	TokenLogprobs []float64            `json:"token_logprobs,omitempty"`
	Tokens        []string             `json:"tokens,omitempty"`
	TopLogprobs   []map[string]float64 `json:"top_logprobs,omitempty"`
}

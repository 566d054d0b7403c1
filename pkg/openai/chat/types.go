package chat

import (
	"encoding/json"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
)

// ═══════════════════════════════════════════════════════════════════════════
// 非流式响应
// ═══════════════════════════════════════════════════════════════════════════

// ChatCompletion 一次完整的对话补全响应
type ChatCompletion struct {
	ID                string        `json:"id"`
	Object            string        `json:"object"` // "chat.completion"
	Created           int64         `json:"created"`
	Model             string        `json:"model"`
	Choices           []Choice      `json:"choices"`
	ServiceTier       string        `json:"service_tier,omitempty"`
	SystemFingerprint string        `json:"system_fingerprint,omitempty"`
	Usage             *openai.Usage `json:"usage,omitempty"`
}

// FirstContent 返回首个候选的文本内容（无候选时为空串）
func (c *ChatCompletion) FirstContent() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Message.Content
}

// Choice 一个候选补全
type Choice struct {
	Index        int                   `json:"index"`
	Message      ChatCompletionMessage `json:"message"`
	FinishReason openai.FinishReason   `json:"finish_reason"`
	Logprobs     *ChoiceLogprobs       `json:"logprobs,omitempty"`
}

// ChatCompletionMessage 响应中的助手消息
//
// 流式合并的最终产物与非流式响应使用同一结构，两种调用方式的
// 结果可以互换地写回对话历史。
type ChatCompletionMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Reasoning string     `json:"reasoning,omitempty"`
	Refusal   string     `json:"refusal,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToParam 转换为请求消息（写回对话历史）
func (m *ChatCompletionMessage) ToParam() Message {
	return Message{
		Role:      m.Role,
		Content:   m.Content,
		ToolCalls: m.ToolCalls,
	}
}

// ToolCall 完整的工具调用
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction 工具调用的函数信息
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON 字符串
}

// ═══════════════════════════════════════════════════════════════════════════
// Logprobs
// ═══════════════════════════════════════════════════════════════════════════

// ChoiceLogprobs 候选的对数概率信息
type ChoiceLogprobs struct {
	Content []TokenLogprob `json:"content,omitempty"`
	Refusal []TokenLogprob `json:"refusal,omitempty"`
}

// TokenLogprob 单个 token 的对数概率
type TokenLogprob struct {
	Token       string       `json:"token"`
	Logprob     float64      `json:"logprob"`
	Bytes       []int        `json:"bytes,omitempty"`
	TopLogprobs []TopLogprob `json:"top_logprobs,omitempty"`
}

// TopLogprob 候选 token 的对数概率
type TopLogprob struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
	Bytes   []int   `json:"bytes,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 流式响应
// ═══════════════════════════════════════════════════════════════════════════

// ChatCompletionChunk 流式响应的一个分片
//
// 对应一条 SSE data 载荷。分片是瞬态对象：由解码产生，随即被
// 合并或交给调用方，不被保留。
type ChatCompletionChunk struct {
	ID                string         `json:"id"`
	Object            string         `json:"object"` // "chat.completion.chunk"
	Created           int64          `json:"created"`
	Model             string         `json:"model"`
	Choices           []StreamChoice `json:"choices"`
	ServiceTier       string         `json:"service_tier,omitempty"`
	SystemFingerprint string         `json:"system_fingerprint,omitempty"`

	// Usage 仅在开启 stream_options.include_usage 时出现在末尾分片
	Usage *openai.Usage `json:"usage,omitempty"`
}

// StreamChoice 分片中某个候选的增量
type StreamChoice struct {
	Index        int                  `json:"index"`
	Delta        Delta                `json:"delta"`
	FinishReason *openai.FinishReason `json:"finish_reason,omitempty"`
	Logprobs     *ChoiceLogprobs      `json:"logprobs,omitempty"`
}

// Delta 一条消息增量
//
// 任何字段都可能缺失：缺失表示"本分片无新信息"，不是空值。
// content/reasoning 为字符串片段，按到达顺序与已有内容拼接。
type Delta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	Reasoning string          `json:"reasoning,omitempty"`
	Refusal   string          `json:"refusal,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`

	// Extra 未识别的扩展字段（部分网关附带路由信息等）
	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON 解析增量并完成字段名归一
//
// 推理内容存在双名方言：reasoning 与 reasoning_content。此处按
// 出现优先选 reasoning，将两者归一到 Reasoning 字段，下游合并
// 逻辑不再感知方言差异。未识别字段收入 Extra。
func (d *Delta) UnmarshalJSON(data []byte) error {
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

	if err := take("role", &d.Role); err != nil {
		return err
	}
	if err := take("content", &d.Content); err != nil {
		return err
	}
	if err := take("refusal", &d.Refusal); err != nil {
		return err
	}
	if err := take("tool_calls", &d.ToolCalls); err != nil {
		return err
	}

	// 双名归一：reasoning 在场即优先，reasoning_content 兜底
	rawReasoning, hasReasoning := fields["reasoning"]
	rawAlias, hasAlias := fields["reasoning_content"]
	delete(fields, "reasoning")
	delete(fields, "reasoning_content")
	switch {
	case hasReasoning && string(rawReasoning) != "null":
		if err := json.Unmarshal(rawReasoning, &d.Reasoning); err != nil {
			return err
		}
	case hasAlias && string(rawAlias) != "null":
		if err := json.Unmarshal(rawAlias, &d.Reasoning); err != nil {
			return err
		}
	}

	if len(fields) > 0 {
		d.Extra = fields
	}
	return nil
}

// ToolCallDelta 工具调用增量
//
// Index 是同一候选内工具调用的身份键，合并按它对齐，不按数组
// 位置。id/type/function.name 通常只在首个分片出现；
// function.arguments 是跨分片逐字节拼接的 JSON 字符串片段。
type ToolCallDelta struct {
	Index    int                   `json:"index"`
	ID       string                `json:"id,omitempty"`
	Type     string                `json:"type,omitempty"`
	Function ToolCallFunctionDelta `json:"function"`
}

// ToolCallFunctionDelta 工具调用函数增量
type ToolCallFunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

package openai

// ═══════════════════════════════════════════════════════════════════════════
// 完成原因
// ═══════════════════════════════════════════════════════════════════════════

// FinishReason 完成原因
type FinishReason string

const (
	// FinishReasonStop 自然结束或命中停止序列
	FinishReasonStop FinishReason = "stop"

	// FinishReasonLength 达到 token 上限被截断
	FinishReasonLength FinishReason = "length"

	// FinishReasonToolCalls 模型发起工具调用
	FinishReasonToolCalls FinishReason = "tool_calls"

	// FinishReasonContentFilter 内容被安全策略过滤
	FinishReasonContentFilter FinishReason = "content_filter"

	// FinishReasonFunctionCall 模型发起函数调用（旧版协议）
	FinishReasonFunctionCall FinishReason = "function_call"
)

// IsToolCalls 检查是否因工具调用而结束
func (f FinishReason) IsToolCalls() bool {
	return f == FinishReasonToolCalls || f == FinishReasonFunctionCall
}

// ═══════════════════════════════════════════════════════════════════════════
// Token 用量
// ═══════════════════════════════════════════════════════════════════════════

// Usage Token 用量统计
type Usage struct {
	// PromptTokens 输入 token 数
	PromptTokens int64 `json:"prompt_tokens"`

	// CompletionTokens 输出 token 数
	CompletionTokens int64 `json:"completion_tokens"`

	// TotalTokens 总 token 数
	TotalTokens int64 `json:"total_tokens"`

	// PromptTokensDetails 输入 token 细分（缓存命中等）
	PromptTokensDetails *PromptTokensDetails `json:"prompt_tokens_details,omitempty"`

	// CompletionTokensDetails 输出 token 细分（推理 token 等）
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`
}

// PromptTokensDetails 输入 token 细分统计
type PromptTokensDetails struct {
	AudioTokens  int64 `json:"audio_tokens,omitempty"`
	CachedTokens int64 `json:"cached_tokens,omitempty"`
}

// CompletionTokensDetails 输出 token 细分统计
type CompletionTokensDetails struct {
	AcceptedPredictionTokens int64 `json:"accepted_prediction_tokens,omitempty"`
	AudioTokens              int64 `json:"audio_tokens,omitempty"`
	ReasoningTokens          int64 `json:"reasoning_tokens,omitempty"`
	RejectedPredictionTokens int64 `json:"rejected_prediction_tokens,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 指针辅助函数
// ═══════════════════════════════════════════════════════════════════════════

// 可选参数使用指针区分 "未设置" 与 "零值"（如 temperature 0）。

// Float 返回 float64 指针
func Float(v float64) *float64 { return &v }

// Int 返回 int 指针
func Int(v int) *int { return &v }

// Bool 返回 bool 指针
func Bool(v bool) *bool { return &v }

// String 返回 string 指针
func String(v string) *string { return &v }

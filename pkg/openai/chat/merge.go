package chat

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sort"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
)

// ═══════════════════════════════════════════════════════════════════════════
// 增量合并
// ═══════════════════════════════════════════════════════════════════════════

// AccumulatedChoice 一个候选的合并状态
//
// 由 MergeChoice 按分片到达顺序折叠 StreamChoice 序列得到。
// 流结束后通过 ToChoice 转换为与非流式响应同构的 Choice。
type AccumulatedChoice struct {
	Index     int
	Role      string
	Content   string
	Reasoning string
	Refusal   string

	// ToolCalls 按工具调用 Index 升序排列
	ToolCalls []AccumulatedToolCall

	// FinishReason 首个非空值，空串表示尚未收到
	FinishReason openai.FinishReason

	// Extra 合并后的扩展字段（后到覆盖同名项）
	Extra map[string]json.RawMessage
}

// AccumulatedToolCall 一个工具调用的合并状态
type AccumulatedToolCall struct {
	Index     int
	ID        string
	Type      string
	Name      string
	Arguments string
}

// ToToolCall 转换为完整工具调用
func (t AccumulatedToolCall) ToToolCall() ToolCall {
	typ := t.Type
	if typ == "" {
		typ = "function"
	}
	return ToolCall{
		ID:   t.ID,
		Type: typ,
		Function: ToolCallFunction{
			Name:      t.Name,
			Arguments: t.Arguments,
		},
	}
}

// ToChoice 转换为非流式响应形态的候选
//
// 角色缺省为 assistant，完成原因缺省为 stop。
func (a AccumulatedChoice) ToChoice() Choice {
	role := a.Role
	if role == "" {
		role = RoleAssistant
	}
	finishReason := a.FinishReason
	if finishReason == "" {
		finishReason = openai.FinishReasonStop
	}

	msg := ChatCompletionMessage{
		Role:      role,
		Content:   a.Content,
		Reasoning: a.Reasoning,
		Refusal:   a.Refusal,
	}
	if len(a.ToolCalls) > 0 {
		msg.ToolCalls = make([]ToolCall, 0, len(a.ToolCalls))
		for _, tc := range a.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, tc.ToToolCall())
		}
	}

	return Choice{
		Index:        a.Index,
		Message:      msg,
		FinishReason: finishReason,
	}
}

// MergeChoice 将一个增量合并进候选状态
//
// 纯函数：不修改入参，返回新状态。因此既可由 Accumulator 自动
// 折叠，也可由调用方对自行缓存的分片列表手工折叠，两者结果一致。
// 合并对到达顺序敏感（字符串拼接、首值生效），不可交换。
//
// 字段规则：
//   - role/finish_reason: 首个非空值生效，之后的不同值记录告警并忽略
//   - content/reasoning/refusal: 按到达顺序拼接，缺失不贡献内容
//   - tool_calls: 按 Index 对齐合并（见 mergeToolCalls）
//   - extra: 浅合并，后到覆盖
//
// finish_reason 出现后到达的增量仍正常累积。
func MergeChoice(acc AccumulatedChoice, sc StreamChoice) AccumulatedChoice {
	delta := sc.Delta

	if acc.Role == "" {
		acc.Role = delta.Role
	} else if delta.Role != "" && delta.Role != acc.Role {
		slog.Warn("role changed mid-stream, keeping first value",
			"choice_index", acc.Index,
			"kept", acc.Role,
			"got", delta.Role)
	}

	acc.Content += delta.Content
	acc.Reasoning += delta.Reasoning
	acc.Refusal += delta.Refusal

	if len(delta.ToolCalls) > 0 {
		acc.ToolCalls = mergeToolCalls(acc.ToolCalls, delta.ToolCalls)
	}

	if sc.FinishReason != nil {
		if acc.FinishReason == "" {
			acc.FinishReason = *sc.FinishReason
		} else if *sc.FinishReason != acc.FinishReason {
			slog.Warn("finish_reason repeated with different value, keeping first",
				"choice_index", acc.Index,
				"kept", string(acc.FinishReason),
				"got", string(*sc.FinishReason))
		}
	}

	if len(delta.Extra) > 0 {
		acc.Extra = mergeExtra(acc.Extra, delta.Extra)
	}

	return acc
}

// mergeToolCalls 按 Index 对齐合并工具调用增量
//
// 写时复制以保持 MergeChoice 的纯函数性质。同一 Index 的
// id/type/name 首值生效，arguments 逐字节拼接；新 Index 按数值
// 顺序插入，与到达顺序无关。
func mergeToolCalls(existing []AccumulatedToolCall, deltas []ToolCallDelta) []AccumulatedToolCall {
	merged := make([]AccumulatedToolCall, len(existing))
	copy(merged, existing)

	for _, tc := range deltas {
		pos := -1
		for i := range merged {
			if merged[i].Index == tc.Index {
				pos = i
				break
			}
		}
		if pos == -1 {
			pos = sort.Search(len(merged), func(i int) bool {
				return merged[i].Index > tc.Index
			})
			merged = slices.Insert(merged, pos, AccumulatedToolCall{Index: tc.Index})
		}

		cur := &merged[pos]
		if cur.ID == "" {
			cur.ID = tc.ID
		}
		if cur.Type == "" {
			cur.Type = tc.Type
		}
		if cur.Name == "" {
			cur.Name = tc.Function.Name
		}
		cur.Arguments += tc.Function.Arguments
	}

	return merged
}

// mergeExtra 浅合并扩展字段，后到覆盖同名项
func mergeExtra(existing, delta map[string]json.RawMessage) map[string]json.RawMessage {
	merged := make(map[string]json.RawMessage, len(existing)+len(delta))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range delta {
		merged[k] = v
	}
	return merged
}

// ═══════════════════════════════════════════════════════════════════════════
// 流级累积器
// ═══════════════════════════════════════════════════════════════════════════

// Accumulator 一次流式调用的合并状态
//
// 逐分片吸收 ChatCompletionChunk，各候选按 choice index 独立合并，
// 互不影响。生命周期对应一次流式调用，跨调用（包括重试建立的新
// 流）必须使用新实例。
type Accumulator struct {
	choices map[int]AccumulatedChoice

	// 响应元数据：首个非空值生效
	id                string
	model             string
	created           int64
	serviceTier       string
	systemFingerprint string

	// usage 末尾分片携带，后到覆盖
	usage *openai.Usage
}

// NewAccumulator 创建累积器
func NewAccumulator() *Accumulator {
	return &Accumulator{
		choices: make(map[int]AccumulatedChoice),
	}
}

// Apply 吸收一个分片
func (a *Accumulator) Apply(chunk *ChatCompletionChunk) {
	if chunk == nil {
		return
	}

	if a.id == "" {
		a.id = chunk.ID
	}
	if a.model == "" {
		a.model = chunk.Model
	}
	if a.created == 0 {
		a.created = chunk.Created
	}
	if a.serviceTier == "" {
		a.serviceTier = chunk.ServiceTier
	}
	if a.systemFingerprint == "" {
		a.systemFingerprint = chunk.SystemFingerprint
	}
	if chunk.Usage != nil {
		a.usage = chunk.Usage
	}

	for _, sc := range chunk.Choices {
		acc, ok := a.choices[sc.Index]
		if !ok {
			acc = AccumulatedChoice{Index: sc.Index}
		}
		a.choices[sc.Index] = MergeChoice(acc, sc)
	}
}

// Choices 返回当前合并状态，按 choice index 升序
func (a *Accumulator) Choices() []AccumulatedChoice {
	out := make([]AccumulatedChoice, 0, len(a.choices))
	for _, acc := range a.choices {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Usage 返回流中携带的 token 用量（可能为 nil）
func (a *Accumulator) Usage() *openai.Usage {
	return a.usage
}

// Model 返回流中首个分片携带的模型名
func (a *Accumulator) Model() string {
	return a.model
}

// Completion 组装与非流式响应同构的完整对象
//
// 流式与非流式两种调用方式的结果可互换写回对话历史。
func (a *Accumulator) Completion() *ChatCompletion {
	accumulated := a.Choices()
	choices := make([]Choice, 0, len(accumulated))
	for _, acc := range accumulated {
		choices = append(choices, acc.ToChoice())
	}

	return &ChatCompletion{
		ID:                a.id,
		Object:            "chat.completion",
		Created:           a.created,
		Model:             a.model,
		Choices:           choices,
		ServiceTier:       a.serviceTier,
		SystemFingerprint: a.systemFingerprint,
		Usage:             a.usage,
	}
}

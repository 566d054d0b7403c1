package completions

import (
	"encoding/json"
	"io"
	"log/slog"
	"sort"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/core"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/metrics"
)

// ═══════════════════════════════════════════════════════════════════════════
// 文本补全流
// ═══════════════════════════════════════════════════════════════════════════

// Stream 文本补全的流式响应
//
// 与对话流一致的拉取式消费：Recv 逐条取回，Each 回调驱动，
// Collect 折叠为完整响应。提前停止消费时必须调用 Close。
type Stream struct {
	*core.Stream[Completion]
}

// decodeCompletion 将一条 data 载荷解码为补全对象
func decodeCompletion(payload string) (*Completion, error) {
	var completion Completion
	if err := json.Unmarshal([]byte(payload), &completion); err != nil {
		return nil, openai.NewConvertError(payload, "Completion", err)
	}
	return &completion, nil
}

// newStream 包装原始响应体为补全流
func newStream(body io.ReadCloser) *Stream {
	return &Stream{
		Stream: core.NewStream(body, decodeCompletion, nil),
	}
}

// Each 驱动流至结束，逐条调用 fn
//
// 单条解码失败的载荷记录告警后跳过；fn 返回错误时中止消费并
// 返回该错误。无论如何结束，连接都被释放。
func (s *Stream) Each(fn func(*Completion) error) error {
	defer func() { _ = s.Close() }()

	for {
		completion, err := s.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if openai.IsConvertError(err) {
				slog.Warn("skipping malformed stream payload", "error", err)
				continue
			}
			return err
		}
		if err := fn(completion); err != nil {
			return err
		}
	}
}

// Collect 驱动流至结束并折叠为完整响应
//
// 返回值含义与对话流的 Collect 相同：itemErrs 为单条载荷的解码
// 错误，err 为流级别错误（非 nil 时 completion 为 nil）。
func (s *Stream) Collect() (completion *Completion, itemErrs []error, err error) {
	defer func() { _ = s.Close() }()

	acc := NewAccumulator()
	for {
		item, recvErr := s.Recv()
		if recvErr == io.EOF {
			break
		}
		if recvErr != nil {
			if openai.IsConvertError(recvErr) {
				itemErrs = append(itemErrs, recvErr)
				continue
			}
			return nil, itemErrs, recvErr
		}
		acc.Apply(item)
	}

	completion = acc.Completion()
	if completion.Usage != nil {
		metrics.RecordTokens(completion.Model, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	}
	return completion, itemErrs, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 累积器
// ═══════════════════════════════════════════════════════════════════════════

// Accumulator 将流式补全折叠为完整响应
//
// 各候选按 index 独立累积：text 与 reasoning 按到达顺序拼接，
// finish_reason 首个非空值生效。响应元数据取首个非零值，
// usage 取最后一次出现的值。
type Accumulator struct {
	choices map[int]*accumulatedText

	id                string
	object            string
	created           int64
	model             string
	systemFingerprint string
	usage             *openai.Usage
}

type accumulatedText struct {
	index        int
	text         string
	reasoning    string
	finishReason openai.FinishReason
}

// NewAccumulator 创建累积器
func NewAccumulator() *Accumulator {
	return &Accumulator{choices: make(map[int]*accumulatedText)}
}

// Apply 吸收一条流式载荷
func (a *Accumulator) Apply(item *Completion) {
	if item == nil {
		return
	}
	if a.id == "" {
		a.id = item.ID
	}
	if a.object == "" {
		a.object = item.Object
	}
	if a.created == 0 {
		a.created = item.Created
	}
	if a.model == "" {
		a.model = item.Model
	}
	if a.systemFingerprint == "" {
		a.systemFingerprint = item.SystemFingerprint
	}
	if item.Usage != nil {
		a.usage = item.Usage
	}

	for _, choice := range item.Choices {
		acc, ok := a.choices[choice.Index]
		if !ok {
			acc = &accumulatedText{index: choice.Index}
			a.choices[choice.Index] = acc
		}
		acc.text += choice.Text
		acc.reasoning += choice.Reasoning
		if acc.finishReason == "" && choice.FinishReason != "" {
			acc.finishReason = choice.FinishReason
		}
	}
}

// Completion 输出累积结果
//
// choices 按 index 升序排列；未收到 finish_reason 的候选默认
// 标记为正常结束。
func (a *Accumulator) Completion() *Completion {
	indices := make([]int, 0, len(a.choices))
	for index := range a.choices {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	choices := make([]Choice, 0, len(indices))
	for _, index := range indices {
		acc := a.choices[index]
		finishReason := acc.finishReason
		if finishReason == "" {
			finishReason = openai.FinishReasonStop
		}
		choices = append(choices, Choice{
			Index:        acc.index,
			Text:         acc.text,
			Reasoning:    acc.reasoning,
			FinishReason: finishReason,
		})
	}

	object := a.object
	if object == "" {
		object = "text_completion"
	}
	return &Completion{
		ID:                a.id,
		Object:            object,
		Created:           a.created,
		Model:             a.model,
		Choices:           choices,
		SystemFingerprint: a.systemFingerprint,
		Usage:             a.usage,
	}
}

package chat

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/core"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/metrics"
)

// ═══════════════════════════════════════════════════════════════════════════
// 对话补全流
// ═══════════════════════════════════════════════════════════════════════════

// CompletionStream 对话补全的流式响应
//
// 拉取式消费，三种用法：
//
// 逐分片处理（如边收边打印）：
//
//	for {
//	    chunk, err := stream.Recv()
//	    if err == io.EOF {
//	        break
//	    }
//	    if openai.IsConvertError(err) {
//	        continue // 跳过损坏的分片
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(chunk.Choices[0].Delta.Content)
//	}
//
// 回调驱动：stream.Each(fn)
//
// 自动折叠为完整响应：stream.Collect()
//
// 提前停止消费时必须调用 Close 释放连接。
type CompletionStream struct {
	*core.Stream[ChatCompletionChunk]
}

// decodeChunk 将一条 data 载荷解码为分片
func decodeChunk(payload string) (*ChatCompletionChunk, error) {
	var chunk ChatCompletionChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return nil, openai.NewConvertError(payload, "ChatCompletionChunk", err)
	}
	return &chunk, nil
}

// newCompletionStream 包装原始响应体为补全流
func newCompletionStream(body io.ReadCloser) *CompletionStream {
	return &CompletionStream{
		Stream: core.NewStream(body, decodeChunk, nil),
	}
}

// Each 驱动流至结束，逐分片调用 fn
//
// 单条解码失败的载荷记录告警后跳过；fn 返回错误时中止消费并
// 返回该错误。无论如何结束，连接都被释放。
func (s *CompletionStream) Each(fn func(*ChatCompletionChunk) error) error {
	defer func() { _ = s.Close() }()

	for {
		chunk, err := s.Recv()
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
		if err := fn(chunk); err != nil {
			return err
		}
	}
}

// Collect 驱动流至结束并折叠为完整响应
//
// 返回值：
//   - completion: 合并后的完整对象（与非流式响应同构）
//   - itemErrs: 流中单条载荷的解码错误，按出现顺序；不中断合并
//   - err: 流级别错误（截断、读取失败）；非 nil 时 completion 为 nil
func (s *CompletionStream) Collect() (completion *ChatCompletion, itemErrs []error, err error) {
	defer func() { _ = s.Close() }()

	acc := NewAccumulator()
	for {
		chunk, recvErr := s.Recv()
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
		acc.Apply(chunk)
	}

	completion = acc.Completion()
	if completion.Usage != nil {
		metrics.RecordTokens(completion.Model, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	}
	return completion, itemErrs, nil
}

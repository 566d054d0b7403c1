package core

import (
	"io"
	"sync"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/metrics"
)

// ═══════════════════════════════════════════════════════════════════════════
// 泛型流驱动
// ═══════════════════════════════════════════════════════════════════════════

// DecodeFunc 将一条 data 载荷解码为目标类型
//
// 解码失败必须返回 *openai.ConvertError（单条可恢复错误）。
type DecodeFunc[T any] func(payload string) (*T, error)

// Stream 拉取式解码流
//
// 组合 SSE 解码与载荷反序列化，每次 Recv 产出一个对象或一个错误。
// 被 chat 与 completions 子包包装为各自的流类型。
//
// 错误分级：
//   - *openai.ConvertError: 单条载荷解码失败，流继续，可跳过
//   - *openai.StreamError: 流级别失败（截断、读取错误），流终止
//   - io.EOF: 正常结束
type Stream[T any] struct {
	decoder *SSEDecoder
	decode  DecodeFunc[T]
	err     error // 流级别终止错误

	closeOnce sync.Once
	closeErr  error
	onClose   func()
}

// NewStream 创建解码流
//
// onClose 在流释放时恰好执行一次（终止、错误或主动 Close），可为 nil。
func NewStream[T any](body io.ReadCloser, decode DecodeFunc[T], onClose func()) *Stream[T] {
	metrics.StreamsActive.Inc()
	return &Stream[T]{
		decoder: NewSSEDecoder(body),
		decode:  decode,
		onClose: onClose,
	}
}

// Recv 拉取下一个解码对象
//
// 返回值约定：
//   - (item, nil): 一个成功解码的对象
//   - (nil, *ConvertError): 该条载荷损坏，跳过后可继续 Recv
//   - (nil, *StreamError): 流终止，后续 Recv 返回 io.EOF
//   - (nil, io.EOF): 流正常结束
func (s *Stream[T]) Recv() (*T, error) {
	payload, err := s.decoder.Next()
	if err == io.EOF {
		s.release()
		return nil, io.EOF
	}
	if err != nil {
		s.err = err
		s.release()
		return nil, err
	}

	item, err := s.decode(payload)
	if err != nil {
		// 单条解码失败不终止流
		return nil, err
	}
	return item, nil
}

// Err 返回流级别终止错误
//
// 正常结束为 nil。单条 ConvertError 不计入。
func (s *Stream[T]) Err() error {
	return s.err
}

// Close 提前终止流并释放传输资源
//
// 幂等。之后 Recv 返回 io.EOF。
func (s *Stream[T]) Close() error {
	s.release()
	return s.closeErr
}

// release 执行一次性清理（关闭 body、指标与回调）
func (s *Stream[T]) release() {
	s.closeOnce.Do(func() {
		s.closeErr = s.decoder.Close()
		metrics.StreamsActive.Dec()
		if s.onClose != nil {
			s.onClose()
		}
	})
}

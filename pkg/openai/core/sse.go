package core

import (
	"bufio"
	"io"
	"strings"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
)

// ═══════════════════════════════════════════════════════════════════════════
// SSE 解码器
// ═══════════════════════════════════════════════════════════════════════════

const (
	// doneSentinel 流结束哨兵（OpenAI 协议约定的字面量）
	doneSentinel = "[DONE]"

	// maxLineSize 单行载荷上限（工具调用参数可能很长）
	maxLineSize = 1024 * 1024
)

// SSEDecoder 将 SSE 字节流解码为 data 载荷序列
//
// 拉取式设计：每次 Next 调用恰好驱动一轮底层读取，没有内部
// goroutine 和缓冲 channel，调用方停止拉取后资源随 Close 确定性释放。
//
// 协议处理规则：
//   - "data: " 前缀行产出其载荷
//   - 空行为事件分隔符，跳过
//   - ": " 注释行（部分网关的 keep-alive）静默跳过
//   - "event:"/"id:"/"retry:" 等其他字段静默跳过
//   - 载荷为 [DONE] 时终止序列（哨兵本身不产出）
//   - 未见哨兵即结束的流视为截断，报 StreamError
//
// 单次使用，不可重置。
type SSEDecoder struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool  // 已见 [DONE]
	closed  bool  // body 已释放
	err     error // 终止错误（截断或读取失败）
}

// NewSSEDecoder 创建 SSE 解码器
//
// body 的所有权转移给解码器，由 Next 的终止路径或 Close 释放。
func NewSSEDecoder(body io.ReadCloser) *SSEDecoder {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &SSEDecoder{
		body:    body,
		scanner: scanner,
	}
}

// Next 返回下一条 data 载荷
//
// 返回值约定：
//   - (payload, nil): 一条有效载荷
//   - ("", io.EOF): 流正常结束（已见 [DONE]）或解码器已关闭
//   - ("", *StreamError): 截断或读取失败，只报告一次，之后返回 io.EOF
func (d *SSEDecoder) Next() (string, error) {
	if d.closed || d.done {
		return "", io.EOF
	}

	for d.scanner.Scan() {
		line := strings.TrimSuffix(d.scanner.Text(), "\r")

		// 空行：事件分隔符
		if line == "" {
			continue
		}

		// 注释行：keep-alive（如 ": OPENROUTER PROCESSING"）
		if strings.HasPrefix(line, ":") {
			continue
		}

		// 仅识别 data 字段，其余字段（event/id/retry）跳过
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimPrefix(payload, " ")

		if payload == doneSentinel {
			d.done = true
			d.release()
			return "", io.EOF
		}

		return payload, nil
	}

	// 扫描结束但未见哨兵：读取失败或传输层截断
	if scanErr := d.scanner.Err(); scanErr != nil {
		d.err = openai.NewStreamError("stream read failed", scanErr)
	} else {
		d.err = openai.NewStreamError("stream ended without [DONE] sentinel", nil)
	}
	d.release()
	return "", d.err
}

// Err 返回终止错误
//
// 正常结束（[DONE] 或主动 Close）时为 nil。
func (d *SSEDecoder) Err() error {
	return d.err
}

// Close 释放底层传输资源
//
// 幂等，可在消费中途调用（提前放弃流）。之后 Next 返回 io.EOF。
func (d *SSEDecoder) Close() error {
	if d.closed {
		return nil
	}
	return d.release()
}

// release 关闭 body，只执行一次
func (d *SSEDecoder) release() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.body.Close()
}

package mock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// SSE 下发
// ═══════════════════════════════════════════════════════════════════════════

// streamSpec 取场景的流形态配置并填充默认值
func streamSpec(sc *Scenario) StreamSpec {
	var spec StreamSpec
	if sc != nil {
		spec = sc.Stream
	}
	if spec.ChunkSize <= 0 {
		spec.ChunkSize = 6
	}
	if spec.ArgChunkSize <= 0 {
		spec.ArgChunkSize = 10
	}
	return spec
}

// splitRunes 按字符数切分文本
func splitRunes(text string, size int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	parts := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}

// interleave 轮转合并各候选的载荷队列
//
// n>1 时产出交错的分片序列，消费端必须按 index 归位。
func interleave(seqs [][]string) []string {
	total := 0
	for _, seq := range seqs {
		total += len(seq)
	}
	out := make([]string, 0, total)
	for added := true; added; {
		added = false
		for i := range seqs {
			if len(seqs[i]) > 0 {
				out = append(out, seqs[i][0])
				seqs[i] = seqs[i][1:]
				added = true
			}
		}
	}
	return out
}

// writeSSE 按 SSE 协议下发载荷序列
func writeSSE(w http.ResponseWriter, payloads []string, spec StreamSpec) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Request-Id", newID("req_"))

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	eol := "\n"
	if spec.CRLF {
		eol = "\r\n"
	}

	for i, payload := range payloads {
		if spec.KeepAlive && i > 0 {
			fmt.Fprintf(w, ": keep-alive%s%s", eol, eol)
		}
		fmt.Fprintf(w, "data: %s%s%s", payload, eol, eol)
		flush()
	}

	if !spec.DropDone {
		fmt.Fprintf(w, "data: [DONE]%s%s", eol, eol)
		flush()
	}
}

// marshalPayload 序列化单条载荷
func marshalPayload(body map[string]any) string {
	data, _ := json.Marshal(body)
	return string(data)
}

// ═══════════════════════════════════════════════════════════════════════════
// 对话补全流
// ═══════════════════════════════════════════════════════════════════════════

// streamChatCompletion 下发流式对话补全
//
// 每个候选的分片序列：role 分片、思维链片段、内容片段或工具调用
// 片段、finish 分片。多候选时各序列轮转交错下发。
func (s *Server) streamChatCompletion(w http.ResponseWriter, req *chatRequest, sc *Scenario, includeUsage bool) {
	n := req.N
	if n < 1 {
		n = 1
	}
	spec := streamSpec(sc)

	id := newID("chatcmpl-")
	created := time.Now().Unix()
	envelope := func(choice map[string]any) string {
		return marshalPayload(map[string]any{
			"id":      id,
			"object":  "chat.completion.chunk",
			"created": created,
			"model":   req.Model,
			"choices": []any{choice},
		})
	}
	chunk := func(index int, delta map[string]any, finish any) string {
		return envelope(map[string]any{
			"index":         index,
			"delta":         delta,
			"finish_reason": finish,
		})
	}

	text := s.responseText(sc)
	perIndex := make([][]string, n)
	for i := 0; i < n; i++ {
		var seq []string
		seq = append(seq, chunk(i, map[string]any{"role": "assistant", "content": ""}, nil))

		if sc != nil && sc.Reasoning != "" {
			field := reasoningField(sc)
			for _, frag := range splitRunes(sc.Reasoning, spec.ChunkSize) {
				seq = append(seq, chunk(i, map[string]any{field: frag}, nil))
			}
		}

		if sc != nil && len(sc.Tools) > 0 {
			for j, tool := range sc.Tools {
				seq = append(seq, chunk(i, map[string]any{
					"tool_calls": []any{map[string]any{
						"index": j,
						"id":    newID("call_"),
						"type":  "function",
						"function": map[string]any{
							"name":      tool.Name,
							"arguments": "",
						},
					}},
				}, nil))

				args, _ := json.Marshal(tool.Arguments)
				for _, frag := range splitRunes(string(args), spec.ArgChunkSize) {
					seq = append(seq, chunk(i, map[string]any{
						"tool_calls": []any{map[string]any{
							"index":    j,
							"function": map[string]any{"arguments": frag},
						}},
					}, nil))
				}
			}
		} else {
			for _, frag := range splitRunes(text, spec.ChunkSize) {
				seq = append(seq, chunk(i, map[string]any{"content": frag}, nil))
			}
		}

		seq = append(seq, chunk(i, map[string]any{}, finishReason(sc)))
		perIndex[i] = seq
	}

	payloads := interleave(perIndex)

	if includeUsage {
		completionTokens := estimateTokens(text) * int64(n)
		payloads = append(payloads, marshalPayload(map[string]any{
			"id":      id,
			"object":  "chat.completion.chunk",
			"created": created,
			"model":   req.Model,
			"choices": []any{},
			"usage":   usageBody(req.promptTokens(), completionTokens),
		}))
	}

	if spec.MalformedAt >= 1 && spec.MalformedAt <= len(payloads) {
		payloads[spec.MalformedAt-1] = `{"id":"broken"`
	}

	writeSSE(w, payloads, spec)
}

// ═══════════════════════════════════════════════════════════════════════════
// 文本补全流
// ═══════════════════════════════════════════════════════════════════════════

// streamCompletion 下发流式文本补全
func (s *Server) streamCompletion(w http.ResponseWriter, req *completionRequest, sc *Scenario, includeUsage bool) {
	n := req.N
	if n < 1 {
		n = 1
	}
	spec := streamSpec(sc)

	id := newID("cmpl-")
	created := time.Now().Unix()
	chunk := func(choice map[string]any) string {
		return marshalPayload(map[string]any{
			"id":      id,
			"object":  "text_completion",
			"created": created,
			"model":   req.Model,
			"choices": []any{choice},
		})
	}

	text := s.responseText(sc)
	perIndex := make([][]string, n)
	for i := 0; i < n; i++ {
		var seq []string

		if sc != nil && sc.Reasoning != "" {
			field := reasoningField(sc)
			for _, frag := range splitRunes(sc.Reasoning, spec.ChunkSize) {
				seq = append(seq, chunk(map[string]any{
					"index": i, "text": "", field: frag, "finish_reason": nil,
				}))
			}
		}

		for _, frag := range splitRunes(text, spec.ChunkSize) {
			seq = append(seq, chunk(map[string]any{
				"index": i, "text": frag, "finish_reason": nil,
			}))
		}

		seq = append(seq, chunk(map[string]any{
			"index": i, "text": "", "finish_reason": finishReason(sc),
		}))
		perIndex[i] = seq
	}

	payloads := interleave(perIndex)

	if includeUsage {
		payloads = append(payloads, marshalPayload(map[string]any{
			"id":      id,
			"object":  "text_completion",
			"created": created,
			"model":   req.Model,
			"choices": []any{},
			"usage":   usageBody(estimateTokens(req.promptText()), estimateTokens(text)*int64(n)),
		}))
	}

	if spec.MalformedAt >= 1 && spec.MalformedAt <= len(payloads) {
		payloads[spec.MalformedAt-1] = `{"id":"broken"`
	}

	writeSSE(w, payloads, spec)
}

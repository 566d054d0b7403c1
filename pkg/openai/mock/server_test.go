package mock

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ═══════════════════════════════════════════════════════════════════════════
// 测试辅助
// ═══════════════════════════════════════════════════════════════════════════

func newExampleServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	cfg, err := LoadExampleConfig()
	require.NoError(t, err)
	srv := NewServer(append([]Option{WithConfig(cfg)}, opts...)...)
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url string, body any, header map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return m
}

// readPayloads 提取 SSE 响应中的全部 data 载荷
func readPayloads(t *testing.T, body io.Reader) []string {
	t.Helper()
	var payloads []string
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if rest, ok := strings.CutPrefix(line, "data: "); ok {
			payloads = append(payloads, rest)
		}
	}
	require.NoError(t, scanner.Err())
	return payloads
}

func chatBody(message string, extra map[string]any) map[string]any {
	body := map[string]any{
		"model":    "gpt-4o",
		"messages": []map[string]any{{"role": "user", "content": message}},
	}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

// ═══════════════════════════════════════════════════════════════════════════
// 基础构件
// ═══════════════════════════════════════════════════════════════════════════

func TestNewID(t *testing.T) {
	id := newID("chatcmpl-")

	assert.True(t, strings.HasPrefix(id, "chatcmpl-"))
	assert.Len(t, id, len("chatcmpl-")+24)
	assert.NotEqual(t, id, newID("chatcmpl-"))
}

func TestSplitRunes(t *testing.T) {
	assert.Nil(t, splitRunes("", 3))
	assert.Equal(t, []string{"Hel", "lo"}, splitRunes("Hello", 3))
	assert.Equal(t, []string{"abc"}, splitRunes("abc", 3))
	assert.Equal(t, []string{"你", "好", "吗"}, splitRunes("你好吗", 1), "多字节字符不被截断")
}

func TestInterleave(t *testing.T) {
	out := interleave([][]string{
		{"a1", "a2", "a3"},
		{"b1"},
		{"c1", "c2"},
	})

	assert.Equal(t, []string{"a1", "b1", "c1", "a2", "c2", "a3"}, out)
}

// ═══════════════════════════════════════════════════════════════════════════
// 对话补全
// ═══════════════════════════════════════════════════════════════════════════

func TestServer_ChatCompletions(t *testing.T) {
	t.Run("无配置时返回默认文本", func(t *testing.T) {
		srv := NewServer()
		t.Cleanup(srv.Close)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			chatBody("hi", nil), nil)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		m := decodeJSON(t, resp)
		assert.Equal(t, "chat.completion", m["object"])
		choices := m["choices"].([]any)
		message := choices[0].(map[string]any)["message"].(map[string]any)
		assert.Equal(t, "mock response", message["content"])
		assert.Contains(t, m, "usage")
	})

	t.Run("按请求头指定场景", func(t *testing.T) {
		srv := newExampleServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			chatBody("随便说点", nil), map[string]string{ScenarioHeader: "greeting"})

		m := decodeJSON(t, resp)
		message := m["choices"].([]any)[0].(map[string]any)["message"].(map[string]any)
		assert.Equal(t, "你好！有什么可以帮你的吗？", message["content"])
	})

	t.Run("按用户消息匹配场景", func(t *testing.T) {
		srv := newExampleServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			chatBody("你好呀", nil), nil)

		m := decodeJSON(t, resp)
		message := m["choices"].([]any)[0].(map[string]any)["message"].(map[string]any)
		assert.Equal(t, "你好！有什么可以帮你的吗？", message["content"])
	})

	t.Run("多候选响应", func(t *testing.T) {
		srv := newExampleServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			chatBody("你好", map[string]any{"n": 2}), nil)

		m := decodeJSON(t, resp)
		choices := m["choices"].([]any)
		require.Len(t, choices, 2)
		assert.Equal(t, float64(0), choices[0].(map[string]any)["index"])
		assert.Equal(t, float64(1), choices[1].(map[string]any)["index"])
	})

	t.Run("工具调用场景", func(t *testing.T) {
		srv := newExampleServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			chatBody("今天上海天气如何", nil), nil)

		m := decodeJSON(t, resp)
		choice := m["choices"].([]any)[0].(map[string]any)
		assert.Equal(t, "tool_calls", choice["finish_reason"])

		message := choice["message"].(map[string]any)
		assert.Nil(t, message["content"])
		calls := message["tool_calls"].([]any)
		require.Len(t, calls, 1)
		call := calls[0].(map[string]any)
		assert.True(t, strings.HasPrefix(call["id"].(string), "call_"))
		fn := call["function"].(map[string]any)
		assert.Equal(t, "get_weather", fn["name"])

		var args map[string]any
		require.NoError(t, json.Unmarshal([]byte(fn["arguments"].(string)), &args))
		assert.Equal(t, "Shanghai", args["location"])
	})

	t.Run("推理方言字段", func(t *testing.T) {
		srv := newExampleServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			chatBody("说说", nil), map[string]string{ScenarioHeader: "reasoning-dialect"})

		m := decodeJSON(t, resp)
		message := m["choices"].([]any)[0].(map[string]any)["message"].(map[string]any)
		assert.Contains(t, message, "reasoning_content")
		assert.NotContains(t, message, "reasoning")
	})

	t.Run("非法请求体返回 400", func(t *testing.T) {
		srv := newExampleServer(t)

		resp, err := http.Post(srv.URL()+"/chat/completions", "application/json",
			strings.NewReader("{not json"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		m := decodeJSON(t, resp)
		assert.Contains(t, m, "error")
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 流式下发
// ═══════════════════════════════════════════════════════════════════════════

func TestServer_ChatStream(t *testing.T) {
	streamBody := func(message string, extra map[string]any) map[string]any {
		body := chatBody(message, map[string]any{"stream": true})
		for k, v := range extra {
			body[k] = v
		}
		return body
	}

	t.Run("正常流以 DONE 结束", func(t *testing.T) {
		srv := newExampleServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			streamBody("你好", nil), nil)

		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
		payloads := readPayloads(t, resp.Body)
		require.NotEmpty(t, payloads)
		assert.Equal(t, "[DONE]", payloads[len(payloads)-1])

		var text strings.Builder
		for _, p := range payloads[:len(payloads)-1] {
			var chunk map[string]any
			require.NoError(t, json.Unmarshal([]byte(p), &chunk), "每条载荷都是合法 JSON")
			for _, c := range chunk["choices"].([]any) {
				delta := c.(map[string]any)["delta"].(map[string]any)
				if content, ok := delta["content"].(string); ok {
					text.WriteString(content)
				}
			}
		}
		assert.Equal(t, "你好！有什么可以帮你的吗？", text.String())
	})

	t.Run("单字符切片", func(t *testing.T) {
		srv := newExampleServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			streamBody("x", nil), map[string]string{ScenarioHeader: "tiny-chunks"})

		payloads := readPayloads(t, resp.Body)
		var frags []string
		for _, p := range payloads {
			if p == "[DONE]" {
				continue
			}
			var chunk map[string]any
			require.NoError(t, json.Unmarshal([]byte(p), &chunk))
			for _, c := range chunk["choices"].([]any) {
				delta := c.(map[string]any)["delta"].(map[string]any)
				if content, ok := delta["content"].(string); ok && content != "" {
					frags = append(frags, content)
				}
			}
		}

		assert.Equal(t, []string{"H", "e", "l", "l", "o"}, frags)
	})

	t.Run("截断流不发送结束标记", func(t *testing.T) {
		srv := newExampleServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			streamBody("x", nil), map[string]string{ScenarioHeader: "truncated"})

		payloads := readPayloads(t, resp.Body)
		require.NotEmpty(t, payloads)
		assert.NotContains(t, payloads, "[DONE]")
	})

	t.Run("指定位置注入非法载荷", func(t *testing.T) {
		srv := newExampleServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			streamBody("x", nil), map[string]string{ScenarioHeader: "malformed"})

		payloads := readPayloads(t, resp.Body)
		require.Greater(t, len(payloads), 2)
		assert.Equal(t, `{"id":"broken"`, payloads[1])
		assert.False(t, json.Valid([]byte(payloads[1])))
	})

	t.Run("末尾分片附带用量", func(t *testing.T) {
		srv := newExampleServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			streamBody("你好", map[string]any{
				"stream_options": map[string]any{"include_usage": true},
			}), nil)

		payloads := readPayloads(t, resp.Body)
		require.Greater(t, len(payloads), 1)

		var last map[string]any
		require.NoError(t, json.Unmarshal([]byte(payloads[len(payloads)-2]), &last))
		assert.Empty(t, last["choices"])
		usage := last["usage"].(map[string]any)
		assert.Greater(t, usage["total_tokens"], float64(0))
	})

	t.Run("多候选轮转交错", func(t *testing.T) {
		srv := newExampleServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			streamBody("你好", map[string]any{"n": 2}), nil)

		payloads := readPayloads(t, resp.Body)
		indexOf := func(p string) float64 {
			var chunk map[string]any
			require.NoError(t, json.Unmarshal([]byte(p), &chunk))
			return chunk["choices"].([]any)[0].(map[string]any)["index"].(float64)
		}
		assert.Equal(t, float64(0), indexOf(payloads[0]))
		assert.Equal(t, float64(1), indexOf(payloads[1]), "相邻载荷来自不同候选")
	})

	t.Run("CRLF 与注释行", func(t *testing.T) {
		srv := NewServer(WithConfig(&Config{Scenarios: []Scenario{{
			Name:     "wire",
			Response: "AB",
			Stream:   StreamSpec{ChunkSize: 1, CRLF: true, KeepAlive: true},
		}}}))
		t.Cleanup(srv.Close)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			streamBody("x", nil), map[string]string{ScenarioHeader: "wire"})

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "\r\n")
		assert.Contains(t, string(raw), ": keep-alive")

		payloads := readPayloads(t, bytes.NewReader(raw))
		assert.Equal(t, "[DONE]", payloads[len(payloads)-1])
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 文本补全
// ═══════════════════════════════════════════════════════════════════════════

func TestServer_Completions(t *testing.T) {
	t.Run("同步补全", func(t *testing.T) {
		srv := newExampleServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/completions",
			map[string]any{"model": "gpt-3.5-turbo-instruct", "prompt": "你好"}, nil)

		m := decodeJSON(t, resp)
		assert.Equal(t, "text_completion", m["object"])
		choice := m["choices"].([]any)[0].(map[string]any)
		assert.Equal(t, "你好！有什么可以帮你的吗？", choice["text"])
	})

	t.Run("流式补全载荷为完整对象", func(t *testing.T) {
		srv := newExampleServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/completions",
			map[string]any{"model": "m", "prompt": "你好", "stream": true}, nil)

		payloads := readPayloads(t, resp.Body)
		require.Greater(t, len(payloads), 1)
		assert.Equal(t, "[DONE]", payloads[len(payloads)-1])

		var text strings.Builder
		for _, p := range payloads[:len(payloads)-1] {
			var item map[string]any
			require.NoError(t, json.Unmarshal([]byte(p), &item))
			assert.Equal(t, "text_completion", item["object"])
			for _, c := range item["choices"].([]any) {
				if frag, ok := c.(map[string]any)["text"].(string); ok {
					text.WriteString(frag)
				}
			}
		}
		assert.Equal(t, "你好！有什么可以帮你的吗？", text.String())
	})

	t.Run("数组提示参与匹配", func(t *testing.T) {
		srv := newExampleServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/completions",
			map[string]any{"model": "m", "prompt": []string{"第一行", "含你好的行"}}, nil)

		m := decodeJSON(t, resp)
		choice := m["choices"].([]any)[0].(map[string]any)
		assert.Equal(t, "你好！有什么可以帮你的吗？", choice["text"])
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 模型与向量化
// ═══════════════════════════════════════════════════════════════════════════

func TestServer_Models(t *testing.T) {
	srv := newExampleServer(t)

	t.Run("列表", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL()+"/models", nil, nil)

		m := decodeJSON(t, resp)
		assert.Equal(t, "list", m["object"])
		data := m["data"].([]any)
		ids := make([]string, 0, len(data))
		for _, item := range data {
			ids = append(ids, item.(map[string]any)["id"].(string))
		}
		assert.Contains(t, ids, "gpt-4o")
		assert.Contains(t, ids, "text-embedding-3-small")
	})

	t.Run("获取已知模型", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL()+"/models/gpt-4o", nil, nil)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		m := decodeJSON(t, resp)
		assert.Equal(t, "gpt-4o", m["id"])
	})

	t.Run("未知模型返回 404", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL()+"/models/unknown-model", nil, nil)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		m := decodeJSON(t, resp)
		errBody := m["error"].(map[string]any)
		assert.Equal(t, "model_not_found", errBody["code"])
	})

	t.Run("删除模型", func(t *testing.T) {
		resp := doRequest(t, http.MethodDelete, srv.URL()+"/models/ft-custom", nil, nil)

		m := decodeJSON(t, resp)
		assert.Equal(t, true, m["deleted"])
		assert.Equal(t, "ft-custom", m["id"])
	})
}

func TestServer_Embeddings(t *testing.T) {
	srv := newExampleServer(t)

	embeddingOf := func(body map[string]any) map[string]any {
		resp := doRequest(t, http.MethodPost, srv.URL()+"/embeddings", body, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return decodeJSON(t, resp)
	}

	t.Run("同一文本产出恒定向量", func(t *testing.T) {
		first := embeddingOf(map[string]any{"model": "m", "input": "你好"})
		second := embeddingOf(map[string]any{"model": "m", "input": "你好"})

		vecA := first["data"].([]any)[0].(map[string]any)["embedding"]
		vecB := second["data"].([]any)[0].(map[string]any)["embedding"]
		assert.Equal(t, vecA, vecB)

		other := embeddingOf(map[string]any{"model": "m", "input": "再见"})
		vecC := other["data"].([]any)[0].(map[string]any)["embedding"]
		assert.NotEqual(t, vecA, vecC)
	})

	t.Run("批量输入按索引对应", func(t *testing.T) {
		m := embeddingOf(map[string]any{"model": "m", "input": []string{"一", "二", "三"}})

		data := m["data"].([]any)
		require.Len(t, data, 3)
		for i, item := range data {
			assert.Equal(t, float64(i), item.(map[string]any)["index"])
		}
		usage := m["usage"].(map[string]any)
		assert.Equal(t, usage["prompt_tokens"], usage["total_tokens"])
	})

	t.Run("指定维度", func(t *testing.T) {
		m := embeddingOf(map[string]any{"model": "m", "input": "x", "dimensions": 4})

		vec := m["data"].([]any)[0].(map[string]any)["embedding"].([]any)
		assert.Len(t, vec, 4)
	})

	t.Run("base64 形态可解码", func(t *testing.T) {
		m := embeddingOf(map[string]any{"model": "m", "input": "x", "encoding_format": "base64", "dimensions": 4})

		encoded := m["data"].([]any)[0].(map[string]any)["embedding"].(string)
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		require.NoError(t, err)
		assert.Len(t, decoded, 16, "4 个 float32 共 16 字节")
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 异常注入与请求记录
// ═══════════════════════════════════════════════════════════════════════════

func TestServer_ErrorInjection(t *testing.T) {
	t.Run("限流场景", func(t *testing.T) {
		srv := newExampleServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			chatBody("x", nil), map[string]string{ScenarioHeader: "rate-limited"})

		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
		m := decodeJSON(t, resp)
		errBody := m["error"].(map[string]any)
		assert.Equal(t, "rate_limit_exceeded", errBody["code"])
	})

	t.Run("失败 N 次后恢复", func(t *testing.T) {
		srv := newExampleServer(t)
		call := func() int {
			resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
				chatBody("x", nil), map[string]string{ScenarioHeader: "flaky"})
			return resp.StatusCode
		}

		assert.Equal(t, http.StatusInternalServerError, call())
		assert.Equal(t, http.StatusInternalServerError, call())
		assert.Equal(t, http.StatusOK, call())
		assert.Equal(t, http.StatusOK, call(), "恢复后保持正常")

		srv.Reset()
		assert.Equal(t, http.StatusInternalServerError, call(), "Reset 清空失败计数")
	})
}

func TestServer_Auth(t *testing.T) {
	srv := newExampleServer(t, WithAPIKey("sk-mock"))

	t.Run("密钥错误返回 401", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			chatBody("x", nil), map[string]string{"Authorization": "Bearer wrong"})

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		m := decodeJSON(t, resp)
		assert.Equal(t, "invalid_api_key", m["error"].(map[string]any)["code"])
	})

	t.Run("密钥正确放行", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, srv.URL()+"/chat/completions",
			chatBody("x", nil), map[string]string{"Authorization": "Bearer sk-mock"})

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestServer_Recording(t *testing.T) {
	srv := newExampleServer(t)

	doRequest(t, http.MethodPost, srv.URL()+"/chat/completions", chatBody("第一问", nil), nil)
	doRequest(t, http.MethodGet, srv.URL()+"/models", nil, nil)

	requests := srv.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, http.MethodPost, requests[0].Method)
	assert.Equal(t, "/chat/completions", requests[0].Path)
	assert.Contains(t, string(requests[0].Body), "第一问")

	assert.Equal(t, 1, srv.RequestCount("/chat/completions"))
	assert.Equal(t, 1, srv.RequestCount("/models"))
	assert.Equal(t, 0, srv.RequestCount("/embeddings"))

	srv.Reset()
	assert.Empty(t, srv.Requests())
}

func TestServer_Delay(t *testing.T) {
	srv := newExampleServer(t, WithDelay(30*time.Millisecond))

	start := time.Now()
	doRequest(t, http.MethodGet, srv.URL()+"/models", nil, nil)

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

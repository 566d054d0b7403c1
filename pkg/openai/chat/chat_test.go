package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// 测试辅助
// ═══════════════════════════════════════════════════════════════════════════

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	transport, err := core.NewTransport(openai.Config{
		BaseURL: srv.URL,
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
	})
	require.NoError(t, err)
	return NewService(transport), srv
}

// ═══════════════════════════════════════════════════════════════════════════
// 同步调用
// ═══════════════════════════════════════════════════════════════════════════

func TestService_Create(t *testing.T) {
	t.Run("发送请求体并解析响应", func(t *testing.T) {
		var gotBody map[string]any
		svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			_, _ = w.Write([]byte(`{
				"id": "chatcmpl-1",
				"object": "chat.completion",
				"model": "gpt-4o",
				"choices": [{"index":0,"message":{"role":"assistant","content":"你好！"},"finish_reason":"stop"}],
				"usage": {"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}
			}`))
		})

		completion, err := svc.Create(context.Background(),
			NewParams("gpt-4o", User("你好")))

		require.NoError(t, err)
		assert.Equal(t, "你好！", completion.FirstContent())
		assert.Equal(t, "gpt-4o", gotBody["model"])
		assert.NotContains(t, gotBody, "stream", "同步调用不携带 stream 标记")
		messages := gotBody["messages"].([]any)
		require.Len(t, messages, 1)
		assert.Equal(t, "你好", messages[0].(map[string]any)["content"])
	})

	t.Run("模型缺省取客户端配置", func(t *testing.T) {
		var gotModel string
		svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			gotModel, _ = body["model"].(string)
			_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","choices":[]}`))
		})

		_, err := svc.Create(context.Background(), NewParams("", User("hi")))

		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", gotModel)
	})

	t.Run("调用方参数不被修改", func(t *testing.T) {
		svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","choices":[]}`))
		})

		params := NewParams("", User("hi"))
		params.Stream = true

		_, err := svc.Create(context.Background(), params)

		require.NoError(t, err)
		assert.Empty(t, params.Model, "默认模型填充发生在副本上")
		assert.True(t, params.Stream, "调用方的字段原样保留")
	})

	t.Run("nil 参数报请求错误", func(t *testing.T) {
		var hits int
		svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			hits++
		})

		_, err := svc.Create(context.Background(), nil)

		require.Error(t, err)
		assert.True(t, openai.IsRequestError(err))
		assert.Zero(t, hits)
	})

	t.Run("校验失败不发请求", func(t *testing.T) {
		var hits int
		svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			hits++
		})

		_, err := svc.Create(context.Background(), NewParams("gpt-4o"))

		require.Error(t, err)
		assert.True(t, openai.IsRequestError(err))
		assert.Zero(t, hits)
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 流式调用
// ═══════════════════════════════════════════════════════════════════════════

func TestService_CreateStream(t *testing.T) {
	t.Run("设置流式标记并默认附带用量", func(t *testing.T) {
		var gotBody map[string]any
		svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = w.Write([]byte("data: " + chunkHel + "\n\n"))
			_, _ = w.Write([]byte("data: " + chunkLo + "\n\n"))
			_, _ = w.Write([]byte("data: " + chunkFinish + "\n\n"))
			_, _ = w.Write([]byte("data: [DONE]\n\n"))
		})

		stream, err := svc.CreateStream(context.Background(),
			NewParams("gpt-4o", User("hi")))
		require.NoError(t, err)

		completion, itemErrs, err := stream.Collect()

		require.NoError(t, err)
		assert.Empty(t, itemErrs)
		assert.Equal(t, "Hello", completion.FirstContent())
		assert.Equal(t, true, gotBody["stream"])
		streamOptions := gotBody["stream_options"].(map[string]any)
		assert.Equal(t, true, streamOptions["include_usage"])
	})

	t.Run("调用方显式流式选项优先", func(t *testing.T) {
		var gotBody map[string]any
		svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = w.Write([]byte("data: [DONE]\n\n"))
		})

		params := NewParams("gpt-4o", User("hi"))
		params.StreamOptions = &StreamOptions{IncludeUsage: false}

		stream, err := svc.CreateStream(context.Background(), params)
		require.NoError(t, err)
		defer func() { _ = stream.Close() }()

		streamOptions := gotBody["stream_options"].(map[string]any)
		assert.Equal(t, false, streamOptions["include_usage"])
	})

	t.Run("建立失败返回 API 错误", func(t *testing.T) {
		svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key","code":"invalid_api_key"}}`))
		})

		_, err := svc.CreateStream(context.Background(),
			NewParams("gpt-4o", User("hi")))

		require.Error(t, err)
		assert.Equal(t, 401, openai.GetStatusCode(err))
	})
}

package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
)

// ═══════════════════════════════════════════════════════════════════════════
// Delta 解码
// ═══════════════════════════════════════════════════════════════════════════

func TestDelta_UnmarshalJSON(t *testing.T) {
	t.Run("常规字段", func(t *testing.T) {
		var d Delta
		err := json.Unmarshal([]byte(`{"role":"assistant","content":"hi"}`), &d)

		require.NoError(t, err)
		assert.Equal(t, "assistant", d.Role)
		assert.Equal(t, "hi", d.Content)
		assert.Empty(t, d.Reasoning)
		assert.Nil(t, d.Extra)
	})

	t.Run("null 字段视同缺失", func(t *testing.T) {
		var d Delta
		err := json.Unmarshal([]byte(`{"role":"assistant","content":null,"refusal":null}`), &d)

		require.NoError(t, err)
		assert.Equal(t, "assistant", d.Role)
		assert.Empty(t, d.Content)
		assert.Empty(t, d.Refusal)
	})

	t.Run("工具调用增量", func(t *testing.T) {
		var d Delta
		err := json.Unmarshal([]byte(`{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":""}}]}`), &d)

		require.NoError(t, err)
		require.Len(t, d.ToolCalls, 1)
		assert.Equal(t, 0, d.ToolCalls[0].Index)
		assert.Equal(t, "call_1", d.ToolCalls[0].ID)
		assert.Equal(t, "get_weather", d.ToolCalls[0].Function.Name)
	})

	t.Run("未识别字段收入 Extra", func(t *testing.T) {
		var d Delta
		err := json.Unmarshal([]byte(`{"content":"x","provider":"openrouter","native_finish_reason":"stop"}`), &d)

		require.NoError(t, err)
		assert.Equal(t, "x", d.Content)
		assert.Equal(t, json.RawMessage(`"openrouter"`), d.Extra["provider"])
		assert.Equal(t, json.RawMessage(`"stop"`), d.Extra["native_finish_reason"])
		assert.NotContains(t, d.Extra, "content", "已识别字段不落入 Extra")
	})
}

func TestDelta_ReasoningAliases(t *testing.T) {
	t.Run("仅 reasoning", func(t *testing.T) {
		var d Delta
		err := json.Unmarshal([]byte(`{"reasoning":"思考中"}`), &d)

		require.NoError(t, err)
		assert.Equal(t, "思考中", d.Reasoning)
		assert.NotContains(t, d.Extra, "reasoning")
	})

	t.Run("仅 reasoning_content", func(t *testing.T) {
		var d Delta
		err := json.Unmarshal([]byte(`{"reasoning_content":"思考中"}`), &d)

		require.NoError(t, err)
		assert.Equal(t, "思考中", d.Reasoning)
		assert.NotContains(t, d.Extra, "reasoning_content")
	})

	t.Run("两者并存时 reasoning 优先", func(t *testing.T) {
		var d Delta
		err := json.Unmarshal([]byte(`{"reasoning":"主","reasoning_content":"副"}`), &d)

		require.NoError(t, err)
		assert.Equal(t, "主", d.Reasoning)
	})

	t.Run("reasoning 为空串仍然优先", func(t *testing.T) {
		var d Delta
		err := json.Unmarshal([]byte(`{"reasoning":"","reasoning_content":"副"}`), &d)

		require.NoError(t, err)
		assert.Empty(t, d.Reasoning, "在场即优先，不看内容")
	})

	t.Run("reasoning 为 null 时退用别名", func(t *testing.T) {
		var d Delta
		err := json.Unmarshal([]byte(`{"reasoning":null,"reasoning_content":"副"}`), &d)

		require.NoError(t, err)
		assert.Equal(t, "副", d.Reasoning)
	})

	t.Run("两者都为 null", func(t *testing.T) {
		var d Delta
		err := json.Unmarshal([]byte(`{"reasoning":null,"reasoning_content":null}`), &d)

		require.NoError(t, err)
		assert.Empty(t, d.Reasoning)
		assert.NotContains(t, d.Extra, "reasoning")
		assert.NotContains(t, d.Extra, "reasoning_content")
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 分片与响应解码
// ═══════════════════════════════════════════════════════════════════════════

func TestChatCompletionChunk_Unmarshal(t *testing.T) {
	payload := `{
		"id": "chatcmpl-9xYz",
		"object": "chat.completion.chunk",
		"created": 1719000000,
		"model": "gpt-4o-2024-05-13",
		"system_fingerprint": "fp_44709d6fcb",
		"choices": [
			{
				"index": 0,
				"delta": {"content": "Hello"},
				"finish_reason": null
			}
		]
	}`

	var chunk ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(payload), &chunk))

	assert.Equal(t, "chatcmpl-9xYz", chunk.ID)
	assert.Equal(t, "chat.completion.chunk", chunk.Object)
	assert.Equal(t, "gpt-4o-2024-05-13", chunk.Model)
	require.Len(t, chunk.Choices, 1)
	assert.Equal(t, "Hello", chunk.Choices[0].Delta.Content)
	assert.Nil(t, chunk.Choices[0].FinishReason)
	assert.Nil(t, chunk.Usage)
}

func TestChatCompletion_Unmarshal(t *testing.T) {
	payload := `{
		"id": "chatcmpl-abc",
		"object": "chat.completion",
		"created": 1719000000,
		"model": "gpt-4o",
		"choices": [
			{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": "42",
					"tool_calls": [
						{"id": "call_1", "type": "function", "function": {"name": "lookup", "arguments": "{\"q\":\"答案\"}"}}
					]
				},
				"finish_reason": "tool_calls"
			}
		],
		"usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
	}`

	var completion ChatCompletion
	require.NoError(t, json.Unmarshal([]byte(payload), &completion))

	assert.Equal(t, "42", completion.FirstContent())
	require.Len(t, completion.Choices, 1)
	choice := completion.Choices[0]
	assert.Equal(t, openai.FinishReasonToolCalls, choice.FinishReason)
	assert.True(t, choice.FinishReason.IsToolCalls())
	require.Len(t, choice.Message.ToolCalls, 1)
	assert.Equal(t, `{"q":"答案"}`, choice.Message.ToolCalls[0].Function.Arguments)
	require.NotNil(t, completion.Usage)
	assert.Equal(t, int64(13), completion.Usage.TotalTokens)
}

func TestChatCompletionMessage_ToParam(t *testing.T) {
	msg := ChatCompletionMessage{
		Role:    "assistant",
		Content: "早上好",
		ToolCalls: []ToolCall{
			{ID: "call_1", Type: "function", Function: ToolCallFunction{Name: "fn", Arguments: "{}"}},
		},
	}

	param := msg.ToParam()

	assert.Equal(t, "assistant", param.Role)
	assert.Equal(t, "早上好", param.Content)
	assert.Equal(t, msg.ToolCalls, param.ToolCalls)
}

package chat

// ═══════════════════════════════════════════════════════════════════════════
// 请求消息
// ═══════════════════════════════════════════════════════════════════════════

// 消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message 请求中的一条对话消息
type Message struct {
	// Role 角色：system / user / assistant / tool
	Role string `json:"role"`

	// Content 文本内容
	Content string `json:"content"`

	// Name 参与者名称（可选）
	Name string `json:"name,omitempty"`

	// ToolCallID tool 角色消息必填，对应所回应的工具调用
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolCalls 助手消息携带的工具调用（写回历史时使用）
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// System 构建系统消息
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User 构建用户消息
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant 构建助手消息
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResult 构建工具结果消息
//
// toolCallID 对应助手消息中发起调用的 ToolCall.ID。
func ToolResult(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

package mock

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed examples/scenarios.yaml
var exampleConfigYAML []byte

// Config 配置文件结构
type Config struct {
	// DefaultResponse 默认响应文本（无场景命中时使用）
	DefaultResponse string `yaml:"default_response" json:"default_response"`

	// Scenarios 场景列表
	Scenarios []Scenario `yaml:"scenarios" json:"scenarios"`

	// Delay 每个请求的响应延迟（如 "100ms"）
	Delay string `yaml:"delay" json:"delay"`

	// Models /models 端点返回的模型列表
	Models []string `yaml:"models" json:"models"`
}

// Scenario 响应场景
//
// 命中方式二选一：请求头 X-Mock-Scenario 按 Name 直接指定，
// 或 Match 对最后一条用户消息做子串匹配。都未命中时使用
// DefaultResponse。
type Scenario struct {
	// Name 场景名称
	Name string `yaml:"name" json:"name"`

	// Match 用户消息子串匹配规则（可选）
	Match string `yaml:"match,omitempty" json:"match,omitempty"`

	// Response 助手响应文本
	Response string `yaml:"response,omitempty" json:"response,omitempty"`

	// Reasoning 思维链文本（可选）
	Reasoning string `yaml:"reasoning,omitempty" json:"reasoning,omitempty"`

	// ReasoningField 思维链的线上字段名，"reasoning"（默认）或
	// "reasoning_content"，用于演练双名方言
	ReasoningField string `yaml:"reasoning_field,omitempty" json:"reasoning_field,omitempty"`

	// FinishReason 结束原因（默认按内容推断：有工具调用为
	// tool_calls，否则 stop）
	FinishReason string `yaml:"finish_reason,omitempty" json:"finish_reason,omitempty"`

	// Tools 工具调用列表（可选）
	Tools []ToolCallSpec `yaml:"tools,omitempty" json:"tools,omitempty"`

	// Error 错误模拟（可选，命中时返回错误响应而非正常响应）
	Error *ErrorSpec `yaml:"error,omitempty" json:"error,omitempty"`

	// Stream 流式输出的形态控制
	Stream StreamSpec `yaml:"stream,omitempty" json:"stream,omitempty"`
}

// ToolCallSpec 场景中的工具调用
type ToolCallSpec struct {
	// Name 函数名
	Name string `yaml:"name" json:"name"`

	// Arguments 函数参数（序列化为 JSON 后按片段下发）
	Arguments map[string]any `yaml:"arguments,omitempty" json:"arguments,omitempty"`
}

// ErrorSpec 错误模拟
type ErrorSpec struct {
	// Status HTTP 状态码
	Status int `yaml:"status" json:"status"`

	// Type 错误类型（错误体 error.type 字段）
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Code 错误码（错误体 error.code 字段）
	Code string `yaml:"code,omitempty" json:"code,omitempty"`

	// Message 错误消息
	Message string `yaml:"message,omitempty" json:"message,omitempty"`

	// Times 失败次数，超过后恢复正常响应（0 表示每次都失败）
	Times int `yaml:"times,omitempty" json:"times,omitempty"`
}

// StreamSpec 流式输出的形态控制
//
// 用于演练消费端在各种切片形态与异常输入下的行为。
type StreamSpec struct {
	// ChunkSize 每个内容分片的字符数（默认 6）
	ChunkSize int `yaml:"chunk_size,omitempty" json:"chunk_size,omitempty"`

	// ArgChunkSize 工具参数每个分片的字节数（默认 10）
	ArgChunkSize int `yaml:"arg_chunk_size,omitempty" json:"arg_chunk_size,omitempty"`

	// DropDone 不发送 [DONE] 结束标记，直接断开（模拟截断）
	DropDone bool `yaml:"drop_done,omitempty" json:"drop_done,omitempty"`

	// MalformedAt 将第 N 条载荷（从 1 起）替换为非法 JSON（0 关闭）
	MalformedAt int `yaml:"malformed_at,omitempty" json:"malformed_at,omitempty"`

	// CRLF 使用 \r\n 行结束符下发
	CRLF bool `yaml:"crlf,omitempty" json:"crlf,omitempty"`

	// KeepAlive 在载荷之间插入 SSE 注释行（": keep-alive"）
	KeepAlive bool `yaml:"keep_alive,omitempty" json:"keep_alive,omitempty"`
}

// LoadConfigFile 从文件加载配置
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	return LoadConfigFromBytes(data, ext)
}

// LoadConfigFromBytes 从字节数据加载配置
func LoadConfigFromBytes(data []byte, format string) (*Config, error) {
	cfg := &Config{}

	format = strings.TrimPrefix(strings.ToLower(format), ".")

	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s (expected yaml, yml, or json)", format)
	}

	return cfg, nil
}

// LoadExampleConfig 加载内嵌的示例配置
func LoadExampleConfig() (*Config, error) {
	return LoadConfigFromBytes(exampleConfigYAML, "yaml")
}

// findScenario 按名称查找场景
func (c *Config) findScenario(name string) *Scenario {
	for i := range c.Scenarios {
		if c.Scenarios[i].Name == name {
			return &c.Scenarios[i]
		}
	}
	return nil
}

// matchScenario 按用户消息子串匹配场景
func (c *Config) matchScenario(lastUser string) *Scenario {
	if lastUser == "" {
		return nil
	}
	for i := range c.Scenarios {
		s := &c.Scenarios[i]
		if s.Match != "" && strings.Contains(lastUser, s.Match) {
			return s
		}
	}
	return nil
}

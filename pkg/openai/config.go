package openai

import (
	"net/url"
	"os"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// 客户端配置
// ═══════════════════════════════════════════════════════════════════════════

const (
	// DefaultBaseURL 默认服务地址
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultTimeout 默认整体请求超时
	DefaultTimeout = 120 * time.Second

	// DefaultConnectTimeout 默认连接建立超时
	DefaultConnectTimeout = 10 * time.Second

	// DefaultMaxRetries 默认重试次数
	DefaultMaxRetries = 5

	// DefaultUserAgent 默认 User-Agent
	DefaultUserAgent = "openai-go-client/1.0"
)

// Config 客户端配置
//
// 基本用法：
//
//	cfg := openai.Config{
//	    APIKey: "sk-xxx",
//	}
//
// 生产环境配置：
//
//	cfg := openai.Config{
//	    APIKey:     "sk-xxx",
//	    BaseURL:    "https://api.openai.com/v1",
//	    Model:      "gpt-4o",
//	    Timeout:    2 * time.Minute,
//	    MaxRetries: 3,
//	}
//
// 本地网关（无密钥）：
//
//	cfg := openai.Config{
//	    BaseURL: "http://localhost:11434/v1",
//	    Model:   "qwen3:8b",
//	}
type Config struct {
	// APIKey API 密钥（本地网关可为空）
	APIKey string `koanf:"api-key"`

	// BaseURL 服务地址（默认 https://api.openai.com/v1）
	BaseURL string `koanf:"base-url"`

	// Model 默认模型（请求参数未指定时使用）
	Model string `koanf:"model"`

	// 网络配置
	Timeout        time.Duration `koanf:"timeout"`
	ConnectTimeout time.Duration `koanf:"connect-timeout"`
	Proxy          string        `koanf:"proxy"`
	UserAgent      string        `koanf:"user-agent"`

	// MaxRetries 重试次数（0 表示使用默认值 5，负数禁用重试）
	MaxRetries int `koanf:"max-retries"`

	// Headers 附加到每个请求的额外头部
	Headers map[string]string `koanf:"headers"`
}

// DefaultConfig 返回填充默认值的配置
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		Timeout:        DefaultTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		UserAgent:      DefaultUserAgent,
		MaxRetries:     DefaultMaxRetries,
	}
}

// ConfigFromEnv 从环境变量构建配置
//
// 读取 OPENAI_API_KEY 与 OPENAI_BASE_URL，未设置的字段使用默认值。
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return cfg
}

// ApplyDefaults 填充零值字段的默认值
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
}

// RetryCount 实际生效的重试次数（负数归一为 0）
func (c *Config) RetryCount() int {
	if c.MaxRetries < 0 {
		return 0
	}
	return c.MaxRetries
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return NewConfigError("base URL is required", nil)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return NewConfigError("invalid base URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewConfigError("base URL must use http or https scheme", nil)
	}
	if c.Proxy != "" {
		if _, err := url.Parse(c.Proxy); err != nil {
			return NewConfigError("invalid proxy URL", err)
		}
	}
	return nil
}

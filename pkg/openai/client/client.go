// Package client 提供统一的 API 客户端入口
//
// 使用方式：
//
//	c, err := client.New(openai.Config{
//	    APIKey: "sk-xxx",
//	    Model:  "gpt-4o",
//	})
//	if err != nil {
//	    return err
//	}
//
//	completion, err := c.Chat().Create(ctx, chat.NewParams("",
//	    chat.User("Hello!"),
//	))
//
// 各端点服务共享同一个传输层，连接池、重试与指标在客户端级别
// 统一管理。
package client

import (
	"errors"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/chat"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/completions"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/core"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/embeddings"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/models"
)

// Client API 客户端
//
// 聚合全部端点服务，并发安全，应当在进程内复用单个实例。
type Client struct {
	transport   *core.Transport
	chat        *chat.Service
	completions *completions.Service
	models      *models.Service
	embeddings  *embeddings.Service
}

// New 创建客户端
//
// 配置中的零值字段按默认值填充（见 openai.DefaultConfig）。
func New(cfg openai.Config) (*Client, error) {
	transport, err := core.NewTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		transport:   transport,
		chat:        chat.NewService(transport),
		completions: completions.NewService(transport),
		models:      models.NewService(transport),
		embeddings:  embeddings.NewService(transport),
	}, nil
}

// NewWithKey 以密钥和服务地址创建客户端
//
// baseURL 为空时使用默认地址，其余配置取默认值。
func NewWithKey(apiKey, baseURL string) (*Client, error) {
	return New(openai.Config{
		APIKey:  apiKey,
		BaseURL: baseURL,
	})
}

// FromEnv 从环境变量创建客户端
//
// 读取 OPENAI_API_KEY 与 OPENAI_BASE_URL。
func FromEnv() (*Client, error) {
	cfg := openai.ConfigFromEnv()
	if cfg.APIKey == "" {
		return nil, openai.NewConfigError("OPENAI_API_KEY is not set", errors.New("missing api key"))
	}
	return New(cfg)
}

// Chat 对话补全服务
func (c *Client) Chat() *chat.Service {
	return c.chat
}

// Completions 文本补全服务（旧版端点）
func (c *Client) Completions() *completions.Service {
	return c.completions
}

// Models 模型服务
func (c *Client) Models() *models.Service {
	return c.models
}

// Embeddings 向量化服务
func (c *Client) Embeddings() *embeddings.Service {
	return c.embeddings
}

// Config 返回客户端生效的配置（含默认值填充）
func (c *Client) Config() openai.Config {
	return c.transport.Config()
}

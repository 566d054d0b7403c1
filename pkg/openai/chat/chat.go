package chat

import (
	"context"
	"errors"
	"net/http"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/core"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/metrics"
)

// endpoint 对话补全端点路径
const endpoint = "/chat/completions"

// ═══════════════════════════════════════════════════════════════════════════
// Chat 服务
// ═══════════════════════════════════════════════════════════════════════════

// Service 对话补全服务
type Service struct {
	transport *core.Transport
}

// NewService 创建对话补全服务
func NewService(transport *core.Transport) *Service {
	return &Service{transport: transport}
}

// Create 同步创建对话补全
//
// 阻塞直至收到完整响应。params.Model 为空时使用客户端配置的
// 默认模型。
func (s *Service) Create(ctx context.Context, params *Params) (*ChatCompletion, error) {
	p, err := s.prepare(params)
	if err != nil {
		return nil, err
	}
	p.Stream = false
	p.StreamOptions = nil

	var completion ChatCompletion
	if err := s.transport.Do(ctx, http.MethodPost, endpoint, p, &completion, p.requestOptions()); err != nil {
		return nil, err
	}

	if completion.Usage != nil {
		metrics.RecordTokens(completion.Model, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	}
	return &completion, nil
}

// CreateStream 创建流式对话补全
//
// 返回的流必须被消费到结束或显式 Close，否则连接不会释放。
// 默认开启 stream_options.include_usage，末尾分片携带 token 用量；
// 调用方显式设置 StreamOptions 时以调用方为准。
func (s *Service) CreateStream(ctx context.Context, params *Params) (*CompletionStream, error) {
	p, err := s.prepare(params)
	if err != nil {
		return nil, err
	}
	p.Stream = true
	if p.StreamOptions == nil {
		p.StreamOptions = &StreamOptions{IncludeUsage: true}
	}

	body, err := s.transport.OpenStream(ctx, endpoint, p, p.requestOptions())
	if err != nil {
		return nil, err
	}
	return newCompletionStream(body), nil
}

// prepare 复制参数、填充默认模型并校验
//
// 复制避免修改调用方持有的 Params（Stream 标记等由服务设置）。
func (s *Service) prepare(params *Params) (*Params, error) {
	if params == nil {
		return nil, openai.NewRequestError("validate", errors.New("params is required"))
	}
	p := *params
	if p.Model == "" {
		p.Model = s.transport.Config().Model
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

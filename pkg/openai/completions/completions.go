package completions

import (
	"context"
	"errors"
	"net/http"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/core"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/metrics"
)

// endpoint 文本补全端点路径
const endpoint = "/completions"

// Service 文本补全服务
type Service struct {
	transport *core.Transport
}

// NewService 创建文本补全服务
func NewService(transport *core.Transport) *Service {
	return &Service{transport: transport}
}

// Create 同步创建文本补全
func (s *Service) Create(ctx context.Context, params *Params) (*Completion, error) {
	p, err := s.prepare(params)
	if err != nil {
		return nil, err
	}
	p.Stream = false
	p.StreamOptions = nil

	var completion Completion
	if err := s.transport.Do(ctx, http.MethodPost, endpoint, p, &completion, p.requestOptions()); err != nil {
		return nil, err
	}

	if completion.Usage != nil {
		metrics.RecordTokens(completion.Model, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	}
	return &completion, nil
}

// CreateStream 创建流式文本补全
//
// 返回的流必须被消费到结束或显式 Close，否则连接不会释放。
func (s *Service) CreateStream(ctx context.Context, params *Params) (*Stream, error) {
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
	return newStream(body), nil
}

// prepare 复制参数、填充默认模型并校验
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

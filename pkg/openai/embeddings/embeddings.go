package embeddings

import (
	"context"
	"errors"
	"net/http"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/core"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/metrics"
)

// endpoint 向量化端点路径
const endpoint = "/embeddings"

// Service 向量化服务
type Service struct {
	transport *core.Transport
}

// NewService 创建向量化服务
func NewService(transport *core.Transport) *Service {
	return &Service{transport: transport}
}

// Create 创建向量化请求
func (s *Service) Create(ctx context.Context, params *Params) (*EmbeddingResponse, error) {
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

	var response EmbeddingResponse
	if err := s.transport.Do(ctx, http.MethodPost, endpoint, &p, &response, p.requestOptions()); err != nil {
		return nil, err
	}

	metrics.RecordTokens(response.Model, response.Usage.PromptTokens, 0)
	return &response, nil
}

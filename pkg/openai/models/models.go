// Package models 提供模型列表端点（/models）的访问
package models

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/core"
)

// endpoint 模型端点路径
const endpoint = "/models"

// Model 一个可用模型
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"` // "model"
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`

	// Extra 未识别的扩展字段（聚合网关常附带上下文长度、计价等）
	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON 解析模型信息，未识别字段收入 Extra
func (m *Model) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	take := func(key string, out any) error {
		raw, ok := fields[key]
		if !ok {
			return nil
		}
		delete(fields, key)
		if string(raw) == "null" {
			return nil
		}
		return json.Unmarshal(raw, out)
	}

	if err := take("id", &m.ID); err != nil {
		return err
	}
	if err := take("object", &m.Object); err != nil {
		return err
	}
	if err := take("created", &m.Created); err != nil {
		return err
	}
	if err := take("owned_by", &m.OwnedBy); err != nil {
		return err
	}

	if len(fields) > 0 {
		m.Extra = fields
	}
	return nil
}

// ModelList 模型列表响应
type ModelList struct {
	Object string  `json:"object"` // "list"
	Data   []Model `json:"data"`
}

// ModelDeleted 删除模型的响应
type ModelDeleted struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// Service 模型服务
type Service struct {
	transport *core.Transport
}

// NewService 创建模型服务
func NewService(transport *core.Transport) *Service {
	return &Service{transport: transport}
}

// List 列出可用模型
func (s *Service) List(ctx context.Context) (*ModelList, error) {
	var list ModelList
	if err := s.transport.Do(ctx, http.MethodGet, endpoint, nil, &list, nil); err != nil {
		return nil, err
	}
	return &list, nil
}

// Retrieve 获取单个模型信息
func (s *Service) Retrieve(ctx context.Context, model string) (*Model, error) {
	if model == "" {
		return nil, openai.NewRequestError("validate", errors.New("model is required"))
	}
	var out Model
	if err := s.transport.Do(ctx, http.MethodGet, endpoint+"/"+url.PathEscape(model), nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete 删除微调模型
func (s *Service) Delete(ctx context.Context, model string) (*ModelDeleted, error) {
	if model == "" {
		return nil, openai.NewRequestError("validate", errors.New("model is required"))
	}
	var out ModelDeleted
	if err := s.transport.Do(ctx, http.MethodDelete, endpoint+"/"+url.PathEscape(model), nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

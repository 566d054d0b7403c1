package core

import (
	"encoding/json"
	"time"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
)

// ═══════════════════════════════════════════════════════════════════════════
// 请求级配置
// ═══════════════════════════════════════════════════════════════════════════

// RequestOptions 单次请求的覆盖配置
//
// 所有字段可选，零值沿用客户端配置。流式请求在建立连接前消费这些
// 配置，对流中行为无影响。
type RequestOptions struct {
	// ExtraHeaders 附加请求头（覆盖客户端同名项）
	ExtraHeaders map[string]string

	// ExtraQuery 附加 URL 查询参数
	ExtraQuery map[string]string

	// ExtraBody 合并进请求体顶层的附加字段（覆盖同名项）
	ExtraBody map[string]any

	// Timeout 本次请求的整体超时（0 沿用客户端配置）
	Timeout time.Duration

	// MaxRetries 本次请求的重试次数（nil 沿用客户端配置，负数禁用）
	MaxRetries *int
}

// retryCount 解析本次请求生效的重试次数
func (o *RequestOptions) retryCount(fallback int) int {
	if o == nil || o.MaxRetries == nil {
		return fallback
	}
	if *o.MaxRetries < 0 {
		return 0
	}
	return *o.MaxRetries
}

// mergeBody 将 ExtraBody 合并进请求体顶层
//
// 无附加字段时原样返回，避免多余的序列化往返。
func (o *RequestOptions) mergeBody(body any) (any, error) {
	if o == nil || len(o.ExtraBody) == 0 || body == nil {
		return body, nil
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, openai.NewRequestError("marshal", err)
	}
	var merged map[string]any
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, openai.NewRequestError("marshal", err)
	}
	for k, v := range o.ExtraBody {
		merged[k] = v
	}
	return merged, nil
}

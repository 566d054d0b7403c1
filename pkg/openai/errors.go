package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ═══════════════════════════════════════════════════════════════════════════
// 错误类型
// ═══════════════════════════════════════════════════════════════════════════

// ErrorType 错误类型
type ErrorType string

const (
	// ErrTypeConfig 配置错误
	ErrTypeConfig ErrorType = "config_error"

	// ErrTypeRequest 请求错误（序列化、构建等）
	ErrTypeRequest ErrorType = "request_error"

	// ErrTypeHTTP HTTP 层错误（网络、超时等）
	ErrTypeHTTP ErrorType = "http_error"

	// ErrTypeAPI API 业务错误（4xx, 5xx）
	ErrTypeAPI ErrorType = "api_error"

	// ErrTypeResponse 响应解析错误
	ErrTypeResponse ErrorType = "response_error"

	// ErrTypeStream 流式传输错误（截断、中断）
	ErrTypeStream ErrorType = "stream_error"

	// ErrTypeConvert 单条载荷解码错误（可恢复）
	ErrTypeConvert ErrorType = "convert_error"
)

// ═══════════════════════════════════════════════════════════════════════════
// 基础错误
// ═══════════════════════════════════════════════════════════════════════════

// BaseError 基础错误实现
type BaseError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *BaseError) Unwrap() error {
	return e.Err
}

// ═══════════════════════════════════════════════════════════════════════════
// 配置错误
// ═══════════════════════════════════════════════════════════════════════════

// ConfigError 配置错误
type ConfigError struct {
	*BaseError
}

// NewConfigError 创建配置错误
func NewConfigError(message string, err error) *ConfigError {
	return &ConfigError{
		BaseError: &BaseError{
			Type:    ErrTypeConfig,
			Message: message,
			Err:     err,
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求错误
// ═══════════════════════════════════════════════════════════════════════════

// RequestError 请求错误
type RequestError struct {
	*BaseError

	Stage string // "marshal", "build", etc.
}

// NewRequestError 创建请求错误
func NewRequestError(stage string, err error) *RequestError {
	return &RequestError{
		BaseError: &BaseError{
			Type:    ErrTypeRequest,
			Message: fmt.Sprintf("failed to %s request", stage),
			Err:     err,
		},
		Stage: stage,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// HTTP 错误
// ═══════════════════════════════════════════════════════════════════════════

// HTTPError HTTP 层错误
type HTTPError struct {
	*BaseError
}

// NewHTTPError 创建 HTTP 错误
func NewHTTPError(message string, err error) *HTTPError {
	return &HTTPError{
		BaseError: &BaseError{
			Type:    ErrTypeHTTP,
			Message: message,
			Err:     err,
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// API 错误
// ═══════════════════════════════════════════════════════════════════════════

// APIError API 业务错误
type APIError struct {
	*BaseError

	StatusCode int
	Response   string
	RequestID  string
	ErrorCode  string // 服务端错误代码（error.code）
	Param      string // 出错的参数名（error.param）
}

// apiErrorEnvelope OpenAI 标准错误响应体
type apiErrorEnvelope struct {
	Error struct {
		Message string          `json:"message"`
		Type    string          `json:"type"`
		Param   string          `json:"param"`
		Code    json.RawMessage `json:"code"` // 可能是字符串或数字
	} `json:"error"`
}

// NewAPIError 创建 API 错误
func NewAPIError(statusCode int, response string) *APIError {
	return &APIError{
		BaseError: &BaseError{
			Type:    ErrTypeAPI,
			Message: fmt.Sprintf("API returned error status %d", statusCode),
		},
		StatusCode: statusCode,
		Response:   response,
	}
}

// ParseAPIError 从错误响应体解析 API 错误
//
// 识别标准错误信封 {"error":{"message","type","code","param"}}，
// 无法解析时退化为原始响应体。
func ParseAPIError(statusCode int, body []byte, requestID string) *APIError {
	e := NewAPIError(statusCode, string(body))
	e.RequestID = requestID

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		e.Message = fmt.Sprintf("API returned error status %d: %s", statusCode, envelope.Error.Message)
		e.Param = envelope.Error.Param
		if len(envelope.Error.Code) > 0 {
			var codeStr string
			if json.Unmarshal(envelope.Error.Code, &codeStr) == nil {
				e.ErrorCode = codeStr
			} else {
				e.ErrorCode = string(envelope.Error.Code)
			}
		}
	}
	return e
}

// WithRequestID 设置请求 ID
func (e *APIError) WithRequestID(requestID string) *APIError {
	e.RequestID = requestID
	return e
}

func (e *APIError) Error() string {
	base := e.BaseError.Error()
	if e.RequestID != "" {
		return fmt.Sprintf("%s (request_id: %s)", base, e.RequestID)
	}
	return base
}

// IsRetryable 检查错误是否可重试
func (e *APIError) IsRetryable() bool {
	// 429 (Rate Limit), 500, 502, 503, 504 可重试
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500 && e.StatusCode <= 504
}

// ═══════════════════════════════════════════════════════════════════════════
// 响应解析错误
// ═══════════════════════════════════════════════════════════════════════════

// ResponseError 响应解析错误
type ResponseError struct {
	*BaseError

	Field string // 出错的字段
}

// NewResponseError 创建响应错误
func NewResponseError(field string, err error) *ResponseError {
	return &ResponseError{
		BaseError: &BaseError{
			Type:    ErrTypeResponse,
			Message: fmt.Sprintf("failed to parse response field '%s'", field),
			Err:     err,
		},
		Field: field,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 流式传输错误
// ═══════════════════════════════════════════════════════════════════════════

// StreamError 流式传输错误
//
// 表示流级别的不可恢复失败：连接中断、未收到终止哨兵的截断等。
// 出现后当前流终止，不影响新的请求。
type StreamError struct {
	*BaseError
}

// NewStreamError 创建流式错误
func NewStreamError(message string, err error) *StreamError {
	return &StreamError{
		BaseError: &BaseError{
			Type:    ErrTypeStream,
			Message: message,
			Err:     err,
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 载荷解码错误
// ═══════════════════════════════════════════════════════════════════════════

// ConvertError 单条流式载荷解码错误
//
// 流中某一条 data 载荷无法反序列化为目标类型时产生。
// 可恢复：调用方可跳过该条继续消费，不影响其余载荷的合并。
type ConvertError struct {
	*BaseError

	Raw        string // 原始载荷内容
	TargetType string // 目标类型名
}

// NewConvertError 创建载荷解码错误
func NewConvertError(raw, targetType string, err error) *ConvertError {
	return &ConvertError{
		BaseError: &BaseError{
			Type:    ErrTypeConvert,
			Message: fmt.Sprintf("failed to convert payload to %s", targetType),
			Err:     err,
		},
		Raw:        raw,
		TargetType: targetType,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 错误匹配函数（支持 errors.Is/As）
// ═══════════════════════════════════════════════════════════════════════════

// IsConfigError 检查是否为配置错误
func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}

// IsRequestError 检查是否为请求错误
func IsRequestError(err error) bool {
	var e *RequestError
	return errors.As(err, &e)
}

// IsHTTPError 检查是否为 HTTP 错误
func IsHTTPError(err error) bool {
	var e *HTTPError
	return errors.As(err, &e)
}

// IsAPIError 检查是否为 API 错误
func IsAPIError(err error) bool {
	var e *APIError
	return errors.As(err, &e)
}

// IsResponseError 检查是否为响应解析错误
func IsResponseError(err error) bool {
	var e *ResponseError
	return errors.As(err, &e)
}

// IsStreamError 检查是否为流式错误
func IsStreamError(err error) bool {
	var e *StreamError
	return errors.As(err, &e)
}

// IsConvertError 检查是否为载荷解码错误
func IsConvertError(err error) bool {
	var e *ConvertError
	return errors.As(err, &e)
}

// ═══════════════════════════════════════════════════════════════════════════
// 错误谓词
// ═══════════════════════════════════════════════════════════════════════════

// IsRetryableError 检查错误是否可重试
//
// API 错误按状态码判断（429/5xx），传输层错误一律可重试。
func IsRetryableError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	var httpErr *HTTPError
	return errors.As(err, &httpErr)
}

// IsTimeoutError 检查是否为超时错误
func IsTimeoutError(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsConnectionError 检查是否为连接错误（非超时的传输层失败）
func IsConnectionError(err error) bool {
	if IsTimeoutError(err) {
		return false
	}
	var e *HTTPError
	return errors.As(err, &e)
}

// IsRateLimitError 检查是否为限流错误（429）
func IsRateLimitError(err error) bool {
	if e, ok := GetAPIError(err); ok {
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// GetAPIError 提取 APIError（如果存在）
func GetAPIError(err error) (*APIError, bool) {
	var e *APIError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetStatusCode 提取 HTTP 状态码（如果是 API 错误）
func GetStatusCode(err error) int {
	if e, ok := GetAPIError(err); ok {
		return e.StatusCode
	}
	return 0
}

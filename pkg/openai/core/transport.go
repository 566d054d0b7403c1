package core

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai/metrics"
)

// ═══════════════════════════════════════════════════════════════════════════
// HTTP 传输层
// ═══════════════════════════════════════════════════════════════════════════

// Transport HTTP 传输层
//
// 封装 resty 客户端与通用请求流程：认证头、重试、错误映射、指标。
// 各端点服务（chat、embeddings 等）共享同一个 Transport 实例。
//
// 重试策略：
//   - 可重试条件：传输层错误、429、500-504
//   - 指数退避，起步 500ms，倍增，上限 8s
//   - 流式请求仅在建立阶段重试；连接成功后的中断不重试，
//     由调用方整体重发（合并状态不可跨流复用）
type Transport struct {
	cfg   openai.Config
	resty *resty.Client
}

// NewTransport 创建传输层
//
// 配置先填充默认值再校验，校验失败返回 ConfigError。
func NewTransport(cfg openai.Config) (*Transport, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	httpTransport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	r := resty.New()
	r.SetTransport(httpTransport)
	r.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	r.SetTimeout(cfg.Timeout)
	r.SetHeader("Content-Type", "application/json")
	r.SetHeader("User-Agent", cfg.UserAgent)
	if cfg.APIKey != "" {
		r.SetAuthToken(cfg.APIKey)
	}
	for k, v := range cfg.Headers {
		r.SetHeader(k, v)
	}
	if cfg.Proxy != "" {
		r.SetProxy(cfg.Proxy)
	}

	return &Transport{cfg: cfg, resty: r}, nil
}

// Config 返回传输层使用的配置（已填充默认值）
func (t *Transport) Config() openai.Config {
	return t.cfg
}

// ═══════════════════════════════════════════════════════════════════════════
// 同步请求
// ═══════════════════════════════════════════════════════════════════════════

// Do 执行一次同步 JSON 请求
//
// body 为 nil 时不发送请求体（GET/DELETE）。成功时将响应体解码进
// out（out 为 nil 则丢弃）。非 2xx 响应映射为 APIError，解码失败
// 映射为 ResponseError。
func (t *Transport) Do(ctx context.Context, method, endpoint string, body any, out any, opts *RequestOptions) error {
	start := time.Now()

	payload, err := opts.mergeBody(body)
	if err != nil {
		return err
	}

	if opts != nil && opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	resp, err := t.doWithRetry(ctx, endpoint, opts, func() (*resty.Response, error) {
		req := t.newRequest(ctx, opts)
		if payload != nil {
			req.SetBody(payload)
		}
		return req.Execute(method, endpoint)
	}, false)

	metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(endpoint, statusLabel(err)).Inc()
		return err
	}
	metrics.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode())).Inc()

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return openai.NewResponseError("body", err)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 流式请求
// ═══════════════════════════════════════════════════════════════════════════

// OpenStream 建立一条 SSE 流
//
// 发送 POST 请求且不解析响应，成功时返回原始响应体供 SSE 解码器
// 消费。返回的 ReadCloser 必须由调用方关闭（通常经由流驱动的
// Close 间接完成）。
//
// 注意：客户端整体超时覆盖包括流式读取在内的完整周期，长对话
// 需要配置足够大的 Timeout。
func (t *Transport) OpenStream(ctx context.Context, endpoint string, body any, opts *RequestOptions) (io.ReadCloser, error) {
	start := time.Now()

	payload, err := opts.mergeBody(body)
	if err != nil {
		return nil, err
	}

	// 超时覆盖需存活到流消费结束，cancel 绑定在返回的 body 上
	var cancel context.CancelFunc
	if opts != nil && opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}

	resp, err := t.doWithRetry(ctx, endpoint, opts, func() (*resty.Response, error) {
		req := t.newRequest(ctx, opts)
		req.SetHeader("Accept", "text/event-stream")
		req.SetDoNotParseResponse(true)
		if payload != nil {
			req.SetBody(payload)
		}
		return req.Post(endpoint)
	}, true)

	metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		if cancel != nil {
			cancel()
		}
		metrics.RequestsTotal.WithLabelValues(endpoint, statusLabel(err)).Inc()
		return nil, err
	}
	metrics.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode())).Inc()

	rawBody := resp.RawBody()
	if cancel == nil {
		return rawBody, nil
	}
	return &cancelReadCloser{rc: rawBody, cancel: cancel}, nil
}

// cancelReadCloser 关闭时同时取消请求上下文
type cancelReadCloser struct {
	rc     io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Read(p []byte) (int, error) {
	return c.rc.Read(p)
}

func (c *cancelReadCloser) Close() error {
	err := c.rc.Close()
	c.cancel()
	return err
}

// ═══════════════════════════════════════════════════════════════════════════
// 内部流程
// ═══════════════════════════════════════════════════════════════════════════

// newRequest 构建带调用级配置的请求
func (t *Transport) newRequest(ctx context.Context, opts *RequestOptions) *resty.Request {
	req := t.resty.R().SetContext(ctx)
	if opts != nil {
		for k, v := range opts.ExtraHeaders {
			req.SetHeader(k, v)
		}
		for k, v := range opts.ExtraQuery {
			req.SetQueryParam(k, v)
		}
	}
	return req
}

// doWithRetry 带重试地执行请求
//
// send 每次调用构建全新请求。raw 模式（流式）下错误响应体需要
// 手动读取并关闭。
func (t *Transport) doWithRetry(ctx context.Context, endpoint string, opts *RequestOptions, send func() (*resty.Response, error), raw bool) (*resty.Response, error) {
	retries := opts.retryCount(t.cfg.RetryCount())

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			metrics.RetriesTotal.WithLabelValues(endpoint).Inc()
			select {
			case <-ctx.Done():
				return nil, openai.NewHTTPError("request canceled", ctx.Err())
			case <-time.After(retryBackoff(attempt)):
			}
		}

		resp, err := send()
		if err != nil {
			// 传输层错误可重试
			lastErr = openai.NewHTTPError("request failed", err)
			continue
		}

		if resp.StatusCode() >= 400 {
			apiErr := t.parseErrorResponse(resp, raw)
			if apiErr.IsRetryable() && attempt < retries {
				lastErr = apiErr
				continue
			}
			return nil, apiErr
		}

		return resp, nil
	}
	return nil, lastErr
}

// parseErrorResponse 将非 2xx 响应映射为 APIError
func (t *Transport) parseErrorResponse(resp *resty.Response, raw bool) *openai.APIError {
	body := resp.Body()
	if raw {
		// DoNotParseResponse 模式下需手动读取错误响应体
		rawBody := resp.RawBody()
		body, _ = io.ReadAll(io.LimitReader(rawBody, maxLineSize))
		_ = rawBody.Close()
	}
	return openai.ParseAPIError(resp.StatusCode(), body, resp.Header().Get("X-Request-Id"))
}

// retryBackoff 指数退避间隔
func retryBackoff(attempt int) time.Duration {
	backoff := 500 * time.Millisecond << (attempt - 1)
	if backoff > 8*time.Second {
		return 8 * time.Second
	}
	return backoff
}

// statusLabel 错误的指标状态标签
func statusLabel(err error) string {
	if code := openai.GetStatusCode(err); code > 0 {
		return strconv.Itoa(code)
	}
	return "error"
}

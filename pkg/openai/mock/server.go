package mock

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ScenarioHeader 请求头，按名称指定响应场景
const ScenarioHeader = "X-Mock-Scenario"

// idAlphabet 生成资源 ID 的字符集
const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// newID 生成带前缀的资源 ID（如 chatcmpl-x7Kp0aQ92RfByhT3）
func newID(prefix string) string {
	return prefix + gonanoid.MustGenerate(idAlphabet, 24)
}

// ═══════════════════════════════════════════════════════════════════════════
// 服务器
// ═══════════════════════════════════════════════════════════════════════════

// RecordedRequest 记录的一次请求
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Server 进程内的 API mock 服务器
//
// 基于 httptest 实现全部端点，按场景配置生成响应。用于集成测试
// 与本地联调，不做鉴权与持久化。
type Server struct {
	srv    *httptest.Server
	cfg    *Config
	delay  time.Duration
	apiKey string
	err    error

	mu        sync.Mutex
	requests  []RecordedRequest
	failCount map[string]int
}

// Option 服务器选项
type Option func(*Server)

// WithConfig 使用配置对象
func WithConfig(cfg *Config) Option {
	return func(s *Server) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithConfigFile 从配置文件加载
func WithConfigFile(path string) Option {
	return func(s *Server) {
		cfg, err := LoadConfigFile(path)
		if err != nil {
			// 错误存储到服务器，在请求时返回
			s.err = fmt.Errorf("load config file: %w", err)
			return
		}
		s.cfg = cfg
	}
}

// WithAPIKey 开启鉴权校验，Bearer token 不匹配时返回 401
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithDelay 设置每个请求的响应延迟
func WithDelay(d time.Duration) Option {
	return func(s *Server) {
		s.delay = d
	}
}

// NewServer 启动 mock 服务器
//
// 返回的服务器立即可用，用完必须调用 Close。
func NewServer(opts ...Option) *Server {
	s := &Server{
		cfg:       &Config{},
		failCount: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cfg.Delay != "" {
		if d, err := time.ParseDuration(s.cfg.Delay); err == nil {
			s.delay = d
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", s.handleChatCompletions)
	mux.HandleFunc("POST /completions", s.handleCompletions)
	mux.HandleFunc("GET /models", s.handleListModels)
	mux.HandleFunc("GET /models/{model}", s.handleRetrieveModel)
	mux.HandleFunc("DELETE /models/{model}", s.handleDeleteModel)
	mux.HandleFunc("POST /embeddings", s.handleEmbeddings)

	s.srv = httptest.NewServer(s.middleware(mux))
	return s
}

// URL 服务器基地址（作为客户端的 BaseURL 使用）
func (s *Server) URL() string {
	return s.srv.URL
}

// Close 关闭服务器
func (s *Server) Close() {
	s.srv.Close()
}

// Requests 返回已记录请求的副本
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestCount 返回指定路径收到的请求数
func (s *Server) RequestCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.requests {
		if r.Path == path {
			count++
		}
	}
	return count
}

// Reset 清空请求记录与失败计数
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
	s.failCount = make(map[string]int)
}

// middleware 记录请求、应用延迟、校验鉴权
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()

		if s.err != nil {
			s.writeError(w, &ErrorSpec{
				Status:  http.StatusInternalServerError,
				Type:    "server_error",
				Message: s.err.Error(),
			})
			return
		}

		if s.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+s.apiKey {
			s.writeError(w, &ErrorSpec{
				Status:  http.StatusUnauthorized,
				Type:    "invalid_request_error",
				Code:    "invalid_api_key",
				Message: "Incorrect API key provided.",
			})
			return
		}

		if s.delay > 0 {
			time.Sleep(s.delay)
		}

		next.ServeHTTP(w, r)
	})
}

// resolve 选择响应场景：先按请求头名称，再按消息子串匹配
func (s *Server) resolve(r *http.Request, lastUser string) *Scenario {
	if name := r.Header.Get(ScenarioHeader); name != "" {
		if sc := s.cfg.findScenario(name); sc != nil {
			return sc
		}
	}
	return s.cfg.matchScenario(lastUser)
}

// takeFailure 判定本次请求是否按场景配置返回错误
//
// Error.Times > 0 时前 N 次失败后恢复正常，0 表示每次都失败。
func (s *Server) takeFailure(sc *Scenario) *ErrorSpec {
	if sc == nil || sc.Error == nil {
		return nil
	}
	if sc.Error.Times <= 0 {
		return sc.Error
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCount[sc.Name] < sc.Error.Times {
		s.failCount[sc.Name]++
		return sc.Error
	}
	return nil
}

// writeError 输出 API 错误响应
func (s *Server) writeError(w http.ResponseWriter, spec *ErrorSpec) {
	status := spec.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", newID("req_"))
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": spec.Message,
			"type":    spec.Type,
			"code":    spec.Code,
			"param":   nil,
		},
	})
}

// writeJSON 输出 JSON 响应
func (s *Server) writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", newID("req_"))
	_ = json.NewEncoder(w).Encode(body)
}

// responseText 场景响应文本（兜底 default_response）
func (s *Server) responseText(sc *Scenario) string {
	if sc != nil && sc.Response != "" {
		return sc.Response
	}
	if s.cfg.DefaultResponse != "" {
		return s.cfg.DefaultResponse
	}
	return "mock response"
}

// reasoningField 思维链的线上字段名
func reasoningField(sc *Scenario) string {
	if sc != nil && sc.ReasoningField == "reasoning_content" {
		return "reasoning_content"
	}
	return "reasoning"
}

// finishReason 场景的结束原因
func finishReason(sc *Scenario) string {
	if sc != nil && sc.FinishReason != "" {
		return sc.FinishReason
	}
	if sc != nil && len(sc.Tools) > 0 {
		return "tool_calls"
	}
	return "stop"
}

// estimateTokens 粗略估算 token 数
func estimateTokens(text string) int64 {
	return int64(len([]rune(text)))/4 + 1
}

// usageBody 构建 usage 字段
func usageBody(promptTokens, completionTokens int64) map[string]any {
	return map[string]any{
		"prompt_tokens":     promptTokens,
		"completion_tokens": completionTokens,
		"total_tokens":      promptTokens + completionTokens,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 对话补全
// ═══════════════════════════════════════════════════════════════════════════

// chatRequest 对话请求体（仅解码 mock 关心的字段）
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	N             int  `json:"n"`
	Stream        bool `json:"stream"`
	StreamOptions *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options"`
}

// lastUserMessage 取最后一条用户消息
func (req *chatRequest) lastUserMessage() string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

// promptTokens 估算请求侧 token 数
func (req *chatRequest) promptTokens() int64 {
	var total int64
	for _, m := range req.Messages {
		total += estimateTokens(m.Content)
	}
	return total
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &ErrorSpec{
			Status:  http.StatusBadRequest,
			Type:    "invalid_request_error",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	sc := s.resolve(r, req.lastUserMessage())
	if spec := s.takeFailure(sc); spec != nil {
		s.writeError(w, spec)
		return
	}

	if req.Stream {
		includeUsage := req.StreamOptions != nil && req.StreamOptions.IncludeUsage
		s.streamChatCompletion(w, &req, sc, includeUsage)
		return
	}
	s.writeJSON(w, s.chatCompletionBody(&req, sc))
}

// chatCompletionBody 构建非流式对话补全响应
func (s *Server) chatCompletionBody(req *chatRequest, sc *Scenario) map[string]any {
	n := req.N
	if n < 1 {
		n = 1
	}

	text := s.responseText(sc)
	completionTokens := estimateTokens(text)

	choices := make([]any, 0, n)
	for i := 0; i < n; i++ {
		message := map[string]any{
			"role":    "assistant",
			"content": text,
		}
		if sc != nil && sc.Reasoning != "" {
			message[reasoningField(sc)] = sc.Reasoning
		}
		if sc != nil && len(sc.Tools) > 0 {
			message["content"] = nil
			calls := make([]any, 0, len(sc.Tools))
			for j, tool := range sc.Tools {
				args, _ := json.Marshal(tool.Arguments)
				calls = append(calls, map[string]any{
					"index": j,
					"id":    newID("call_"),
					"type":  "function",
					"function": map[string]any{
						"name":      tool.Name,
						"arguments": string(args),
					},
				})
			}
			message["tool_calls"] = calls
		}
		choices = append(choices, map[string]any{
			"index":         i,
			"message":       message,
			"finish_reason": finishReason(sc),
		})
	}

	return map[string]any{
		"id":      newID("chatcmpl-"),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": choices,
		"usage":   usageBody(req.promptTokens(), completionTokens*int64(n)),
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 文本补全
// ═══════════════════════════════════════════════════════════════════════════

// completionRequest 文本补全请求体
type completionRequest struct {
	Model         string `json:"model"`
	Prompt        any    `json:"prompt"`
	N             int    `json:"n"`
	Stream        bool   `json:"stream"`
	StreamOptions *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options"`
}

// promptText 取提示文本（数组形式拼接）
func (req *completionRequest) promptText() string {
	switch v := req.Prompt.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &ErrorSpec{
			Status:  http.StatusBadRequest,
			Type:    "invalid_request_error",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	sc := s.resolve(r, req.promptText())
	if spec := s.takeFailure(sc); spec != nil {
		s.writeError(w, spec)
		return
	}

	if req.Stream {
		includeUsage := req.StreamOptions != nil && req.StreamOptions.IncludeUsage
		s.streamCompletion(w, &req, sc, includeUsage)
		return
	}

	n := req.N
	if n < 1 {
		n = 1
	}
	text := s.responseText(sc)
	choices := make([]any, 0, n)
	for i := 0; i < n; i++ {
		choices = append(choices, map[string]any{
			"index":         i,
			"text":          text,
			"finish_reason": finishReason(sc),
			"logprobs":      nil,
		})
	}
	s.writeJSON(w, map[string]any{
		"id":      newID("cmpl-"),
		"object":  "text_completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": choices,
		"usage":   usageBody(estimateTokens(req.promptText()), estimateTokens(text)*int64(n)),
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 模型
// ═══════════════════════════════════════════════════════════════════════════

// modelList 生效的模型列表
func (s *Server) modelList() []string {
	if len(s.cfg.Models) > 0 {
		return s.cfg.Models
	}
	return []string{"gpt-4o", "gpt-4o-mini"}
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	data := make([]any, 0)
	for _, id := range s.modelList() {
		data = append(data, map[string]any{
			"id":       id,
			"object":   "model",
			"created":  time.Now().Unix(),
			"owned_by": "mock",
		})
	}
	s.writeJSON(w, map[string]any{"object": "list", "data": data})
}

func (s *Server) handleRetrieveModel(w http.ResponseWriter, r *http.Request) {
	model := r.PathValue("model")
	for _, id := range s.modelList() {
		if id == model {
			s.writeJSON(w, map[string]any{
				"id":       id,
				"object":   "model",
				"created":  time.Now().Unix(),
				"owned_by": "mock",
			})
			return
		}
	}
	s.writeError(w, &ErrorSpec{
		Status:  http.StatusNotFound,
		Type:    "invalid_request_error",
		Code:    "model_not_found",
		Message: fmt.Sprintf("The model '%s' does not exist", model),
	})
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	model := r.PathValue("model")
	s.writeJSON(w, map[string]any{
		"id":      model,
		"object":  "model",
		"deleted": true,
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 向量化
// ═══════════════════════════════════════════════════════════════════════════

// embeddingRequest 向量化请求体
type embeddingRequest struct {
	Model          string `json:"model"`
	Input          any    `json:"input"`
	EncodingFormat string `json:"encoding_format"`
	Dimensions     int    `json:"dimensions"`
}

// inputTexts 展开输入为文本列表
func (req *embeddingRequest) inputTexts() []string {
	switch v := req.Input.(type) {
	case string:
		return []string{v}
	case []any:
		texts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				texts = append(texts, s)
			}
		}
		return texts
	default:
		return nil
	}
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req embeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &ErrorSpec{
			Status:  http.StatusBadRequest,
			Type:    "invalid_request_error",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	sc := s.resolve(r, "")
	if spec := s.takeFailure(sc); spec != nil {
		s.writeError(w, spec)
		return
	}

	texts := req.inputTexts()
	var promptTokens int64
	data := make([]any, 0, len(texts))
	for i, text := range texts {
		promptTokens += estimateTokens(text)
		vec := embeddingVector(text, req.Dimensions)

		var payload any
		if req.EncodingFormat == "base64" {
			payload = base64Vector(vec)
		} else {
			payload = vec
		}
		data = append(data, map[string]any{
			"object":    "embedding",
			"index":     i,
			"embedding": payload,
		})
	}

	s.writeJSON(w, map[string]any{
		"object": "list",
		"data":   data,
		"model":  req.Model,
		"usage": map[string]any{
			"prompt_tokens": promptTokens,
			"total_tokens":  promptTokens,
		},
	})
}

// embeddingVector 由文本哈希生成确定性向量
//
// 同一文本恒定产出同一向量，便于测试断言。
func embeddingVector(text string, dims int) []float32 {
	if dims <= 0 {
		dims = 8
	}
	vec := make([]float32, dims)
	h := fnv.New64a()
	for i := range vec {
		_, _ = h.Write([]byte(text))
		_, _ = h.Write([]byte{byte(i)})
		bits := h.Sum64()
		vec[i] = float32(bits%2000)/1000 - 1
	}
	return vec
}

// base64Vector 将向量编码为 base64 的小端 float32 字节串
func base64Vector(vec []float32) string {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

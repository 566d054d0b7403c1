// Package embeddings 提供文本向量化端点（/embeddings）的访问
//
// 向量数据存在两种线上形态：浮点数组与 base64 编码的小端 float32
// 字节串。Embedding 在解析时保留原始形态，Vector 按需解码，调用方
// 无需感知 encoding_format 的差异。
package embeddings

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/lwmacct/260722-go-pkg-openai/pkg/openai"
)

// ═══════════════════════════════════════════════════════════════════════════
// 响应类型
// ═══════════════════════════════════════════════════════════════════════════

// EmbeddingResponse 向量化响应
type EmbeddingResponse struct {
	Object string      `json:"object"` // "list"
	Data   []Embedding `json:"data"`
	Model  string      `json:"model"`
	Usage  Usage       `json:"usage"`
}

// Usage 向量化的 token 用量（无补全侧用量）
type Usage struct {
	PromptTokens int64 `json:"prompt_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Len 返回响应中的向量条数
func (r *EmbeddingResponse) Len() int {
	return len(r.Data)
}

// Vectors 返回全部向量，base64 形态按需解码
//
// 任一条解码失败即返回错误，不产出部分结果。
func (r *EmbeddingResponse) Vectors() ([][]float32, error) {
	vectors := make([][]float32, 0, len(r.Data))
	for i := range r.Data {
		vec, err := r.Data[i].Vector()
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

// Embedding 单条向量
//
// 线上 embedding 字段为浮点数组或 base64 字符串，解析时按首字节
// 探测形态并保留原始数据。
type Embedding struct {
	Object string `json:"object"` // "embedding"
	Index  int    `json:"index"`

	floats []float32
	base64 string
}

// UnmarshalJSON 解析向量条目，探测 embedding 字段的形态
func (e *Embedding) UnmarshalJSON(data []byte) error {
	var wire struct {
		Object    string          `json:"object"`
		Index     int             `json:"index"`
		Embedding json.RawMessage `json:"embedding"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	e.Object = wire.Object
	e.Index = wire.Index

	raw := bytes.TrimSpace(wire.Embedding)
	switch {
	case len(raw) == 0 || string(raw) == "null":
		return nil
	case raw[0] == '"':
		return json.Unmarshal(raw, &e.base64)
	default:
		return json.Unmarshal(raw, &e.floats)
	}
}

// Floats 返回浮点形态的向量（base64 形态时为 nil，不解码）
func (e *Embedding) Floats() []float32 {
	return e.floats
}

// Base64 返回 base64 形态的原始字符串（浮点形态时为空串）
func (e *Embedding) Base64() string {
	return e.base64
}

// Vector 返回向量，base64 形态按小端 float32 解码
func (e *Embedding) Vector() ([]float32, error) {
	if e.floats != nil {
		return e.floats, nil
	}
	if e.base64 == "" {
		return nil, nil
	}
	return decodeBase64Vector(e.base64)
}

// Dimensions 返回向量维度
func (e *Embedding) Dimensions() int {
	if e.floats != nil {
		return len(e.floats)
	}
	if n := base64.StdEncoding.DecodedLen(len(e.base64)); n > 0 {
		return n / 4
	}
	return 0
}

// decodeBase64Vector 解码 base64 编码的小端 float32 字节串
func decodeBase64Vector(s string) ([]float32, error) {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, openai.NewResponseError("embedding", fmt.Errorf("invalid base64 embedding: %w", err))
	}
	if len(decoded)%4 != 0 {
		return nil, openai.NewResponseError("embedding",
			fmt.Errorf("base64 embedding has %d bytes, not a multiple of 4", len(decoded)))
	}

	vec := make([]float32, len(decoded)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(decoded[i*4:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

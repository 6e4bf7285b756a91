package parser

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/embedding"
)

// hashStopWords 规范文本里的字段标签和常见虚词，不参与哈希
var hashStopWords = map[string]struct{}{
	"title": {}, "description": {}, "skills": {}, "applicant": {},
	"a": {}, "an": {}, "and": {}, "the": {}, "of": {}, "in": {}, "on": {},
	"to": {}, "for": {}, "with": {}, "or": {}, "is": {}, "are": {}, "we": {},
}

// HashEmbedder 本地特征哈希向量器，无需外部服务
// 对小写化后的词做 FNV-1a 哈希映射到固定维度，再做 L2 归一化；相同输入总是得到相同向量
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder 创建特征哈希向量器
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// GetDimensions 返回向量维度
func (h *HashEmbedder) GetDimensions() int {
	return h.dimensions
}

// EmbedStrings 实现 embedding.Embedder 接口
func (h *HashEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float64 {
	vec := make([]float64, h.dimensions)
	for _, token := range hashTokens(text) {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(token))
		sum := hasher.Sum64()
		idx := int(sum % uint64(h.dimensions))
		// 高位决定符号，减少碰撞带来的偏差
		if sum>>63 == 1 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// hashTokens 切分为小写词，保留 c++ / c# / node.js 这类技能写法
func hashTokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' || r == '.')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".")
		if f == "" {
			continue
		}
		if _, stop := hashStopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

var _ DimensionedEmbedder = (*HashEmbedder)(nil)

package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/storage"
	"github.com/rs/zerolog"
)

// CachedEmbedder 在任意 TextEmbedder 外包一层 Redis 缓存；命中的文本不再调用模型，
// 未命中的文本合并为一次批量调用
type CachedEmbedder struct {
	inner  TextEmbedder
	cache  EmbeddingCache
	model  string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedEmbedder 创建缓存向量器，model 参与缓存键，更换模型后旧缓存自然失效
func NewCachedEmbedder(inner TextEmbedder, cache EmbeddingCache, model string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		cache:  cache,
		model:  model,
		ttl:    ttl,
		logger: logger.Named("cached_embedder"),
	}
}

// GetDimensions 返回内部向量器的维度
func (c *CachedEmbedder) GetDimensions() int {
	return c.inner.GetDimensions()
}

// EmbedStrings 实现 embedding.Embedder；缓存读写失败只记日志
func (c *CachedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		vec, err := c.cache.GetEmbeddingVector(ctx, c.model, text)
		if err == nil && len(vec) == c.inner.GetDimensions() {
			out[i] = vec
			continue
		}
		if err != nil && !errors.Is(err, storage.ErrCacheMiss) {
			c.logger.Warn().Err(err).Msg("读取向量缓存失败")
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.inner.EmbedStrings(ctx, missTexts, opts...)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("向量数量不匹配: 期望 %d, 实际 %d", len(missTexts), len(vectors))
	}

	for j, vec := range vectors {
		out[missIdx[j]] = vec
		if err := c.cache.SetEmbeddingVector(ctx, c.model, missTexts[j], vec, c.ttl); err != nil {
			c.logger.Warn().Err(err).Msg("写入向量缓存失败")
		}
	}

	c.logger.Debug().Int("hits", len(texts)-len(missTexts)).Int("misses", len(missTexts)).Msg("向量缓存统计")
	return out, nil
}

var _ embedding.Embedder = (*CachedEmbedder)(nil)

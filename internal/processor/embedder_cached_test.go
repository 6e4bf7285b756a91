package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/kunal123thakur/job-matching/internal/parser"
	"github.com/kunal123thakur/job-matching/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	inner *parser.HashEmbedder
	calls [][]string
}

func (c *countingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	c.calls = append(c.calls, append([]string(nil), texts...))
	return c.inner.EmbedStrings(ctx, texts, opts...)
}

func (c *countingEmbedder) GetDimensions() int { return c.inner.GetDimensions() }

type mapCache struct {
	mu      sync.Mutex
	data    map[string][]float64
	failGet bool
}

func (m *mapCache) GetEmbeddingVector(ctx context.Context, model, text string) ([]float64, error) {
	if m.failGet {
		return nil, errors.New("redis down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[storage.EmbeddingCacheKey(model, text)]
	if !ok {
		return nil, storage.ErrCacheMiss
	}
	return v, nil
}

func (m *mapCache) SetEmbeddingVector(ctx context.Context, model, text string, vector []float64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[storage.EmbeddingCacheKey(model, text)] = vector
	return nil
}

func TestCachedEmbedder_HitsSkipModel(t *testing.T) {
	inner := &countingEmbedder{inner: parser.NewHashEmbedder(16)}
	cache := &mapCache{data: map[string][]float64{}}
	emb := NewCachedEmbedder(inner, cache, "hash", time.Hour)
	ctx := context.Background()

	first, err := emb.EmbedStrings(ctx, []string{"SQL", "Excel"})
	require.NoError(t, err)
	require.Len(t, inner.calls, 1)

	second, err := emb.EmbedStrings(ctx, []string{"Excel", "Go", "SQL"})
	require.NoError(t, err)
	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"Go"}, inner.calls[1])

	assert.Equal(t, first[0], second[2])
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, 16, emb.GetDimensions())

	_, err = emb.EmbedStrings(ctx, []string{"SQL"})
	require.NoError(t, err)
	assert.Len(t, inner.calls, 2)
}

func TestCachedEmbedder_IgnoresWrongDimension(t *testing.T) {
	inner := &countingEmbedder{inner: parser.NewHashEmbedder(8)}
	cache := &mapCache{data: map[string][]float64{
		storage.EmbeddingCacheKey("hash", "SQL"): {1, 2},
	}}
	emb := NewCachedEmbedder(inner, cache, "hash", time.Hour)

	out, err := emb.EmbedStrings(context.Background(), []string{"SQL"})
	require.NoError(t, err)
	assert.Len(t, out[0], 8)
	assert.Len(t, inner.calls, 1)
}

func TestCachedEmbedder_CacheErrorFallsBackToModel(t *testing.T) {
	inner := &countingEmbedder{inner: parser.NewHashEmbedder(8)}
	emb := NewCachedEmbedder(inner, &mapCache{data: map[string][]float64{}, failGet: true}, "hash", time.Hour)

	out, err := emb.EmbedStrings(context.Background(), []string{"SQL"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Len(t, inner.calls, 1)
}

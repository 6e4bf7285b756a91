package storage

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kunal123thakur/job-matching/internal/config"
	"github.com/kunal123thakur/job-matching/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQdrant 只实现本包用到的 REST 接口
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]interface{}
	apiKeys     []string
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: make(map[string]map[string]map[string]interface{})}
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "collections" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	name := parts[1]
	var body map[string]interface{}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	if _, ok := f.collections[name]; !ok && len(parts) > 2 {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":{"error":"Collection not found"}}`))
		return
	}

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		if _, ok := f.collections[name]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found"}}`))
			return
		}
		writeJSON(w, map[string]interface{}{"result": map[string]interface{}{
			"config": map[string]interface{}{"params": map[string]interface{}{
				"vectors": map[string]interface{}{"size": 2, "distance": "Cosine"},
			}},
		}})
	case len(parts) == 2 && r.Method == http.MethodPut:
		f.collections[name] = make(map[string]map[string]interface{})
		writeJSON(w, map[string]interface{}{"result": true})
	case len(parts) == 3 && r.Method == http.MethodPut:
		for _, p := range body["points"].([]interface{}) {
			point := p.(map[string]interface{})
			// Cosine 集合在写入时归一化向量
			point["vector"] = unitVector(toFloat32s(point["vector"]))
			f.collections[name][point["id"].(string)] = point
		}
		writeJSON(w, map[string]interface{}{"result": map[string]interface{}{"status": "completed"}})
	case len(parts) == 3 && r.Method == http.MethodPost:
		var out []interface{}
		for _, id := range body["ids"].([]interface{}) {
			if p, ok := f.collections[name][id.(string)]; ok {
				out = append(out, p)
			}
		}
		writeJSON(w, map[string]interface{}{"result": out})
	case len(parts) == 4 && parts[3] == "search":
		query := toFloat32s(body["vector"])
		limit := int(body["limit"].(float64))
		var out []map[string]interface{}
		for _, p := range f.collections[name] {
			score := 1 - CosineDistance(query, toFloat32s(p["vector"]))
			out = append(out, map[string]interface{}{"id": p["id"], "score": score, "payload": p["payload"], "vector": p["vector"]})
		}
		sort.Slice(out, func(i, j int) bool { return out[i]["score"].(float64) > out[j]["score"].(float64) })
		if len(out) > limit {
			out = out[:limit]
		}
		writeJSON(w, map[string]interface{}{"result": out, "status": "ok", "time": 0.001})
	case len(parts) == 4 && parts[3] == "scroll":
		var points []interface{}
		for _, p := range f.collections[name] {
			points = append(points, p)
		}
		writeJSON(w, map[string]interface{}{"result": map[string]interface{}{"points": points, "next_page_offset": nil}})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func toFloat32s(v interface{}) []float32 {
	raw, _ := v.([]interface{})
	out := make([]float32, len(raw))
	for i, x := range raw {
		out[i] = float32(x.(float64))
	}
	return out
}

func unitVector(v []float32) []interface{} {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	out := make([]interface{}, len(v))
	for i, x := range v {
		if norm == 0 {
			out[i] = float64(x)
			continue
		}
		out[i] = float64(x) / norm
	}
	return out
}

func newTestQdrant(t *testing.T, fake *fakeQdrant, kind types.EntityKind) *Qdrant {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	q, err := NewQdrant(context.Background(), &config.QdrantConfig{
		Endpoint:         server.URL,
		APIKey:           "secret",
		CollectionPrefix: "test",
	}, kind, 2, WithHttpTimeout(5*time.Second))
	require.NoError(t, err)
	return q
}

func TestQdrantCollectionNameAndPointID(t *testing.T) {
	assert.Equal(t, "match_internships", QdrantCollectionName("match", types.KindInternship))
	assert.Equal(t, "match_applicants", QdrantCollectionName("match", types.KindApplicant))

	id := QdrantPointID(types.KindInternship, "I1")
	assert.Len(t, id, 36)
	assert.Equal(t, id, QdrantPointID(types.KindInternship, "I1"))
	assert.NotEqual(t, id, QdrantPointID(types.KindApplicant, "I1"))
}

func TestScoreToDistance(t *testing.T) {
	assert.InDelta(t, 0.0, scoreToDistance(1), 1e-9)
	assert.InDelta(t, 0.25, scoreToDistance(0.75), 1e-9)
	assert.InDelta(t, 2.0, scoreToDistance(-1), 1e-9)
	assert.Equal(t, 0.0, scoreToDistance(1.0000001))
}

func TestQdrant_CreatesCollection(t *testing.T) {
	fake := newFakeQdrant()
	newTestQdrant(t, fake, types.KindInternship)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	_, ok := fake.collections["test_internships"]
	assert.True(t, ok)
	for _, key := range fake.apiKeys {
		assert.Equal(t, "secret", key)
	}
}

func TestQdrant_UpsertGetNearest(t *testing.T) {
	ctx := context.Background()
	q := newTestQdrant(t, newFakeQdrant(), types.KindInternship)

	require.NoError(t, q.Upsert(ctx, rec("I1", 1, 0)))
	require.NoError(t, q.Upsert(ctx, rec("I2", 0, 1)))
	require.NoError(t, q.Upsert(ctx, rec("I3", 1, 1)))

	got, err := q.Get(ctx, "I2")
	require.NoError(t, err)
	assert.Equal(t, "I2", got.ID)
	assert.Equal(t, []float32{0, 1}, got.Embedding)
	assert.Equal(t, []string{"Go"}, got.Skills)
	assert.Equal(t, "I2", got.Metadata.String("title"))

	matches, err := q.Nearest(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "I1", matches[0].Record.ID)
	assert.InDelta(t, 0, matches[0].Distance, 1e-6)
	assert.Equal(t, "I3", matches[1].Record.ID)
	assert.InDelta(t, CosineDistance([]float32{1, 0}, []float32{1, 1}), matches[1].Distance, 1e-6)
}

func TestQdrant_GetReturnsEmbeddingAsWritten(t *testing.T) {
	ctx := context.Background()
	fake := newFakeQdrant()
	q := newTestQdrant(t, fake, types.KindInternship)

	require.NoError(t, q.Upsert(ctx, rec("I9", 3, 4)))

	fake.mu.Lock()
	stored := fake.collections["test_internships"][QdrantPointID(types.KindInternship, "I9")]["vector"]
	fake.mu.Unlock()
	assert.InDeltaSlice(t, []float64{0.6, 0.8}, stored, 1e-6)

	got, err := q.Get(ctx, "I9")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, got.Embedding)

	matches, err := q.Nearest(ctx, []float32{3, 4}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, []float32{3, 4}, matches[0].Record.Embedding)
	assert.InDelta(t, 0, matches[0].Distance, 1e-6)
}

func TestQdrant_GetMissing(t *testing.T) {
	q := newTestQdrant(t, newFakeQdrant(), types.KindApplicant)
	_, err := q.Get(context.Background(), "nobody")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestQdrant_UpsertRequiresEmbedding(t *testing.T) {
	q := newTestQdrant(t, newFakeQdrant(), types.KindInternship)
	err := q.Upsert(context.Background(), rec("I1"))
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestQdrant_List(t *testing.T) {
	ctx := context.Background()
	q := newTestQdrant(t, newFakeQdrant(), types.KindInternship)
	for _, id := range []string{"I3", "I1", "I2"} {
		require.NoError(t, q.Upsert(ctx, rec(id, 1, 0)))
	}

	page, err := q.List(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "I1", page[0].ID)
	assert.Equal(t, "I2", page[1].ID)
}

func TestQdrant_ServerErrorIsStorageUnavailable(t *testing.T) {
	fake := newFakeQdrant()
	q := newTestQdrant(t, fake, types.KindInternship)

	fake.mu.Lock()
	delete(fake.collections, "test_internships")
	fake.mu.Unlock()

	_, err := q.Nearest(context.Background(), []float32{1, 0}, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStorageUnavailable))
}

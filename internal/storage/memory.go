package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kunal123thakur/job-matching/internal/types"
)

// MemoryStore 进程内实体存储，暴力计算余弦距离；读写都做深拷贝
type MemoryStore struct {
	mu        sync.RWMutex
	kind      types.EntityKind
	dimension int
	records   map[string]types.EntityRecord
	now       func() time.Time
}

// NewMemoryStore 创建内存存储，dimension 为 0 时不校验维度
func NewMemoryStore(kind types.EntityKind, dimension int) *MemoryStore {
	return &MemoryStore{
		kind:      kind,
		dimension: dimension,
		records:   make(map[string]types.EntityRecord),
		now:       time.Now,
	}
}

// Kind 返回存储的实体类型
func (m *MemoryStore) Kind() types.EntityKind {
	return m.kind
}

// Upsert 插入或整体替换
func (m *MemoryStore) Upsert(ctx context.Context, rec types.EntityRecord) error {
	if err := ctx.Err(); err != nil {
		return wrapStorageErr(rec.ID, "upsert", err)
	}
	if err := validateRecord(rec, m.kind, m.dimension); err != nil {
		return err
	}

	stored := rec.Clone()
	stored.Kind = m.kind
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = m.now().UTC()
	}

	m.mu.Lock()
	m.records[rec.ID] = stored
	m.mu.Unlock()
	return nil
}

// Get 按 ID 读取
func (m *MemoryStore) Get(ctx context.Context, id string) (*types.EntityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapStorageErr(id, "get", err)
	}
	if id == "" {
		return nil, types.NewValidationError("", "get", "实体 ID 不能为空")
	}

	m.mu.RLock()
	rec, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, types.NewNotFoundError(id, "get")
	}
	out := rec.Clone()
	return &out, nil
}

// Nearest 暴力近邻查询
func (m *MemoryStore) Nearest(ctx context.Context, vec []float32, k int) ([]types.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapStorageErr("", "nearest", err)
	}
	if err := validateQuery(vec, k, m.dimension); err != nil {
		return nil, err
	}

	m.mu.RLock()
	matches := make([]types.Match, 0, len(m.records))
	for _, rec := range m.records {
		if !rec.HasEmbedding() {
			continue
		}
		matches = append(matches, types.Match{Record: rec, Distance: CosineDistance(vec, rec.Embedding)})
	}
	m.mu.RUnlock()

	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	for i := range matches {
		matches[i].Record = matches[i].Record.Clone()
	}
	return matches, nil
}

// List 按 ID 排序分页
func (m *MemoryStore) List(ctx context.Context, offset, limit int) ([]types.EntityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapStorageErr("", "list", err)
	}
	if err := validatePage(offset, limit); err != nil {
		return nil, err
	}

	m.mu.RLock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]types.EntityRecord, 0)
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.records[ids[i]].Clone())
	}
	m.mu.RUnlock()
	return out, nil
}

// Close 内存存储无需释放资源
func (m *MemoryStore) Close() error {
	return nil
}

var _ EntityStore = (*MemoryStore)(nil)

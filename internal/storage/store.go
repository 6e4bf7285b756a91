package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kunal123thakur/job-matching/internal/types"
)

// EntityStore 某一类实体的存储与近邻查询
type EntityStore interface {
	// Upsert 按 ID 插入或整体替换记录
	Upsert(ctx context.Context, rec types.EntityRecord) error

	// Get 按 ID 读取，不存在时返回 types.ErrNotFound
	Get(ctx context.Context, id string) (*types.EntityRecord, error)

	// Nearest 按余弦距离升序返回最多 k 条带向量的记录
	Nearest(ctx context.Context, vec []float32, k int) ([]types.Match, error)

	// List 按 ID 排序分页列出记录
	List(ctx context.Context, offset, limit int) ([]types.EntityRecord, error)

	// Kind 返回存储的实体类型
	Kind() types.EntityKind

	Close() error
}

// validateRecord 校验写入记录：ID 非空、类型一致、向量维度与存储一致
func validateRecord(rec types.EntityRecord, kind types.EntityKind, dimension int) error {
	if rec.ID == "" {
		return types.NewValidationError("", "upsert", "实体 ID 不能为空")
	}
	if rec.Kind != "" && rec.Kind != kind {
		return types.NewValidationError(rec.ID, "upsert", fmt.Sprintf("实体类型 %s 与存储类型 %s 不一致", rec.Kind, kind))
	}
	if len(rec.Embedding) > 0 {
		if dimension > 0 && len(rec.Embedding) != dimension {
			return types.NewValidationError(rec.ID, "upsert", fmt.Sprintf("向量维度 %d 与存储维度 %d 不一致", len(rec.Embedding), dimension))
		}
		if !finite(rec.Embedding) {
			return types.NewValidationError(rec.ID, "upsert", "向量包含 NaN 或 Inf")
		}
	}
	return nil
}

// validateQuery 校验近邻查询参数
func validateQuery(vec []float32, k, dimension int) error {
	if k <= 0 {
		return types.NewValidationError("", "nearest", fmt.Sprintf("k 必须大于 0，实际 %d", k))
	}
	if len(vec) == 0 {
		return types.NewValidationError("", "nearest", "查询向量为空")
	}
	if dimension > 0 && len(vec) != dimension {
		return types.NewValidationError("", "nearest", fmt.Sprintf("查询向量维度 %d 与存储维度 %d 不一致", len(vec), dimension))
	}
	if !finite(vec) {
		return types.NewValidationError("", "nearest", "查询向量包含 NaN 或 Inf")
	}
	return nil
}

func validatePage(offset, limit int) error {
	if offset < 0 || limit < 0 {
		return types.NewValidationError("", "list", fmt.Sprintf("分页参数非法: offset=%d limit=%d", offset, limit))
	}
	return nil
}

func finite(vec []float32) bool {
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// sortMatches 距离升序，距离相同按 ID 排序保证结果稳定
func sortMatches(matches []types.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Record.ID < matches[j].Record.ID
	})
}

// wrapStorageErr 将后端错误统一为 ErrStorageUnavailable，已分类的错误原样返回
func wrapStorageErr(id, op string, err error) error {
	if err == nil {
		return nil
	}
	if types.IsKnownKind(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewTimeoutError(id, op, err.Error())
	}
	return types.NewStorageError(id, op, err)
}

func sortRecordsByID(records []types.EntityRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}

// pageRecords 对已排序的记录做 offset/limit 切片
func pageRecords(records []types.EntityRecord, offset, limit int) []types.EntityRecord {
	if offset >= len(records) || limit == 0 {
		return []types.EntityRecord{}
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}

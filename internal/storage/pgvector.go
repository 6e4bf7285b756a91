package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kunal123thakur/job-matching/internal/config"
	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/storage/models"
	"github.com/kunal123thakur/job-matching/internal/types"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OpenPostgres 连接 Postgres 并注册追踪插件
func OpenPostgres(cfg *config.PostgresConfig) (*gorm.DB, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn 不能为空")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), newGormConfig(cfg.LogLevel))
	if err != nil {
		return nil, types.NewStorageError("", "connect_postgres", err)
	}
	if err := configurePool(db, cfg.MaxIdleConns, cfg.MaxOpenConns, cfg.ConnMaxLifetimeMinutes, cfg.ConnMaxIdleTimeMinutes); err != nil {
		return nil, err
	}
	if err := db.Use(NewGormTracingPlugin("postgresql", db.Migrator().CurrentDatabase())); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}
	return db, nil
}

// PGVectorStore Postgres + pgvector 实体存储，使用 <=> 余弦距离算子
type PGVectorStore struct {
	db        *gorm.DB
	table     string
	kind      types.EntityKind
	dimension int
	logger    zerolog.Logger
}

// pgMatchRow 近邻查询结果行
type pgMatchRow struct {
	models.PGEntityRow `gorm:"embedded"`
	Distance           float64 `gorm:"column:distance"`
}

// NewPGVectorStore 创建存储；建表使用显式 DDL 以固定 vector 维度
func NewPGVectorStore(ctx context.Context, db *gorm.DB, kind types.EntityKind, dimension int) (*PGVectorStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm.DB 不能为空")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("向量维度必须大于 0")
	}
	s := &PGVectorStore{
		db:        db,
		table:     tableForKind(kind),
		kind:      kind,
		dimension: dimension,
		logger:    logger.Named("pgvector_store"),
	}
	if err := s.migrate(ctx); err != nil {
		return nil, types.NewStorageError("", "migrate", err)
	}
	s.logger.Info().Str("table", s.table).Int("dimension", dimension).Msg("pgvector 实体表就绪")
	return s, nil
}

func (s *PGVectorStore) migrate(ctx context.Context) error {
	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	canonical_text TEXT NOT NULL DEFAULT '',
	skills TEXT[] NOT NULL DEFAULT '{}',
	embedding vector(%d),
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table, s.dimension),
	}
	for _, stmt := range statements {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("执行 DDL 失败: %w", err)
		}
	}
	return nil
}

// Kind 返回存储的实体类型
func (s *PGVectorStore) Kind() types.EntityKind {
	return s.kind
}

// Upsert ON CONFLICT (id) DO UPDATE，created_at 保持首次写入时间
func (s *PGVectorStore) Upsert(ctx context.Context, rec types.EntityRecord) error {
	if err := validateRecord(rec, s.kind, s.dimension); err != nil {
		return err
	}
	metadata, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return types.NewValidationError(rec.ID, "upsert", err.Error())
	}

	row := models.PGEntityRow{
		ID:            rec.ID,
		CanonicalText: rec.CanonicalText,
		Skills:        pq.StringArray(nonNilSkills(rec.Skills)),
		Metadata:      metadata,
		UpdatedAt:     recordTime(rec.UpdatedAt),
	}
	if rec.HasEmbedding() {
		v := pgvector.NewVector(rec.Embedding)
		row.Embedding = &v
	}

	err = s.db.WithContext(ctx).Table(s.table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"canonical_text", "skills", "embedding", "metadata", "updated_at"}),
	}).Create(&row).Error
	return wrapStorageErr(rec.ID, "upsert", err)
}

// Get 按 ID 读取
func (s *PGVectorStore) Get(ctx context.Context, id string) (*types.EntityRecord, error) {
	if id == "" {
		return nil, types.NewValidationError("", "get", "实体 ID 不能为空")
	}
	var row models.PGEntityRow
	err := s.db.WithContext(ctx).Table(s.table).Take(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFoundError(id, "get")
	}
	if err != nil {
		return nil, wrapStorageErr(id, "get", err)
	}
	rec := fromPGRow(row, s.kind)
	return &rec, nil
}

// Nearest 由数据库按 <=> 排序；零向量的距离在 pgvector 中为 NaN，统一按 1 处理
func (s *PGVectorStore) Nearest(ctx context.Context, vec []float32, k int) ([]types.Match, error) {
	if err := validateQuery(vec, k, s.dimension); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT id, canonical_text, skills, embedding, metadata, created_at, updated_at,
	embedding <=> ? AS distance
FROM %s
WHERE embedding IS NOT NULL
ORDER BY distance ASC, id ASC
LIMIT ?`, s.table)

	var rows []pgMatchRow
	if err := s.db.WithContext(ctx).Raw(query, pgvector.NewVector(vec), k).Scan(&rows).Error; err != nil {
		return nil, wrapStorageErr("", "nearest", err)
	}

	matches := make([]types.Match, 0, len(rows))
	for _, row := range rows {
		d := row.Distance
		if math.IsNaN(d) {
			d = 1
		}
		matches = append(matches, types.Match{Record: fromPGRow(row.PGEntityRow, s.kind), Distance: d})
	}
	sortMatches(matches)
	return matches, nil
}

// List 按 ID 排序分页
func (s *PGVectorStore) List(ctx context.Context, offset, limit int) ([]types.EntityRecord, error) {
	if err := validatePage(offset, limit); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []types.EntityRecord{}, nil
	}

	var rows []models.PGEntityRow
	err := s.db.WithContext(ctx).Table(s.table).Order("id ASC").Offset(offset).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, wrapStorageErr("", "list", err)
	}
	out := make([]types.EntityRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromPGRow(row, s.kind))
	}
	return out, nil
}

// Close 连接由 Storage 统一关闭
func (s *PGVectorStore) Close() error {
	return nil
}

func fromPGRow(row models.PGEntityRow, kind types.EntityKind) types.EntityRecord {
	rec := types.EntityRecord{
		ID:            row.ID,
		Kind:          kind,
		CanonicalText: row.CanonicalText,
		Skills:        nonNilSkills([]string(row.Skills)),
		Metadata:      decodeMetadata(row.Metadata),
		UpdatedAt:     row.UpdatedAt,
	}
	if row.Embedding != nil {
		rec.Embedding = row.Embedding.Slice()
	}
	return rec
}

var _ EntityStore = (*PGVectorStore)(nil)

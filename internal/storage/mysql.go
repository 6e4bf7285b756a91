package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kunal123thakur/job-matching/internal/config"
	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/storage/models"
	"github.com/kunal123thakur/job-matching/internal/types"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OpenMySQL 连接 MySQL 并注册追踪插件
func OpenMySQL(cfg *config.MySQLConfig) (*gorm.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	db, err := gorm.Open(mysql.Open(dsn), newGormConfig(cfg.LogLevel))
	if err != nil {
		return nil, types.NewStorageError("", "connect_mysql", err)
	}
	if err := configurePool(db, cfg.MaxIdleConns, cfg.MaxOpenConns, cfg.ConnMaxLifetimeMinutes, cfg.ConnMaxIdleTimeMinutes); err != nil {
		return nil, err
	}
	if err := db.Use(NewGormTracingPlugin("mysql", cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}
	return db, nil
}

// MySQLEntityStore MySQL 实体存储；向量以 JSON 保存，近邻在进程内计算
type MySQLEntityStore struct {
	db        *gorm.DB
	table     string
	kind      types.EntityKind
	dimension int
	logger    zerolog.Logger
}

// NewMySQLEntityStore 创建存储并迁移表结构
func NewMySQLEntityStore(ctx context.Context, db *gorm.DB, kind types.EntityKind, dimension int) (*MySQLEntityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm.DB 不能为空")
	}
	s := &MySQLEntityStore{
		db:        db,
		table:     tableForKind(kind),
		kind:      kind,
		dimension: dimension,
		logger:    logger.Named("mysql_store"),
	}
	if err := db.WithContext(ctx).Table(s.table).AutoMigrate(&models.MySQLEntityRow{}); err != nil {
		return nil, types.NewStorageError("", "migrate", fmt.Errorf("迁移表 %s 失败: %w", s.table, err))
	}
	s.logger.Info().Str("table", s.table).Msg("MySQL 实体表就绪")
	return s, nil
}

// Kind 返回存储的实体类型
func (s *MySQLEntityStore) Kind() types.EntityKind {
	return s.kind
}

// Upsert 插入或整体替换，created_at 保持首次写入时间
func (s *MySQLEntityStore) Upsert(ctx context.Context, rec types.EntityRecord) error {
	if err := validateRecord(rec, s.kind, s.dimension); err != nil {
		return err
	}
	row, err := toMySQLRow(rec)
	if err != nil {
		return types.NewValidationError(rec.ID, "upsert", err.Error())
	}

	err = s.db.WithContext(ctx).Table(s.table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"canonical_text", "skills", "embedding", "metadata", "updated_at"}),
	}).Create(&row).Error
	return wrapStorageErr(rec.ID, "upsert", err)
}

// Get 按 ID 读取
func (s *MySQLEntityStore) Get(ctx context.Context, id string) (*types.EntityRecord, error) {
	if id == "" {
		return nil, types.NewValidationError("", "get", "实体 ID 不能为空")
	}
	var row models.MySQLEntityRow
	err := s.db.WithContext(ctx).Table(s.table).Take(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFoundError(id, "get")
	}
	if err != nil {
		return nil, wrapStorageErr(id, "get", err)
	}
	rec := fromMySQLRow(row, s.kind)
	return &rec, nil
}

// Nearest 读取全部带向量的行后在进程内计算余弦距离
func (s *MySQLEntityStore) Nearest(ctx context.Context, vec []float32, k int) ([]types.Match, error) {
	if err := validateQuery(vec, k, s.dimension); err != nil {
		return nil, err
	}

	var rows []models.MySQLEntityRow
	err := s.db.WithContext(ctx).Table(s.table).Where("embedding IS NOT NULL").Find(&rows).Error
	if err != nil {
		return nil, wrapStorageErr("", "nearest", err)
	}

	matches := make([]types.Match, 0, len(rows))
	for _, row := range rows {
		rec := fromMySQLRow(row, s.kind)
		if !rec.HasEmbedding() {
			continue
		}
		matches = append(matches, types.Match{Record: rec, Distance: CosineDistance(vec, rec.Embedding)})
	}
	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// List 按 ID 排序分页
func (s *MySQLEntityStore) List(ctx context.Context, offset, limit int) ([]types.EntityRecord, error) {
	if err := validatePage(offset, limit); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []types.EntityRecord{}, nil
	}

	var rows []models.MySQLEntityRow
	err := s.db.WithContext(ctx).Table(s.table).Order("id ASC").Offset(offset).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, wrapStorageErr("", "list", err)
	}
	out := make([]types.EntityRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromMySQLRow(row, s.kind))
	}
	return out, nil
}

// Close 连接由 Storage 统一关闭
func (s *MySQLEntityStore) Close() error {
	return nil
}

func toMySQLRow(rec types.EntityRecord) (models.MySQLEntityRow, error) {
	skills, err := json.Marshal(nonNilSkills(rec.Skills))
	if err != nil {
		return models.MySQLEntityRow{}, fmt.Errorf("序列化技能失败: %w", err)
	}
	metadata, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return models.MySQLEntityRow{}, err
	}
	var embedding datatypes.JSON
	if rec.HasEmbedding() {
		raw, err := json.Marshal(rec.Embedding)
		if err != nil {
			return models.MySQLEntityRow{}, fmt.Errorf("序列化向量失败: %w", err)
		}
		embedding = datatypes.JSON(raw)
	}
	return models.MySQLEntityRow{
		ID:            rec.ID,
		CanonicalText: rec.CanonicalText,
		Skills:        datatypes.JSON(skills),
		Embedding:     embedding,
		Metadata:      metadata,
		UpdatedAt:     recordTime(rec.UpdatedAt),
	}, nil
}

func fromMySQLRow(row models.MySQLEntityRow, kind types.EntityKind) types.EntityRecord {
	rec := types.EntityRecord{
		ID:            row.ID,
		Kind:          kind,
		CanonicalText: row.CanonicalText,
		Skills:        []string{},
		Metadata:      decodeMetadata(row.Metadata),
		UpdatedAt:     row.UpdatedAt,
	}
	if len(row.Skills) > 0 {
		_ = json.Unmarshal(row.Skills, &rec.Skills)
		rec.Skills = nonNilSkills(rec.Skills)
	}
	if len(row.Embedding) > 0 && string(row.Embedding) != "null" {
		_ = json.Unmarshal(row.Embedding, &rec.Embedding)
	}
	return rec
}

var _ EntityStore = (*MySQLEntityStore)(nil)

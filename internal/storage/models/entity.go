package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// 两种实体各一张表，表结构相同
const (
	TableInternships = "internships"
	TableApplicants  = "applicants"
)

// PGEntityRow Postgres 实体行，向量列类型由建表 DDL 决定为 vector(dim)
type PGEntityRow struct {
	ID            string           `gorm:"column:id;type:text;primaryKey"`
	CanonicalText string           `gorm:"column:canonical_text;type:text;not null"`
	Skills        pq.StringArray   `gorm:"column:skills;type:text[]"`
	Embedding     *pgvector.Vector `gorm:"column:embedding;type:vector"`
	Metadata      datatypes.JSON   `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time        `gorm:"column:created_at;type:timestamptz;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;type:timestamptz"`
}

// MySQLEntityRow MySQL 实体行，技能、向量和元数据都存为 JSON
type MySQLEntityRow struct {
	ID            string         `gorm:"column:id;type:varchar(191);primaryKey"`
	CanonicalText string         `gorm:"column:canonical_text;type:text;not null"`
	Skills        datatypes.JSON `gorm:"column:skills;type:json"`
	Embedding     datatypes.JSON `gorm:"column:embedding;type:json"` // NULL 表示没有向量
	Metadata      datatypes.JSON `gorm:"column:metadata;type:json"`
	CreatedAt     time.Time      `gorm:"column:created_at;type:datetime(6);autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;type:datetime(6)"`
}

package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kunal123thakur/job-matching/internal/storage/models"
	"github.com/kunal123thakur/job-matching/internal/types"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// tableForKind 实体类型对应的表名
func tableForKind(kind types.EntityKind) string {
	if kind == types.KindApplicant {
		return models.TableApplicants
	}
	return models.TableInternships
}

// newGormConfig GORM 通用配置，logLevel 取值 1-4 对应 Silent/Error/Warn/Info
func newGormConfig(logLevel int) *gorm.Config {
	var level gormlogger.LogLevel
	switch logLevel {
	case 1:
		level = gormlogger.Silent
	case 2:
		level = gormlogger.Error
	case 3:
		level = gormlogger.Warn
	case 4:
		level = gormlogger.Info
	default:
		level = gormlogger.Warn
	}

	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormlogger.New(
			log.New(os.Stderr, "\r\n", log.LstdFlags),
			gormlogger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  level,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// configurePool 设置连接池参数
func configurePool(db *gorm.DB, maxIdle, maxOpen, lifetimeMinutes, idleMinutes int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if lifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(lifetimeMinutes) * time.Minute)
	}
	if idleMinutes > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(idleMinutes) * time.Minute)
	}
	return nil
}

// CloseGorm 关闭 GORM 底层连接
func CloseGorm(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

func encodeMetadata(m types.Metadata) (datatypes.JSON, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("序列化元数据失败: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func decodeMetadata(raw datatypes.JSON) types.Metadata {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var m types.Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func nonNilSkills(skills []string) []string {
	if skills == nil {
		return []string{}
	}
	return skills
}

func recordTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

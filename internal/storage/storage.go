package storage

import (
	"context"
	"fmt"

	"github.com/kunal123thakur/job-matching/internal/config"
	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/types"

	"gorm.io/gorm"
)

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 实体存储，按 store.backend 选择实现
	Internships EntityStore
	Applicants  EntityStore

	// 关系型数据库，仅 postgres/mysql 后端时非空
	DB *gorm.DB

	// 可选组件，初始化失败时为 nil
	Redis    *Redis
	MinIO    *MinIO
	RabbitMQ *RabbitMQ
}

// NewStorage 创建存储管理器。主存储失败直接返回错误；Redis/MinIO 失败只告警并禁用；
// 事件模式需要 RabbitMQ 时其失败也返回错误
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	log := logger.Named("storage")
	s := &Storage{}

	if err := s.openEntityStores(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}
	log.Info().Str("backend", cfg.Store.Backend).Msg("实体存储初始化成功")

	if cfg.Redis.Enabled {
		r, err := NewRedisAdapter(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("初始化Redis失败，向量缓存已禁用")
		} else {
			s.Redis = r
		}
	}

	if cfg.MinIO.Enabled {
		m, err := NewMinIO(ctx, &cfg.MinIO)
		if err != nil {
			log.Warn().Err(err).Msg("初始化MinIO失败，附件归档已禁用")
		} else {
			s.MinIO = m
		}
	}

	if cfg.Events.Mode == "direct" || cfg.Events.Mode == "outbox" {
		mq, err := NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("events.mode=%s 需要 RabbitMQ: %w", cfg.Events.Mode, err)
		}
		s.RabbitMQ = mq
	}

	return s, nil
}

func (s *Storage) openEntityStores(ctx context.Context, cfg *config.Config) error {
	dim := cfg.Embedding.Dimension

	// 构造函数失败时返回 typed nil，只有两个都成功才赋给接口字段
	var open func(kind types.EntityKind) (EntityStore, error)
	switch cfg.Store.Backend {
	case "", "memory":
		open = func(kind types.EntityKind) (EntityStore, error) {
			return NewMemoryStore(kind, dim), nil
		}

	case "qdrant":
		open = func(kind types.EntityKind) (EntityStore, error) {
			q, err := NewQdrant(ctx, &cfg.Qdrant, kind, dim)
			if err != nil {
				return nil, err
			}
			return q, nil
		}

	case "postgres":
		db, err := OpenPostgres(&cfg.Postgres)
		if err != nil {
			return err
		}
		s.DB = db
		open = func(kind types.EntityKind) (EntityStore, error) {
			pg, err := NewPGVectorStore(ctx, db, kind, dim)
			if err != nil {
				return nil, err
			}
			return pg, nil
		}

	case "mysql":
		db, err := OpenMySQL(&cfg.MySQL)
		if err != nil {
			return err
		}
		s.DB = db
		open = func(kind types.EntityKind) (EntityStore, error) {
			my, err := NewMySQLEntityStore(ctx, db, kind, dim)
			if err != nil {
				return nil, err
			}
			return my, nil
		}

	default:
		return fmt.Errorf("不支持的存储后端: %s", cfg.Store.Backend)
	}

	internships, err := open(types.KindInternship)
	if err != nil {
		return err
	}
	s.Internships = internships
	applicants, err := open(types.KindApplicant)
	if err != nil {
		return err
	}
	s.Applicants = applicants
	return nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	log := logger.Named("storage")
	for _, store := range []EntityStore{s.Internships, s.Applicants} {
		if store != nil {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Str("kind", string(store.Kind())).Msg("关闭实体存储失败")
			}
		}
	}
	if s.DB != nil {
		if err := CloseGorm(s.DB); err != nil {
			log.Warn().Err(err).Msg("关闭数据库连接失败")
		}
	}
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭Redis连接失败")
		}
	}
}

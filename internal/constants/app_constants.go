package constants

import "time"

const (
	// DefaultApplicantMatchK 申请人 -> 实习岗位 返回条数
	DefaultApplicantMatchK = 5
	// DefaultInternshipMatchK 实习岗位 -> 申请人 返回条数
	DefaultInternshipMatchK = 4
	// DefaultSearchLimit /search/ 默认返回条数
	DefaultSearchLimit = 5
	// DefaultListLimit /internships/ 默认分页大小
	DefaultListLimit = 100
	// MaxListLimit 分页大小上限
	MaxListLimit = 1000

	// DefaultEmbeddingDimension all-MiniLM-L6-v2 输出维度
	DefaultEmbeddingDimension = 384
	// DefaultEmbeddingCacheTTL 向量缓存过期时间
	DefaultEmbeddingCacheTTL = 24 * time.Hour

	// EventEntityUpserted 实体写入事件类型
	EventEntityUpserted = "entity.upserted"

	// WelcomeMessage 根路径欢迎语
	WelcomeMessage = "Welcome to the Internship Matching API"
)

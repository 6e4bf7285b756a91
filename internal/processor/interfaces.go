package processor

import (
	"context"
	"io"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/kunal123thakur/job-matching/internal/types"
)

//
// 文档解析相关接口
//

// DocumentExtractor 文档文本提取接口，只取第一页
type DocumentExtractor interface {
	// FirstPageText 从本地文件提取规范化后的第一页文本
	FirstPageText(ctx context.Context, filePath string) (string, error)

	// ExtractTextFromReader 从 io.Reader 提取第一页文本，uri 仅用于日志和元数据
	ExtractTextFromReader(ctx context.Context, reader io.Reader, uri string) (string, error)
}

// SkillExtractor 简历技能提取接口
type SkillExtractor interface {
	// ExtractSkills 返回有序技能列表，允许重复
	ExtractSkills(ctx context.Context, resumeText string) ([]string, error)
}

//
// 向量嵌入相关接口
//

// TextEmbedder 文本向量化接口 (符合 cloudwego/eino 规范)
type TextEmbedder interface {
	// EmbedStrings 将文本转换为向量表示
	EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error)

	// GetDimensions 返回嵌入向量的维度
	GetDimensions() int
}

// EmbeddingCache 向量缓存，未命中时返回 storage.ErrCacheMiss
type EmbeddingCache interface {
	GetEmbeddingVector(ctx context.Context, model, text string) ([]float64, error)
	SetEmbeddingVector(ctx context.Context, model, text string, vector []float64, ttl time.Duration) error
}

//
// 存储与事件相关接口
//

// FileArchiver 候选人附件归档
type FileArchiver interface {
	ArchiveCandidateFile(ctx context.Context, candidateKey, filename string, reader io.Reader, fileSize int64) (string, error)
}

// EventPublisher 实体写入事件发布
type EventPublisher interface {
	PublishEntityUpserted(ctx context.Context, rec types.EntityRecord) error
}

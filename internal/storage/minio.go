package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/kunal123thakur/job-matching/internal/config"
	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/tracing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var minioTracer = otel.Tracer("job-matching/storage/minio")

// ObjectStorage 候选人附件归档
type ObjectStorage interface {
	// ArchiveCandidateFile 归档候选人上传的单个文件，返回对象键
	ArchiveCandidateFile(ctx context.Context, candidateKey, filename string, reader io.Reader, fileSize int64) (string, error)
}

var _ ObjectStorage = (*MinIO)(nil)

// MinIO 基于 minio-go 的附件归档
type MinIO struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

// NewMinIO 创建 MinIO 客户端并确保存储桶存在
func NewMinIO(ctx context.Context, cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if cfg.Endpoint == "" || cfg.BucketName == "" {
		return nil, fmt.Errorf("MinIO endpoint 和 bucketName 不能为空")
	}

	log := logger.Named("minio")
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{client: client, bucket: cfg.BucketName, logger: log}
	if err := m.ensureBucketExists(ctx, cfg.Location); err != nil {
		return nil, err
	}

	log.Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.BucketName).Msg("MinIO 客户端初始化完成")
	return m, nil
}

func (m *MinIO) ensureBucketExists(ctx context.Context, location string) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", m.bucket, err)
	}
	m.logger.Info().Str("bucket", m.bucket).Msg("存储桶已创建")
	return nil
}

// CandidateObjectName 归档对象键: candidates/<key>/<文件名>
func CandidateObjectName(candidateKey, filename string) string {
	key := strings.ToLower(strings.TrimSpace(candidateKey))
	key = strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(key)
	if key == "" {
		key = "anonymous"
	}
	return path.Join("candidates", key, filepath.Base(filename))
}

// ArchiveCandidateFile 上传文件，Content-Type 由扩展名推断
func (m *MinIO) ArchiveCandidateFile(ctx context.Context, candidateKey, filename string, reader io.Reader, fileSize int64) (string, error) {
	objectName := CandidateObjectName(candidateKey, filename)
	contentType := getContentType(filepath.Ext(filename))

	ctx, span := minioTracer.Start(ctx, "MinIO.PutObject", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("object_store.bucket", m.bucket),
		attribute.String("object_store.file", filepath.Base(objectName)),
		attribute.String("candidate.email", tracing.SafeAttributeValue("candidate.email", candidateKey, tracing.DefaultMaxLength)),
		attribute.Int64("object_store.size", fileSize),
		attribute.String("object_store.content_type", contentType),
	)

	info, err := m.client.PutObject(ctx, m.bucket, objectName, reader, fileSize, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		tracing.RecordError(span, err, tracing.ClassifyError(err, tracing.ErrorTypeObjectStore))
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.bucket, objectName, err)
	}
	span.SetStatus(codes.Ok, "")
	m.logger.Debug().Str("object", objectName).Int64("size", info.Size).Str("etag", info.ETag).Msg("候选人文件已归档")
	return objectName, nil
}

func getContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

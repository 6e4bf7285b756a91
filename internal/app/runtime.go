// Package app 按配置组装流水线及其依赖，服务端与导入工具共用
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kunal123thakur/job-matching/internal/agent"
	"github.com/kunal123thakur/job-matching/internal/config"
	"github.com/kunal123thakur/job-matching/internal/constants"
	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/outbox"
	"github.com/kunal123thakur/job-matching/internal/parser"
	"github.com/kunal123thakur/job-matching/internal/processor"
	"github.com/kunal123thakur/job-matching/internal/storage"
)

// Runtime 组装完成的服务依赖
type Runtime struct {
	Storage  *storage.Storage
	Pipeline *processor.MatchingPipeline
	Catalog  *processor.Catalog
	// Relay 仅 events.mode=outbox 时非空，由调用方启动和停止
	Relay *outbox.MessageRelay
}

type buildOptions struct {
	skipResumeParsing bool
}

// Option 组装选项
type Option func(*buildOptions)

// WithoutResumeParsing 不创建 PDF 提取器和聊天模型，供只写入岗位的工具使用
func WithoutResumeParsing() Option {
	return func(o *buildOptions) {
		o.skipResumeParsing = true
	}
}

// Build 打开存储并创建流水线。失败时已打开的连接会被关闭
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	st, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}

	rt, err := buildWithStorage(ctx, cfg, st, bo)
	if err != nil {
		st.Close()
		return nil, err
	}
	return rt, nil
}

// Close 关闭存储连接，Relay 需由调用方先停止
func (r *Runtime) Close() {
	r.Storage.Close()
}

func buildWithStorage(ctx context.Context, cfg *config.Config, st *storage.Storage, bo buildOptions) (*Runtime, error) {
	log := logger.Named("bootstrap")

	var (
		extractor processor.DocumentExtractor
		skills    processor.SkillExtractor
	)
	if !bo.skipResumeParsing {
		var err error
		if extractor, skills, err = newResumeParsing(ctx, cfg); err != nil {
			return nil, err
		}
	}

	embedder, err := newEmbedder(cfg, st)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Storage: st}
	events, err := newEventPublisher(ctx, cfg, st, rt)
	if err != nil {
		return nil, err
	}

	pool := processor.NewWorkerPool(
		cfg.Pipeline.MaxConcurrency,
		config.GetDuration(cfg.Pipeline.ModelTimeout, 60*time.Second),
		config.GetDuration(cfg.Pipeline.StorageTimeout, 10*time.Second),
	)

	comp := &processor.Components{
		Extractor:   extractor,
		Skills:      skills,
		Embedder:    embedder,
		Internships: st.Internships,
		Applicants:  st.Applicants,
		Pool:        pool,
		Events:      events,
	}
	pipeline, err := processor.NewMatchingPipeline(comp, processor.DefaultSettings(),
		processor.WithMatchK(cfg.Pipeline.ApplicantMatchK, cfg.Pipeline.InternshipMatchK),
		processor.WithUploadDir(cfg.Server.UploadDir),
	)
	if err != nil {
		return nil, fmt.Errorf("创建匹配流水线失败: %w", err)
	}
	rt.Pipeline = pipeline

	var archiver processor.FileArchiver
	if st.MinIO != nil {
		archiver = st.MinIO
	}
	rt.Catalog = processor.NewCatalog(pipeline, archiver, cfg.Server.UploadDir)

	log.Info().
		Str("store", cfg.Store.Backend).
		Str("embedding", cfg.Embedding.Provider).
		Int("dimension", embedder.GetDimensions()).
		Str("events", cfg.Events.Mode).
		Bool("embedding_cache", st.Redis != nil).
		Bool("archive", archiver != nil).
		Msg("匹配流水线初始化成功")
	return rt, nil
}

// newResumeParsing 创建 PDF 第一页提取器与大模型技能提取器
func newResumeParsing(ctx context.Context, cfg *config.Config) (processor.DocumentExtractor, processor.SkillExtractor, error) {
	extractor, err := newDocumentExtractor(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	chat, err := agent.NewOpenAICompatibleChatModel(agent.ChatModelConfig{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("创建聊天模型失败: %w", err)
	}

	var skillOpts []parser.SkillExtractorOption
	if cfg.Pipeline.ResumePromptExtra != "" {
		skillOpts = append(skillOpts, parser.WithExtraInstructions(cfg.Pipeline.ResumePromptExtra))
	}
	return extractor, parser.NewLLMSkillExtractor(chat, skillOpts...), nil
}

// newDocumentExtractor 按配置选择 Eino 本地解析或 Tika 服务
func newDocumentExtractor(ctx context.Context, cfg *config.Config) (processor.DocumentExtractor, error) {
	timeout := config.GetDuration(cfg.Pipeline.PDFParseTimeout, 30*time.Second)
	if cfg.Pipeline.PDFExtractor == "tika" {
		e, err := parser.NewTikaPDFTextExtractor(cfg.Tika.ServerURL, parser.WithTimeout(timeout))
		if err != nil {
			return nil, fmt.Errorf("创建 Tika 提取器失败: %w", err)
		}
		return e, nil
	}

	e, err := parser.NewEinoPDFTextExtractor(ctx, parser.WithParseTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("创建 PDF 提取器失败: %w", err)
	}
	return e, nil
}

// newEmbedder 选择向量器；Redis 可用时包一层缓存
func newEmbedder(cfg *config.Config, st *storage.Storage) (processor.TextEmbedder, error) {
	var base processor.TextEmbedder
	switch cfg.Embedding.Provider {
	case "", "hash":
		base = parser.NewHashEmbedder(cfg.Embedding.Dimension)
	case "http":
		e, err := parser.NewHTTPEmbedder(cfg.Embedding, &http.Client{Timeout: 30 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("创建向量客户端失败: %w", err)
		}
		base = e
	default:
		return nil, fmt.Errorf("不支持的 embedding.provider: %s", cfg.Embedding.Provider)
	}

	if st.Redis == nil {
		return base, nil
	}
	model := cfg.Embedding.Provider + ":" + cfg.Embedding.Model
	ttl := config.GetDuration(cfg.Embedding.CacheTTL, constants.DefaultEmbeddingCacheTTL)
	return processor.NewCachedEmbedder(base, st.Redis, model, ttl), nil
}

// newEventPublisher 按 events.mode 创建发布器，outbox 模式同时创建中继
func newEventPublisher(ctx context.Context, cfg *config.Config, st *storage.Storage, rt *Runtime) (processor.EventPublisher, error) {
	switch cfg.Events.Mode {
	case "", "none":
		return outbox.NopPublisher{}, nil
	case "direct":
		return outbox.NewDirectPublisher(st.RabbitMQ, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey), nil
	case "outbox":
		if st.DB == nil {
			return nil, fmt.Errorf("events.mode=outbox 需要 postgres 或 mysql 存储后端")
		}
		w, err := outbox.NewWriter(ctx, st.DB, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		if err != nil {
			return nil, err
		}
		rt.Relay = outbox.NewMessageRelay(st.DB, st.RabbitMQ,
			outbox.WithPollingInterval(config.GetDuration(cfg.Events.PollInterval, 2*time.Second)),
			outbox.WithBatchSize(cfg.Events.BatchSize),
			outbox.WithMaxRetries(cfg.Events.MaxRetries),
		)
		return w, nil
	default:
		return nil, fmt.Errorf("不支持的 events.mode: %s", cfg.Events.Mode)
	}
}

package processor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/kunal123thakur/job-matching/internal/parser"
	"github.com/kunal123thakur/job-matching/internal/storage"
	"github.com/kunal123thakur/job-matching/internal/tracing"
	"github.com/kunal123thakur/job-matching/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var pipelineTracer = otel.Tracer("job-matching/processor")

// InternshipInput 管理员提交的实习岗位
type InternshipInput struct {
	ID          string   `json:"internship_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
}

// ApplicantInput 申请人简历
type ApplicantInput struct {
	ID       string `json:"applicant_id"`
	FilePath string `json:"file_path"`
}

// MatchResult 匹配结果，Query 为查询方记录
type MatchResult struct {
	Query   types.EntityRecord
	Matches []types.Match
}

// MatchingPipeline 解析 → 技能提取 → 规范文本 → 向量化 → 入库，以及双向近邻匹配
type MatchingPipeline struct {
	comp   Components
	set    Settings
	logger zerolog.Logger
}

// NewMatchingPipeline 创建流水线，依赖全部显式传入
func NewMatchingPipeline(comp *Components, set *Settings, opts ...SettingOpt) (*MatchingPipeline, error) {
	if comp == nil {
		return nil, fmt.Errorf("components 不能为空")
	}
	if comp.Embedder == nil {
		return nil, fmt.Errorf("embedder 不能为空")
	}
	if comp.Internships == nil || comp.Applicants == nil {
		return nil, fmt.Errorf("实体存储不能为空")
	}
	if set == nil {
		set = DefaultSettings()
	}
	for _, opt := range opts {
		opt(set)
	}

	c := *comp
	if c.Pool == nil {
		c.Pool = NewWorkerPool(0, 0, 0)
	}
	return &MatchingPipeline{comp: c, set: *set, logger: set.Logger}, nil
}

// InternshipCanonicalText "Title: <t>\nDescription: <d>\nSkills: a, b"
func InternshipCanonicalText(title, description string, skills []string) string {
	return fmt.Sprintf("Title: %s\nDescription: %s\nSkills: %s", title, description, strings.Join(skills, ", "))
}

// ApplicantCanonicalText "Applicant Skills: a, b"
func ApplicantCanonicalText(skills []string) string {
	return "Applicant Skills: " + strings.Join(skills, ", ")
}

// ResumeSkills 提取简历技能并为每个技能单独生成向量
func (p *MatchingPipeline) ResumeSkills(ctx context.Context, filePath string) ([]string, [][]float64, error) {
	ctx, span := pipelineTracer.Start(ctx, "MatchingPipeline.ResumeSkills")
	defer span.End()

	skills, err := p.extractResumeSkills(ctx, filePath)
	if err != nil {
		recordSpanError(span, err)
		return nil, nil, err
	}

	embeddings := [][]float64{}
	if len(skills) > 0 {
		embeddings, err = p.embedTexts(ctx, skills)
		if err != nil {
			recordSpanError(span, err)
			return nil, nil, err
		}
	}

	span.SetAttributes(attribute.Int("skills.count", len(skills)))
	span.SetStatus(codes.Ok, "")
	return skills, embeddings, nil
}

// IngestInternship 构造规范文本并向量化后写入岗位存储
func (p *MatchingPipeline) IngestInternship(ctx context.Context, in InternshipInput) (*types.EntityRecord, error) {
	ctx, span := pipelineTracer.Start(ctx, "MatchingPipeline.IngestInternship",
		trace.WithAttributes(attribute.String("entity.id", in.ID)))
	defer span.End()

	id := strings.TrimSpace(in.ID)
	if id == "" {
		err := types.NewValidationError("", "ingest_internship", "internship_id 不能为空")
		recordSpanError(span, err)
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		err := types.NewValidationError(id, "ingest_internship", "title 不能为空")
		recordSpanError(span, err)
		return nil, err
	}

	skills := parser.NormalizeSkills(in.Skills)
	rec := types.EntityRecord{
		ID:            id,
		Kind:          types.KindInternship,
		CanonicalText: InternshipCanonicalText(in.Title, in.Description, skills),
		Skills:        skills,
		Metadata: types.Metadata{
			"title":       in.Title,
			"description": in.Description,
		},
	}

	if err := p.embedAndStore(ctx, p.comp.Internships, &rec); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	p.logger.Info().Str("internship_id", id).Int("skills", len(skills)).Msg("实习岗位已入库")
	span.SetStatus(codes.Ok, "")
	return &rec, nil
}

// IngestApplicant 第一页 → 技能 → 规范文本 → 向量 → 写入申请人存储
func (p *MatchingPipeline) IngestApplicant(ctx context.Context, in ApplicantInput) (*types.EntityRecord, error) {
	ctx, span := pipelineTracer.Start(ctx, "MatchingPipeline.IngestApplicant",
		trace.WithAttributes(attribute.String("entity.id", in.ID)))
	defer span.End()

	id := strings.TrimSpace(in.ID)
	if id == "" {
		err := types.NewValidationError("", "ingest_applicant", "applicant_id 不能为空")
		recordSpanError(span, err)
		return nil, err
	}

	skills, err := p.extractResumeSkills(ctx, in.FilePath)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	rec := types.EntityRecord{
		ID:            id,
		Kind:          types.KindApplicant,
		CanonicalText: ApplicantCanonicalText(skills),
		Skills:        skills,
		Metadata:      types.Metadata{"file_path": in.FilePath},
	}
	if err := p.embedAndStore(ctx, p.comp.Applicants, &rec); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	p.logger.Info().Str("applicant_id", id).Int("skills", len(skills)).Msg("申请人已入库")
	span.SetStatus(codes.Ok, "")
	return &rec, nil
}

// MatchApplicant 用申请人已存储的向量检索最近的实习岗位
func (p *MatchingPipeline) MatchApplicant(ctx context.Context, applicantID string) (*MatchResult, error) {
	return p.match(ctx, "match_applicant", p.comp.Applicants, p.comp.Internships, applicantID, p.set.ApplicantMatchK)
}

// MatchInternship 用岗位已存储的向量检索最近的申请人
func (p *MatchingPipeline) MatchInternship(ctx context.Context, internshipID string) (*MatchResult, error) {
	return p.match(ctx, "match_internship", p.comp.Internships, p.comp.Applicants, internshipID, p.set.InternshipMatchK)
}

// match 查询向量取自存储，不重新向量化
func (p *MatchingPipeline) match(ctx context.Context, op string, from, to storage.EntityStore, id string, k int) (*MatchResult, error) {
	ctx, span := pipelineTracer.Start(ctx, "MatchingPipeline."+op,
		trace.WithAttributes(attribute.String("entity.id", id), attribute.Int("match.k", k)))
	defer span.End()

	id = strings.TrimSpace(id)
	if id == "" {
		err := types.NewValidationError("", op, "ID 不能为空")
		recordSpanError(span, err)
		return nil, err
	}

	var query *types.EntityRecord
	err := p.comp.Pool.Do(ctx, CallStorage, op+".get", func(ctx context.Context) error {
		var getErr error
		query, getErr = from.Get(ctx, id)
		return getErr
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if !query.HasEmbedding() {
		err := types.NewValidationError(id, op, "记录没有向量，无法作为查询")
		recordSpanError(span, err)
		return nil, err
	}

	var matches []types.Match
	err = p.comp.Pool.Do(ctx, CallStorage, op+".nearest", func(ctx context.Context) error {
		var nErr error
		matches, nErr = to.Nearest(ctx, query.Embedding, k)
		return nErr
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("match.count", len(matches)))
	span.SetStatus(codes.Ok, "")
	return &MatchResult{Query: *query, Matches: matches}, nil
}

// extractResumeSkills 第一页文本 → 技能列表，两步都经过工作池
func (p *MatchingPipeline) extractResumeSkills(ctx context.Context, filePath string) ([]string, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, types.NewValidationError("", "extract_resume", "file_path 不能为空")
	}
	return p.skillsFromDocument(ctx, func(ctx context.Context) (string, error) {
		return p.comp.Extractor.FirstPageText(ctx, filePath)
	})
}

// extractUploadedResumeSkills 直接解析上传内容，不依赖落盘文件
func (p *MatchingPipeline) extractUploadedResumeSkills(ctx context.Context, content []byte, uri string) ([]string, error) {
	if len(content) == 0 {
		return nil, types.NewValidationError("", "extract_resume", "简历内容为空")
	}
	return p.skillsFromDocument(ctx, func(ctx context.Context) (string, error) {
		return p.comp.Extractor.ExtractTextFromReader(ctx, bytes.NewReader(content), uri)
	})
}

func (p *MatchingPipeline) skillsFromDocument(ctx context.Context, firstPage func(context.Context) (string, error)) ([]string, error) {
	if p.comp.Extractor == nil || p.comp.Skills == nil {
		return nil, fmt.Errorf("文档解析器或技能提取器未配置")
	}

	var text string
	err := p.comp.Pool.Do(ctx, CallModel, "parse_document", func(ctx context.Context) error {
		var e error
		text, e = firstPage(ctx)
		return e
	})
	if err != nil {
		return nil, err
	}

	var skills []string
	err = p.comp.Pool.Do(ctx, CallModel, "extract_skills", func(ctx context.Context) error {
		var e error
		skills, e = p.comp.Skills.ExtractSkills(ctx, text)
		return e
	})
	if err != nil {
		return nil, err
	}
	return parser.NormalizeSkills(skills), nil
}

// embedTexts 批量向量化并校验数量与维度
func (p *MatchingPipeline) embedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	var vectors [][]float64
	err := p.comp.Pool.Do(ctx, CallModel, "embed", func(ctx context.Context) error {
		var e error
		vectors, e = p.comp.Embedder.EmbedStrings(ctx, texts)
		return e
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("向量数量不匹配: 期望 %d, 实际 %d", len(texts), len(vectors))
	}
	dim := p.comp.Embedder.GetDimensions()
	for i, v := range vectors {
		if dim > 0 && len(v) != dim {
			return nil, fmt.Errorf("第 %d 个向量维度不匹配: 期望 %d, 实际 %d", i, dim, len(v))
		}
	}
	return vectors, nil
}

// embedText 单条文本向量化
func (p *MatchingPipeline) embedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return types.Float64sToFloat32s(vectors[0]), nil
}

// embedAndStore 为 rec 的规范文本生成向量、写入存储并尽力发布事件
func (p *MatchingPipeline) embedAndStore(ctx context.Context, store storage.EntityStore, rec *types.EntityRecord) error {
	vec, err := p.embedText(ctx, rec.CanonicalText)
	if err != nil {
		return err
	}
	rec.Embedding = vec

	err = p.comp.Pool.Do(ctx, CallStorage, "upsert", func(ctx context.Context) error {
		return store.Upsert(ctx, *rec)
	})
	if err != nil {
		return err
	}

	p.publishUpserted(ctx, *rec)
	return nil
}

// publishUpserted 写入已提交，发布失败只记录日志
func (p *MatchingPipeline) publishUpserted(ctx context.Context, rec types.EntityRecord) {
	if p.comp.Events == nil {
		return
	}
	err := p.comp.Pool.Do(ctx, CallStorage, "publish_event", func(ctx context.Context) error {
		return p.comp.Events.PublishEntityUpserted(ctx, rec)
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("entity_id", rec.ID).Str("kind", string(rec.Kind)).Msg("实体事件发布失败")
	}
}

func recordSpanError(span trace.Span, err error) {
	tracing.RecordErrorWithInfo(span, err, tracing.ClassifyError(err, tracing.ErrorTypeInternal),
		attribute.Bool("error.classified", types.IsKnownKind(err)))
}

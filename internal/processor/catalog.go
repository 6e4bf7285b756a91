package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/kunal123thakur/job-matching/internal/constants"
	"github.com/kunal123thakur/job-matching/internal/parser"
	"github.com/kunal123thakur/job-matching/internal/tracing"
	"github.com/kunal123thakur/job-matching/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ListingIDNamespace 岗位 ID 的 UUIDv5 命名空间
var ListingIDNamespace = uuid.Must(uuid.FromString("2f0b6c1e-9a43-5d57-8c1f-6b1d7d3f0a21"))

// ListingInput 岗位目录条目
type ListingInput struct {
	ID              string   `json:"id,omitempty"`
	InternshipTitle string   `json:"internship_title"`
	CompanyName     string   `json:"company_name"`
	Location        string   `json:"location"`
	IsRemote        bool     `json:"is_remote"`
	StartDate       string   `json:"start_date,omitempty"`
	DurationMonths  *int     `json:"duration_months,omitempty"`
	StipendMin      *int     `json:"stipend_min,omitempty"`
	StipendMax      *int     `json:"stipend_max,omitempty"`
	StipendAvg      *float64 `json:"stipend_avg,omitempty"`
	Skills          []string `json:"skills,omitempty"`
}

// Listing 岗位目录视图
type Listing struct {
	ID              string   `json:"id"`
	InternshipTitle string   `json:"internship_title"`
	CompanyName     string   `json:"company_name"`
	Location        string   `json:"location"`
	IsRemote        bool     `json:"is_remote"`
	StartDate       string   `json:"start_date,omitempty"`
	DurationMonths  *int     `json:"duration_months,omitempty"`
	StipendMin      *int     `json:"stipend_min,omitempty"`
	StipendMax      *int     `json:"stipend_max,omitempty"`
	StipendAvg      *float64 `json:"stipend_avg,omitempty"`
	Skills          []string `json:"skills"`
}

// SearchHit 技能搜索结果
type SearchHit struct {
	ID              string  `json:"id"`
	InternshipTitle string  `json:"internship_title"`
	CompanyName     string  `json:"company_name"`
	Location        string  `json:"location"`
	StipendMin      *int    `json:"stipend_min"`
	StipendMax      *int    `json:"stipend_max"`
	Similarity      float64 `json:"similarity"`
}

// UploadedFile 表单上传的文件
type UploadedFile struct {
	Filename string
	Content  []byte
}

// CandidateInput 候选人表单
type CandidateInput struct {
	Name              string
	Email             string
	FatherIncome      *float64
	PreferredLocation *string
	Resume            UploadedFile
	IncomeCertificate UploadedFile
}

// Candidate 候选人档案
type Candidate struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	Email                 string   `json:"email"`
	FatherIncome          *float64 `json:"father_income"`
	PreferredLocation     *string  `json:"preferred_location"`
	Skills                []string `json:"skills"`
	ResumePath            string   `json:"resume_path"`
	IncomeCertificatePath string   `json:"income_certificate_path"`
}

// Catalog 关系型目录：岗位列表、技能搜索、候选人提交
type Catalog struct {
	pipeline  *MatchingPipeline
	archiver  FileArchiver
	uploadDir string
}

// NewCatalog 创建目录服务，archiver 可为空
func NewCatalog(pipeline *MatchingPipeline, archiver FileArchiver, uploadDir string) *Catalog {
	if uploadDir == "" {
		uploadDir = pipeline.set.UploadDir
	}
	return &Catalog{pipeline: pipeline, archiver: archiver, uploadDir: uploadDir}
}

// ListingID 未提供 ID 时由标题和公司生成稳定 ID
func ListingID(title, company string) string {
	return uuid.NewV5(ListingIDNamespace, title+"|"+company).String()
}

// ListingCanonicalText 目录岗位的向量化文本
func ListingCanonicalText(title, company string) string {
	return title + " " + company
}

// CreateListing 新建或覆盖一个岗位
func (c *Catalog) CreateListing(ctx context.Context, in ListingInput) (*Listing, error) {
	ctx, span := pipelineTracer.Start(ctx, "Catalog.CreateListing")
	defer span.End()

	title := strings.TrimSpace(in.InternshipTitle)
	company := strings.TrimSpace(in.CompanyName)
	if title == "" || company == "" {
		err := types.NewValidationError(in.ID, "create_listing", "internship_title 和 company_name 不能为空")
		recordSpanError(span, err)
		return nil, err
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = ListingID(title, company)
	}
	location, remote := parser.NormalizeLocation(in.Location)
	skills := parser.NormalizeSkills(in.Skills)

	avg := in.StipendAvg
	if avg == nil && in.StipendMin != nil && in.StipendMax != nil {
		v := float64(*in.StipendMin+*in.StipendMax) / 2
		avg = &v
	}

	meta := types.Metadata{
		"internship_title": title,
		"company_name":     company,
		"location":         location,
		"is_remote":        in.IsRemote || remote,
	}
	if in.StartDate != "" {
		meta["start_date"] = in.StartDate
	}
	if in.DurationMonths != nil {
		meta["duration_months"] = *in.DurationMonths
	}
	if in.StipendMin != nil {
		meta["stipend_min"] = *in.StipendMin
	}
	if in.StipendMax != nil {
		meta["stipend_max"] = *in.StipendMax
	}
	if avg != nil {
		meta["stipend_avg"] = *avg
	}

	rec := types.EntityRecord{
		ID:            id,
		Kind:          types.KindInternship,
		CanonicalText: ListingCanonicalText(title, company),
		Skills:        skills,
		Metadata:      meta,
	}
	span.SetAttributes(attribute.String("entity.id", id))
	if err := c.pipeline.embedAndStore(ctx, c.pipeline.comp.Internships, &rec); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	listing := ListingFromRecord(rec)
	return &listing, nil
}

// ListListings 分页列出岗位，按 ID 排序
func (c *Catalog) ListListings(ctx context.Context, skip, limit int) ([]Listing, error) {
	if skip < 0 {
		return nil, types.NewValidationError("", "list_listings", "skip 不能为负数")
	}
	if limit <= 0 {
		limit = constants.DefaultListLimit
	}
	if limit > constants.MaxListLimit {
		limit = constants.MaxListLimit
	}

	var records []types.EntityRecord
	err := c.pipeline.comp.Pool.Do(ctx, CallStorage, "list_listings", func(ctx context.Context) error {
		var e error
		records, e = c.pipeline.comp.Internships.List(ctx, skip, limit)
		return e
	})
	if err != nil {
		return nil, err
	}

	out := make([]Listing, 0, len(records))
	for _, rec := range records {
		out = append(out, ListingFromRecord(rec))
	}
	return out, nil
}

// SearchListings 按技能文本搜索最相近的岗位
func (c *Catalog) SearchListings(ctx context.Context, skills []string, limit int) ([]SearchHit, error) {
	ctx, span := pipelineTracer.Start(ctx, "Catalog.SearchListings",
		trace.WithAttributes(attribute.Int("search.limit", limit)))
	defer span.End()

	skills = parser.NormalizeSkills(skills)
	if len(skills) == 0 {
		err := types.NewValidationError("", "search_listings", "skills 不能为空")
		recordSpanError(span, err)
		return nil, err
	}
	if limit <= 0 {
		limit = constants.DefaultSearchLimit
	}
	if limit > constants.MaxListLimit {
		limit = constants.MaxListLimit
	}

	vec, err := c.pipeline.embedText(ctx, strings.Join(skills, " "))
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	var matches []types.Match
	err = c.pipeline.comp.Pool.Do(ctx, CallStorage, "search_listings", func(ctx context.Context) error {
		var e error
		matches, e = c.pipeline.comp.Internships.Nearest(ctx, vec, limit)
		return e
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	hits := make([]SearchHit, 0, len(matches))
	for _, m := range matches {
		l := ListingFromRecord(m.Record)
		hits = append(hits, SearchHit{
			ID:              l.ID,
			InternshipTitle: l.InternshipTitle,
			CompanyName:     l.CompanyName,
			Location:        l.Location,
			StipendMin:      l.StipendMin,
			StipendMax:      l.StipendMax,
			Similarity:      m.Similarity(),
		})
	}
	span.SetStatus(codes.Ok, "")
	return hits, nil
}

// SubmitCandidate 保存附件、提取简历技能并按邮箱写入申请人存储
func (c *Catalog) SubmitCandidate(ctx context.Context, in CandidateInput) (*Candidate, error) {
	ctx, span := pipelineTracer.Start(ctx, "Catalog.SubmitCandidate",
		trace.WithAttributes(attribute.String("candidate.email",
			tracing.SafeAttributeValue("candidate.email", CandidateID(in.Email), tracing.DefaultMaxLength))))
	defer span.End()

	cand, err := c.submitCandidate(ctx, in)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return cand, nil
}

func (c *Catalog) submitCandidate(ctx context.Context, in CandidateInput) (*Candidate, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	if name == "" {
		return nil, types.NewValidationError(email, "submit_candidate", "name 不能为空")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, types.NewValidationError(email, "submit_candidate", "email 格式不正确")
	}
	if len(in.Resume.Content) == 0 || in.Resume.Filename == "" {
		return nil, types.NewValidationError(email, "submit_candidate", "缺少简历文件")
	}
	if len(in.IncomeCertificate.Content) == 0 || in.IncomeCertificate.Filename == "" {
		return nil, types.NewValidationError(email, "submit_candidate", "缺少收入证明文件")
	}
	id := CandidateID(email)

	resumePath, err := c.saveUpload(in.Resume)
	if err != nil {
		return nil, err
	}
	certPath, err := c.saveUpload(in.IncomeCertificate)
	if err != nil {
		return nil, err
	}

	// 从上传内容解析，避免同名文件被覆盖后读到别人的简历
	skills, err := c.pipeline.extractUploadedResumeSkills(ctx, in.Resume.Content, in.Resume.Filename)
	if err != nil {
		return nil, err
	}

	// 已存在时合并：可选字段仅在提供时覆盖
	var existing *types.EntityRecord
	err = c.pipeline.comp.Pool.Do(ctx, CallStorage, "get_candidate", func(ctx context.Context) error {
		var e error
		existing, e = c.pipeline.comp.Applicants.Get(ctx, id)
		return e
	})
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	meta := types.Metadata{}
	if existing != nil {
		for _, key := range []string{"father_income", "preferred_location"} {
			if v, ok := existing.Metadata[key]; ok {
				meta[key] = v
			}
		}
	}
	meta["name"] = name
	meta["email"] = email
	meta["resume_path"] = resumePath
	meta["income_certificate_path"] = certPath
	if in.FatherIncome != nil {
		meta["father_income"] = *in.FatherIncome
	}
	if in.PreferredLocation != nil {
		meta["preferred_location"] = *in.PreferredLocation
	}
	c.archive(ctx, id, in.Resume, "resume_object_key", meta)
	c.archive(ctx, id, in.IncomeCertificate, "income_certificate_object_key", meta)

	rec := types.EntityRecord{
		ID:            id,
		Kind:          types.KindApplicant,
		CanonicalText: ApplicantCanonicalText(skills),
		Skills:        skills,
		Metadata:      meta,
	}
	if err := c.pipeline.embedAndStore(ctx, c.pipeline.comp.Applicants, &rec); err != nil {
		return nil, err
	}

	c.pipeline.logger.Info().Str("candidate_id", id).Int("skills", len(skills)).Bool("updated", existing != nil).Msg("候选人已提交")
	cand := CandidateFromRecord(rec)
	return &cand, nil
}

// CandidateID 候选人以去空白、小写后的邮箱作为 ID
func CandidateID(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// saveUpload 以原文件名的 base 保存到上传目录，同名文件覆盖
func (c *Catalog) saveUpload(f UploadedFile) (string, error) {
	base := filepath.Base(filepath.Clean("/" + f.Filename))
	if base == "/" || base == "." {
		return "", types.NewValidationError("", "save_upload", "文件名不合法")
	}
	if err := os.MkdirAll(c.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("创建上传目录失败: %w", err)
	}
	path := filepath.Join(c.uploadDir, base)
	if err := os.WriteFile(path, f.Content, 0o644); err != nil {
		return "", fmt.Errorf("保存上传文件失败: %w", err)
	}
	return path, nil
}

// archive 归档到对象存储，失败只记录日志
func (c *Catalog) archive(ctx context.Context, candidateID string, f UploadedFile, metaKey string, meta types.Metadata) {
	if c.archiver == nil {
		return
	}
	var key string
	err := c.pipeline.comp.Pool.Do(ctx, CallStorage, "archive_upload", func(ctx context.Context) error {
		var e error
		key, e = c.archiver.ArchiveCandidateFile(ctx, candidateID, f.Filename, bytes.NewReader(f.Content), int64(len(f.Content)))
		return e
	})
	if err != nil {
		c.pipeline.logger.Warn().Err(err).Str("candidate_id", candidateID).Str("filename", f.Filename).Msg("附件归档失败")
		return
	}
	meta[metaKey] = key
}

// ListingFromRecord 从存储记录还原岗位视图
func ListingFromRecord(rec types.EntityRecord) Listing {
	title := rec.Metadata.String("internship_title")
	if title == "" {
		title = rec.Metadata.String("title")
	}
	skills := rec.Skills
	if skills == nil {
		skills = []string{}
	}
	return Listing{
		ID:              rec.ID,
		InternshipTitle: title,
		CompanyName:     rec.Metadata.String("company_name"),
		Location:        rec.Metadata.String("location"),
		IsRemote:        rec.Metadata.Bool("is_remote"),
		StartDate:       rec.Metadata.String("start_date"),
		DurationMonths:  metaInt(rec.Metadata, "duration_months"),
		StipendMin:      metaInt(rec.Metadata, "stipend_min"),
		StipendMax:      metaInt(rec.Metadata, "stipend_max"),
		StipendAvg:      metaFloat(rec.Metadata, "stipend_avg"),
		Skills:          skills,
	}
}

// CandidateFromRecord 从存储记录还原候选人视图
func CandidateFromRecord(rec types.EntityRecord) Candidate {
	var location *string
	if v, ok := rec.Metadata["preferred_location"].(string); ok {
		location = &v
	}
	skills := rec.Skills
	if skills == nil {
		skills = []string{}
	}
	return Candidate{
		ID:                    rec.ID,
		Name:                  rec.Metadata.String("name"),
		Email:                 rec.Metadata.String("email"),
		FatherIncome:          metaFloat(rec.Metadata, "father_income"),
		PreferredLocation:     location,
		Skills:                skills,
		ResumePath:            rec.Metadata.String("resume_path"),
		IncomeCertificatePath: rec.Metadata.String("income_certificate_path"),
	}
}

func metaInt(m types.Metadata, key string) *int {
	v, ok := m.Int(key)
	if !ok {
		return nil
	}
	return &v
}

func metaFloat(m types.Metadata, key string) *float64 {
	v, ok := m.Float(key)
	if !ok {
		return nil
	}
	return &v
}

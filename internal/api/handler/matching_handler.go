package handler

import (
	"context"
	"strings"

	"github.com/kunal123thakur/job-matching/internal/constants"
	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/processor"
	"github.com/kunal123thakur/job-matching/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

// MatchingHandler 简历技能、实体写入与双向匹配接口
type MatchingHandler struct {
	pipeline *processor.MatchingPipeline
	logger   zerolog.Logger
}

// NewMatchingHandler 创建 MatchingHandler
func NewMatchingHandler(pipeline *processor.MatchingPipeline) *MatchingHandler {
	return &MatchingHandler{pipeline: pipeline, logger: logger.Named("matching_handler")}
}

// HandleRoot GET /
func (h *MatchingHandler) HandleRoot(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"message": constants.WelcomeMessage})
}

// HandleHealth GET /health
func (h *MatchingHandler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"status": "ok"})
}

// HandleResumeSkills GET /resume/skills?file_path=
func (h *MatchingHandler) HandleResumeSkills(ctx context.Context, c *app.RequestContext) {
	filePath := strings.TrimSpace(c.Query("file_path"))
	if filePath == "" {
		badRequest(c, "file_path 不能为空")
		return
	}

	skills, embeddings, err := h.pipeline.ResumeSkills(ctx, filePath)
	if err != nil {
		writeError(c, h.logger, err, "")
		return
	}
	c.JSON(consts.StatusOK, utils.H{"skills": skills, "embeddings": embeddings})
}

// HandleAddInternship POST /admin/internship
func (h *MatchingHandler) HandleAddInternship(ctx context.Context, c *app.RequestContext) {
	var req processor.InternshipInput
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "请求体不是合法的 JSON: "+err.Error())
		return
	}

	rec, err := h.pipeline.IngestInternship(ctx, req)
	if err != nil {
		writeError(c, h.logger, err, "")
		return
	}
	c.JSON(consts.StatusOK, utils.H{
		"message":       "Internship stored successfully",
		"internship_id": rec.ID,
		"embedding":     rec.Embedding,
	})
}

// HandleAddApplicant POST /applicant/resume
func (h *MatchingHandler) HandleAddApplicant(ctx context.Context, c *app.RequestContext) {
	var req processor.ApplicantInput
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "请求体不是合法的 JSON: "+err.Error())
		return
	}

	rec, err := h.pipeline.IngestApplicant(ctx, req)
	if err != nil {
		writeError(c, h.logger, err, "")
		return
	}
	c.JSON(consts.StatusOK, utils.H{
		"message":      "Applicant stored successfully",
		"applicant_id": rec.ID,
		"skills":       rec.Skills,
		"embedding":    rec.Embedding,
	})
}

// HandleMatchApplicant GET /match/applicant/:applicant_id
func (h *MatchingHandler) HandleMatchApplicant(ctx context.Context, c *app.RequestContext) {
	id := c.Param("applicant_id")
	result, err := h.pipeline.MatchApplicant(ctx, id)
	if err != nil {
		writeError(c, h.logger, err, "Applicant not found")
		return
	}
	c.JSON(consts.StatusOK, utils.H{"applicant_id": result.Query.ID, "top_matches": matchItems(result.Matches)})
}

// HandleMatchInternship GET /match/internship/:internship_id
func (h *MatchingHandler) HandleMatchInternship(ctx context.Context, c *app.RequestContext) {
	id := c.Param("internship_id")
	result, err := h.pipeline.MatchInternship(ctx, id)
	if err != nil {
		writeError(c, h.logger, err, "Internship not found")
		return
	}
	c.JSON(consts.StatusOK, utils.H{"internship_id": result.Query.ID, "top_applicants": matchItems(result.Matches)})
}

// matchItems 元数据平铺到结果项，id / skills / distance 优先
func matchItems(matches []types.Match) []map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(matches))
	for _, m := range matches {
		item := make(map[string]interface{}, len(m.Record.Metadata)+3)
		for k, v := range m.Record.Metadata {
			item[k] = v
		}
		skills := m.Record.Skills
		if skills == nil {
			skills = []string{}
		}
		item["id"] = m.Record.ID
		item["skills"] = skills
		item["distance"] = m.Distance
		items = append(items, item)
	}
	return items
}

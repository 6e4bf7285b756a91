package handler

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/processor"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

// CatalogHandler 岗位目录与候选人接口
type CatalogHandler struct {
	catalog *processor.Catalog
	logger  zerolog.Logger
}

// NewCatalogHandler 创建 CatalogHandler
func NewCatalogHandler(catalog *processor.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger.Named("catalog_handler")}
}

type searchRequest struct {
	Skills []string `json:"skills"`
}

// HandleCreateListing POST /internships/
func (h *CatalogHandler) HandleCreateListing(ctx context.Context, c *app.RequestContext) {
	var req processor.ListingInput
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "请求体不是合法的 JSON: "+err.Error())
		return
	}

	listing, err := h.catalog.CreateListing(ctx, req)
	if err != nil {
		writeError(c, h.logger, err, "")
		return
	}
	c.JSON(consts.StatusOK, listing)
}

// HandleListListings GET /internships/?skip=&limit=
func (h *CatalogHandler) HandleListListings(ctx context.Context, c *app.RequestContext) {
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	listings, err := h.catalog.ListListings(ctx, skip, limit)
	if err != nil {
		writeError(c, h.logger, err, "")
		return
	}
	c.JSON(consts.StatusOK, listings)
}

// HandleSearch POST /search/?limit=
func (h *CatalogHandler) HandleSearch(ctx context.Context, c *app.RequestContext) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	var req searchRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "请求体不是合法的 JSON: "+err.Error())
		return
	}

	hits, err := h.catalog.SearchListings(ctx, req.Skills, limit)
	if err != nil {
		writeError(c, h.logger, err, "")
		return
	}
	c.JSON(consts.StatusOK, hits)
}

// HandleSubmitCandidate POST /candidates/ (multipart)
func (h *CatalogHandler) HandleSubmitCandidate(ctx context.Context, c *app.RequestContext) {
	in := processor.CandidateInput{
		Name:  c.PostForm("name"),
		Email: c.PostForm("email"),
	}

	if raw := strings.TrimSpace(c.PostForm("father_income")); raw != "" {
		income, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			badRequest(c, "father_income 必须是数字")
			return
		}
		in.FatherIncome = &income
	}
	if raw, ok := c.GetPostForm("preferred_location"); ok {
		in.PreferredLocation = &raw
	}

	var err error
	if in.Resume, err = readFormFile(c, "resume"); err != nil {
		badRequest(c, err.Error())
		return
	}
	if in.IncomeCertificate, err = readFormFile(c, "income_certificate"); err != nil {
		badRequest(c, err.Error())
		return
	}

	cand, err := h.catalog.SubmitCandidate(ctx, in)
	if err != nil {
		writeError(c, h.logger, err, "")
		return
	}
	c.JSON(consts.StatusOK, cand)
}

func readFormFile(c *app.RequestContext, field string) (processor.UploadedFile, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return processor.UploadedFile{}, fmt.Errorf("缺少文件字段 %s", field)
	}
	content, err := readMultipart(header)
	if err != nil {
		return processor.UploadedFile{}, fmt.Errorf("读取文件 %s 失败: %w", field, err)
	}
	return processor.UploadedFile{Filename: header.Filename, Content: content}, nil
}

func readMultipart(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func queryInt(c *app.RequestContext, key string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s 必须是整数", key)
	}
	return v, nil
}

package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/types"
	"github.com/rs/zerolog"
)

// pageParser 抽象 eino 文档解析器，便于测试替换
type pageParser interface {
	Parse(ctx context.Context, reader io.Reader, opts ...einoParser.Option) ([]*schema.Document, error)
}

// EinoPDFTextExtractor 使用 Eino PDF Parser 按页解析，只取第一页文本
type EinoPDFTextExtractor struct {
	parser  pageParser
	logger  zerolog.Logger
	timeout time.Duration
}

// EinoPDFOption PDF提取器的配置选项
type EinoPDFOption func(*EinoPDFTextExtractor)

// WithEinoLogger 配置自定义日志记录器
func WithEinoLogger(l zerolog.Logger) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.logger = l
	}
}

// WithParseTimeout 配置单次解析超时
func WithParseTimeout(d time.Duration) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// withPageParser 替换底层解析器，仅测试使用
func withPageParser(p pageParser) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.parser = p
	}
}

// NewEinoPDFTextExtractor 初始化 Eino PDF 文本提取器
// 解析器按页拆分文档，技能提取只使用第一页
func NewEinoPDFTextExtractor(ctx context.Context, options ...EinoPDFOption) (*EinoPDFTextExtractor, error) {
	extractor := &EinoPDFTextExtractor{
		logger:  logger.Named("pdf_extractor"),
		timeout: 30 * time.Second,
	}
	for _, option := range options {
		option(extractor)
	}

	if extractor.parser == nil {
		p, err := pdf.NewPDFParser(ctx, &pdf.Config{
			ToPages: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
		}
		extractor.parser = p
	}

	return extractor, nil
}

// FirstPageText 打开文件并返回规范化后的第一页文本
func (e *EinoPDFTextExtractor) FirstPageText(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", types.NewValidationError(filePath, "open_document", "文件不存在")
		}
		return "", types.NewValidationError(filePath, "open_document", err.Error())
	}
	defer file.Close()

	return e.ExtractTextFromReader(ctx, file, filePath)
}

// ExtractTextFromReader 从 io.Reader 解析 PDF，返回规范化后的第一页文本
func (e *EinoPDFTextExtractor) ExtractTextFromReader(ctx context.Context, reader io.Reader, uri string) (string, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, reader,
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(map[string]any{"source_uri": uri}),
	)
	duration := time.Since(startTime)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", types.NewTimeoutError(uri, "parse_pdf", fmt.Sprintf("解析超过 %s", e.timeout))
		}
		e.logger.Warn().Err(err).Str("uri", uri).Dur("duration", duration).Msg("PDF解析失败")
		return "", types.NewValidationError(uri, "parse_pdf", "文件不是可解析的 PDF: "+err.Error())
	}

	if len(docs) == 0 || docs[0] == nil {
		return "", types.NewEmptyDocumentError(uri, "parse_pdf", "PDF 没有页面")
	}

	text := NormalizeText(docs[0].Content)
	if text == "" {
		return "", types.NewEmptyDocumentError(uri, "parse_pdf", "第一页没有可提取的文本")
	}

	e.logger.Debug().
		Str("uri", uri).
		Int("pages", len(docs)).
		Int("first_page_chars", len(text)).
		Dur("duration", duration).
		Msg("PDF第一页提取完成")
	return text, nil
}

package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/tracing"
	"github.com/kunal123thakur/job-matching/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/net/html"
)

var tikaTracer = otel.Tracer("job-matching/parser/tika")

// TikaPDFTextExtractor 调用 Apache Tika 服务解析 PDF，只取第一页文本
// Tika 以 XHTML 返回时每页是一个 <div class="page">
type TikaPDFTextExtractor struct {
	serverURL          string
	client             *http.Client
	extractAnnotations bool
	logger             zerolog.Logger
}

// TikaOption 定义配置选项函数
type TikaOption func(*TikaPDFTextExtractor)

// WithAnnotations 配置是否提取PDF链接注释文本
func WithAnnotations(extract bool) TikaOption {
	return func(e *TikaPDFTextExtractor) {
		e.extractAnnotations = extract
	}
}

// WithTikaLogger 配置自定义日志记录器
func WithTikaLogger(l zerolog.Logger) TikaOption {
	return func(e *TikaPDFTextExtractor) {
		e.logger = l
	}
}

// WithTimeout 配置HTTP客户端超时时间
func WithTimeout(timeout time.Duration) TikaOption {
	return func(e *TikaPDFTextExtractor) {
		if timeout > 0 {
			e.client.Timeout = timeout
		}
	}
}

// NewTikaPDFTextExtractor 创建一个新的Tika PDF解析器
func NewTikaPDFTextExtractor(serverURL string, options ...TikaOption) (*TikaPDFTextExtractor, error) {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if serverURL == "" {
		return nil, fmt.Errorf("tika server_url 不能为空")
	}

	extractor := &TikaPDFTextExtractor{
		serverURL:          serverURL,
		client:             &http.Client{Timeout: 60 * time.Second},
		extractAnnotations: false,
		logger:             logger.Named("tika_extractor"),
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor, nil
}

// FirstPageText 打开文件并返回规范化后的第一页文本
func (e *TikaPDFTextExtractor) FirstPageText(ctx context.Context, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", types.NewValidationError(filePath, "open_document", "文件不存在")
		}
		return "", types.NewValidationError(filePath, "open_document", err.Error())
	}
	return e.ExtractTextFromBytes(ctx, data, filePath)
}

// ExtractTextFromReader 读取全部内容后交给 Tika
func (e *TikaPDFTextExtractor) ExtractTextFromReader(ctx context.Context, reader io.Reader, uri string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", types.NewValidationError(uri, "read_document", err.Error())
	}
	return e.ExtractTextFromBytes(ctx, data, uri)
}

// ExtractTextFromBytes 上传 PDF 到 Tika，返回第一页文本
func (e *TikaPDFTextExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, error) {
	ctx, span := tikaTracer.Start(ctx, "Tika.FirstPageText")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.uri", uri),
		attribute.Int("document.size", len(data)),
	)

	startTime := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.serverURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Accept", "text/html")
	if uri != "" {
		req.Header.Set("X-Tika-Resource-Name", uri)
	}
	if !e.extractAnnotations {
		req.Header.Set("X-Tika-PDFExtractAnnotationText", "false")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := e.client.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ClassifyError(err, tracing.ErrorTypeHTTP))
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return "", types.NewTimeoutError(uri, "parse_pdf", "tika 请求超时")
		}
		return "", fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return "", fmt.Errorf("读取Tika响应失败: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusUnsupportedMediaType:
		// Tika 无法解析该文件
		return "", types.NewValidationError(uri, "parse_pdf", fmt.Sprintf("文件不是可解析的 PDF (tika status %d)", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		err := fmt.Errorf("tika服务器返回错误状态码: %d, body=%s", resp.StatusCode, tracing.TruncateString(string(body), 256))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return "", err
	}

	pages, err := xhtmlPages(bytes.NewReader(body))
	if err != nil {
		return "", types.NewValidationError(uri, "parse_pdf", "无法解析 Tika 输出: "+err.Error())
	}
	if len(pages) == 0 {
		return "", types.NewEmptyDocumentError(uri, "parse_pdf", "PDF 没有页面")
	}

	text := NormalizeText(pages[0])
	if text == "" {
		return "", types.NewEmptyDocumentError(uri, "parse_pdf", "第一页没有可提取的文本")
	}

	e.logger.Debug().
		Str("uri", uri).
		Int("pages", len(pages)).
		Int("first_page_chars", len(text)).
		Dur("duration", time.Since(startTime)).
		Msg("Tika 第一页提取完成")
	return text, nil
}

// xhtmlPages 按 <div class="page"> 切分 Tika 的 XHTML 输出
// 没有分页标记时整个 body 视为一页
func xhtmlPages(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var pages []string
	var body *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "body" && body == nil {
				body = n
			}
			if n.Data == "div" && hasClass(n, "page") {
				pages = append(pages, nodeText(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(pages) == 0 && body != nil {
		if text := nodeText(body); strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	return pages, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

// nodeText 拼接所有文本节点，块级元素之间换行
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "tr":
				sb.WriteByte('\n')
			}
		}
	}
	walk(n)
	return sb.String()
}

func isClientTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

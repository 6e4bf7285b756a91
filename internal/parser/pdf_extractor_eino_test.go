package parser

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"github.com/kunal123thakur/job-matching/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePageParser 返回预置的分页结果
type fakePageParser struct {
	pages []string
	err   error
	delay time.Duration
	uri   string
}

func (f *fakePageParser) Parse(ctx context.Context, reader io.Reader, opts ...einoParser.Option) ([]*schema.Document, error) {
	_, _ = io.ReadAll(reader)
	f.uri = einoParser.GetCommonOptions(nil, opts...).URI
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	docs := make([]*schema.Document, 0, len(f.pages))
	for _, p := range f.pages {
		docs = append(docs, &schema.Document{Content: p})
	}
	return docs, nil
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewEinoPDFTextExtractor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	extractor, err := NewEinoPDFTextExtractor(ctx)
	require.NoError(t, err, "创建PDF提取器不应返回错误")
	require.NotNil(t, extractor.parser, "PDF提取器内部的parser不应为nil")
	assert.Equal(t, 30*time.Second, extractor.timeout)
}

func TestFirstPageText_UsesOnlyFirstPage(t *testing.T) {
	fake := &fakePageParser{pages: []string{"Skills:\nSQL,\r\n  Excel\n\nPower BI", "Page two: Kubernetes"}}
	extractor, err := NewEinoPDFTextExtractor(context.Background(), withPageParser(fake))
	require.NoError(t, err)

	path := writeTempFile(t, "resume.pdf", "%PDF-1.4 fake")
	text, err := extractor.FirstPageText(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "Skills: SQL, Excel Power BI", text)
	assert.NotContains(t, text, "Kubernetes", "只应使用第一页")
	assert.Equal(t, path, fake.uri)
}

func TestFirstPageText_MissingFile(t *testing.T) {
	extractor, err := NewEinoPDFTextExtractor(context.Background(), withPageParser(&fakePageParser{}))
	require.NoError(t, err)

	_, err = extractor.FirstPageText(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestFirstPageText_EmptyDocument(t *testing.T) {
	path := writeTempFile(t, "blank.pdf", "%PDF-1.4 fake")

	for name, pages := range map[string][]string{
		"no pages":         nil,
		"blank first page": {"  \n\t ", "second page text"},
	} {
		t.Run(name, func(t *testing.T) {
			extractor, err := NewEinoPDFTextExtractor(context.Background(), withPageParser(&fakePageParser{pages: pages}))
			require.NoError(t, err)

			_, err = extractor.FirstPageText(context.Background(), path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrEmptyDocument))
		})
	}
}

func TestExtractTextFromReader_Timeout(t *testing.T) {
	fake := &fakePageParser{pages: []string{"late"}, delay: time.Second}
	extractor, err := NewEinoPDFTextExtractor(context.Background(),
		withPageParser(fake),
		WithParseTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = extractor.ExtractTextFromReader(context.Background(), strings.NewReader("x"), "slow.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrTimeout))
}

func TestExtractTextFromReader_ParserError(t *testing.T) {
	extractor, err := NewEinoPDFTextExtractor(context.Background(), withPageParser(&fakePageParser{err: errors.New("bad xref")}))
	require.NoError(t, err)

	_, err = extractor.ExtractTextFromReader(context.Background(), strings.NewReader("x"), "broken.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
	assert.Contains(t, err.Error(), "bad xref")
}

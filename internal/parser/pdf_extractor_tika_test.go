package parser

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kunal123thakur/job-matching/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tikaTwoPages = `<html xmlns="http://www.w3.org/1999/xhtml"><head><title>resume</title></head>
<body><div class="page"><p>Jane Doe</p><p>Skills: Python,   SQL</p></div>
<div class="page"><p>References available</p></div></body></html>`

func newTikaServer(t *testing.T, status int, body string) (*httptest.Server, *http.Request) {
	t.Helper()
	captured := &http.Request{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = *r.Clone(context.Background())
		_, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, captured
}

func writePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resume.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644))
	return path
}

func TestNewTikaPDFTextExtractor_RequiresURL(t *testing.T) {
	_, err := NewTikaPDFTextExtractor("  ")
	require.Error(t, err)

	e, err := NewTikaPDFTextExtractor("http://localhost:9998/", WithTimeout(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9998", e.serverURL)
	assert.Equal(t, 5*time.Second, e.client.Timeout)
}

func TestTikaPDFTextExtractor_FirstPageOnly(t *testing.T) {
	server, req := newTikaServer(t, http.StatusOK, tikaTwoPages)
	e, err := NewTikaPDFTextExtractor(server.URL)
	require.NoError(t, err)

	path := writePDF(t)
	text, err := e.FirstPageText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe Skills: Python, SQL", text)
	assert.NotContains(t, text, "References")

	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/tika", req.URL.Path)
	assert.Equal(t, "text/html", req.Header.Get("Accept"))
	assert.Equal(t, path, req.Header.Get("X-Tika-Resource-Name"))
	assert.Equal(t, "false", req.Header.Get("X-Tika-PDFExtractAnnotationText"))
}

func TestTikaPDFTextExtractor_NoPageMarkers(t *testing.T) {
	server, _ := newTikaServer(t, http.StatusOK, `<html><body><p>Go developer</p></body></html>`)
	e, err := NewTikaPDFTextExtractor(server.URL)
	require.NoError(t, err)

	text, err := e.FirstPageText(context.Background(), writePDF(t))
	require.NoError(t, err)
	assert.Equal(t, "Go developer", text)
}

func TestTikaPDFTextExtractor_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		e, err := NewTikaPDFTextExtractor("http://127.0.0.1:1")
		require.NoError(t, err)
		_, err = e.FirstPageText(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
		assert.True(t, errors.Is(err, types.ErrValidation))
	})

	t.Run("unparseable", func(t *testing.T) {
		server, _ := newTikaServer(t, http.StatusUnprocessableEntity, "")
		e, err := NewTikaPDFTextExtractor(server.URL)
		require.NoError(t, err)
		_, err = e.FirstPageText(context.Background(), writePDF(t))
		assert.True(t, errors.Is(err, types.ErrValidation))
	})

	t.Run("blank first page", func(t *testing.T) {
		server, _ := newTikaServer(t, http.StatusOK, `<html><body><div class="page"> </div><div class="page">x</div></body></html>`)
		e, err := NewTikaPDFTextExtractor(server.URL)
		require.NoError(t, err)
		_, err = e.FirstPageText(context.Background(), writePDF(t))
		assert.True(t, errors.Is(err, types.ErrEmptyDocument))
	})

	t.Run("server error", func(t *testing.T) {
		server, _ := newTikaServer(t, http.StatusInternalServerError, "boom")
		e, err := NewTikaPDFTextExtractor(server.URL)
		require.NoError(t, err)
		_, err = e.FirstPageText(context.Background(), writePDF(t))
		require.Error(t, err)
		assert.False(t, types.IsKnownKind(err))
		assert.True(t, strings.Contains(err.Error(), "500"))
	})
}

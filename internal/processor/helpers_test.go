package processor

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/kunal123thakur/job-matching/internal/agent"
	"github.com/kunal123thakur/job-matching/internal/parser"
	"github.com/kunal123thakur/job-matching/internal/storage"
	"github.com/kunal123thakur/job-matching/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testDim = 128

// fileTextExtractor 把文件内容当作第一页文本
type fileTextExtractor struct{}

func (fileTextExtractor) FirstPageText(ctx context.Context, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", types.NewValidationError("", "load_document", err.Error())
	}
	text := parser.NormalizeText(string(data))
	if text == "" {
		return "", types.NewEmptyDocumentError("", "load_document", filePath)
	}
	return text, nil
}

func (fileTextExtractor) ExtractTextFromReader(ctx context.Context, r io.Reader, uri string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return parser.NormalizeText(string(data)), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.EntityRecord
	err    error
}

func (p *recordingPublisher) PublishEntityUpserted(ctx context.Context, rec types.EntityRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, rec)
	return nil
}

type recordingArchiver struct {
	mu   sync.Mutex
	keys []string
	fail bool
}

func (a *recordingArchiver) ArchiveCandidateFile(ctx context.Context, candidateKey, filename string, reader io.Reader, size int64) (string, error) {
	if a.fail {
		return "", errors.New("minio down")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := storage.CandidateObjectName(candidateKey, filename)
	a.keys = append(a.keys, key)
	return key, nil
}

type testEnv struct {
	pipeline    *MatchingPipeline
	chat        *agent.MockChatClient
	internships *storage.MemoryStore
	applicants  *storage.MemoryStore
}

func newTestEnv(t *testing.T, chat *agent.MockChatClient, events EventPublisher) *testEnv {
	t.Helper()
	if chat == nil {
		chat = agent.NewMockChatClient(`{"skills": ["SQL", "Excel"]}`, nil)
	}
	env := &testEnv{
		chat:        chat,
		internships: storage.NewMemoryStore(types.KindInternship, testDim),
		applicants:  storage.NewMemoryStore(types.KindApplicant, testDim),
	}
	p, err := NewMatchingPipeline(&Components{
		Extractor:   fileTextExtractor{},
		Skills:      parser.NewLLMSkillExtractor(chat),
		Embedder:    parser.NewHashEmbedder(testDim),
		Internships: env.internships,
		Applicants:  env.applicants,
		Events:      events,
	}, nil, WithPipelineLogger(zerolog.Nop()), WithUploadDir(t.TempDir()))
	require.NoError(t, err)
	env.pipeline = p
	return env
}

func writeResume(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "resume-*.pdf")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

package parser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/kunal123thakur/job-matching/internal/agent"
	"github.com/kunal123thakur/job-matching/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSkillsOutput(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    []string
	}{
		{"plain object", `{"skills": ["Python", "SQL"]}`, []string{"Python", "SQL"}},
		{"code fence", "```json\n{\"skills\": [\" Go \", \"\", \"Docker\"]}\n```", []string{"Go", "Docker"}},
		{"prose around object", `Here you go: {"skills": ["Excel", "Power BI"]} hope this helps`, []string{"Excel", "Power BI"}},
		{"bare array", `["React", "Node.js"]`, []string{"React", "Node.js"}},
		{"empty list", `{"skills": []}`, []string{}},
		{"keeps duplicates", `{"skills": ["SQL", "SQL"]}`, []string{"SQL", "SQL"}},
		{"bom prefix", "\uFEFF{\"skills\": [\"Java\"]}", []string{"Java"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSkillsOutput(tc.content)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseSkillsOutput_Malformed(t *testing.T) {
	for _, content := range []string{
		"Python, SQL, Excel",
		`{"abilities": ["Python"]}`,
		`{"skills": "Python"}`,
		`{"skills": [`,
	} {
		_, err := ParseSkillsOutput(content)
		require.Error(t, err, content)
		assert.True(t, errors.Is(err, types.ErrMalformedModelOutput), content)
	}
}

func TestLLMSkillExtractor_ExtractSkills(t *testing.T) {
	mock := agent.NewMockChatClient(`{"skills": ["Python", "Machine Learning", "SQL"]}`, nil)
	extractor := NewLLMSkillExtractor(mock)

	skills, err := extractor.ExtractSkills(context.Background(), "Worked with Python,\n ML and SQL")
	require.NoError(t, err)
	assert.Equal(t, []string{"Python", "Machine Learning", "SQL"}, skills)

	received := mock.GetReceivedMessages()
	require.Len(t, received, 2)
	assert.Equal(t, schema.System, received[0].Role)
	assert.Contains(t, received[1].Content, "Extract ONLY the technical and professional skills")
	assert.Contains(t, received[1].Content, "Worked with Python, ML and SQL")
}

func TestLLMSkillExtractor_EmptyText(t *testing.T) {
	mock := agent.NewMockChatClient(`{"skills": []}`, nil)
	extractor := NewLLMSkillExtractor(mock)

	_, err := extractor.ExtractSkills(context.Background(), " \n\t ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrEmptyDocument))
	assert.Equal(t, 0, mock.CallCount(), "空文本不应调用模型")
}

func TestLLMSkillExtractor_MalformedResponse(t *testing.T) {
	extractor := NewLLMSkillExtractor(agent.NewMockChatClient("I could not find any skills.", nil))

	_, err := extractor.ExtractSkills(context.Background(), "some resume")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrMalformedModelOutput))
}

func TestLLMSkillExtractor_NoRetry(t *testing.T) {
	mock := agent.NewMockChatClientSequential([]agent.MockResponse{
		{Error: errors.New("upstream 500")},
		{Content: `{"skills": ["Go"]}`},
	})
	extractor := NewLLMSkillExtractor(mock)

	_, err := extractor.ExtractSkills(context.Background(), "resume")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream 500")
	assert.Equal(t, 1, mock.CallCount())
}

func TestLLMSkillExtractor_Timeout(t *testing.T) {
	mock := agent.NewMockChatClient(`{"skills": ["Go"]}`, nil)
	extractor := NewLLMSkillExtractor(mock)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := extractor.ExtractSkills(ctx, "resume")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrTimeout))
}

func TestLLMSkillExtractor_ExtraInstructions(t *testing.T) {
	mock := agent.NewMockChatClient(`{"skills": ["Go"]}`, nil)
	extractor := NewLLMSkillExtractor(mock, WithExtraInstructions("Prefer 100% canonical names."))

	_, err := extractor.ExtractSkills(context.Background(), "resume body")
	require.NoError(t, err)

	user := mock.GetReceivedMessages()[1].Content
	assert.Contains(t, user, "Prefer 100% canonical names.")
	assert.Less(t, strings.Index(user, "Prefer 100%"), strings.Index(user, "resume body"))
}

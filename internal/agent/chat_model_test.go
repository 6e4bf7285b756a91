package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAICompatibleChatModel_RequiresKey(t *testing.T) {
	_, err := NewOpenAICompatibleChatModel(ChatModelConfig{})
	require.Error(t, err)
}

func TestNewOpenAICompatibleChatModel_Defaults(t *testing.T) {
	m, err := NewOpenAICompatibleChatModel(ChatModelConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultChatAPIURL, m.apiURL)
	assert.Equal(t, DefaultChatModelName, m.modelName)
}

func TestOpenAICompatibleChatModel_Generate(t *testing.T) {
	var got chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"model": "gemma2-9b-it",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"skills\": [\"Go\"]}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	m, err := NewOpenAICompatibleChatModel(ChatModelConfig{
		APIKey:   "test-key",
		APIURL:   server.URL,
		JSONMode: true,
	})
	require.NoError(t, err)

	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("hello"),
	})
	require.NoError(t, err)

	assert.Equal(t, schema.Assistant, msg.Role)
	assert.Equal(t, `{"skills": ["Go"]}`, msg.Content)
	require.NotNil(t, msg.ResponseMeta)
	assert.Equal(t, 15, msg.ResponseMeta.Usage.TotalTokens)

	assert.Equal(t, DefaultChatModelName, got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[1].Content)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestOpenAICompatibleChatModel_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	m, err := NewOpenAICompatibleChatModel(ChatModelConfig{APIKey: "bad", APIURL: server.URL})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestOpenAICompatibleChatModel_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	m, err := NewOpenAICompatibleChatModel(ChatModelConfig{APIKey: "k", APIURL: server.URL})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
}

func TestMockChatClient_Sequential(t *testing.T) {
	m := NewMockChatClientSequential([]MockResponse{{Content: "a"}, {Content: "b"}})
	first, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("1")})
	require.NoError(t, err)
	second, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("2")})
	require.NoError(t, err)
	_, err = m.Generate(context.Background(), nil)
	require.Error(t, err)

	assert.Equal(t, "a", first.Content)
	assert.Equal(t, "b", second.Content)
	assert.Equal(t, 3, m.CallCount())
}

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/tracing"
	"github.com/rs/zerolog"
)

const (
	// DefaultChatAPIURL Groq 的 OpenAI 兼容接口
	DefaultChatAPIURL = "https://api.groq.com/openai/v1/chat/completions"
	// DefaultChatModelName 默认模型
	DefaultChatModelName = "gemma2-9b-it"
)

// ChatModelConfig OpenAI 兼容聊天模型的配置
type ChatModelConfig struct {
	APIKey      string
	APIURL      string
	Model       string
	Temperature float32
	MaxTokens   int
	// JSONMode 请求 response_format=json_object
	JSONMode   bool
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// OpenAICompatibleChatModel 实现 model.ToolCallingChatModel，对接任意 OpenAI 兼容的 chat/completions 接口
type OpenAICompatibleChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	temperature float32
	maxTokens   int
	jsonMode    bool
	httpClient  *http.Client
	logger      zerolog.Logger
	tools       []*schema.ToolInfo
}

// NewOpenAICompatibleChatModel 创建聊天模型客户端
func NewOpenAICompatibleChatModel(cfg ChatModelConfig) (*OpenAICompatibleChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	m := &OpenAICompatibleChatModel{
		apiKey:      cfg.APIKey,
		modelName:   cfg.Model,
		apiURL:      cfg.APIURL,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		jsonMode:    cfg.JSONMode,
		httpClient:  cfg.HTTPClient,
	}
	if strings.TrimSpace(m.modelName) == "" {
		m.modelName = DefaultChatModelName
	}
	if strings.TrimSpace(m.apiURL) == "" {
		m.apiURL = DefaultChatAPIURL
	}
	if m.httpClient == nil {
		m.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Logger != nil {
		m.logger = *cfg.Logger
	} else {
		m.logger = logger.Named("chat_model")
	}

	m.logger.Info().Str("api_url", m.apiURL).Str("model", m.modelName).Msg("大模型客户端已初始化")
	return m, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// Generate 实现 model.BaseChatModel 接口
func (m *OpenAICompatibleChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	common := model.GetCommonOptions(&model.Options{
		Temperature: &m.temperature,
		MaxTokens:   &m.maxTokens,
		Model:       &m.modelName,
	}, opts...)

	reqPayload := chatCompletionRequest{
		Model:    m.modelName,
		Messages: make([]chatMessage, 0, len(messages)),
	}
	if common.Model != nil && *common.Model != "" {
		reqPayload.Model = *common.Model
	}
	if common.Temperature != nil {
		t := *common.Temperature
		reqPayload.Temperature = &t
	}
	if common.MaxTokens != nil {
		reqPayload.MaxTokens = *common.MaxTokens
	}
	if m.jsonMode {
		reqPayload.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		reqPayload.Messages = append(reqPayload.Messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp chatCompletionResponse
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Error != nil {
			return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, errResp.Error.Message)
		}
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, tracing.TruncateString(string(bodyBytes), 512))
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项")
	}

	choice := resp.Choices[0]
	content := ""
	if choice.Message.Content != nil {
		content = *choice.Message.Content
	}
	role := schema.RoleType(choice.Message.Role)
	if role == "" {
		role = schema.Assistant
	}

	m.logger.Debug().
		Str("model", reqPayload.Model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Str("finish_reason", choice.FinishReason).
		Dur("duration", time.Since(start)).
		Msg("大模型调用完成")

	return &schema.Message{
		Role:    role,
		Content: content,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: choice.FinishReason,
			Usage: &schema.TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		},
	}, nil
}

// Stream 以单个分片返回完整结果
func (m *OpenAICompatibleChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools 返回绑定了工具的新实例；技能提取不使用工具调用，工具只做记录
func (m *OpenAICompatibleChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	clone := *m
	clone.tools = append([]*schema.ToolInfo(nil), tools...)
	return &clone, nil
}

var _ model.ToolCallingChatModel = (*OpenAICompatibleChatModel)(nil)

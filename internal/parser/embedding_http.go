package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/kunal123thakur/job-matching/internal/config"
	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/tracing"
	"github.com/kunal123thakur/job-matching/internal/types"
	"github.com/rs/zerolog"
)

// DimensionedEmbedder 在 eino Embedder 基础上暴露向量维度
type DimensionedEmbedder interface {
	embedding.Embedder
	GetDimensions() int
}

// HTTPEmbedder 实现 embedding.Embedder 接口，对接 OpenAI 兼容的 /embeddings 接口
type HTTPEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

// NewHTTPEmbedder 创建 OpenAI 兼容的向量客户端，apiKey 可以为空（本地推理服务）
func NewHTTPEmbedder(embeddingCfg config.EmbeddingConfig, httpClient *http.Client) (*HTTPEmbedder, error) {
	if strings.TrimSpace(embeddingCfg.APIURL) == "" {
		return nil, fmt.Errorf("embedding api_url 不能为空")
	}
	if embeddingCfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension 必须大于 0")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPEmbedder{
		apiKey:     embeddingCfg.APIKey,
		model:      embeddingCfg.Model,
		dimensions: embeddingCfg.Dimension,
		httpClient: httpClient,
		baseURL:    embeddingCfg.APIURL,
		logger:     logger.Named("http_embedder"),
	}, nil
}

// GetDimensions 返回嵌入器配置的维度
func (h *HTTPEmbedder) GetDimensions() int {
	return h.dimensions
}

// OpenAIEmbeddingRequest OpenAI 兼容的向量请求
type OpenAIEmbeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

// OpenAIEmbeddingResponse OpenAI 兼容的向量响应
type OpenAIEmbeddingResponse struct {
	Object string                 `json:"object"`
	Data   []OpenAIEmbeddingEntry `json:"data"`
	Model  string                 `json:"model"`
	Usage  OpenAIEmbeddingUsage   `json:"usage"`
	Error  *OpenAIEmbeddingError  `json:"error,omitempty"`
}

// OpenAIEmbeddingEntry 单条向量
type OpenAIEmbeddingEntry struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

// OpenAIEmbeddingUsage token 用量
type OpenAIEmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// OpenAIEmbeddingError 接口返回的错误
type OpenAIEmbeddingError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// EmbedStrings 将文本转换为向量, 实现 cloudwego/eino embedding.Embedder 接口
// 返回顺序与输入一致，维度与配置不符时报错
func (h *HTTPEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	options := embedding.GetCommonOptions(&embedding.Options{Model: &h.model}, opts...)
	effectiveModel := h.model
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	jsonData, err := json.Marshal(OpenAIEmbeddingRequest{
		Input:          texts,
		Model:          effectiveModel,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	start := time.Now()
	resp, err := h.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewTimeoutError("", "embed", err.Error())
		}
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	var parsed OpenAIEmbeddingResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
			return nil, fmt.Errorf("API调用失败, 状态码: %d, 类型: %s, 错误: %s", resp.StatusCode, parsed.Error.Type, parsed.Error.Message)
		}
		return nil, fmt.Errorf("API调用失败, 状态码: %d, 响应: %s", resp.StatusCode, tracing.TruncateString(string(body), 512))
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("解析响应JSON失败: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("API返回错误: 类型=%s, 消息='%s'", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("向量数量不匹配: 期望 %d, 实际 %d", len(texts), len(parsed.Data))
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	outputEmbeddings := make([][]float64, len(parsed.Data))
	for i, entry := range parsed.Data {
		if len(entry.Embedding) != h.dimensions {
			return nil, fmt.Errorf("向量维度不匹配: 期望 %d, 实际 %d", h.dimensions, len(entry.Embedding))
		}
		outputEmbeddings[i] = entry.Embedding
	}

	h.logger.Debug().
		Int("texts", len(texts)).
		Str("model", effectiveModel).
		Int("prompt_tokens", parsed.Usage.PromptTokens).
		Str("first_preview", truncateEmbedding(outputEmbeddings[0])).
		Dur("duration", time.Since(start)).
		Msg("向量生成完成")

	return outputEmbeddings, nil
}

// truncateEmbedding 截断嵌入向量的字符串表示形式
func truncateEmbedding(vector []float64) string {
	const maxLen = 6
	const showEachSide = 3

	if len(vector) <= maxLen {
		return fmt.Sprintf("%v", vector)
	}

	var truncated []string
	for i := 0; i < showEachSide; i++ {
		truncated = append(truncated, fmt.Sprintf("%.4f", vector[i]))
	}
	truncated = append(truncated, "...")
	for i := len(vector) - showEachSide; i < len(vector); i++ {
		truncated = append(truncated, fmt.Sprintf("%.4f", vector[i]))
	}
	return fmt.Sprintf("[%s]", strings.Join(truncated, ", "))
}

var _ DimensionedEmbedder = (*HTTPEmbedder)(nil)

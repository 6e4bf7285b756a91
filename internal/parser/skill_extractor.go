package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/tracing"
	"github.com/kunal123thakur/job-matching/internal/types"
	"github.com/rs/zerolog"
)

// DefaultSkillPromptTemplate 技能提取提示词，%s 为简历文本
const DefaultSkillPromptTemplate = `You are an expert HR assistant. Extract ONLY the technical and professional skills
from the following resume text. Normalize them into a clean list.

Respond with a single JSON object and nothing else, in exactly this shape:
{"skills": ["skill one", "skill two"]}

Resume:
%s`

const skillSystemMessage = "You extract skills from resumes and always answer with valid JSON."

// SkillsOutput 模型需要返回的结构
type SkillsOutput struct {
	Skills *[]string `json:"skills"`
}

// LLMSkillExtractor 调用大模型从简历文本中提取技能列表
type LLMSkillExtractor struct {
	llmModel       model.BaseChatModel
	promptTemplate string
	logger         zerolog.Logger
}

// SkillExtractorOption 技能提取器配置选项
type SkillExtractorOption func(*LLMSkillExtractor)

// WithSkillPromptTemplate 设置自定义提示词模板，模板中必须包含一个 %s
func WithSkillPromptTemplate(template string) SkillExtractorOption {
	return func(e *LLMSkillExtractor) {
		if strings.Contains(template, "%s") {
			e.promptTemplate = template
		}
	}
}

// WithExtraInstructions 在简历正文之前追加额外要求
func WithExtraInstructions(extra string) SkillExtractorOption {
	return func(e *LLMSkillExtractor) {
		extra = strings.TrimSpace(extra)
		if extra == "" {
			return
		}
		idx := strings.LastIndex(e.promptTemplate, "Resume:")
		if idx < 0 {
			idx = strings.LastIndex(e.promptTemplate, "%s")
		}
		if idx < 0 {
			return
		}
		e.promptTemplate = e.promptTemplate[:idx] + strings.ReplaceAll(extra, "%", "%%") + "\n\n" + e.promptTemplate[idx:]
	}
}

// WithSkillExtractorLogger 设置日志器
func WithSkillExtractorLogger(l zerolog.Logger) SkillExtractorOption {
	return func(e *LLMSkillExtractor) {
		e.logger = l
	}
}

// NewLLMSkillExtractor 创建技能提取器
func NewLLMSkillExtractor(llmModel model.BaseChatModel, options ...SkillExtractorOption) *LLMSkillExtractor {
	e := &LLMSkillExtractor{
		llmModel:       llmModel,
		promptTemplate: DefaultSkillPromptTemplate,
		logger:         logger.Named("skill_extractor"),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// ExtractSkills 从规范化后的简历文本中提取技能，不做重试
func (e *LLMSkillExtractor) ExtractSkills(ctx context.Context, resumeText string) ([]string, error) {
	if e.llmModel == nil {
		return nil, fmt.Errorf("LLMSkillExtractor: llmModel is not initialized")
	}
	resumeText = NormalizeText(resumeText)
	if resumeText == "" {
		return nil, types.NewEmptyDocumentError("", "extract_skills", "简历文本为空")
	}

	messages := []*einoschema.Message{
		einoschema.SystemMessage(skillSystemMessage),
		einoschema.UserMessage(fmt.Sprintf(e.promptTemplate, resumeText)),
	}

	start := time.Now()
	response, err := e.llmModel.Generate(ctx, messages)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.NewTimeoutError("", "extract_skills", err.Error())
		}
		e.logger.Error().Err(err).Msg("大模型调用失败")
		return nil, fmt.Errorf("LLMSkillExtractor: LLM call failed: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return nil, types.NewMalformedOutputError("", "extract_skills", "模型返回空内容")
	}

	skills, err := ParseSkillsOutput(response.Content)
	if err != nil {
		e.logger.Warn().
			Str("content", tracing.SafeDocumentContent(response.Content)).
			Msg("模型输出无法解析为技能列表")
		return nil, err
	}

	e.logger.Debug().
		Int("skills", len(skills)).
		Dur("duration", time.Since(start)).
		Msg("技能提取完成")
	return skills, nil
}

// ParseSkillsOutput 将模型输出解析为技能列表
// 接受 {"skills": [...]} 对象或裸 JSON 数组，其余情况返回 ErrMalformedModelOutput
func ParseSkillsOutput(content string) ([]string, error) {
	content = stripCodeFence(strings.TrimPrefix(content, "\uFEFF"))
	content = strings.ToValidUTF8(content, "")

	if obj := extractJSONBlock(content, '{', '}'); obj != "" {
		var out SkillsOutput
		err := json.Unmarshal([]byte(obj), &out)
		if err != nil {
			err = json.Unmarshal([]byte(sanitizeJSON(obj)), &out)
		}
		if err == nil && out.Skills != nil {
			return NormalizeSkills(*out.Skills), nil
		}
	}

	if arr := extractJSONBlock(content, '[', ']'); arr != "" {
		var skills []string
		if err := json.Unmarshal([]byte(arr), &skills); err == nil {
			return NormalizeSkills(skills), nil
		}
	}

	return nil, types.NewMalformedOutputError("", "extract_skills",
		"期望 {\"skills\": [...]}，实际: "+tracing.SafeDocumentContent(content))
}

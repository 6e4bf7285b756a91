package processor

import (
	"github.com/kunal123thakur/job-matching/internal/constants"
	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/storage"

	"github.com/rs/zerolog"
)

// Components 聚合所有功能组件依赖，便于集中管理和测试替换
type Components struct {
	// 核心组件接口
	Extractor DocumentExtractor // 文档第一页提取
	Skills    SkillExtractor    // 技能提取
	Embedder  TextEmbedder      // 文本向量化

	// 存储层依赖
	Internships storage.EntityStore
	Applicants  storage.EntityStore

	// 可选依赖
	Pool     *WorkerPool    // 为空时使用默认工作池
	Events   EventPublisher // 为空时不发布事件
	Archiver FileArchiver   // 为空时不归档候选人附件
}

// Settings 纯配置项，不包含任何业务逻辑组件
type Settings struct {
	ApplicantMatchK  int    // 申请人 -> 岗位 返回条数
	InternshipMatchK int    // 岗位 -> 申请人 返回条数
	UploadDir        string // 候选人上传文件目录
	Logger           zerolog.Logger
}

// SettingOpt 设置选项类型，仅改变 Settings 结构体内的字段
type SettingOpt func(*Settings)

// DefaultSettings 默认设置
func DefaultSettings() *Settings {
	return &Settings{
		ApplicantMatchK:  constants.DefaultApplicantMatchK,
		InternshipMatchK: constants.DefaultInternshipMatchK,
		UploadDir:        "uploads",
		Logger:           logger.Named("matching_pipeline"),
	}
}

// WithMatchK 设置两个方向的匹配条数，非正数保持原值
func WithMatchK(applicantK, internshipK int) SettingOpt {
	return func(s *Settings) {
		if applicantK > 0 {
			s.ApplicantMatchK = applicantK
		}
		if internshipK > 0 {
			s.InternshipMatchK = internshipK
		}
	}
}

// WithUploadDir 设置上传目录
func WithUploadDir(dir string) SettingOpt {
	return func(s *Settings) {
		if dir != "" {
			s.UploadDir = dir
		}
	}
}

// WithPipelineLogger 设置日志记录器
func WithPipelineLogger(l zerolog.Logger) SettingOpt {
	return func(s *Settings) {
		s.Logger = l
	}
}

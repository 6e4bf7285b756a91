package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// EmbeddingModulePrefix 向量模块
	EmbeddingModulePrefix = "embedding"

	// EntityVector 向量实体
	EntityVector = "vector"

	// KeyEmbeddingVector 文本向量缓存 (STRING, JSON 数组)
	// 格式: app:embedding:vector:{model}:{sha256(text)}
	KeyEmbeddingVector = AppPrefix + ":" + EmbeddingModulePrefix + ":" + EntityVector + ":%s:%s"
)

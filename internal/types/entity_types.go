package types

import (
	"encoding/json"
	"strconv"
	"time"
)

// EntityKind 实体类型：实习岗位或申请人
type EntityKind string

const (
	// KindInternship 实习岗位
	KindInternship EntityKind = "internship"
	// KindApplicant 申请人
	KindApplicant EntityKind = "applicant"
)

// Opposite 返回匹配时需要查询的对端实体类型
func (k EntityKind) Opposite() EntityKind {
	if k == KindApplicant {
		return KindInternship
	}
	return KindApplicant
}

// Valid 判断实体类型是否合法
func (k EntityKind) Valid() bool {
	return k == KindInternship || k == KindApplicant
}

// Metadata 实体的辅助字段，不同实体类型字段不同
type Metadata map[string]interface{}

// String 读取字符串字段，不存在或类型不符时返回空串
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return ""
	}
}

// Float 读取数值字段；JSON 反序列化后的数值统一为 float64
func (m Metadata) Float(key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Int 读取整数字段
func (m Metadata) Int(key string) (int, bool) {
	f, ok := m.Float(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Bool 读取布尔字段
func (m Metadata) Bool(key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

// Clone 浅拷贝元数据，避免调用方修改存储内的数据
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// EntityRecord 实体存储中的一条记录
type EntityRecord struct {
	ID            string     `json:"id"`
	Kind          EntityKind `json:"kind"`
	CanonicalText string     `json:"canonical_text"`
	Skills        []string   `json:"skills"`
	Embedding     []float32  `json:"embedding,omitempty"`
	Metadata      Metadata   `json:"metadata,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasEmbedding 记录是否带有向量，无向量的记录不参与近邻查询
func (r *EntityRecord) HasEmbedding() bool {
	return r != nil && len(r.Embedding) > 0
}

// Clone 深拷贝记录
func (r EntityRecord) Clone() EntityRecord {
	out := r
	if r.Skills != nil {
		out.Skills = append([]string(nil), r.Skills...)
	}
	if r.Embedding != nil {
		out.Embedding = append([]float32(nil), r.Embedding...)
	}
	out.Metadata = r.Metadata.Clone()
	return out
}

// Match 近邻查询结果，Distance 为余弦距离（1 - 余弦相似度）
type Match struct {
	Record   EntityRecord `json:"record"`
	Distance float64      `json:"distance"`
}

// Similarity 返回 1 - Distance
func (m Match) Similarity() float64 {
	return 1 - m.Distance
}

// Float64sToFloat32s 将 eino embedder 输出的 float64 向量转换为存储使用的 float32
func Float64sToFloat32s(in []float64) []float32 {
	if in == nil {
		return nil
	}
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

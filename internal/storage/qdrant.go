package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kunal123thakur/job-matching/internal/config"
	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/tracing"
	"github.com/kunal123thakur/job-matching/internal/types"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// 定义Qdrant的专用tracer
var qdrantTracer = otel.Tracer("job-matching/storage/qdrant")

// QdrantPointIDNamespace 生成确定性 point ID 的命名空间，同一实体总是映射到同一个点
var QdrantPointIDNamespace = uuid.Must(uuid.FromString("fd6c72c2-5a33-4b53-8e7c-8298f3f5a7e1"))

// scrollPageSize List 时每页拉取的点数
const scrollPageSize = 256

// Qdrant 基于 Qdrant REST API 的实体存储，每种实体一个集合
type Qdrant struct {
	endpoint       string
	apiKey         string
	collectionName string
	kind           types.EntityKind
	vectorSize     int
	distanceMetric string
	httpClient     *http.Client
	logger         zerolog.Logger
}

// QdrantOption 定义Qdrant构造函数选项
type QdrantOption func(*Qdrant)

// WithHttpTimeout 设置HTTP客户端超时
func WithHttpTimeout(timeout time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = &http.Client{Timeout: timeout}
	}
}

// WithQdrantLogger 设置日志器
func WithQdrantLogger(l zerolog.Logger) QdrantOption {
	return func(q *Qdrant) {
		q.logger = l
	}
}

// QdrantCollectionName 集合名: {prefix}_internships / {prefix}_applicants
func QdrantCollectionName(prefix string, kind types.EntityKind) string {
	if prefix == "" {
		prefix = "match"
	}
	return fmt.Sprintf("%s_%ss", prefix, kind)
}

// QdrantPointID 实体 ID 对应的 point ID
func QdrantPointID(kind types.EntityKind, entityID string) string {
	return uuid.NewV5(QdrantPointIDNamespace, string(kind)+":"+entityID).String()
}

// NewQdrant 创建某一实体类型的 Qdrant 存储，并确保集合存在
func NewQdrant(ctx context.Context, cfg *config.QdrantConfig, kind types.EntityKind, dimension int, opts ...QdrantOption) (*Qdrant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant配置不能为空")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("未知实体类型: %s", kind)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("向量维度必须大于 0")
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "http://localhost:6333"
	}

	q := &Qdrant{
		endpoint:       endpoint,
		apiKey:         cfg.APIKey,
		collectionName: QdrantCollectionName(cfg.CollectionPrefix, kind),
		kind:           kind,
		vectorSize:     dimension,
		distanceMetric: "Cosine",
		httpClient:     &http.Client{Timeout: config.GetDuration(cfg.Timeout, 30*time.Second)},
		logger:         logger.Named("qdrant"),
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.ensureCollectionExists(ctx); err != nil {
		return nil, types.NewStorageError("", "ensure_collection", fmt.Errorf("确保集合 '%s' 存在失败: %w", q.collectionName, err))
	}

	q.logger.Info().Str("endpoint", endpoint).Str("collection", q.collectionName).Msg("Qdrant 集合就绪")
	return q, nil
}

// Kind 返回存储的实体类型
func (q *Qdrant) Kind() types.EntityKind {
	return q.kind
}

// Close HTTP 客户端无需显式关闭
func (q *Qdrant) Close() error {
	if q == nil || q.httpClient == nil {
		return nil
	}
	q.httpClient.CloseIdleConnections()
	return nil
}

// qdrantStatusError 非 2xx 响应
type qdrantStatusError struct {
	StatusCode int
	Body       string
}

func (e *qdrantStatusError) Error() string {
	return fmt.Sprintf("qdrant API error: status=%d, body=%s", e.StatusCode, e.Body)
}

// ensureCollectionExists 确保向量集合存在，维度或距离不一致时只告警
func (q *Qdrant) ensureCollectionExists(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.EnsureCollectionExists",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "check_collection"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("db.vector_size", q.vectorSize),
	)

	var collectionInfo struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	err := q.doRequest(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", q.collectionName), nil, &collectionInfo)
	var statusErr *qdrantStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		span.AddEvent("collection_not_found")
		q.logger.Info().Str("collection", q.collectionName).Msg("集合不存在，将创建新集合")
		return q.createCollection(ctx)
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}

	existingSize := collectionInfo.Result.Config.Params.Vectors.Size
	existingDistance := collectionInfo.Result.Config.Params.Vectors.Distance
	if existingSize != q.vectorSize || existingDistance != q.distanceMetric {
		q.logger.Warn().
			Int("existing_size", existingSize).
			Str("existing_distance", existingDistance).
			Int("expected_size", q.vectorSize).
			Str("expected_distance", q.distanceMetric).
			Msg("现有集合配置与当前配置不匹配")
		span.AddEvent("collection_config_mismatch")
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// createCollection 创建新的向量集合
func (q *Qdrant) createCollection(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.CreateCollection",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "create_collection"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("db.vector_size", q.vectorSize),
		attribute.String("db.vector.distance", q.distanceMetric),
	)

	createReqBody := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.vectorSize,
			"distance": q.distanceMetric,
		},
	}
	if err := q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", q.collectionName), createReqBody, nil); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}

	span.SetStatus(codes.Ok, "")
	q.logger.Info().Str("collection", q.collectionName).Int("dimension", q.vectorSize).Msg("已创建Qdrant集合")
	return nil
}

// qdrantPayload 点上携带的实体数据
type qdrantPayload struct {
	EntityID      string         `json:"entity_id"`
	Kind          string         `json:"kind"`
	CanonicalText string         `json:"canonical_text"`
	Skills        []string       `json:"skills"`
	Metadata      types.Metadata `json:"metadata,omitempty"`
	UpdatedAt     string         `json:"updated_at"`
	// Cosine 集合会把点向量归一化，原始向量另存一份以便原样读回
	Embedding []float32 `json:"embedding,omitempty"`
}

// qdrantPoint 检索/滚动/搜索返回的点
type qdrantPoint struct {
	ID      interface{}   `json:"id"`
	Score   float64       `json:"score"`
	Payload qdrantPayload `json:"payload"`
	Vector  []float32     `json:"vector"`
}

func (p qdrantPoint) toRecord(kind types.EntityKind) types.EntityRecord {
	rec := types.EntityRecord{
		ID:            p.Payload.EntityID,
		Kind:          kind,
		CanonicalText: p.Payload.CanonicalText,
		Skills:        p.Payload.Skills,
		Embedding:     p.Payload.Embedding,
		Metadata:      p.Payload.Metadata,
	}
	if len(rec.Embedding) == 0 {
		rec.Embedding = p.Vector
	}
	if rec.Skills == nil {
		rec.Skills = []string{}
	}
	if t, err := time.Parse(time.RFC3339Nano, p.Payload.UpdatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return rec
}

// Upsert 写入一个点，wait=true 保证返回时已可检索；Qdrant 要求点带向量
func (q *Qdrant) Upsert(ctx context.Context, rec types.EntityRecord) error {
	if err := validateRecord(rec, q.kind, q.vectorSize); err != nil {
		return err
	}
	if !rec.HasEmbedding() {
		return types.NewValidationError(rec.ID, "upsert", "Qdrant 存储要求记录带向量")
	}

	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Upsert", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "upsert_points"),
		attribute.String("db.collection", q.collectionName),
		attribute.String("entity.id", rec.ID),
	)

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	skills := rec.Skills
	if skills == nil {
		skills = []string{}
	}

	reqBody := map[string]interface{}{
		"points": []map[string]interface{}{{
			"id":     QdrantPointID(q.kind, rec.ID),
			"vector": rec.Embedding,
			"payload": qdrantPayload{
				EntityID:      rec.ID,
				Kind:          string(q.kind),
				CanonicalText: rec.CanonicalText,
				Skills:        skills,
				Metadata:      rec.Metadata,
				UpdatedAt:     updatedAt.Format(time.RFC3339Nano),
				Embedding:     rec.Embedding,
			},
		}},
	}

	if err := q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", q.collectionName), reqBody, nil); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return wrapStorageErr(rec.ID, "upsert", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Get 按实体 ID 检索点
func (q *Qdrant) Get(ctx context.Context, id string) (*types.EntityRecord, error) {
	if id == "" {
		return nil, types.NewValidationError("", "get", "实体 ID 不能为空")
	}

	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Get", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "retrieve_points"),
		attribute.String("db.collection", q.collectionName),
		attribute.String("entity.id", id),
	)

	reqBody := map[string]interface{}{
		"ids":          []string{QdrantPointID(q.kind, id)},
		"with_payload": true,
		"with_vector":  true,
	}
	var result struct {
		Result []qdrantPoint `json:"result"`
	}
	if err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points", q.collectionName), reqBody, &result); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, wrapStorageErr(id, "get", err)
	}
	if len(result.Result) == 0 {
		span.SetAttributes(attribute.Bool("entity.found", false))
		return nil, types.NewNotFoundError(id, "get")
	}

	rec := result.Result[0].toRecord(q.kind)
	span.SetStatus(codes.Ok, "")
	return &rec, nil
}

// Nearest 余弦相似度搜索，score 转换为距离 1 - score
func (q *Qdrant) Nearest(ctx context.Context, vec []float32, k int) ([]types.Match, error) {
	if err := validateQuery(vec, k, q.vectorSize); err != nil {
		return nil, err
	}

	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Nearest", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "search_vectors"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("search.limit", k),
	)

	searchReq := map[string]interface{}{
		"vector":       vec,
		"limit":        k,
		"with_payload": true,
		"with_vector":  true,
	}
	var result struct {
		Result []qdrantPoint `json:"result"`
		Status string        `json:"status"`
		Time   float64       `json:"time"`
	}
	if err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.collectionName), searchReq, &result); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, wrapStorageErr("", "nearest", err)
	}

	matches := make([]types.Match, 0, len(result.Result))
	for _, point := range result.Result {
		matches = append(matches, types.Match{
			Record:   point.toRecord(q.kind),
			Distance: scoreToDistance(point.Score),
		})
	}
	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}

	span.SetAttributes(
		attribute.Int("search.results.count", len(matches)),
		attribute.Float64("qdrant.response_time", result.Time),
	)
	span.SetStatus(codes.Ok, "")
	return matches, nil
}

// scoreToDistance Cosine 集合返回余弦相似度
func scoreToDistance(score float64) float64 {
	d := 1 - score
	if d < 0 {
		return 0
	}
	if d > 2 {
		return 2
	}
	return d
}

// List 滚动读取全部点后按实体 ID 排序分页
// TODO: 数据量大时改为按 entity_id 建 payload 索引并用 order_by 分页
func (q *Qdrant) List(ctx context.Context, offset, limit int) ([]types.EntityRecord, error) {
	if err := validatePage(offset, limit); err != nil {
		return nil, err
	}

	ctx, span := qdrantTracer.Start(ctx, "Qdrant.List", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "scroll"),
		attribute.String("db.collection", q.collectionName),
	)

	var all []types.EntityRecord
	var next interface{}
	for {
		scrollReq := map[string]interface{}{
			"limit":        scrollPageSize,
			"with_payload": true,
			"with_vector":  true,
		}
		if next != nil {
			scrollReq["offset"] = next
		}
		var scrollResp struct {
			Result struct {
				Points         []qdrantPoint `json:"points"`
				NextPageOffset interface{}   `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/scroll", q.collectionName), scrollReq, &scrollResp); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return nil, wrapStorageErr("", "list", err)
		}
		for _, p := range scrollResp.Result.Points {
			all = append(all, p.toRecord(q.kind))
		}
		next = scrollResp.Result.NextPageOffset
		if next == nil || len(scrollResp.Result.Points) == 0 {
			break
		}
	}

	sortRecordsByID(all)
	span.SetAttributes(attribute.Int("scroll.total", len(all)))
	span.SetStatus(codes.Ok, "")
	return pageRecords(all, offset, limit), nil
}

func (q *Qdrant) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	ctx, span := qdrantTracer.Start(ctx, fmt.Sprintf("%s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", path),
	)

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
		reader = bytes.NewReader(jsonBody)
		span.SetAttributes(attribute.Int("http.request.body.size", len(jsonBody)))
	}

	req, err := http.NewRequestWithContext(ctx, method, q.endpoint+path, reader)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	// 注入trace context
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := q.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ClassifyError(err, tracing.ErrorTypeHTTP))
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = &qdrantStatusError{StatusCode: resp.StatusCode, Body: tracing.TruncateString(string(respBody), 512)}
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return err
	}

	if result != nil && len(respBody) > 0 {
		if err = json.Unmarshal(respBody, result); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

var _ EntityStore = (*Qdrant)(nil)

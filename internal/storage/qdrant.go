package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"resume-screener-go/internal/config"
	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/tracing"
)

var qdrantTracer = otel.Tracer("resume-screener-go/storage/qdrant")

// QdrantPointIDNamespace 生成确定性point ID的专用命名空间。
// 同一候选人的同一分块总是得到相同的point ID，保证重复入库幂等。
var QdrantPointIDNamespace = uuid.Must(uuid.FromString("9c1f27d4-83b6-4f0a-ae2b-6d54c0c1f3b7"))

// VectorStore 向量库接口，检索与入库都通过它访问Qdrant
type VectorStore interface {
	// AddDocuments 向量化并存储候选人文档分块，返回生成的point ID
	AddDocuments(ctx context.Context, candidateID string, chunks []string, metadata map[string]string) ([]string, error)

	// SimilaritySearchWithScore 按查询文本做相似度检索，结果按相似度降序
	SimilaritySearchWithScore(ctx context.Context, query string, limit int) ([]ScoredDocument, error)

	// DeletePoints 删除指定的向量点
	DeletePoints(ctx context.Context, pointIDs []string) error
}

var _ VectorStore = (*Qdrant)(nil)

// ScoredDocument 一条带相似度分数的检索命中
type ScoredDocument struct {
	ID       string                 // point ID
	Score    float64                // 相似度分数，越高越相似
	Content  string                 // 分块文本
	Metadata map[string]interface{} // 载荷中的其余字段
}

// Qdrant 通过HTTP API访问Qdrant的向量库适配器
type Qdrant struct {
	endpoint       string
	collectionName string
	vectorSize     int
	distanceMetric string
	scoreThreshold float64
	httpClient     *http.Client
	embedder       embedding.Embedder

	ensureOnce sync.Once
	ensureErr  error
}

// QdrantOption Qdrant构造函数选项
type QdrantOption func(*Qdrant)

// WithDistanceMetric 设置距离度量
func WithDistanceMetric(metric string) QdrantOption {
	return func(q *Qdrant) {
		q.distanceMetric = metric
	}
}

// WithHTTPTimeout 设置HTTP客户端超时
func WithHTTPTimeout(timeout time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = &http.Client{Timeout: timeout}
	}
}

// NewQdrant 创建Qdrant适配器。不在构造时访问网络，
// 集合的存在性在首次使用时通过一次性守卫确认。
func NewQdrant(cfg *config.QdrantConfig, embedder embedding.Embedder, opts ...QdrantOption) (*Qdrant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant配置不能为空")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder不能为空")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:6333"
	}
	collectionName := cfg.Collection
	if collectionName == "" {
		collectionName = "candidates"
	}
	vectorSize := cfg.Dimension
	if vectorSize <= 0 {
		vectorSize = 1024 // 与阿里云Embedding默认维度一致
	}

	q := &Qdrant{
		endpoint:       endpoint,
		collectionName: collectionName,
		vectorSize:     vectorSize,
		distanceMetric: "Cosine",
		scoreThreshold: cfg.ScoreThreshold,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		embedder:       embedder,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// ensureCollection 一次性确认集合存在，不存在则创建。并发首次调用安全。
func (q *Qdrant) ensureCollection(ctx context.Context) error {
	q.ensureOnce.Do(func() {
		q.ensureErr = q.checkOrCreateCollection(ctx)
	})
	return q.ensureErr
}

func (q *Qdrant) checkOrCreateCollection(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.EnsureCollection",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "check_collection"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("db.vector_size", q.vectorSize),
	)

	url := fmt.Sprintf("%s/collections/%s", q.endpoint, q.collectionName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("创建检查集合请求失败: %w", err)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := q.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("发送检查集合请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		span.AddEvent("collection_not_found", trace.WithAttributes(
			attribute.String("action", "create_collection"),
		))
		return q.createCollection(ctx)
	} else if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("检查集合失败，状态码: %d, 响应: %s", resp.StatusCode, string(body))
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}

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
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("读取集合信息响应失败: %w", err)
	}
	if err := json.Unmarshal(body, &collectionInfo); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("解析集合信息失败: %w", err)
	}

	existingSize := collectionInfo.Result.Config.Params.Vectors.Size
	existingDistance := collectionInfo.Result.Config.Params.Vectors.Distance
	if existingSize != q.vectorSize || existingDistance != q.distanceMetric {
		logger.Warn().
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
		"optimizers_config": map[string]interface{}{
			"default_segment_number": 2,
		},
	}

	if err := q.doRequest(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s", q.collectionName), createReqBody, nil); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("创建集合失败: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	logger.Info().Str("collection", q.collectionName).Int("dimension", q.vectorSize).
		Msg("已创建Qdrant集合")
	return nil
}

// AddDocuments 向量化候选人文档分块并写入集合。
// point ID由候选人ID和分块序号经UUID5派生，重复提交自然幂等。
func (q *Qdrant) AddDocuments(ctx context.Context, candidateID string, chunks []string, metadata map[string]string) ([]string, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.AddDocuments",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "upsert_points"),
		attribute.String("db.collection", q.collectionName),
		attribute.String("candidate.id", candidateID),
		attribute.Int("chunks.count", len(chunks)),
	)

	if len(chunks) == 0 {
		span.SetStatus(codes.Ok, "no chunks to store")
		return []string{}, nil
	}

	if err := q.ensureCollection(ctx); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("确保集合存在失败: %w", err)
	}

	embeddings, err := q.embedder.EmbedStrings(ctx, chunks)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("分块向量化失败: %w", err)
	}
	if len(embeddings) != len(chunks) {
		err := fmt.Errorf("embedding数量(%d)与分块数量(%d)不匹配", len(embeddings), len(chunks))
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	points := make([]interface{}, 0, len(chunks))
	ids := make([]string, 0, len(chunks))
	for i, vector := range embeddings {
		if len(vector) != q.vectorSize {
			err := fmt.Errorf("向量维度(%d)与配置维度(%d)不匹配", len(vector), q.vectorSize)
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return nil, err
		}

		idSource := fmt.Sprintf("candidate_id:%s_chunk:%d", candidateID, i)
		pointID := uuid.NewV5(QdrantPointIDNamespace, idSource).String()
		ids = append(ids, pointID)

		payload := map[string]interface{}{
			"candidate_id": candidateID,
			"chunk_index":  i,
			"content_text": chunks[i],
			"source":       "resume",
		}
		for k, v := range metadata {
			payload[k] = v
		}

		points = append(points, map[string]interface{}{
			"id":      pointID,
			"vector":  vector,
			"payload": payload,
		})
	}

	requestBody := map[string]interface{}{"points": points}
	var response struct {
		Result struct {
			Status string `json:"status"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}
	if err := q.doRequest(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s/points?wait=true", q.collectionName),
		requestBody, &response); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("points.count", len(points)),
		attribute.String("qdrant.response_status", response.Status),
		attribute.Float64("qdrant.response_time", response.Time),
	)
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

// SimilaritySearchWithScore 将查询文本向量化后做相似度检索。
// 低于scoreThreshold的命中被丢弃；结果保持Qdrant的降序排序，不重排。
func (q *Qdrant) SimilaritySearchWithScore(ctx context.Context, query string, limit int) ([]ScoredDocument, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.SimilaritySearchWithScore",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "search_points"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("search.limit", limit),
	)

	if limit <= 0 {
		limit = 10
	}

	if err := q.ensureCollection(ctx); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("确保集合存在失败: %w", err)
	}

	vectors, err := q.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) != q.vectorSize {
		err := fmt.Errorf("查询向量维度异常")
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	searchReq := map[string]interface{}{
		"vector":       vectors[0],
		"limit":        limit,
		"with_payload": true,
	}
	if q.scoreThreshold > 0 {
		searchReq["score_threshold"] = q.scoreThreshold
	}

	var result struct {
		Result []struct {
			ID      string                 `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}
	if err := q.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/search", q.collectionName),
		searchReq, &result); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	docs := make([]ScoredDocument, 0, len(result.Result))
	for _, point := range result.Result {
		content, _ := point.Payload["content_text"].(string)
		score := point.Score
		if score == 0 {
			score = legacyScoreFromPayload(point.Payload)
		}
		docs = append(docs, ScoredDocument{
			ID:       point.ID,
			Score:    score,
			Content:  content,
			Metadata: point.Payload,
		})
	}

	span.SetAttributes(
		attribute.Int("search.results.count", len(docs)),
		attribute.String("qdrant.response_status", result.Status),
		attribute.Float64("qdrant.response_time", result.Time),
	)
	span.SetStatus(codes.Ok, "")
	return docs, nil
}

// DeletePoints 删除指定ID的向量点
func (q *Qdrant) DeletePoints(ctx context.Context, pointIDs []string) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.DeletePoints",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "delete_points"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("points.count", len(pointIDs)),
	)

	if len(pointIDs) == 0 {
		span.SetStatus(codes.Ok, "no points to delete")
		return nil
	}

	reqBody := map[string]interface{}{"points": pointIDs}
	if err := q.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collectionName),
		reqBody, nil); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CountPoints 统计集合中的向量点数量
func (q *Qdrant) CountPoints(ctx context.Context) (int64, error) {
	var result struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	err := q.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/count", q.collectionName),
		map[string]interface{}{"exact": true}, &result)
	if err != nil {
		return 0, err
	}
	return result.Result.Count, nil
}

var legacyScorePattern = regexp.MustCompile(`Score:\s*([0-9]*\.?[0-9]+)`)

// legacyScoreFromPayload 从历史载荷的摘要字段中提取"Score: X"形式的分数。
//
// Deprecated: 仅为兼容不携带原生分数的旧数据保留，当前写入路径总有分数。
func legacyScoreFromPayload(payload map[string]interface{}) float64 {
	summary, _ := payload["summary"].(string)
	if summary == "" {
		return 0
	}
	matches := legacyScorePattern.FindStringSubmatch(summary)
	if len(matches) != 2 {
		return 0
	}
	score, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0
	}
	// 历史数据中常见百分制分数，归一化到相似度区间
	if score > 1 {
		score /= 100
	}
	return score
}

// doRequest 执行一次Qdrant HTTP调用并解析响应，每次调用生成一个client span
func (q *Qdrant) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	ctx, span := qdrantTracer.Start(ctx, fmt.Sprintf("%s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", path),
	)

	var req *http.Request
	var err error
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
		req, err = http.NewRequestWithContext(ctx, method, q.endpoint+path, bytes.NewBuffer(jsonBody))
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		span.SetAttributes(attribute.Int("http.request.body.size", len(jsonBody)))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, q.endpoint+path, nil)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := q.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return err
	}
	span.SetAttributes(attribute.Int("http.response.body.size", len(respBody)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("qdrant API error: status=%d, body=%s", resp.StatusCode, string(respBody))
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

package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/storage"
	"resume-screener-go/internal/types"
)

// RetrievedCandidate 一次语义召回命中的候选人及其相似度
type RetrievedCandidate struct {
	Record types.CandidateRecord
	Score  float64
}

// Retriever 候选人召回器：用条件增强的查询串做相似度检索，
// 并把向量库的分块命中聚合回候选人粒度。
type Retriever struct {
	store        storage.VectorStore
	defaultLimit int
}

// NewRetriever 创建候选人召回器
func NewRetriever(store storage.VectorStore, defaultLimit int) *Retriever {
	if defaultLimit <= 0 {
		defaultLimit = 5
	}
	return &Retriever{
		store:        store,
		defaultLimit: defaultLimit,
	}
}

// BuildEnrichedQuery 将结构化条件序列化为检索增强查询串。
// 字段按固定顺序拼接：职位、资历、技能、最低年限、公司、学位、专业、地点、软技能，
// 以 " | " 连接。条件为空（或nil）时原样返回原始查询。
func BuildEnrichedQuery(criteria *types.SearchCriteria, rawQuery string) string {
	if criteria.IsEmpty() {
		return rawQuery
	}

	var parts []string

	if criteria.Position != nil {
		if criteria.Position.Title != "" {
			parts = append(parts, criteria.Position.Title)
		}
		if criteria.Position.Seniority != "" {
			parts = append(parts, string(criteria.Position.Seniority))
		}
	}

	for _, skill := range criteria.Skills {
		rendered := skill.Name
		if skill.MinSeniority != "" {
			rendered += fmt.Sprintf(" (%s)", skill.MinSeniority)
		}
		if skill.Category != "" {
			rendered += fmt.Sprintf(" [%s]", skill.Category)
		}
		parts = append(parts, rendered)
	}

	if criteria.Experience.MinYears > 0 {
		parts = append(parts, fmt.Sprintf("%g+ years experience", criteria.Experience.MinYears))
	}
	parts = append(parts, criteria.Experience.Companies...)

	if criteria.Education.Degree != "" {
		parts = append(parts, criteria.Education.Degree)
	}
	if criteria.Education.Field != "" {
		parts = append(parts, criteria.Education.Field)
	}

	if criteria.Location != "" {
		parts = append(parts, criteria.Location)
	}
	parts = append(parts, criteria.SoftSkills...)

	if len(parts) == 0 {
		return rawQuery
	}
	return strings.Join(parts, " | ")
}

// Retrieve 执行相似度检索并按候选人聚合命中结果。
// 返回顺序沿用向量库的相似度降序，不做二次排序；
// 同一候选人的多个分块命中合并为一条，相似度取其最高分块。
func (r *Retriever) Retrieve(ctx context.Context, criteria *types.SearchCriteria, rawQuery string, limit int) ([]RetrievedCandidate, string, error) {
	if limit <= 0 {
		limit = r.defaultLimit
	}

	query := BuildEnrichedQuery(criteria, rawQuery)
	if query != rawQuery {
		logger.Debug().Str("enriched_query", query).Msg("使用条件增强查询检索")
	}

	docs, err := r.store.SimilaritySearchWithScore(ctx, query, limit)
	if err != nil {
		return nil, query, fmt.Errorf("相似度检索失败: %w", err)
	}

	return groupByCandidate(docs), query, nil
}

// RawSearch 不做候选人聚合的裸分块检索，用于针对简历内容的自由问答
func (r *Retriever) RawSearch(ctx context.Context, query string, limit int) ([]storage.ScoredDocument, error) {
	if limit <= 0 {
		limit = r.defaultLimit
	}
	docs, err := r.store.SimilaritySearchWithScore(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("相似度检索失败: %w", err)
	}
	return docs, nil
}

// groupByCandidate 将分块命中按候选人聚合，保持首次出现的顺序
func groupByCandidate(docs []storage.ScoredDocument) []RetrievedCandidate {
	type aggregate struct {
		index  int
		score  float64
		chunks []storage.ScoredDocument
	}

	byID := make(map[string]*aggregate)
	var order []string

	for _, doc := range docs {
		candidateID, _ := doc.Metadata["candidate_id"].(string)
		if candidateID == "" {
			// 没有候选人标识的点无法聚合，按独立记录处理
			candidateID = doc.ID
		}

		agg, ok := byID[candidateID]
		if !ok {
			agg = &aggregate{index: len(order), score: doc.Score}
			byID[candidateID] = agg
			order = append(order, candidateID)
		}
		if doc.Score > agg.score {
			agg.score = doc.Score
		}
		agg.chunks = append(agg.chunks, doc)
	}

	results := make([]RetrievedCandidate, 0, len(order))
	for _, candidateID := range order {
		agg := byID[candidateID]

		// 分块按摄取时的下标重组文档
		sort.SliceStable(agg.chunks, func(i, j int) bool {
			return chunkIndex(agg.chunks[i]) < chunkIndex(agg.chunks[j])
		})

		var sb strings.Builder
		metadata := make(map[string]string)
		for _, chunk := range agg.chunks {
			sb.WriteString(chunk.Content)
			for k, v := range chunk.Metadata {
				if k == "candidate_id" || k == "chunk_index" || k == "content_text" {
					continue
				}
				if s, ok := v.(string); ok {
					metadata[k] = s
				}
			}
		}
		metadata["candidate_id"] = candidateID

		results = append(results, RetrievedCandidate{
			Record: types.CandidateRecord{
				ID:       candidateID,
				Document: sb.String(),
				Metadata: metadata,
			},
			Score: agg.score,
		})
	}
	return results
}

func chunkIndex(doc storage.ScoredDocument) int {
	switch v := doc.Metadata["chunk_index"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

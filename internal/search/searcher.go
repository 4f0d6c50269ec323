package search

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"time"

	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/processor"
	"resume-screener-go/internal/storage"
	"resume-screener-go/internal/types"
)

// 返回给调用方的内容预览长度（按字符计）
const contentPreviewRunes = 200

// QueryParser 把自由文本查询解析为结构化检索条件，失败时返回nil
type QueryParser interface {
	Parse(ctx context.Context, query string) *types.SearchCriteria
}

// MatchScorer 对单个候选人产出匹配评估，失败时内部降级、永不返回nil
type MatchScorer interface {
	Score(ctx context.Context, criteria *types.SearchCriteria, candidate *types.StructuredResume, originalQuery string, semanticScore float64) *types.MatchAssessment
}

// Searcher 检索编排器：解析条件 → 语义召回 → 并发打分 → 聚合结果。
// 解析与打分失败均在内部降级，只有输入校验与召回失败才对调用方报错。
type Searcher struct {
	parser    QueryParser
	retriever *Retriever
	scorer    MatchScorer

	maxConcurrency int
	searchLog      *storage.MySQL
}

// SearcherOption 编排器配置选项
type SearcherOption func(*Searcher)

// WithMaxConcurrency 设置并发打分上限
func WithMaxConcurrency(n int) SearcherOption {
	return func(s *Searcher) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// WithSearchLog 启用检索日志落库
func WithSearchLog(m *storage.MySQL) SearcherOption {
	return func(s *Searcher) {
		s.searchLog = m
	}
}

// NewSearcher 创建检索编排器
func NewSearcher(parser QueryParser, retriever *Retriever, scorer MatchScorer, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		parser:         parser,
		retriever:      retriever,
		scorer:         scorer,
		maxConcurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search 执行一次完整的查询到排名候选人流水线。
// 候选人顺序沿用召回顺序，并发打分不改变排列。
func (s *Searcher) Search(ctx context.Context, query string, limit int) (*types.SearchResult, error) {
	return s.SearchWithStructured(ctx, query, limit, true)
}

// SearchWithStructured 与 Search 相同，但可跳过结构化条件解析，
// 直接用原始查询做语义检索
func (s *Searcher) SearchWithStructured(ctx context.Context, query string, limit int, useStructured bool) (*types.SearchResult, error) {
	if !hasContent(query) {
		return nil, processor.NewValidationError("query", "查询内容为空")
	}

	started := time.Now()

	var criteria *types.SearchCriteria
	if useStructured && s.parser != nil {
		criteria = s.parser.Parse(ctx, query)
	}

	retrieved, enrichedQuery, err := s.retriever.Retrieve(ctx, criteria, query, limit)
	if err != nil {
		return nil, err
	}

	candidates, err := s.scoreAll(ctx, criteria, query, retrieved)
	if err != nil {
		return nil, err
	}

	result := &types.SearchResult{
		TotalResults:      len(candidates),
		AverageConfidence: averageConfidence(candidates),
		Query:             enrichedQuery,
		OriginalQuery:     query,
		ParsedCriteria:    criteria,
		Candidates:        candidates,
	}

	if s.searchLog != nil {
		s.searchLog.RecordSearch(ctx, query, criteria, result.TotalResults, result.AverageConfidence, time.Since(started))
	}

	logger.Info().
		Str("query", query).
		Int("results", result.TotalResults).
		Int("average_confidence", result.AverageConfidence).
		Dur("duration", time.Since(started)).
		Msg("检索完成")
	return result, nil
}

// GetInformation 不经过候选人聚合与打分，直接返回与问题最相关的简历片段
func (s *Searcher) GetInformation(ctx context.Context, question string, limit int) ([]storage.ScoredDocument, error) {
	if !hasContent(question) {
		return nil, processor.NewValidationError("question", "问题内容为空")
	}
	return s.retriever.RawSearch(ctx, question, limit)
}

// scoreAll 对召回的候选人做有界并发打分，结果按下标写回以保持召回顺序
func (s *Searcher) scoreAll(ctx context.Context, criteria *types.SearchCriteria, originalQuery string, retrieved []RetrievedCandidate) ([]types.ScoredCandidate, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	candidates := make([]types.ScoredCandidate, len(retrieved))
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for i, rc := range retrieved {
		wg.Add(1)
		go func(i int, rc RetrievedCandidate) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			candidates[i] = s.scoreCandidate(ctx, criteria, originalQuery, rc)
		}(i, rc)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// scoreCandidate 为单个候选人生成评估。文档反序列化失败降级为空结构，不中断流水线。
func (s *Searcher) scoreCandidate(ctx context.Context, criteria *types.SearchCriteria, originalQuery string, rc RetrievedCandidate) types.ScoredCandidate {
	resume := &types.StructuredResume{}
	if err := json.Unmarshal([]byte(rc.Record.Document), resume); err != nil {
		logger.Warn().Err(err).Str("candidate_id", rc.Record.ID).Msg("候选人文档反序列化失败，按空结构打分")
		resume = &types.StructuredResume{}
	}

	assessment := s.scorer.Score(ctx, criteria, resume, originalQuery, rc.Score)

	return types.ScoredCandidate{
		ID:               rc.Record.ID,
		Name:             rc.Record.Metadata["name"],
		Title:            rc.Record.Metadata["title"],
		Summary:          rc.Record.Metadata["summary"],
		Content:          truncateRunes(rc.Record.Document, contentPreviewRunes),
		Confidence:       assessment.Percentage,
		RawScore:         rc.Score,
		MatchExplanation: assessment.Explanation,
		MatchDetails:     assessment.Details,
	}
}

// averageConfidence 计算候选人置信度的四舍五入整数均值，空列表为0
func averageConfidence(candidates []types.ScoredCandidate) int {
	if len(candidates) == 0 {
		return 0
	}
	total := 0
	for _, c := range candidates {
		total += c.Confidence
	}
	return int(math.Round(float64(total) / float64(len(candidates))))
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}

func hasContent(s string) bool {
	return strings.TrimSpace(s) != ""
}

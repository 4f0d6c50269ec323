package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-screener-go/internal/processor"
	"resume-screener-go/internal/storage"
	"resume-screener-go/internal/types"
)

type stubParser struct {
	criteria *types.SearchCriteria
}

func (p *stubParser) Parse(ctx context.Context, query string) *types.SearchCriteria {
	return p.criteria
}

// stubScorer 置信度 = 语义得分*100；记录收到的候选人名用于断言降级行为
type stubScorer struct {
	mu       sync.Mutex
	gotNames []string
	delays   map[string]time.Duration
}

func (s *stubScorer) Score(ctx context.Context, criteria *types.SearchCriteria, candidate *types.StructuredResume, originalQuery string, semanticScore float64) *types.MatchAssessment {
	s.mu.Lock()
	s.gotNames = append(s.gotNames, candidate.PersonalInformation.Name)
	s.mu.Unlock()

	if d, ok := s.delays[candidate.PersonalInformation.Name]; ok {
		time.Sleep(d)
	}

	return &types.MatchAssessment{
		Percentage:  int(semanticScore * 100),
		Explanation: "测试评估",
	}
}

func candidateDoc(t *testing.T, name string) string {
	t.Helper()
	doc, err := json.Marshal(&types.StructuredResume{
		PersonalInformation: types.PersonalInformation{Name: name},
	})
	require.NoError(t, err)
	return string(doc)
}

func storeWithCandidates(t *testing.T, scores map[string]float64, order []string) *stubVectorStore {
	t.Helper()
	var docs []storage.ScoredDocument
	for i, name := range order {
		docs = append(docs, storage.ScoredDocument{
			ID:      fmt.Sprintf("p%d", i),
			Score:   scores[name],
			Content: candidateDoc(t, name),
			Metadata: map[string]interface{}{
				"candidate_id": "cand-" + name,
				"chunk_index":  float64(0),
				"name":         name,
			},
		})
	}
	return &stubVectorStore{docs: docs}
}

func TestSearchEmptyQuery(t *testing.T) {
	s := NewSearcher(&stubParser{}, NewRetriever(&stubVectorStore{}, 5), &stubScorer{})

	_, err := s.Search(context.Background(), "   ", 5)
	assert.ErrorIs(t, err, processor.ErrValidation)
}

func TestSearchRetrievalFailureIsFatal(t *testing.T) {
	store := &stubVectorStore{err: errors.New("connection refused")}
	s := NewSearcher(&stubParser{}, NewRetriever(store, 5), &stubScorer{})

	_, err := s.Search(context.Background(), "Go工程师", 5)
	assert.Error(t, err)
}

func TestSearchPreservesRetrievalOrder(t *testing.T) {
	// 第一名候选人打分最慢，完成顺序与召回顺序相反，结果排列仍按召回顺序
	store := storeWithCandidates(t,
		map[string]float64{"甲": 0.9, "乙": 0.8, "丙": 0.7},
		[]string{"甲", "乙", "丙"},
	)
	scorer := &stubScorer{delays: map[string]time.Duration{"甲": 50 * time.Millisecond}}
	s := NewSearcher(&stubParser{}, NewRetriever(store, 5), scorer, WithMaxConcurrency(3))

	result, err := s.Search(context.Background(), "senior React developer 5+ years", 5)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 3)
	assert.Equal(t, "甲", result.Candidates[0].Name)
	assert.Equal(t, "乙", result.Candidates[1].Name)
	assert.Equal(t, "丙", result.Candidates[2].Name)

	for _, c := range result.Candidates {
		assert.GreaterOrEqual(t, c.Confidence, 0)
		assert.LessOrEqual(t, c.Confidence, 100)
	}

	// averageConfidence = round((90+80+70)/3) = 80
	assert.Equal(t, 80, result.AverageConfidence)
	assert.Equal(t, 3, result.TotalResults)
	assert.Equal(t, "senior React developer 5+ years", result.OriginalQuery)
}

func TestSearchAverageConfidenceRounding(t *testing.T) {
	store := storeWithCandidates(t,
		map[string]float64{"甲": 0.33, "乙": 0.34},
		[]string{"甲", "乙"},
	)
	s := NewSearcher(&stubParser{}, NewRetriever(store, 5), &stubScorer{})

	result, err := s.Search(context.Background(), "查询", 5)
	require.NoError(t, err)

	// round((33+34)/2) = round(33.5) = 34
	assert.Equal(t, 34, result.AverageConfidence)
}

func TestSearchNoCandidates(t *testing.T) {
	s := NewSearcher(&stubParser{}, NewRetriever(&stubVectorStore{}, 5), &stubScorer{})

	result, err := s.Search(context.Background(), "冷门查询", 5)
	require.NoError(t, err)

	assert.Equal(t, 0, result.TotalResults)
	assert.Equal(t, 0, result.AverageConfidence)
	assert.Empty(t, result.Candidates)
}

func TestSearchUsesEnrichedQuery(t *testing.T) {
	store := &stubVectorStore{}
	criteria := &types.SearchCriteria{Skills: []types.CriteriaSkill{{Name: "Go"}}}
	s := NewSearcher(&stubParser{criteria: criteria}, NewRetriever(store, 5), &stubScorer{})

	result, err := s.Search(context.Background(), "会Go的工程师", 5)
	require.NoError(t, err)

	assert.Equal(t, "Go", store.lastQuery)
	assert.Equal(t, "Go", result.Query)
	assert.Equal(t, "会Go的工程师", result.OriginalQuery)
	assert.Equal(t, criteria, result.ParsedCriteria)
}

func TestSearchBrokenDocumentScoredAsEmpty(t *testing.T) {
	// 文档不是合法JSON时按空结构打分，不中断流水线
	store := &stubVectorStore{docs: []storage.ScoredDocument{
		{
			ID:      "p0",
			Score:   0.6,
			Content: "不是JSON",
			Metadata: map[string]interface{}{
				"candidate_id": "cand-x",
				"chunk_index":  float64(0),
				"name":         "王强",
			},
		},
	}}
	scorer := &stubScorer{}
	s := NewSearcher(&stubParser{}, NewRetriever(store, 5), scorer)

	result, err := s.Search(context.Background(), "查询", 5)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	// 元数据里的名字仍然返回，打分器收到的是空结构
	assert.Equal(t, "王强", result.Candidates[0].Name)
	assert.Equal(t, []string{""}, scorer.gotNames)
	assert.Equal(t, 60, result.Candidates[0].Confidence)
}

func TestSearchCancellation(t *testing.T) {
	store := storeWithCandidates(t,
		map[string]float64{"甲": 0.9},
		[]string{"甲"},
	)
	scorer := &stubScorer{delays: map[string]time.Duration{"甲": 100 * time.Millisecond}}
	s := NewSearcher(&stubParser{}, NewRetriever(store, 5), scorer)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Search(ctx, "查询", 5)
	assert.Error(t, err)
}

func TestGetInformation(t *testing.T) {
	store := &stubVectorStore{docs: []storage.ScoredDocument{
		{ID: "p0", Score: 0.7, Content: "某段简历内容"},
	}}
	s := NewSearcher(&stubParser{}, NewRetriever(store, 5), &stubScorer{})

	docs, err := s.GetInformation(context.Background(), "谁有Kubernetes经验？", 3)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "某段简历内容", docs[0].Content)

	_, err = s.GetInformation(context.Background(), " ", 3)
	assert.ErrorIs(t, err, processor.ErrValidation)
}

package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-screener-go/internal/search"
	"resume-screener-go/internal/storage"
	"resume-screener-go/internal/types"
)

// stubVectorStore 返回固定命中结果的向量库替身
type stubVectorStore struct {
	docs      []storage.ScoredDocument
	lastQuery string
}

func (s *stubVectorStore) AddDocuments(ctx context.Context, candidateID string, chunks []string, metadata map[string]string) ([]string, error) {
	return nil, nil
}

func (s *stubVectorStore) SimilaritySearchWithScore(ctx context.Context, query string, limit int) ([]storage.ScoredDocument, error) {
	s.lastQuery = query
	return s.docs, nil
}

func (s *stubVectorStore) DeletePoints(ctx context.Context, pointIDs []string) error {
	return nil
}

// stubScorer 把语义得分线性换算为百分比
type stubScorer struct{}

func (s *stubScorer) Score(ctx context.Context, criteria *types.SearchCriteria, candidate *types.StructuredResume, originalQuery string, semanticScore float64) *types.MatchAssessment {
	return &types.MatchAssessment{
		Percentage:  int(semanticScore * 100),
		Explanation: "基于语义相似度的估算",
	}
}

func newToolSearcher(t *testing.T) (*search.Searcher, *stubVectorStore) {
	t.Helper()

	doc, err := json.Marshal(&types.StructuredResume{
		PersonalInformation: types.PersonalInformation{Name: "赵敏"},
	})
	require.NoError(t, err)

	store := &stubVectorStore{
		docs: []storage.ScoredDocument{
			{
				ID:      "p1",
				Score:   0.9,
				Content: string(doc),
				Metadata: map[string]interface{}{
					"candidate_id": "cand-1",
					"chunk_index":  float64(0),
					"name":         "赵敏",
				},
			},
		},
	}

	retriever := search.NewRetriever(store, 5)
	return search.NewSearcher(nil, retriever, &stubScorer{}), store
}

func TestSearchResumesToolRoundTrip(t *testing.T) {
	searcher, store := newToolSearcher(t)
	searchTool := NewSearchResumesTool(searcher)

	info, err := searchTool.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "search_resumes", info.Name)

	payload, err := searchTool.InvokableRun(context.Background(), `{"query":"资深Go工程师","limit":3}`)
	require.NoError(t, err)

	var result types.SearchResult
	require.NoError(t, json.Unmarshal([]byte(payload), &result))
	assert.Equal(t, 1, result.TotalResults)
	assert.Equal(t, "资深Go工程师", result.OriginalQuery)
	assert.Equal(t, 90, result.Candidates[0].Confidence)
	assert.Equal(t, "资深Go工程师", store.lastQuery)
}

func TestSearchResumesToolRawTextArgument(t *testing.T) {
	searcher, _ := newToolSearcher(t)
	searchTool := NewSearchResumesTool(searcher)

	// 模型有时不给JSON而是直接给查询文本
	payload, err := searchTool.InvokableRun(context.Background(), "上海的后端工程师")
	require.NoError(t, err)

	var result types.SearchResult
	require.NoError(t, json.Unmarshal([]byte(payload), &result))
	assert.Equal(t, "上海的后端工程师", result.OriginalQuery)
}

// stubParser 记录解析调用次数
type stubParser struct {
	calls    int
	criteria *types.SearchCriteria
}

func (p *stubParser) Parse(ctx context.Context, query string) *types.SearchCriteria {
	p.calls++
	return p.criteria
}

func TestSearchResumesToolStructuredFlag(t *testing.T) {
	_, store := newToolSearcher(t)
	parser := &stubParser{criteria: &types.SearchCriteria{Location: "上海"}}
	searcher := search.NewSearcher(parser, search.NewRetriever(store, 5), &stubScorer{})
	searchTool := NewSearchResumesTool(searcher)

	// 默认走结构化解析
	payload, err := searchTool.InvokableRun(context.Background(), `{"query":"上海的Go工程师"}`)
	require.NoError(t, err)
	assert.Equal(t, 1, parser.calls)

	var result types.SearchResult
	require.NoError(t, json.Unmarshal([]byte(payload), &result))
	require.NotNil(t, result.ParsedCriteria)
	assert.Equal(t, "上海", result.ParsedCriteria.Location)

	// 显式关闭后不再调用解析器，直接用原始查询检索
	payload, err = searchTool.InvokableRun(context.Background(), `{"query":"上海的Go工程师","use_structured_search":false}`)
	require.NoError(t, err)
	assert.Equal(t, 1, parser.calls)

	result = types.SearchResult{}
	require.NoError(t, json.Unmarshal([]byte(payload), &result))
	assert.Nil(t, result.ParsedCriteria)
	assert.Equal(t, "上海的Go工程师", store.lastQuery)
}

func TestSearchResumesToolEmptyArgument(t *testing.T) {
	searcher, _ := newToolSearcher(t)
	searchTool := NewSearchResumesTool(searcher)

	_, err := searchTool.InvokableRun(context.Background(), "  ")
	assert.Error(t, err)
}

func TestGetInformationToolRoundTrip(t *testing.T) {
	searcher, _ := newToolSearcher(t)
	infoTool := NewGetInformationTool(searcher)

	info, err := infoTool.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "get_information", info.Name)

	payload, err := infoTool.InvokableRun(context.Background(), `{"question":"谁有Go经验？"}`)
	require.NoError(t, err)

	var fragments []struct {
		Content string  `json:"content"`
		Score   float64 `json:"score"`
		Name    string  `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(payload), &fragments))
	require.Len(t, fragments, 1)
	assert.Equal(t, 0.9, fragments[0].Score)
	assert.Equal(t, "赵敏", fragments[0].Name)
}

package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-screener-go/internal/storage"
	"resume-screener-go/internal/types"
)

func TestBuildEnrichedQueryFieldOrder(t *testing.T) {
	criteria := &types.SearchCriteria{
		Position: &types.Position{Title: "Backend Engineer", Seniority: types.SenioritySenior},
		Skills: []types.CriteriaSkill{
			{Name: "Go", Category: types.SkillCatLanguage, MinSeniority: types.SkillAdvanced},
			{Name: "Kubernetes"},
		},
		Experience: types.CriteriaExperience{
			MinYears:  5,
			Companies: []string{"Acme"},
		},
		Education: types.CriteriaEducation{
			Degree: "Bachelor",
			Field:  "Computer Science",
		},
		Location:   "Shanghai",
		SoftSkills: []string{"leadership"},
	}

	// 字段顺序冻结：职位、资历、技能、年限、公司、学位、专业、地点、软技能
	expected := "Backend Engineer | senior | Go (advanced) [programming_language] | Kubernetes | 5+ years experience | Acme | Bachelor | Computer Science | Shanghai | leadership"
	assert.Equal(t, expected, BuildEnrichedQuery(criteria, "原始查询"))
}

func TestBuildEnrichedQueryEmptyCriteria(t *testing.T) {
	assert.Equal(t, "原始查询", BuildEnrichedQuery(nil, "原始查询"))
	assert.Equal(t, "原始查询", BuildEnrichedQuery(&types.SearchCriteria{}, "原始查询"))
}

func TestBuildEnrichedQueryPartialCriteria(t *testing.T) {
	criteria := &types.SearchCriteria{
		Skills: []types.CriteriaSkill{{Name: "React"}},
	}
	assert.Equal(t, "React", BuildEnrichedQuery(criteria, "随便"))
}

type stubVectorStore struct {
	docs      []storage.ScoredDocument
	err       error
	lastQuery string
	lastLimit int
}

func (s *stubVectorStore) AddDocuments(ctx context.Context, candidateID string, chunks []string, metadata map[string]string) ([]string, error) {
	return nil, nil
}

func (s *stubVectorStore) SimilaritySearchWithScore(ctx context.Context, query string, limit int) ([]storage.ScoredDocument, error) {
	s.lastQuery = query
	s.lastLimit = limit
	return s.docs, s.err
}

func (s *stubVectorStore) DeletePoints(ctx context.Context, pointIDs []string) error {
	return nil
}

func TestRetrieveGroupsChunksByCandidate(t *testing.T) {
	store := &stubVectorStore{
		docs: []storage.ScoredDocument{
			{
				ID:      "p1",
				Score:   0.91,
				Content: `{"half":1`,
				Metadata: map[string]interface{}{
					"candidate_id": "cand-a",
					"chunk_index":  float64(0),
					"name":         "张伟",
				},
			},
			{
				ID:      "p2",
				Score:   0.85,
				Content: `{"doc":"b"}`,
				Metadata: map[string]interface{}{
					"candidate_id": "cand-b",
					"chunk_index":  float64(0),
					"name":         "李娜",
				},
			},
			{
				ID:      "p3",
				Score:   0.80,
				Content: `}`,
				Metadata: map[string]interface{}{
					"candidate_id": "cand-a",
					"chunk_index":  float64(1),
				},
			},
		},
	}
	r := NewRetriever(store, 5)

	results, query, err := r.Retrieve(context.Background(), nil, "Go工程师", 5)
	require.NoError(t, err)

	// 空条件时检索串等于原始查询
	assert.Equal(t, "Go工程师", query)
	assert.Equal(t, "Go工程师", store.lastQuery)

	// 两个候选人，保持首次命中顺序；cand-a的两个分块按下标拼接
	require.Len(t, results, 2)
	assert.Equal(t, "cand-a", results[0].Record.ID)
	assert.Equal(t, `{"half":1}`, results[0].Record.Document)
	assert.InDelta(t, 0.91, results[0].Score, 1e-9)
	assert.Equal(t, "张伟", results[0].Record.Metadata["name"])

	assert.Equal(t, "cand-b", results[1].Record.ID)
	assert.InDelta(t, 0.85, results[1].Score, 1e-9)
}

func TestRetrieveDefaultLimit(t *testing.T) {
	store := &stubVectorStore{}
	r := NewRetriever(store, 7)

	_, _, err := r.Retrieve(context.Background(), nil, "查询", 0)
	require.NoError(t, err)
	assert.Equal(t, 7, store.lastLimit)
}

package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-screener-go/internal/storage"
	"resume-screener-go/internal/types"
)

type mockExtractor struct {
	resume *types.StructuredResume
	err    error
}

func (m *mockExtractor) Extract(ctx context.Context, text string) (*types.StructuredResume, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.resume, nil
}

type mockVectorStore struct {
	addErr         error
	gotCandidateID string
	gotChunks      []string
	gotMetadata    map[string]string
}

func (m *mockVectorStore) AddDocuments(ctx context.Context, candidateID string, chunks []string, metadata map[string]string) ([]string, error) {
	if m.addErr != nil {
		return nil, m.addErr
	}
	m.gotCandidateID = candidateID
	m.gotChunks = chunks
	m.gotMetadata = metadata
	pointIDs := make([]string, len(chunks))
	for i := range chunks {
		pointIDs[i] = "point-" + candidateID
	}
	return pointIDs, nil
}

func (m *mockVectorStore) SimilaritySearchWithScore(ctx context.Context, query string, limit int) ([]storage.ScoredDocument, error) {
	return nil, nil
}

func (m *mockVectorStore) DeletePoints(ctx context.Context, pointIDs []string) error {
	return nil
}

func testResume() *types.StructuredResume {
	return &types.StructuredResume{
		PersonalInformation: types.PersonalInformation{
			Name:     "李娜",
			Location: "北京",
			Position: &types.Position{Title: "后端工程师", Seniority: types.SenioritySenior},
		},
		Experiences: []types.Experience{
			{Title: "高级后端工程师", Company: "某科技公司", StartDate: "2020-01"},
			{Title: "后端工程师", Company: "某创业公司", StartDate: "2017-07", EndDate: "2019-12"},
		},
		Education: []types.Education{
			{Degree: "学士", Field: "计算机科学", Institution: "某大学"},
		},
		Skills: []types.Skill{
			{Name: "Go", Category: types.SkillCatLanguage, Seniority: types.SkillExpert},
		},
	}
}

func TestIngestEmptyInput(t *testing.T) {
	ing := NewIngestor(&mockExtractor{resume: testResume()}, &mockVectorStore{})

	_, err := ing.Ingest(context.Background(), "   \n\t  ", nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIngestControlCharactersOnly(t *testing.T) {
	ing := NewIngestor(&mockExtractor{resume: testResume()}, &mockVectorStore{})

	_, err := ing.Ingest(context.Background(), "\x00\x01\x02�", nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIngestSuccess(t *testing.T) {
	store := &mockVectorStore{}
	ing := NewIngestor(&mockExtractor{resume: testResume()}, store)

	record, err := ing.Ingest(context.Background(), "李娜的简历原文……", map[string]string{"fileName": "lina.pdf"})
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, record.ID, store.gotCandidateID)

	// 派生的摘要元数据
	assert.Equal(t, "李娜", record.Metadata["name"])
	assert.Equal(t, "高级后端工程师", record.Metadata["title"])
	assert.Contains(t, record.Metadata["summary"], "2段工作经历")
	assert.Contains(t, record.Metadata["summary"], "计算机科学")
	assert.Equal(t, "lina.pdf", record.Metadata["fileName"])
	assert.NotEmpty(t, record.Metadata["uploadedAt"])

	// 文档是结构化简历的JSON序列化
	var decoded types.StructuredResume
	require.NoError(t, json.Unmarshal([]byte(record.Document), &decoded))
	assert.Equal(t, "李娜", decoded.PersonalInformation.Name)

	// 短文档单块入库
	require.Len(t, store.gotChunks, 1)
	assert.Equal(t, record.Document, store.gotChunks[0])
}

func TestIngestCallerMetadataWins(t *testing.T) {
	store := &mockVectorStore{}
	ing := NewIngestor(&mockExtractor{resume: testResume()}, store)

	record, err := ing.Ingest(context.Background(), "简历原文", map[string]string{
		"name":       "调用方指定名",
		"uploadedAt": "1999-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	// 调用方元数据覆盖派生字段，但上传时间戳永远由摄取方写入
	assert.Equal(t, "调用方指定名", record.Metadata["name"])
	assert.NotEqual(t, "1999-01-01T00:00:00Z", record.Metadata["uploadedAt"])
}

func TestIngestExtractionFailureUsesPlaceholder(t *testing.T) {
	store := &mockVectorStore{}
	ing := NewIngestor(&mockExtractor{err: errors.New("llm unavailable")}, store)

	record, err := ing.Ingest(context.Background(), "无法解析的简历", nil)
	require.NoError(t, err)

	var decoded types.StructuredResume
	require.NoError(t, json.Unmarshal([]byte(record.Document), &decoded))
	assert.Equal(t, "Unknown", decoded.PersonalInformation.Name)
	assert.Empty(t, decoded.Experiences)
	assert.Empty(t, decoded.Skills)
}

type mockDedupGuard struct {
	exists   bool
	checkErr error
	added    []string
	removed  []string
}

func (m *mockDedupGuard) CheckAndAddContentMD5(ctx context.Context, md5Hex string) (bool, error) {
	if m.checkErr != nil {
		return false, m.checkErr
	}
	if m.exists {
		return true, nil
	}
	m.added = append(m.added, md5Hex)
	return false, nil
}

func (m *mockDedupGuard) RemoveContentMD5(ctx context.Context, md5Hex string) error {
	m.removed = append(m.removed, md5Hex)
	return nil
}

func TestIngestDuplicateShortCircuits(t *testing.T) {
	store := &mockVectorStore{}
	guard := &mockDedupGuard{exists: true}
	ing := NewIngestor(&mockExtractor{resume: testResume()}, store, WithDedup(guard))

	_, err := ing.Ingest(context.Background(), "重复上传的简历", nil)
	assert.ErrorIs(t, err, ErrDuplicate)

	// 重复内容不产生任何向量库写入
	assert.Empty(t, store.gotCandidateID)
	assert.Empty(t, store.gotChunks)
}

func TestIngestDedupServiceFailureDegrades(t *testing.T) {
	store := &mockVectorStore{}
	guard := &mockDedupGuard{checkErr: errors.New("redis down")}
	ing := NewIngestor(&mockExtractor{resume: testResume()}, store, WithDedup(guard))

	record, err := ing.Ingest(context.Background(), "简历原文", nil)
	require.NoError(t, err)

	// 去重服务故障时放弃去重保护，指纹不写入元数据
	assert.Empty(t, record.Metadata["contentMD5"])
	assert.NotEmpty(t, store.gotCandidateID)
}

func TestIngestStoreFailureRollsBackDedup(t *testing.T) {
	store := &mockVectorStore{addErr: errors.New("qdrant unreachable")}
	guard := &mockDedupGuard{}
	ing := NewIngestor(&mockExtractor{resume: testResume()}, store, WithDedup(guard))

	_, err := ing.Ingest(context.Background(), "简历原文", nil)
	require.ErrorIs(t, err, ErrRetrieval)

	// 摄取失败后指纹被撤销，调用方可重试
	require.Len(t, guard.added, 1)
	assert.Equal(t, guard.added, guard.removed)
}

func TestIngestStoreFailureIsFatal(t *testing.T) {
	store := &mockVectorStore{addErr: errors.New("qdrant unreachable")}
	ing := NewIngestor(&mockExtractor{resume: testResume()}, store)

	_, err := ing.Ingest(context.Background(), "简历原文", nil)
	assert.ErrorIs(t, err, ErrRetrieval)
}

func TestSanitizeContent(t *testing.T) {
	assert.Equal(t, "abc", sanitizeContent("a\x00b\x08c"))
	assert.Equal(t, "a\nb\tc", sanitizeContent("a\nb\tc"))
	assert.Equal(t, "ab", sanitizeContent("a�b"))
	assert.Equal(t, "abc", sanitizeContent("  abc  "))
}

package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-screener-go/internal/types"
)

func TestCriteriaParserParse(t *testing.T) {
	mock := &mockChatModel{content: `{
		"position": {"title": "后端工程师", "seniority": "senior"},
		"skills": [{"name": "Go", "category": "programming_language", "minSeniority": "advanced"}],
		"experience": {"minYears": 5},
		"location": "上海"
	}`}
	parser := NewCriteriaParser(mock)

	criteria := parser.Parse(context.Background(), "上海5年以上经验的高级Go后端工程师")
	require.NotNil(t, criteria)

	require.NotNil(t, criteria.Position)
	assert.Equal(t, "后端工程师", criteria.Position.Title)
	assert.Equal(t, types.SenioritySenior, criteria.Position.Seniority)
	require.Len(t, criteria.Skills, 1)
	assert.Equal(t, "Go", criteria.Skills[0].Name)
	assert.Equal(t, types.SkillAdvanced, criteria.Skills[0].MinSeniority)
	assert.Equal(t, 5.0, criteria.Experience.MinYears)
	assert.Equal(t, "上海", criteria.Location)
}

func TestCriteriaParserParseEmptyCriteria(t *testing.T) {
	// 没有任何约束的查询解析为全空条件对象，而非编造约束
	mock := &mockChatModel{content: `{}`}
	parser := NewCriteriaParser(mock)

	criteria := parser.Parse(context.Background(), "随便看看")
	require.NotNil(t, criteria)
	assert.True(t, criteria.IsEmpty())
}

func TestCriteriaParserParseLLMError(t *testing.T) {
	mock := &mockChatModel{err: errors.New("connection refused")}
	parser := NewCriteriaParser(mock)

	assert.Nil(t, parser.Parse(context.Background(), "高级Go工程师"))
}

func TestCriteriaParserParseInvalidJSON(t *testing.T) {
	mock := &mockChatModel{content: "抱歉，我无法解析这个查询。"}
	parser := NewCriteriaParser(mock)

	assert.Nil(t, parser.Parse(context.Background(), "高级Go工程师"))
}

func TestCriteriaParserNormalizesSeniority(t *testing.T) {
	// 枚举之外的资历被归一化为mid
	mock := &mockChatModel{content: `{"position": {"title": "工程师", "seniority": "资深专家"}}`}
	parser := NewCriteriaParser(mock)

	criteria := parser.Parse(context.Background(), "资深工程师")
	require.NotNil(t, criteria)
	require.NotNil(t, criteria.Position)
	assert.Equal(t, types.SeniorityMid, criteria.Position.Seniority)
}

func TestCriteriaParserNilModel(t *testing.T) {
	parser := NewCriteriaParser(nil)
	assert.Nil(t, parser.Parse(context.Background(), "任意查询"))
}

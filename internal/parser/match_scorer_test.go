package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-screener-go/internal/types"
)

func sampleCriteria() *types.SearchCriteria {
	return &types.SearchCriteria{
		Position: &types.Position{Title: "后端工程师", Seniority: types.SenioritySenior},
		Skills:   []types.CriteriaSkill{{Name: "Go"}},
		Experience: types.CriteriaExperience{
			MinYears: 5,
		},
	}
}

func sampleResume() *types.StructuredResume {
	return &types.StructuredResume{
		PersonalInformation: types.PersonalInformation{
			Name:     "张伟",
			Position: &types.Position{Title: "高级Go工程师", Seniority: types.SenioritySenior},
		},
		Skills: []types.Skill{{Name: "Go", Category: types.SkillCatLanguage, Seniority: types.SkillExpert}},
	}
}

func TestMatchScorerScore(t *testing.T) {
	mock := &mockChatModel{content: `{
		"percentage": 88,
		"explanation": "候选人与岗位要求高度匹配",
		"details": {
			"skillsMatch": 95,
			"experienceMatch": 85,
			"seniorityMatch": 90,
			"positionMatch": 88,
			"keyStrengths": ["Go专家级水平", "7年后端经验"],
			"potentialConcerns": ["未提及微服务经验"]
		}
	}`}
	scorer := NewMatchScorer(mock)

	assessment := scorer.Score(context.Background(), sampleCriteria(), sampleResume(), "高级Go后端工程师", 0.82)
	require.NotNil(t, assessment)

	assert.Equal(t, 88, assessment.Percentage)
	assert.NotEmpty(t, assessment.Explanation)
	require.NotNil(t, assessment.Details.SkillsMatch)
	assert.Equal(t, 95, *assessment.Details.SkillsMatch)
	assert.Len(t, assessment.Details.KeyStrengths, 2)
	assert.Len(t, assessment.Details.PotentialConcerns, 1)
}

func TestMatchScorerFallbackOnLLMError(t *testing.T) {
	mock := &mockChatModel{err: errors.New("timeout")}
	scorer := NewMatchScorer(mock)

	assessment := scorer.Score(context.Background(), sampleCriteria(), sampleResume(), "高级Go后端工程师", 0.73)
	require.NotNil(t, assessment)

	// 降级路径：round(clamp(0.73*100, 0, 100)) = 73，无分类子得分
	assert.Equal(t, 73, assessment.Percentage)
	assert.NotEmpty(t, assessment.Explanation)
	assert.False(t, assessment.Details.HasSubScores())
}

func TestMatchScorerFallbackOnInvalidJSON(t *testing.T) {
	mock := &mockChatModel{content: "我认为该候选人很优秀。"}
	scorer := NewMatchScorer(mock)

	assessment := scorer.Score(context.Background(), sampleCriteria(), sampleResume(), "查询", 0.5)
	require.NotNil(t, assessment)
	assert.Equal(t, 50, assessment.Percentage)
	assert.False(t, assessment.Details.HasSubScores())
}

func TestMatchScorerFallbackOnOutOfRangeScore(t *testing.T) {
	mock := &mockChatModel{content: `{"percentage": 150, "explanation": "超出范围"}`}
	scorer := NewMatchScorer(mock)

	assessment := scorer.Score(context.Background(), sampleCriteria(), sampleResume(), "查询", 0.4)
	require.NotNil(t, assessment)
	assert.Equal(t, 40, assessment.Percentage)
}

func TestFallbackAssessmentClamping(t *testing.T) {
	assert.Equal(t, 0, FallbackAssessment(-0.5).Percentage)
	assert.Equal(t, 100, FallbackAssessment(1.7).Percentage)
	assert.Equal(t, 50, FallbackAssessment(0.5).Percentage)
	assert.Equal(t, 67, FallbackAssessment(0.666).Percentage)
	assert.Equal(t, 0, FallbackAssessment(0).Percentage)
}

func TestMatchScorerPrunesAbsentCategories(t *testing.T) {
	// 条件中只有技能要求，模型却输出了所有类别的0分占位
	mock := &mockChatModel{content: `{
		"percentage": 70,
		"explanation": "技能匹配良好",
		"details": {
			"skillsMatch": 80,
			"educationMatch": 0,
			"locationMatch": 0,
			"softSkillsMatch": 0
		}
	}`}
	scorer := NewMatchScorer(mock)

	criteria := &types.SearchCriteria{Skills: []types.CriteriaSkill{{Name: "Go"}}}
	assessment := scorer.Score(context.Background(), criteria, sampleResume(), "Go工程师", 0.6)
	require.NotNil(t, assessment)

	require.NotNil(t, assessment.Details.SkillsMatch)
	assert.Equal(t, 80, *assessment.Details.SkillsMatch)
	assert.Nil(t, assessment.Details.EducationMatch)
	assert.Nil(t, assessment.Details.LocationMatch)
	assert.Nil(t, assessment.Details.SoftSkillsMatch)
	assert.Nil(t, assessment.Details.SeniorityMatch)
	assert.Nil(t, assessment.Details.PositionMatch)
}

func TestMatchScorerNilCandidate(t *testing.T) {
	// 文档反序列化失败时调用方会传入空结构，打分不应崩溃
	mock := &mockChatModel{content: `{"percentage": 20, "explanation": "信息不足"}`}
	scorer := NewMatchScorer(mock)

	assessment := scorer.Score(context.Background(), nil, &types.StructuredResume{}, "查询", 0.2)
	require.NotNil(t, assessment)
	assert.Equal(t, 20, assessment.Percentage)
}

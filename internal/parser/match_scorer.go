package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/types"
)

// MatchScorer 对单个候选人计算可解释的0-100匹配度评估
type MatchScorer struct {
	llmModel       model.ToolCallingChatModel
	promptTemplate string
	timeout        time.Duration
}

// MatchScorerOption 打分器的配置选项
type MatchScorerOption func(*MatchScorer)

// WithScoreTimeout 设置单次打分的超时时间
func WithScoreTimeout(timeout time.Duration) MatchScorerOption {
	return func(s *MatchScorer) {
		s.timeout = timeout
	}
}

// WithScorerPromptTemplate 设置自定义提示词模板
func WithScorerPromptTemplate(template string) MatchScorerOption {
	return func(s *MatchScorer) {
		s.promptTemplate = template
	}
}

// NewMatchScorer 创建一个新的匹配打分器
func NewMatchScorer(llmModel model.ToolCallingChatModel, options ...MatchScorerOption) *MatchScorer {
	scorer := &MatchScorer{
		llmModel: llmModel,
		timeout:  45 * time.Second,
	}
	scorer.generatePromptTemplate()

	for _, opt := range options {
		opt(scorer)
	}
	return scorer
}

func (s *MatchScorer) generatePromptTemplate() {
	s.promptTemplate = `你是一位极其资深的AI招聘专家，具备精准识别人岗匹配度的火眼金睛。请基于下面的【检索条件】、【原始查询】和【候选人结构化简历】，对该候选人做出有区分度的匹配度评估，并严格按照指定的JSON格式输出。

**请严格遵循以下JSON输出格式规范：**
{
  "percentage": 整数 (0-100)，整体匹配度,
  "explanation": "匹配度的简要说明（150字以内）",
  "details": {
    "skillsMatch": 整数 (0-100)，
    "experienceMatch": 整数 (0-100)，
    "seniorityMatch": 整数 (0-100)，
    "educationMatch": 整数 (0-100)，
    "locationMatch": 整数 (0-100)，
    "softSkillsMatch": 整数 (0-100)，
    "positionMatch": 整数 (0-100)，
    "keyStrengths": ["具体优势"],
    "potentialConcerns": ["具体顾虑"]
  }
}

**评估核心原则（务必严格遵守）：**
- 整体percentage综合所有可用条件，并将语义相似度(%.4f，范围0-1)作为其中一项输入。
- details中的分类子得分**只对【检索条件】中实际出现的类别输出**：条件没有地点要求就不要输出locationMatch，没有学历要求就不要输出educationMatch，以此类推。缺省的类别直接省略字段，禁止输出0占位。
- keyStrengths列出候选人与条件高度匹配的具体关键点（建议2-4项）；potentialConcerns列出具体不足或需进一步考察之处（可为空数组）。
- 评分要有区分度：只有真正全面满足条件且有突出亮点的候选人才能接近100分；条件中的硬性要求明显不符时应显著压低分数。
- 所有字段名和字符串值使用双引号，字符串内部的双引号用反斜杠转义。
- 禁止在JSON结构之外输出任何额外文本、解释或Markdown标记。

【检索条件】(JSON，null表示未解析出结构化条件):
%s

【原始查询】:
"""
%s
"""

【候选人结构化简历】(JSON):
%s

请基于以上所有指令，仔细评估并输出JSON结果。`
}

// Score 计算匹配评估。LLM路径失败时回退到确定性的语义分换算，
// 绝不向调用方抛错。
func (s *MatchScorer) Score(
	ctx context.Context,
	criteria *types.SearchCriteria,
	candidate *types.StructuredResume,
	originalQuery string,
	semanticScore float64,
) *types.MatchAssessment {
	assessment, err := s.scoreWithLLM(ctx, criteria, candidate, originalQuery, semanticScore)
	if err != nil {
		logger.Warn().Err(err).Float64("semantic_score", semanticScore).
			Msg("LLM匹配打分失败，使用语义分数降级")
		return FallbackAssessment(semanticScore)
	}
	return assessment
}

func (s *MatchScorer) scoreWithLLM(
	ctx context.Context,
	criteria *types.SearchCriteria,
	candidate *types.StructuredResume,
	originalQuery string,
	semanticScore float64,
) (*types.MatchAssessment, error) {
	if s.llmModel == nil {
		return nil, fmt.Errorf("MatchScorer: llmModel未初始化")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	criteriaJSON := "null"
	if criteria != nil {
		if data, err := json.Marshal(criteria); err == nil {
			criteriaJSON = string(data)
		}
	}

	candidateJSON := "{}"
	if candidate != nil {
		if data, err := json.Marshal(candidate); err == nil {
			candidateJSON = string(data)
		}
	}

	userMsg := einoschema.UserMessage(fmt.Sprintf(
		s.promptTemplate, semanticScore, criteriaJSON, originalQuery, candidateJSON))
	systemMsg := einoschema.SystemMessage("你是一位严谨的AI招聘专家，专注于候选人与检索条件的匹配度评估，只输出符合schema的JSON。")

	response, err := s.llmModel.Generate(ctx, []*einoschema.Message{systemMsg, userMsg})
	if err != nil {
		return nil, fmt.Errorf("MatchScorer: LLM调用失败: %w", err)
	}
	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("MatchScorer: LLM返回空响应")
	}

	var assessment types.MatchAssessment
	if err := decodeModelJSON(response.Content, &assessment); err != nil {
		return nil, fmt.Errorf("MatchScorer: %w", err)
	}

	if err := validateAssessment(&assessment); err != nil {
		return nil, fmt.Errorf("MatchScorer: 评估结果非法: %w", err)
	}

	pruneAbsentCategories(&assessment.Details, criteria)
	return &assessment, nil
}

// FallbackAssessment 确定性降级路径：percentage = round(clamp(semanticScore*100, 0, 100))，
// 通用说明，无分类子得分。除此之外不允许任何其他启发式替代。
func FallbackAssessment(semanticScore float64) *types.MatchAssessment {
	scaled := semanticScore * 100
	if scaled < 0 {
		scaled = 0
	}
	if scaled > 100 {
		scaled = 100
	}
	return &types.MatchAssessment{
		Percentage:  int(math.Round(scaled)),
		Explanation: "基于语义相似度的初步匹配评估",
		Details:     types.MatchDetails{},
	}
}

// validateAssessment 校验评估结果的取值范围
func validateAssessment(a *types.MatchAssessment) error {
	if a.Percentage < 0 || a.Percentage > 100 {
		return fmt.Errorf("percentage必须在0-100之间，得到%d", a.Percentage)
	}
	if a.Explanation == "" {
		return fmt.Errorf("explanation不能为空")
	}
	for name, sub := range map[string]*int{
		"skillsMatch":     a.Details.SkillsMatch,
		"experienceMatch": a.Details.ExperienceMatch,
		"seniorityMatch":  a.Details.SeniorityMatch,
		"educationMatch":  a.Details.EducationMatch,
		"locationMatch":   a.Details.LocationMatch,
		"softSkillsMatch": a.Details.SoftSkillsMatch,
		"positionMatch":   a.Details.PositionMatch,
	} {
		if sub != nil && (*sub < 0 || *sub > 100) {
			return fmt.Errorf("%s必须在0-100之间，得到%d", name, *sub)
		}
	}
	return nil
}

// pruneAbsentCategories 删除条件中未出现类别的子得分。
// 模型偶尔会无视指令为缺省类别输出0分，这里做最终裁剪。
func pruneAbsentCategories(details *types.MatchDetails, criteria *types.SearchCriteria) {
	if criteria == nil || criteria.IsEmpty() {
		details.SkillsMatch = nil
		details.ExperienceMatch = nil
		details.SeniorityMatch = nil
		details.EducationMatch = nil
		details.LocationMatch = nil
		details.SoftSkillsMatch = nil
		details.PositionMatch = nil
		return
	}

	if len(criteria.Skills) == 0 {
		details.SkillsMatch = nil
	}
	hasExperience := criteria.Experience.MinYears > 0 || criteria.Experience.MaxYears > 0 ||
		len(criteria.Experience.Companies) > 0 || len(criteria.Experience.Industries) > 0
	if !hasExperience {
		details.ExperienceMatch = nil
	}
	if criteria.Position == nil || criteria.Position.Seniority == "" {
		details.SeniorityMatch = nil
	}
	if criteria.Education.Degree == "" && criteria.Education.Field == "" && criteria.Education.Institution == "" {
		details.EducationMatch = nil
	}
	if criteria.Location == "" {
		details.LocationMatch = nil
	}
	if len(criteria.SoftSkills) == 0 {
		details.SoftSkillsMatch = nil
	}
	if criteria.Position == nil || criteria.Position.Title == "" {
		details.PositionMatch = nil
	}
}

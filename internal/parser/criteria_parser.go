package parser

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/types"
)

// CriteriaParser 将自由文本招聘查询解析为结构化检索条件
type CriteriaParser struct {
	llmModel       model.ToolCallingChatModel
	promptTemplate string
	timeout        time.Duration
}

// CriteriaParserOption 解析器的配置选项
type CriteriaParserOption func(*CriteriaParser)

// WithCriteriaParseTimeout 设置单次解析的超时时间
func WithCriteriaParseTimeout(timeout time.Duration) CriteriaParserOption {
	return func(p *CriteriaParser) {
		p.timeout = timeout
	}
}

// NewCriteriaParser 创建一个新的查询条件解析器
func NewCriteriaParser(llmModel model.ToolCallingChatModel, options ...CriteriaParserOption) *CriteriaParser {
	parser := &CriteriaParser{
		llmModel: llmModel,
		timeout:  30 * time.Second,
	}
	parser.generatePromptTemplate()

	for _, opt := range options {
		opt(parser)
	}
	return parser
}

func (p *CriteriaParser) generatePromptTemplate() {
	p.promptTemplate = `你是一位招聘查询理解助手。请将下面的【招聘查询】解析为结构化检索条件JSON。

**输出JSON schema（所有字段均为可选）：**
{
  "position": {"title": "职位名称", "seniority": "资历级别"},
  "skills": [{"name": "技能名", "category": "分类", "minSeniority": "最低熟练度"}],
  "experience": {"minYears": 最少年限数字, "maxYears": 最多年限数字, "companies": ["公司"], "industries": ["行业"]},
  "education": {"degree": "学位", "field": "专业", "institution": "院校"},
  "location": "工作地点",
  "softSkills": ["软技能"]
}

**核心原则（务必遵守）：**
- 只提取查询中明确表达或清晰隐含的条件。
- 禁止编造任何约束：查询没有提到年限就不要输出minYears，没有提到资历就不要输出seniority。
- 省略字段表示"不限"，绝不要用空字符串、0或null占位。
- 资历级别仅允许：intern, junior, mid, senior, lead, principal, manager, director, executive。
- 技能熟练度仅允许：beginner, intermediate, advanced, expert。
- 技能分类仅允许：programming_language, framework, database, cloud, devops, tool, methodology, domain。
- 禁止在JSON结构之外输出任何额外文本、解释或Markdown标记。

【招聘查询】:
"""
%s
"""

请输出JSON结果。`
}

// Parse 解析查询为结构化条件。任何失败都返回nil（仅记录日志），
// 调用方应将nil视为"无结构化条件可用"并回退到原始文本检索。
func (p *CriteriaParser) Parse(ctx context.Context, query string) *types.SearchCriteria {
	if p.llmModel == nil {
		logger.Warn().Msg("CriteriaParser: llmModel未初始化，跳过条件解析")
		return nil
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	systemMsg := einoschema.SystemMessage("你是一位严谨的招聘查询理解助手，只输出符合schema的JSON，绝不编造条件。")
	userMsg := einoschema.UserMessage(fmt.Sprintf(p.promptTemplate, query))

	response, err := p.llmModel.Generate(ctx, []*einoschema.Message{systemMsg, userMsg})
	if err != nil {
		logger.Warn().Err(err).Str("query", query).Msg("条件解析LLM调用失败，回退到原始文本检索")
		return nil
	}
	if response == nil || response.Content == "" {
		logger.Warn().Str("query", query).Msg("条件解析返回空响应，回退到原始文本检索")
		return nil
	}

	var criteria types.SearchCriteria
	if err := decodeModelJSON(response.Content, &criteria); err != nil {
		logger.Warn().Err(err).Str("query", query).Msg("条件解析JSON无效，回退到原始文本检索")
		return nil
	}

	normalizeCriteria(&criteria)
	return &criteria
}

// normalizeCriteria 收敛条件中的枚举字段。minSeniority缺省时保持缺省，
// 不做回填（缺省表示不限）。
func normalizeCriteria(criteria *types.SearchCriteria) {
	if criteria.Position != nil && criteria.Position.Seniority != "" {
		criteria.Position.Seniority = types.NormalizeSeniority(string(criteria.Position.Seniority))
	}
	for i := range criteria.Skills {
		if criteria.Skills[i].MinSeniority != "" {
			criteria.Skills[i].MinSeniority = types.NormalizeSkillSeniority(string(criteria.Skills[i].MinSeniority))
		}
	}
}

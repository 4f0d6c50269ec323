package parser

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"resume-screener-go/internal/types"
)

// ResumeExtractor 将清洗后的简历文本抽取为StructuredResume
type ResumeExtractor struct {
	llmModel       model.ToolCallingChatModel
	promptTemplate string
	timeout        time.Duration
}

// ResumeExtractorOption 抽取器的配置选项
type ResumeExtractorOption func(*ResumeExtractor)

// WithExtractorPromptTemplate 设置自定义提示词模板
func WithExtractorPromptTemplate(template string) ResumeExtractorOption {
	return func(e *ResumeExtractor) {
		e.promptTemplate = template
	}
}

// WithExtractionTimeout 设置单次抽取的超时时间
func WithExtractionTimeout(timeout time.Duration) ResumeExtractorOption {
	return func(e *ResumeExtractor) {
		e.timeout = timeout
	}
}

// NewResumeExtractor 创建一个新的简历抽取器实例
func NewResumeExtractor(llmModel model.ToolCallingChatModel, options ...ResumeExtractorOption) *ResumeExtractor {
	extractor := &ResumeExtractor{
		llmModel: llmModel,
		timeout:  90 * time.Second,
	}
	extractor.generatePromptTemplate()

	for _, opt := range options {
		opt(extractor)
	}
	return extractor
}

func (e *ResumeExtractor) generatePromptTemplate() {
	e.promptTemplate = `你是一位专业的简历信息抽取助手。你的任务是将下面的【简历文本】解析为严格符合指定schema的JSON对象，只依据文本中实际出现的信息，禁止编造。

**输出JSON schema：**
{
  "personalInformation": {
    "name": "姓名（必填，无法确定时填 Unknown）",
    "email": "邮箱（可选）",
    "phone": "电话（可选）",
    "location": "所在地（可选）",
    "position": {"title": "当前或意向职位", "seniority": "资历级别"}
  },
  "experiences": [
    {"title": "职位", "company": "公司", "location": "地点（可选）", "startDate": "开始时间", "endDate": "结束时间（在职可省略）", "description": "职责描述（可选）", "achievements": ["成就（可选）"]}
  ],
  "education": [
    {"degree": "学位", "field": "专业", "institution": "院校", "location": "地点（可选）", "graduationDate": "毕业时间（可选）", "gpa": "GPA（可选）", "honors": ["荣誉（可选）"]}
  ],
  "softSkills": ["软技能（可选）"],
  "skills": [
    {"name": "技能名", "category": "分类", "seniority": "熟练度", "yearsOfExperience": 年限数字（可选）}
  ]
}

**枚举取值规范（封闭集合，必须从中选择）：**
- 职位资历 seniority 仅允许以下9级（由低到高）：intern, junior, mid, senior, lead, principal, manager, director, executive。无法从文本判断时一律填 "mid"。
- 技能熟练度 seniority 仅允许：beginner, intermediate, advanced, expert。无法判断时填 "intermediate"。
- 技能分类 category 仅允许：programming_language, framework, database, cloud, devops, tool, methodology, domain。

**格式要求：**
- 完整输出必须是一个合法的JSON对象，所有字段名和字符串值使用双引号。
- 字符串值内部的双引号必须用反斜杠转义。
- 文本中不存在的可选字段直接省略，不要输出null或空字符串。
- 禁止在JSON结构之外输出任何额外文本、解释或Markdown标记。

【简历文本】:
"""
%s
"""

请输出JSON结果。`
}

// Extract 执行结构化抽取。失败时返回错误，由调用方决定降级策略。
func (e *ResumeExtractor) Extract(ctx context.Context, resumeText string) (*types.StructuredResume, error) {
	if e.llmModel == nil {
		return nil, fmt.Errorf("ResumeExtractor: llmModel未初始化")
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	systemMsg := einoschema.SystemMessage("你是一位严谨的简历信息抽取助手，只输出符合schema的JSON。")
	userMsg := einoschema.UserMessage(fmt.Sprintf(e.promptTemplate, resumeText))

	response, err := e.llmModel.Generate(ctx, []*einoschema.Message{systemMsg, userMsg})
	if err != nil {
		return nil, fmt.Errorf("ResumeExtractor: LLM调用失败: %w", err)
	}
	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("ResumeExtractor: LLM返回空响应")
	}

	var resume types.StructuredResume
	if err := decodeModelJSON(response.Content, &resume); err != nil {
		return nil, fmt.Errorf("ResumeExtractor: %w", err)
	}

	normalizeResume(&resume)
	return &resume, nil
}

// normalizeResume 将模型输出中的枚举字段收敛到封闭集合
func normalizeResume(resume *types.StructuredResume) {
	if resume.PersonalInformation.Position != nil {
		resume.PersonalInformation.Position.Seniority =
			types.NormalizeSeniority(string(resume.PersonalInformation.Position.Seniority))
	}
	for i := range resume.Skills {
		resume.Skills[i].Seniority =
			types.NormalizeSkillSeniority(string(resume.Skills[i].Seniority))
	}
}

// PlaceholderResume 返回抽取失败时的最小占位结构，保证入库流程不中断
func PlaceholderResume() *types.StructuredResume {
	return &types.StructuredResume{
		PersonalInformation: types.PersonalInformation{Name: "Unknown"},
		Experiences:         []types.Experience{},
		Education:           []types.Education{},
		Skills:              []types.Skill{},
	}
}

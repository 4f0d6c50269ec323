package types

// Seniority 表示职级/资历的封闭枚举
type Seniority string

const (
	SeniorityIntern    Seniority = "intern"
	SeniorityJunior    Seniority = "junior"
	SeniorityMid       Seniority = "mid"
	SenioritySenior    Seniority = "senior"
	SeniorityLead      Seniority = "lead"
	SeniorityPrincipal Seniority = "principal"
	SeniorityManager   Seniority = "manager"
	SeniorityDirector  Seniority = "director"
	SeniorityExecutive Seniority = "executive"
)

// PositionSeniorities 职位资历的全集，按由低到高排序
var PositionSeniorities = []Seniority{
	SeniorityIntern, SeniorityJunior, SeniorityMid, SenioritySenior,
	SeniorityLead, SeniorityPrincipal, SeniorityManager, SeniorityDirector,
	SeniorityExecutive,
}

// SkillSeniority 技能熟练度的封闭枚举（4级）
type SkillSeniority string

const (
	SkillBeginner     SkillSeniority = "beginner"
	SkillIntermediate SkillSeniority = "intermediate"
	SkillAdvanced     SkillSeniority = "advanced"
	SkillExpert       SkillSeniority = "expert"
)

// SkillCategory 技能分类的封闭枚举（8类）
type SkillCategory string

const (
	SkillCatLanguage  SkillCategory = "programming_language"
	SkillCatFramework SkillCategory = "framework"
	SkillCatDatabase  SkillCategory = "database"
	SkillCatCloud     SkillCategory = "cloud"
	SkillCatDevOps    SkillCategory = "devops"
	SkillCatTool      SkillCategory = "tool"
	SkillCatMethod    SkillCategory = "methodology"
	SkillCatDomain    SkillCategory = "domain"
)

// NormalizeSeniority 将任意资历描述归一化到封闭枚举；无法识别时回退为 mid
func NormalizeSeniority(s string) Seniority {
	for _, level := range PositionSeniorities {
		if string(level) == s {
			return level
		}
	}
	return SeniorityMid
}

// NormalizeSkillSeniority 将技能熟练度归一化到封闭枚举；无法识别时回退为 intermediate
func NormalizeSkillSeniority(s string) SkillSeniority {
	switch SkillSeniority(s) {
	case SkillBeginner, SkillIntermediate, SkillAdvanced, SkillExpert:
		return SkillSeniority(s)
	}
	return SkillIntermediate
}

// Position 意向/当前职位
type Position struct {
	Title     string    `json:"title"`
	Seniority Seniority `json:"seniority"`
}

// PersonalInformation 个人基本信息，联系方式均为可选
type PersonalInformation struct {
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Phone    string    `json:"phone,omitempty"`
	Location string    `json:"location,omitempty"`
	Position *Position `json:"position,omitempty"`
}

// Experience 一段工作经历
type Experience struct {
	Title        string   `json:"title"`
	Company      string   `json:"company"`
	Location     string   `json:"location,omitempty"`
	StartDate    string   `json:"startDate"`
	EndDate      string   `json:"endDate,omitempty"`
	Description  string   `json:"description,omitempty"`
	Achievements []string `json:"achievements,omitempty"`
}

// Education 一段教育经历
type Education struct {
	Degree         string   `json:"degree"`
	Field          string   `json:"field"`
	Institution    string   `json:"institution"`
	Location       string   `json:"location,omitempty"`
	GraduationDate string   `json:"graduationDate,omitempty"`
	GPA            string   `json:"gpa,omitempty"`
	Honors         []string `json:"honors,omitempty"`
}

// Skill 一项技能及其熟练度
type Skill struct {
	Name              string         `json:"name"`
	Category          SkillCategory  `json:"category"`
	Seniority         SkillSeniority `json:"seniority"`
	YearsOfExperience float64        `json:"yearsOfExperience,omitempty"`
}

// StructuredResume 简历的结构化表示，由LLM引导式抽取产出，入库后不可变
type StructuredResume struct {
	PersonalInformation PersonalInformation `json:"personalInformation"`
	Experiences         []Experience        `json:"experiences"`
	Education           []Education         `json:"education"`
	SoftSkills          []string            `json:"softSkills,omitempty"`
	Skills              []Skill             `json:"skills"`
}

// CriteriaSkill 查询条件中的一项技能要求
type CriteriaSkill struct {
	Name         string         `json:"name"`
	Category     SkillCategory  `json:"category,omitempty"`
	MinSeniority SkillSeniority `json:"minSeniority,omitempty"`
}

// CriteriaExperience 查询条件中的经验约束
type CriteriaExperience struct {
	MinYears   float64  `json:"minYears,omitempty"`
	MaxYears   float64  `json:"maxYears,omitempty"`
	Companies  []string `json:"companies,omitempty"`
	Industries []string `json:"industries,omitempty"`
}

// CriteriaEducation 查询条件中的教育约束
type CriteriaEducation struct {
	Degree      string `json:"degree,omitempty"`
	Field       string `json:"field,omitempty"`
	Institution string `json:"institution,omitempty"`
}

// SearchCriteria 从自由文本查询抽取的结构化检索条件。
// 所有字段均可选：缺省表示"不限"，而不是"排除"。
// 按请求派生，生命周期仅限一次查询，不做持久化。
type SearchCriteria struct {
	Position   *Position          `json:"position,omitempty"`
	Skills     []CriteriaSkill    `json:"skills,omitempty"`
	Experience CriteriaExperience `json:"experience,omitempty"`
	Education  CriteriaEducation  `json:"education,omitempty"`
	Location   string             `json:"location,omitempty"`
	SoftSkills []string           `json:"softSkills,omitempty"`
}

// IsEmpty 判断条件对象是否完全为空（全部字段缺省）
func (c *SearchCriteria) IsEmpty() bool {
	if c == nil {
		return true
	}
	return c.Position == nil &&
		len(c.Skills) == 0 &&
		c.Experience.MinYears == 0 && c.Experience.MaxYears == 0 &&
		len(c.Experience.Companies) == 0 && len(c.Experience.Industries) == 0 &&
		c.Education.Degree == "" && c.Education.Field == "" && c.Education.Institution == "" &&
		c.Location == "" &&
		len(c.SoftSkills) == 0
}

// CandidateRecord 向量库中的候选人记录。核心流程将其视为只读输入。
type CandidateRecord struct {
	ID       string            `json:"id"`
	Document string            `json:"document"` // 序列化后的 StructuredResume
	Metadata map[string]string `json:"cmetadata"`
}

// MatchDetails 分类子得分及具体优劣势。
// 子得分仅在条件中出现对应类别时才填充，缺省类别省略而非置零。
type MatchDetails struct {
	SkillsMatch       *int     `json:"skillsMatch,omitempty"`
	ExperienceMatch   *int     `json:"experienceMatch,omitempty"`
	SeniorityMatch    *int     `json:"seniorityMatch,omitempty"`
	EducationMatch    *int     `json:"educationMatch,omitempty"`
	LocationMatch     *int     `json:"locationMatch,omitempty"`
	SoftSkillsMatch   *int     `json:"softSkillsMatch,omitempty"`
	PositionMatch     *int     `json:"positionMatch,omitempty"`
	KeyStrengths      []string `json:"keyStrengths,omitempty"`
	PotentialConcerns []string `json:"potentialConcerns,omitempty"`
}

// HasSubScores 判断是否填充了任何分类子得分
func (d *MatchDetails) HasSubScores() bool {
	return d.SkillsMatch != nil || d.ExperienceMatch != nil ||
		d.SeniorityMatch != nil || d.EducationMatch != nil ||
		d.LocationMatch != nil || d.SoftSkillsMatch != nil ||
		d.PositionMatch != nil
}

// MatchAssessment 打分器对单个候选人的评估结果
type MatchAssessment struct {
	Percentage  int          `json:"percentage"`
	Explanation string       `json:"explanation"`
	Details     MatchDetails `json:"details"`
}

// ScoredCandidate 带匹配评估的候选人，按查询实时计算，跨查询不缓存
type ScoredCandidate struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Title            string       `json:"title"`
	Summary          string       `json:"summary"`
	Content          string       `json:"content"`
	Confidence       int          `json:"confidence"`
	RawScore         float64      `json:"rawScore"`
	MatchExplanation string       `json:"matchExplanation"`
	MatchDetails     MatchDetails `json:"matchDetails"`
}

// SearchResult 单次编排调用的聚合结果。
// candidates 保持召回顺序，不按 confidence 重排。
type SearchResult struct {
	TotalResults      int               `json:"totalResults"`
	AverageConfidence int               `json:"averageConfidence"`
	Query             string            `json:"query"`
	OriginalQuery     string            `json:"originalQuery"`
	ParsedCriteria    *SearchCriteria   `json:"parsedCriteria,omitempty"`
	Candidates        []ScoredCandidate `json:"candidates"`
}

package processor

import (
	"regexp"
	"strings"
)

// 超长简历的压缩参数。字符上限由保守的40,000词元预算按4字符/词元折算而来。
// 各分段的定位正则与截取上限是冻结的：下游LLM提取质量依赖这些边界，调整前需回归验证。
const (
	charBudget       = 160000
	prefixSize       = 1000
	experienceCap    = 4000
	educationCap     = 3000
	skillsCap        = 3000
	truncationMarker = "\n\n[content truncated]"

	// 日期区间兜底时最多提取的经历块数
	maxExperienceBlocks = 3
)

var (
	experiencePattern = regexp.MustCompile(`(?i)(work\s+experience|professional\s+experience|employment(\s+history)?|work\s+history|career\s+history|positions?\s+held|experience)`)

	// 形如 "2019 - 2023" 或 "2019 – present" 的年份区间，用于没有明确经历标题的简历
	dateRangePattern = regexp.MustCompile(`(?i)(19|20)\d{2}\s*[-–—]\s*(present|(19|20)\d{2})`)

	educationPattern = regexp.MustCompile(`(?i)(education|academic\s+background|degree|university|college|bachelor|master|phd|b\.s\.|m\.s\.|b\.a\.|m\.a\.|ph\.d\.)`)

	skillsPattern = regexp.MustCompile(`(?i)(skills|competencies|technologies|technical\s+proficienc\w*|proficient\s+(in|with)|familiar\s+with)`)
)

// reduceForExtraction 在清洗后的简历文本超出字符预算时做分段感知压缩：
// 固定长度的个人信息前缀 + 经历段 + 教育段 + 技能段，按节标题拼接。
// 仍超出预算时硬截断并追加截断标记。未超预算的文本原样返回。
func reduceForExtraction(text string) string {
	if len(text) <= charBudget {
		return text
	}

	var sb strings.Builder

	sb.WriteString(text[:prefixSize])

	if blocks := locateExperienceBlocks(text); len(blocks) > 0 {
		sb.WriteString("\n\n=== EXPERIENCE ===\n")
		for i, block := range blocks {
			if i > 0 {
				sb.WriteString("\n...\n")
			}
			sb.WriteString(block)
		}
	}

	if section := locateSection(text, educationPattern, educationCap); section != "" {
		sb.WriteString("\n\n=== EDUCATION ===\n")
		sb.WriteString(section)
	}

	if section := locateSection(text, skillsPattern, skillsCap); section != "" {
		sb.WriteString("\n\n=== SKILLS ===\n")
		sb.WriteString(section)
	}

	reduced := sb.String()
	if len(reduced) > charBudget {
		reduced = reduced[:charBudget-len(truncationMarker)] + truncationMarker
	}
	return reduced
}

// locateExperienceBlocks 定位工作经历内容。优先匹配经历类节标题，
// 匹配不到时退回按年份区间日期定位，每个块截取experienceCap个字符。
func locateExperienceBlocks(text string) []string {
	if loc := experiencePattern.FindStringIndex(text); loc != nil {
		return []string{sliceCapped(text, loc[0], experienceCap)}
	}

	locs := dateRangePattern.FindAllStringIndex(text, maxExperienceBlocks)
	if len(locs) == 0 {
		return nil
	}

	var blocks []string
	lastEnd := -1
	for _, loc := range locs {
		if loc[0] < lastEnd {
			// 与上一块重叠的日期区间跳过
			continue
		}
		blocks = append(blocks, sliceCapped(text, loc[0], experienceCap))
		lastEnd = loc[0] + experienceCap
	}
	return blocks
}

// locateSection 返回从首个正则匹配位置起、截取上限以内的文本段，无匹配时返回空串
func locateSection(text string, pattern *regexp.Regexp, limit int) string {
	loc := pattern.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	return sliceCapped(text, loc[0], limit)
}

func sliceCapped(text string, start, limit int) string {
	end := start + limit
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}

package processor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduceForExtractionShortTextUnchanged(t *testing.T) {
	text := "John Doe\nWork Experience\n2019 - 2023 Acme Corp\nEducation\nB.S. Computer Science"
	assert.Equal(t, text, reduceForExtraction(text))
}

func TestReduceForExtractionBudgetBoundary(t *testing.T) {
	// 恰好等于预算的文本不压缩
	text := strings.Repeat("a", charBudget)
	assert.Equal(t, text, reduceForExtraction(text))
}

func TestReduceForExtractionBySectionHeaders(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("John Doe\njohn@example.com\n")
	sb.WriteString(strings.Repeat("x", 120000))
	sb.WriteString("\nWork Experience\nSenior Engineer at Acme, built the billing platform.\n")
	sb.WriteString(strings.Repeat("x", 120000))
	sb.WriteString("\nEducation\nB.S. Computer Science, State University\n")
	sb.WriteString("\nSkills\nGo, Python, Kubernetes\n")
	sb.WriteString(strings.Repeat("x", 60000))
	text := sb.String()
	require.Greater(t, len(text), charBudget)

	reduced := reduceForExtraction(text)

	assert.LessOrEqual(t, len(reduced), charBudget)
	assert.True(t, strings.HasPrefix(reduced, "John Doe"))
	assert.Contains(t, reduced, "=== EXPERIENCE ===")
	assert.Contains(t, reduced, "Work Experience")
	assert.Contains(t, reduced, "=== EDUCATION ===")
	assert.Contains(t, reduced, "B.S. Computer Science")
	assert.Contains(t, reduced, "=== SKILLS ===")
	assert.Contains(t, reduced, "Kubernetes")
}

func TestReduceForExtractionDateRangeFallback(t *testing.T) {
	// 没有任何经历类标题时，按年份区间日期定位经历内容
	var sb strings.Builder
	sb.WriteString(strings.Repeat("z", 170000))
	sb.WriteString("\n2019 - 2023  Backend developer at a fintech startup\n")
	sb.WriteString(strings.Repeat("z", 10000))
	text := sb.String()

	reduced := reduceForExtraction(text)

	assert.Contains(t, reduced, "=== EXPERIENCE ===")
	assert.Contains(t, reduced, "2019 - 2023")
}

func TestReduceForExtractionDateRangePresent(t *testing.T) {
	text := strings.Repeat("z", 170000) + "\n2021 – present  Platform team lead\n"

	reduced := reduceForExtraction(text)

	assert.Contains(t, reduced, "2021 – present")
}

func TestReduceForExtractionMissingSections(t *testing.T) {
	// 什么分段都定位不到时只保留个人信息前缀
	text := strings.Repeat("q", 200000)

	reduced := reduceForExtraction(text)

	assert.Equal(t, strings.Repeat("q", prefixSize), reduced)
}

func TestReduceForExtractionHugeResumeWithinBudget(t *testing.T) {
	// 30万字符的简历压缩后必须落在预算以内
	var sb strings.Builder
	sb.WriteString(strings.Repeat("x", 150000))
	sb.WriteString("\nEmployment History\n")
	sb.WriteString(strings.Repeat("y", 150000))
	text := sb.String()
	require.GreaterOrEqual(t, len(text), 300000)

	reduced := reduceForExtraction(text)
	assert.LessOrEqual(t, len(reduced), charBudget)
}

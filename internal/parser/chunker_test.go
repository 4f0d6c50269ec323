package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextShortInput(t *testing.T) {
	// 不超过上限的文本原样返回，包括空字符串
	assert.Equal(t, []string{""}, ChunkText("", 100, 10))
	assert.Equal(t, []string{"hello world"}, ChunkText("hello world", 100, 10))

	exact := strings.Repeat("a", 100)
	assert.Equal(t, []string{exact}, ChunkText(exact, 100, 10))
}

func TestChunkTextSentenceBoundary(t *testing.T) {
	// 结束符位于0.7*max之后时应在结束符后截断
	text := strings.Repeat("a", 80) + ". " + strings.Repeat("b", 200)
	chunks := ChunkText(text, 100, 10)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, strings.Repeat("a", 80)+".", chunks[0])
}

func TestChunkTextSpaceBoundary(t *testing.T) {
	// 无结束符时退回到0.5*max之后的最后一个空格
	text := strings.Repeat("a", 70) + " " + strings.Repeat("b", 200)
	chunks := ChunkText(text, 100, 10)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, strings.Repeat("a", 70), chunks[0])
}

func TestChunkTextHardCut(t *testing.T) {
	// 完全没有边界时硬截断
	text := strings.Repeat("x", 250)
	chunks := ChunkText(text, 100, 10)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, strings.Repeat("x", 100), chunks[0])
}

func TestChunkTextNoEmptyChunks(t *testing.T) {
	text := strings.Repeat("word ", 200)
	for _, chunk := range ChunkText(text, 100, 20) {
		assert.NotEmpty(t, chunk)
		assert.Equal(t, chunk, strings.TrimSpace(chunk))
	}
}

func TestChunkTextCoverage(t *testing.T) {
	// 所有原文内容都应出现在某个分块中（允许重叠）
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 100)
	chunks := ChunkText(text, 200, 50)

	joined := strings.Join(chunks, " ")
	for _, word := range []string{"quick", "brown", "lazy"} {
		assert.Contains(t, joined, word)
	}
	// 各分块都不超过上限
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 200)
	}
}

func TestChunkTextForwardProgress(t *testing.T) {
	// overlap >= maxChunkSize 时也必须终止
	text := strings.Repeat("y", 500)
	chunks := ChunkText(text, 50, 50)
	assert.NotEmpty(t, chunks)

	chunks = ChunkText(text, 50, 200)
	assert.NotEmpty(t, chunks)
}

func TestChunkTextStopsAtTextEnd(t *testing.T) {
	// 末块覆盖到结尾后必须停止，不能回退重叠继续产出尾部子串
	text := strings.Repeat("x", 250)
	chunks := ChunkText(text, 100, 10)

	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("x", 100), chunks[0])
	assert.Equal(t, strings.Repeat("x", 100), chunks[1])
	assert.Equal(t, strings.Repeat("x", 70), chunks[2])
}

func TestChunkTextIngestParameters(t *testing.T) {
	// 摄取路径的大分块参数下同样不产生冗余尾块
	text := strings.Repeat("j", 30000)
	chunks := ChunkText(text, 20000, 150)

	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 20000)
	assert.Len(t, chunks[1], 30000-(20000-150))
}

func TestChunkTextOverlap(t *testing.T) {
	// 相邻分块应共享重叠区域
	text := strings.Repeat("z", 100) + strings.Repeat("w", 150)
	chunks := ChunkText(text, 100, 30)

	require.GreaterOrEqual(t, len(chunks), 2)
	tail := chunks[0][len(chunks[0])-10:]
	assert.True(t, strings.Contains(chunks[1], tail[:1]))
}

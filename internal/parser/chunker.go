package parser

import "strings"

const (
	// DefaultChunkSize 通用分块的默认最大长度
	DefaultChunkSize = 2000
	// DefaultChunkOverlap 相邻分块之间的默认重叠长度
	DefaultChunkOverlap = 200
)

// ChunkText 将长文本切分为带重叠的分块，优先在句子边界截断。
// 纯函数，不保留任何调用间状态。
//
// 规则：
//   - 文本长度不超过maxChunkSize时原样返回单元素切片（包括空字符串）；
//   - 否则从候选终点向前找最后一个句子结束符（. ? !），其位置超过
//     start+0.7*maxChunkSize 时在结束符后截断；
//   - 找不到合适的结束符时向前找最后一个空格，位置超过
//     start+0.5*maxChunkSize 时在空格处截断；
//   - 都找不到则硬截断；
//   - 每个分块去除首尾空白，空分块丢弃；
//   - 下一个起点为 max(start+1, end-overlap)，即使 overlap >= 分块长度
//     也保证每轮至少前进1个字符；
//   - 分块覆盖到文本结尾后立即结束，不再回退产生尾部子串。
func ChunkText(text string, maxChunkSize, overlap int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}

	if len(text) <= maxChunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + maxChunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			window := text[start:end]
			// 先找句子结束符
			if cut := strings.LastIndexAny(window, ".?!"); cut >= 0 &&
				cut > int(float64(maxChunkSize)*0.7) {
				end = start + cut + 1 // 包含结束符本身
			} else if cut := strings.LastIndexByte(window, ' '); cut >= 0 &&
				cut > maxChunkSize/2 {
				end = start + cut
			}
			// 否则保持硬边界
		}

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		// 末块已覆盖到文本结尾，回退重叠只会产出尾部的重复子串
		if end == len(text) {
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// Chunk 使用默认参数切分文本
func Chunk(text string) []string {
	return ChunkText(text, DefaultChunkSize, DefaultChunkOverlap)
}

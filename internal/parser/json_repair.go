package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// extractJSONObject 从LLM响应文本中提取第一个括号配平的JSON对象。
// 模型偶尔会在JSON前后输出解释文字或Markdown围栏，这里只做括号
// 层级匹配，不做完整语法校验。
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			level++
		case '}':
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeJSON 遍历src，把位于字符串字面量内部但并非真正结束的双引号
// 改写为转义形式，保证整个JSON能够正常反序列化。
// 通过检查下一个非空白字符是否为 : , ] } 来判断该引号是否为字符串结束；
// 反斜杠转义按 \\ 和 \" 正常处理。
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		if c == '"' && !escaped {
			if !inStr {
				inStr = true
				b.WriteByte(c)
			} else {
				j := i + 1
				for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
					j++
				}
				if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
					inStr = false
					b.WriteByte(c)
				} else {
					// 字符串内部未转义的引号
					b.WriteString("\\\"")
				}
			}
			escaped = false

		} else if c == '\\' && !escaped {
			escaped = true
			b.WriteByte(c)

		} else {
			b.WriteByte(c)
			escaped = false
		}
	}

	return b.String()
}

// decodeModelJSON 将LLM返回内容解析到目标结构。
// 流程：去BOM -> 截取JSON对象 -> 清理非法UTF-8 -> 反序列化，
// 首次失败后做引号修复再试一次。
func decodeModelJSON(content string, v interface{}) error {
	processed := strings.TrimPrefix(content, "\uFEFF")

	jsonStr := extractJSONObject(processed)
	if jsonStr == "" {
		return fmt.Errorf("无法从响应中提取JSON对象: %.200s", processed)
	}

	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		fixed := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixed), v); jsonErr != nil {
			return fmt.Errorf("JSON反序列化失败（修复后仍失败: %v）: %w", jsonErr, err)
		}
	}
	return nil
}

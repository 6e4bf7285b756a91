package parser

import (
	"strings"
)

// extractJSONBlock 返回文本中第一个以 open 开头、括号配平的 JSON 片段；忽略字符串内部的括号
func extractJSONBlock(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	if start == -1 {
		return ""
	}
	level := 0
	inStr := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inStr:
			escaped = true
		case c == '"':
			inStr = !inStr
		case inStr:
		case c == open:
			level++
		case c == close:
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// stripCodeFence 去掉模型常见的 ```json ... ``` 包裹
func stripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "```"))
}

// sanitizeJSON 修复字符串内部未转义的双引号
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
				// 下一个非空白字符是 : , ] } 时才是真正的字符串结尾
				if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
					inStr = false
					b.WriteByte(c)
				} else {
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

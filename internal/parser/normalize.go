package parser

import (
	"strings"
	"unicode"
)

// NormalizeText 将提取出的文档文本压平为单行：换行变空格，连续空白折叠，去掉首尾空白
func NormalizeText(s string) string {
	s = strings.ToValidUTF8(s, " ")
	s = strings.TrimPrefix(s, "\uFEFF")
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// NormalizeSkills 去掉技能两侧空白并丢弃空项，保持原有顺序，不去重
func NormalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(NormalizeText(s))
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// NormalizeLocation 规范化地点：首字母大写；包含 work from home 视为远程
func NormalizeLocation(location string) (string, bool) {
	loc := titleCase(NormalizeText(location))
	remote := strings.Contains(strings.ToLower(loc), "work from home")
	// 只有整值为 Work From Home 时才替换，"Work From Home, Delhi" 保持原样
	if loc == "Work From Home" {
		loc = "Remote"
	}
	return loc, remote
}

// titleCase 每个单词首字母大写，其余小写
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		if len(runes) > 0 {
			runes[0] = unicode.ToUpper(runes[0])
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

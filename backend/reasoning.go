package backend

import (
	"strings"

	"github.com/sashabaranov/go-openai"
)

// 前端常把未设置的字段序列化成这些占位值，透传给 provider 会直接 400。
var unsetEffortValues = map[string]struct{}{
	"":            {},
	"undefined":   {},
	"[undefined]": {},
	"null":        {},
	"[null]":      {},
}

// NormalizeReasoningEffort 去掉首尾空白，占位值返回空串，其他取值原样透传（例如 xhigh）。
func NormalizeReasoningEffort(s string) string {
	trimmed := strings.TrimSpace(s)
	if _, unset := unsetEffortValues[strings.ToLower(trimmed)]; unset {
		return ""
	}
	return trimmed
}

// downgradeReasoningEffort 给出被拒绝后重试用的取值：xhigh 降为 high，其余直接不再发送该字段。
func downgradeReasoningEffort(effort string) string {
	switch strings.ToLower(strings.TrimSpace(effort)) {
	case "xhigh", "x-high":
		return "high"
	default:
		return ""
	}
}

// rejectsReasoningEffort 判断 provider 错误是否在拒绝这个 reasoning_effort 取值。
func rejectsReasoningEffort(apiErr *openai.APIError, effort string) bool {
	word := strings.ToLower(strings.TrimSpace(effort))
	if apiErr == nil || word == "" {
		return false
	}

	msg := strings.ToLower(apiErr.Message)
	aboutEffort := strings.Contains(msg, "reasoning_effort") || strings.Contains(msg, "reasoning.effort")
	if apiErr.Param != nil && strings.Contains(strings.ToLower(*apiErr.Param), "reasoning") {
		aboutEffort = true
	}
	if !aboutEffort {
		return false
	}
	if !strings.Contains(msg, "unsupported") && !strings.Contains(msg, "not supported") {
		return false
	}
	return hasWord(msg, word)
}

// hasWord 按 [a-z0-9_-] 以外的字符切词后精确匹配，"high" 不会命中 "xhigh"。
func hasWord(text, word string) bool {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '_' && r != '-'
	})
	for _, w := range words {
		if w == word {
			return true
		}
	}
	return false
}

package common

import (
	"strings"

	"github.com/bytedance/sonic"
)

// DecodeJSONMaybe 宽容地从LLM输出中解析JSON对象到目标结构。
// 依次尝试：整段解析、```json代码块、文本中第一个 { 到最后一个 } 的片段。
// 全部失败返回false，调用方按"无结果"降级处理。
func DecodeJSONMaybe(text string, target interface{}) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if sonic.UnmarshalString(trimmed, target) == nil {
		return true
	}
	if block := extractFencedBlock(trimmed, "json"); block != "" {
		if sonic.UnmarshalString(block, target) == nil {
			return true
		}
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if sonic.UnmarshalString(trimmed[start:end+1], target) == nil {
			return true
		}
	}
	return false
}

// extractFencedBlock 提取```lang代码块内容，无则返回空串
func extractFencedBlock(text, lang string) string {
	marker := "```" + lang
	start := strings.Index(text, marker)
	if start < 0 {
		return ""
	}
	rest := text[start+len(marker):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// ExtractFencedBlock 提取指定语言的代码块内容；lang为空时匹配任意代码块
func ExtractFencedBlock(text, lang string) string {
	if lang != "" {
		if block := extractFencedBlock(text, lang); block != "" {
			return block
		}
	}
	// 无语言标记的普通代码块
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	rest := text[start+3:]
	// 跳过可能的语言标记行
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine != "" && !strings.ContainsAny(firstLine, " \t") && len(firstLine) <= 16 {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

package schema

import (
	"regexp"
	"strings"
)

// TextColumn 快照中声明为文本类型的列
type TextColumn struct {
	Table  string
	Column string
}

var columnLinePattern = regexp.MustCompile(`^-\s+(.+?)\[(.+?)\]\s*:\s*(.+)$`)

// ParseTextColumns 从快照的COLUMNS区块提取文本类型列，供值解析器选取采样目标
func ParseTextColumns(snapshot string) []TextColumn {
	var pairs []TextColumn
	for _, line := range strings.Split(snapshot, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		m := columnLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		table := strings.TrimSpace(m[1])
		column := strings.TrimSpace(m[2])
		dtype := strings.TrimSpace(m[3])
		if strings.EqualFold(dtype, "text") {
			pairs = append(pairs, TextColumn{Table: table, Column: column})
		}
	}
	return pairs
}

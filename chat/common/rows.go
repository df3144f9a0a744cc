package common

import (
	"fmt"
	"strings"
)

// Row 数据源返回的一行结果。语义模型后端返回的键可能带方括号（"[Name]"），
// 统一通过 GetAny 读取，避免该歧义扩散到流水线其他部分。
type Row = map[string]interface{}

// GetAny 按候选键依次读取行值，每个键先尝试原始形式再尝试方括号形式，
// 返回第一个非空值；全部缺失返回nil。
func GetAny(row Row, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := row[k]; ok && !isEmptyValue(v) {
			return v
		}
		if v, ok := row["["+k+"]"]; ok && !isEmptyValue(v) {
			return v
		}
	}
	return nil
}

// GetAnyString 读取行值并归一化为去除首尾空白的字符串，缺失返回空串
func GetAnyString(row Row, keys ...string) string {
	v := GetAny(row, keys...)
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

func isEmptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	}
	return false
}

package generator

import (
	chatCommon "github.com/Malowking/datachat/chat/common"
	"github.com/Malowking/datachat/core/errors"
)

// Dialect 查询方言。生成与修复只产出Prompt文本，
// 模型输出统一经Extract提取为可执行查询，提取失败返回空串。
type Dialect interface {
	// Name 方言名（dax / sql）
	Name() string
	// GeneratePrompt 首次生成查询的Prompt
	GeneratePrompt(schema, question string) string
	// FixPrompt 执行失败后的修复Prompt
	FixPrompt(schema, question, query, errMsg string) string
	// Extract 从模型输出提取可执行查询，无法提取返回空串
	Extract(text string) string
}

// ForName 按方言名获取实现
func ForName(name string) (Dialect, error) {
	switch name {
	case chatCommon.DialectDAX:
		return &DAXDialect{}, nil
	case chatCommon.DialectSQL:
		return &SQLDialect{}, nil
	default:
		return nil, errors.Newf(errors.ErrDataSourceUnsupported, "不支持的查询方言: %s", name)
	}
}

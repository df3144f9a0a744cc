package datasource

import (
	"context"

	chatCommon "github.com/Malowking/datachat/chat/common"
	"github.com/Malowking/datachat/core/errors"
)

// SchemaQueries 四类结构查询，Builder按固定顺序执行并归一化为快照文本
type SchemaQueries struct {
	Tables        string
	Columns       string
	Relationships string
	Measures      string
}

// DataSource 数据源接口
type DataSource interface {
	// Connect 连接数据源
	Connect(ctx context.Context) error
	// Close 关闭连接
	Close() error
	// Identity 数据源唯一标识，作为Schema缓存键
	Identity() string
	// Dialect 查询方言（dax / sql）
	Dialect() string
	// ExecuteQuery 执行查询并返回行集
	ExecuteQuery(ctx context.Context, query string) ([]chatCommon.Row, error)
	// SchemaQueries 返回该后端的结构提取查询
	SchemaQueries() SchemaQueries
	// SampleDistinct 从指定列采样去重值（升序，上限limit）
	SampleDistinct(ctx context.Context, table, column string, limit int) ([]string, error)
	// TestConnection 测试连接
	TestConnection(ctx context.Context) error
}

// Config 数据源配置
type Config struct {
	Type       string            `json:"type"` // 'powerbi', 'relational'
	PowerBI    *PowerBIConfig    `json:"powerbi,omitempty"`
	Relational *RelationalConfig `json:"relational,omitempty"`
}

// Create 按配置创建数据源
func Create(config *Config) (DataSource, error) {
	switch config.Type {
	case chatCommon.DataSourceTypePowerBI:
		if config.PowerBI == nil {
			return nil, errors.New(errors.ErrInvalidParameter, "缺少powerbi连接配置")
		}
		return NewPowerBISource(config.PowerBI), nil
	case chatCommon.DataSourceTypeRelational:
		if config.Relational == nil {
			return nil, errors.New(errors.ErrInvalidParameter, "缺少relational连接配置")
		}
		return NewRelationalSource(config.Relational), nil
	default:
		return nil, errors.Newf(errors.ErrDataSourceUnsupported, "不支持的数据源类型: %s", config.Type)
	}
}

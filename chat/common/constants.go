package common

// 支持的数据源类型
const (
	DataSourceTypePowerBI    = "powerbi"
	DataSourceTypeRelational = "relational"
)

// 支持的数据库类型（relational数据源）
const (
	DBTypePostgreSQL = "postgresql"
	DBTypeMySQL      = "mysql"
)

// 查询方言
const (
	DialectDAX = "dax"
	DialectSQL = "sql"
)

// 回答动作
const (
	ActionDescribe = "DESCRIBE"
	ActionQuery    = "QUERY"
	ActionError    = "ERROR"
)

// 反馈循环与结果限制
const (
	// DefaultMaxRetries 执行失败后允许的纠错重试次数（总执行次数 = MaxRetries + 1）
	DefaultMaxRetries = 2
	// MaxResultRows 送入回答Prompt的最大行数
	MaxResultRows = 200
	// MaxListRows 生成查询时要求模型限制的列表行数
	MaxListRows = 50
)

// 值解析限制
const (
	// MaxResolveTargets 单次解析最多采样的 (table, column) 目标数
	MaxResolveTargets = 3
	// MaxSamplePerColumn 单列采样的去重值上限
	MaxSamplePerColumn = 60
	// MaxCandidateValues 合并后候选池上限
	MaxCandidateValues = 120
	// MaxAlternatives 无法确定匹配时返回的近似值上限
	MaxAlternatives = 3
)

// Schema快照各区块条目上限，约束Prompt体积
const (
	MaxSnapshotColumns   = 30000
	MaxSnapshotMeasures  = 12000
	MaxSnapshotRelations = 12000
	// MaxMeasureExprRunes 度量表达式截断长度
	MaxMeasureExprRunes = 220
)

package errors

// ErrCode 业务错误码类型
type ErrCode int

const (
	// 通用错误 1000-1999
	ErrInvalidParameter ErrCode = 1001 // 参数错误
	ErrInternalError    ErrCode = 1002 // 内部错误
	ErrNotFound         ErrCode = 1003 // 资源未找到
	ErrOperationFailed  ErrCode = 1004 // 操作失败

	// 模型相关 2000-2999
	ErrModelNotConfigured ErrCode = 2001 // 模型未配置
	ErrModelConfigInvalid ErrCode = 2002 // 模型配置无效
	ErrLLMCallFailed      ErrCode = 2003 // LLM调用失败

	// Schema相关 3000-3999
	ErrSchemaEmpty       ErrCode = 3001 // Schema为空，四类结构查询均无可用条目
	ErrSchemaBuildFailed ErrCode = 3002 // Schema构建失败

	// 数据源相关 4000-4999
	ErrDataSourceUnsupported ErrCode = 4001 // 不支持的数据源类型
	ErrDataSourceConnect     ErrCode = 4002 // 数据源连接失败
	ErrDataSourceAuth        ErrCode = 4003 // 数据源认证失败
	ErrQueryExecuteFailed    ErrCode = 4004 // 查询执行失败

	// 问答相关 5000-5999
	ErrQueryUnparseable ErrCode = 5001 // 生成文本中未发现可执行查询
	ErrChatFailed       ErrCode = 5002 // 问答流程失败
)

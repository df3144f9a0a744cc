package datasource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	chatCommon "github.com/Malowking/datachat/chat/common"
	"github.com/Malowking/datachat/core/errors"
)

// RelationalConfig 关系型数据库连接配置
type RelationalConfig struct {
	DBType   string `json:"db_type"` // postgresql, mysql
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"` // disable, require（仅postgresql）
}

// RelationalSource 关系型数据源，通过gorm执行元数据提取与即席查询
type RelationalSource struct {
	config *RelationalConfig
	db     *gorm.DB
}

// NewRelationalSource 创建关系型数据源
func NewRelationalSource(config *RelationalConfig) *RelationalSource {
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	return &RelationalSource{
		config: config,
	}
}

// Connect 建立数据库连接
func (s *RelationalSource) Connect(ctx context.Context) error {
	var dialector gorm.Dialector
	switch s.config.DBType {
	case chatCommon.DBTypePostgreSQL:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.config.Host, s.config.Port, s.config.Username, s.config.Password,
			s.config.Database, s.config.SSLMode)
		dialector = postgres.Open(dsn)
	case chatCommon.DBTypeMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
			s.config.Username, s.config.Password, s.config.Host, s.config.Port,
			s.config.Database)
		dialector = mysql.Open(dsn)
	default:
		return errors.Newf(errors.ErrDataSourceUnsupported, "不支持的数据库类型: %s", s.config.DBType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return s.classifyConnError(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.ErrDataSourceConnect, "获取底层连接失败", err)
	}

	// 连接池参数
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return s.classifyConnError(err)
	}

	s.db = db
	return nil
}

// classifyConnError 将驱动错误映射为可读的连接错误
func (s *RelationalSource) classifyConnError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "name resolution"):
		return errors.Wrap(errors.ErrDataSourceConnect,
			fmt.Sprintf("无法解析数据库主机 '%s'，请检查主机地址", s.config.Host), err)
	case strings.Contains(msg, "password authentication failed") ||
		strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "authentication failed"):
		return errors.Wrap(errors.ErrDataSourceAuth, "数据库认证失败，请检查用户名和密码", err)
	case strings.Contains(msg, "does not exist") || strings.Contains(msg, "unknown database"):
		return errors.Wrap(errors.ErrDataSourceConnect,
			fmt.Sprintf("数据库 '%s' 不存在，请检查数据库名", s.config.Database), err)
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "timeout"):
		return errors.Wrap(errors.ErrDataSourceConnect,
			fmt.Sprintf("连接 '%s:%d' 被拒绝或超时，请确认数据库服务可达", s.config.Host, s.config.Port), err)
	default:
		return errors.Wrap(errors.ErrDataSourceConnect, "数据库连接失败", err)
	}
}

// Close 关闭连接
func (s *RelationalSource) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Identity 返回 dbtype:host:port/database 作为缓存键
func (s *RelationalSource) Identity() string {
	return fmt.Sprintf("%s:%s:%d/%s", s.config.DBType, s.config.Host, s.config.Port, s.config.Database)
}

// Dialect 查询方言
func (s *RelationalSource) Dialect() string {
	return chatCommon.DialectSQL
}

// ExecuteQuery 执行SQL并把行集扫描为map
func (s *RelationalSource) ExecuteQuery(ctx context.Context, query string) ([]chatCommon.Row, error) {
	if s.db == nil {
		return nil, errors.New(errors.ErrDataSourceConnect, "数据源未连接")
	}

	rows, err := s.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, errors.Wrap(errors.ErrQueryExecuteFailed, "执行查询失败", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(errors.ErrQueryExecuteFailed, "获取列名失败", err)
	}

	result := make([]chatCommon.Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, errors.Wrap(errors.ErrQueryExecuteFailed, "扫描行数据失败", err)
		}

		rowMap := make(chatCommon.Row, len(columns))
		for i, colName := range columns {
			val := values[i]
			// 字节数组统一转字符串
			if b, ok := val.([]byte); ok {
				rowMap[colName] = string(b)
			} else {
				rowMap[colName] = val
			}
		}
		result = append(result, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrQueryExecuteFailed, "读取数据失败", err)
	}
	return result, nil
}

// SchemaQueries 基于information_schema的结构查询。
// 列别名统一为Builder期望的规范键；文本类列的类型归一化为Text，
// 供值解析器识别可采样列。MEASURES区块由视图定义充当。
func (s *RelationalSource) SchemaQueries() SchemaQueries {
	switch s.config.DBType {
	case chatCommon.DBTypeMySQL:
		return SchemaQueries{
			Tables: "SELECT table_name AS `Name` FROM information_schema.tables " +
				"WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name",
			Columns: "SELECT table_name AS `Table`, column_name AS `Name`, " +
				"CASE WHEN data_type IN ('varchar', 'char', 'text', 'tinytext', 'mediumtext', 'longtext', 'enum') " +
				"THEN 'Text' ELSE data_type END AS `DataType` " +
				"FROM information_schema.columns WHERE table_schema = DATABASE() " +
				"ORDER BY table_name, ordinal_position",
			Relationships: "SELECT table_name AS `FromTable`, column_name AS `FromColumn`, " +
				"referenced_table_name AS `ToTable`, referenced_column_name AS `ToColumn` " +
				"FROM information_schema.key_column_usage " +
				"WHERE table_schema = DATABASE() AND referenced_table_name IS NOT NULL",
			Measures: "SELECT table_schema AS `Table`, table_name AS `Name`, view_definition AS `Expression` " +
				"FROM information_schema.views WHERE table_schema = DATABASE()",
		}
	default: // postgresql
		return SchemaQueries{
			Tables: `SELECT table_name AS "Name" FROM information_schema.tables ` +
				`WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name`,
			Columns: `SELECT table_name AS "Table", column_name AS "Name", ` +
				`CASE WHEN data_type IN ('character varying', 'varchar', 'character', 'text', 'citext') ` +
				`THEN 'Text' ELSE data_type END AS "DataType" ` +
				`FROM information_schema.columns WHERE table_schema = 'public' ` +
				`ORDER BY table_name, ordinal_position`,
			Relationships: `SELECT tc.table_name AS "FromTable", kcu.column_name AS "FromColumn", ` +
				`ccu.table_name AS "ToTable", ccu.column_name AS "ToColumn" ` +
				`FROM information_schema.table_constraints tc ` +
				`JOIN information_schema.key_column_usage kcu ` +
				`ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema ` +
				`JOIN information_schema.constraint_column_usage ccu ` +
				`ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema ` +
				`WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public'`,
			Measures: `SELECT table_schema AS "Table", table_name AS "Name", view_definition AS "Expression" ` +
				`FROM information_schema.views WHERE table_schema = 'public'`,
		}
	}
}

// SampleDistinct 采样列的去重值（升序截断）
func (s *RelationalSource) SampleDistinct(ctx context.Context, table, column string, limit int) ([]string, error) {
	if !validIdentifier(table) || !validIdentifier(column) {
		return nil, errors.Newf(errors.ErrInvalidParameter, "非法标识符: %s.%s", table, column)
	}

	var query string
	switch s.config.DBType {
	case chatCommon.DBTypeMySQL:
		query = fmt.Sprintf(
			"SELECT DISTINCT `%s` AS `value` FROM `%s` WHERE `%s` IS NOT NULL ORDER BY 1 ASC LIMIT %d",
			column, table, column, limit)
	default:
		query = fmt.Sprintf(
			`SELECT DISTINCT "%s" AS "value" FROM "%s" WHERE "%s" IS NOT NULL ORDER BY 1 ASC LIMIT %d`,
			column, table, column, limit)
	}

	rows, err := s.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if v := chatCommon.GetAnyString(row, "value"); v != "" {
			values = append(values, v)
		}
	}
	return values, nil
}

// validIdentifier 拒绝带引号或控制字符的标识符，采样查询只拼接已校验的名字
func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsAny(name, "`\"'\\;\x00\n\r")
}

// TestConnection 测试连接
func (s *RelationalSource) TestConnection(ctx context.Context) error {
	if s.db == nil {
		return errors.New(errors.ErrDataSourceConnect, "数据源未连接")
	}
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Row().Err(); err != nil {
		return s.classifyConnError(err)
	}
	return nil
}

package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatCommon "github.com/Malowking/datachat/chat/common"
)

// TestFirstTableRows 测试executeQueries响应解析
func TestFirstTableRows(t *testing.T) {
	t.Run("解析首个结果表", func(t *testing.T) {
		body := `{"results": [{"tables": [{"rows": [
			{"[Name]": "Sales", "[DataType]": "Text"},
			{"[Name]": "Customers", "[DataType]": "Text"}
		]}]}]}`

		rows, err := firstTableRows(body)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "Sales", chatCommon.GetAnyString(rows[0], "Name"))
	})

	t.Run("空结果返回空行集", func(t *testing.T) {
		rows, err := firstTableRows(`{"results": []}`)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("非JSON响应返回错误", func(t *testing.T) {
		_, err := firstTableRows("<html>502 Bad Gateway</html>")
		assert.Error(t, err)
	})
}

// TestPowerBISourceMetadata 测试标识与方言
func TestPowerBISourceMetadata(t *testing.T) {
	s := NewPowerBISource(&PowerBIConfig{
		WorkspaceID: "ws-1",
		DatasetID:   "ds-1",
	})

	assert.Equal(t, "ws-1:ds-1", s.Identity())
	assert.Equal(t, chatCommon.DialectDAX, s.Dialect())

	queries := s.SchemaQueries()
	assert.Contains(t, queries.Tables, "INFO.VIEW.TABLES")
	assert.Contains(t, queries.Columns, "INFO.VIEW.COLUMNS")
	assert.Contains(t, queries.Relationships, "INFO.VIEW.RELATIONSHIPS")
	assert.Contains(t, queries.Measures, "INFO.VIEW.MEASURES")
}

// TestPowerBISourceNotConnected 测试未连接时的防护
func TestPowerBISourceNotConnected(t *testing.T) {
	s := NewPowerBISource(&PowerBIConfig{})
	_, err := s.ExecuteQuery(context.Background(), "EVALUATE 'T'")
	assert.Error(t, err)
}

package executor

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Malowking/datachat/chat/adapter"
	chatCommon "github.com/Malowking/datachat/chat/common"
	"github.com/Malowking/datachat/chat/datasource"
	"github.com/Malowking/datachat/chat/generator"
)

// queryOutcome 单条查询的预置结果
type queryOutcome struct {
	rows []chatCommon.Row
	err  error
}

// stubSource 按查询文本返回预置结果的数据源桩
type stubSource struct {
	outcomes map[string]queryOutcome
	executed []string
}

func (s *stubSource) Connect(ctx context.Context) error { return nil }
func (s *stubSource) Close() error                      { return nil }
func (s *stubSource) Identity() string                  { return "stub:source" }
func (s *stubSource) Dialect() string                   { return chatCommon.DialectDAX }

func (s *stubSource) ExecuteQuery(ctx context.Context, query string) ([]chatCommon.Row, error) {
	s.executed = append(s.executed, query)
	outcome, ok := s.outcomes[query]
	if !ok {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	return outcome.rows, outcome.err
}

func (s *stubSource) SchemaQueries() datasource.SchemaQueries { return datasource.SchemaQueries{} }
func (s *stubSource) SampleDistinct(ctx context.Context, table, column string, limit int) ([]string, error) {
	return nil, nil
}
func (s *stubSource) TestConnection(ctx context.Context) error { return nil }

func fixedComplete(reply string) adapter.CompleteFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		return reply, nil
	}
}

// TestFeedbackExecutorExecute 测试提取-执行-修复循环
func TestFeedbackExecutorExecute(t *testing.T) {
	ctx := context.Background()
	dax, err := generator.ForName(chatCommon.DialectDAX)
	require.NoError(t, err)

	t.Run("首次执行成功", func(t *testing.T) {
		ds := &stubSource{outcomes: map[string]queryOutcome{
			"EVALUATE 'Sales'": {rows: []chatCommon.Row{{"Amount": 100}}},
		}}
		e := NewFeedbackExecutor(chatCommon.DefaultMaxRetries)

		result := e.Execute(ctx, fixedComplete(""), ds, dax, "SCHEMA", "q",
			"```dax\nEVALUATE 'Sales'\n```")

		assert.True(t, result.Succeeded)
		assert.Equal(t, "EVALUATE 'Sales'", result.FinalQuery)
		assert.Equal(t, []string{"EVALUATE 'Sales'"}, result.Attempts)
		assert.Contains(t, result.Response, "100")
	})

	t.Run("失败后修复成功", func(t *testing.T) {
		ds := &stubSource{outcomes: map[string]queryOutcome{
			"EVALUATE BAD":  {err: fmt.Errorf("Unknown table BAD")},
			"EVALUATE GOOD": {rows: []chatCommon.Row{{"Result": 7}}},
		}}
		e := NewFeedbackExecutor(chatCommon.DefaultMaxRetries)

		var fixPrompts []string
		complete := func(ctx context.Context, prompt string) (string, error) {
			fixPrompts = append(fixPrompts, prompt)
			return "```dax\nEVALUATE GOOD\n```", nil
		}

		result := e.Execute(ctx, complete, ds, dax, "SCHEMA", "q", "EVALUATE BAD")

		assert.True(t, result.Succeeded)
		assert.Equal(t, "EVALUATE GOOD", result.FinalQuery)
		assert.Equal(t, []string{"EVALUATE BAD", "EVALUATE GOOD"}, result.Attempts)
		require.Len(t, fixPrompts, 1)
		assert.Contains(t, fixPrompts[0], "Unknown table BAD")
		assert.Contains(t, fixPrompts[0], "EVALUATE BAD")
	})

	t.Run("重试耗尽后终止", func(t *testing.T) {
		ds := &stubSource{outcomes: map[string]queryOutcome{
			"EVALUATE BAD": {err: fmt.Errorf("still broken")},
		}}
		e := NewFeedbackExecutor(chatCommon.DefaultMaxRetries)

		result := e.Execute(ctx, fixedComplete("EVALUATE BAD"), ds, dax, "SCHEMA", "q", "EVALUATE BAD")

		assert.False(t, result.Succeeded)
		assert.Equal(t, "EVALUATE BAD", result.FinalQuery)
		assert.Len(t, result.Attempts, chatCommon.DefaultMaxRetries+1)
		assert.Equal(t, "still broken", result.LastError)
		assert.Contains(t, result.Response, "still broken")
		assert.Contains(t, result.Response, "EVALUATE BAD")
	})

	t.Run("两次失败后第三次成功", func(t *testing.T) {
		ds := &stubSource{outcomes: map[string]queryOutcome{
			"EVALUATE BAD1": {err: fmt.Errorf("error one")},
			"EVALUATE BAD2": {err: fmt.Errorf("error two")},
			"EVALUATE GOOD": {rows: []chatCommon.Row{{"Result": 1}}},
		}}
		e := NewFeedbackExecutor(chatCommon.DefaultMaxRetries)

		fixes := []string{"EVALUATE BAD2", "EVALUATE GOOD"}
		complete := func(ctx context.Context, prompt string) (string, error) {
			next := fixes[0]
			fixes = fixes[1:]
			return next, nil
		}

		result := e.Execute(ctx, complete, ds, dax, "SCHEMA", "q", "EVALUATE BAD1")

		assert.True(t, result.Succeeded)
		assert.Equal(t, "EVALUATE GOOD", result.FinalQuery)
		assert.Equal(t, []string{"EVALUATE BAD1", "EVALUATE BAD2", "EVALUATE GOOD"}, result.Attempts)
		assert.Empty(t, result.LastError)
	})

	t.Run("初始输出不可提取立即终止", func(t *testing.T) {
		ds := &stubSource{}
		e := NewFeedbackExecutor(chatCommon.DefaultMaxRetries)

		result := e.Execute(ctx, fixedComplete(""), ds, dax, "SCHEMA", "q", "I cannot write DAX.")

		assert.False(t, result.Succeeded)
		assert.Empty(t, result.FinalQuery)
		assert.Empty(t, result.Attempts)
		assert.Empty(t, ds.executed)
		assert.Equal(t, "I cannot write DAX.", result.Response)
	})

	t.Run("修复输出不可提取终止", func(t *testing.T) {
		ds := &stubSource{outcomes: map[string]queryOutcome{
			"EVALUATE BAD": {err: fmt.Errorf("boom")},
		}}
		e := NewFeedbackExecutor(chatCommon.DefaultMaxRetries)

		result := e.Execute(ctx, fixedComplete("sorry, no idea"), ds, dax, "SCHEMA", "q", "EVALUATE BAD")

		assert.False(t, result.Succeeded)
		assert.Empty(t, result.FinalQuery)
		assert.Equal(t, []string{"EVALUATE BAD"}, result.Attempts)
		assert.Equal(t, "sorry, no idea", result.Response)
	})

	t.Run("结果行超限被截断", func(t *testing.T) {
		rows := make([]chatCommon.Row, chatCommon.MaxResultRows+50)
		for i := range rows {
			rows[i] = chatCommon.Row{"idx": i}
		}
		ds := &stubSource{outcomes: map[string]queryOutcome{
			"EVALUATE 'Big'": {rows: rows},
		}}
		e := NewFeedbackExecutor(chatCommon.DefaultMaxRetries)

		result := e.Execute(ctx, fixedComplete(""), ds, dax, "SCHEMA", "q", "EVALUATE 'Big'")

		require.True(t, result.Succeeded)
		assert.Equal(t, chatCommon.MaxResultRows, strings.Count(result.Response, `"idx"`))
	})
}

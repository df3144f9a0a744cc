package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatCommon "github.com/Malowking/datachat/chat/common"
	"github.com/Malowking/datachat/chat/datasource"
)

// pipelineSource 端到端测试用数据源桩
type pipelineSource struct {
	identity  string
	schemaErr error
	rows      map[string][]chatCommon.Row
	queryErrs map[string]error
	executed  []string
}

func newPipelineSource() *pipelineSource {
	return &pipelineSource{
		identity: "ws1:ds1",
		rows: map[string][]chatCommon.Row{
			"Q_TABLES": {
				{"Name": "Sales"},
				{"Name": "Customers"},
			},
			"Q_COLUMNS": {
				{"Table": "Customers", "Name": "Name", "DataType": "Text"},
				{"Table": "Sales", "Name": "Amount", "DataType": "Decimal"},
			},
			"Q_MEASURES":      {},
			"Q_RELATIONSHIPS": {},
		},
	}
}

func (p *pipelineSource) Connect(ctx context.Context) error { return nil }
func (p *pipelineSource) Close() error                      { return nil }
func (p *pipelineSource) Identity() string                  { return p.identity }
func (p *pipelineSource) Dialect() string                   { return chatCommon.DialectDAX }

func (p *pipelineSource) ExecuteQuery(ctx context.Context, query string) ([]chatCommon.Row, error) {
	p.executed = append(p.executed, query)
	if p.schemaErr != nil && strings.HasPrefix(query, "Q_") {
		return nil, p.schemaErr
	}
	if err, ok := p.queryErrs[query]; ok {
		return nil, err
	}
	if rows, ok := p.rows[query]; ok {
		return rows, nil
	}
	return nil, fmt.Errorf("unexpected query: %s", query)
}

func (p *pipelineSource) SchemaQueries() datasource.SchemaQueries {
	return datasource.SchemaQueries{
		Tables:        "Q_TABLES",
		Columns:       "Q_COLUMNS",
		Relationships: "Q_RELATIONSHIPS",
		Measures:      "Q_MEASURES",
	}
}

func (p *pipelineSource) SampleDistinct(ctx context.Context, table, column string, limit int) ([]string, error) {
	return []string{"Alice", "Bob"}, nil
}

func (p *pipelineSource) TestConnection(ctx context.Context) error { return nil }

// routedComplete 按Prompt特征路由到各环节的脚本化回复
func routedComplete(t *testing.T, resolverReply, plannerReply, generateReply, answerReply string) func(ctx context.Context, prompt string) (string, error) {
	return func(ctx context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "need_resolution"):
			return resolverReply, nil
		case strings.Contains(prompt, "Candidate values:"):
			return `{"resolved": null, "alternatives": []}`, nil
		case strings.Contains(prompt, `"action"`):
			return plannerReply, nil
		case strings.Contains(prompt, "Generate DAX"):
			return generateReply, nil
		case strings.Contains(prompt, "Answer:"):
			return answerReply, nil
		default:
			t.Fatalf("unexpected prompt: %s", prompt)
			return "", nil
		}
	}
}

const noResolution = `{"need_resolution": false, "targets": [], "user_value": "", "rewrite_question": ""}`

// TestChatServiceAnswer 测试端到端问答链路
func TestChatServiceAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("DESCRIBE链路", func(t *testing.T) {
		ds := newPipelineSource()
		complete := routedComplete(t,
			noResolution,
			`{"action": "DESCRIBE", "reason": "schema question", "dax": ""}`,
			"",
			"There are two tables: Sales and Customers.",
		)

		svc := NewChatService(complete)
		resp := svc.Answer(ctx, &AnswerRequest{Question: "what tables exist?", Source: ds})

		assert.Equal(t, chatCommon.ActionDescribe, resp.Action)
		assert.Equal(t, "There are two tables: Sales and Customers.", resp.Answer)
		assert.Empty(t, resp.QueryAttempts)
		assert.Empty(t, resp.FinalQuery)
		assert.Empty(t, resp.Error)
	})

	t.Run("QUERY链路使用规划候选查询", func(t *testing.T) {
		ds := newPipelineSource()
		ds.rows["EVALUATE ROW(\"Result\", COUNTROWS('Sales'))"] = []chatCommon.Row{{"[Result]": 42}}

		complete := routedComplete(t,
			noResolution,
			`{"action": "QUERY", "reason": "needs data", "dax": "EVALUATE ROW(\"Result\", COUNTROWS('Sales'))"}`,
			"",
			"There are 42 sales rows.",
		)

		svc := NewChatService(complete)
		resp := svc.Answer(ctx, &AnswerRequest{Question: "how many sales?", Source: ds})

		assert.Equal(t, chatCommon.ActionQuery, resp.Action)
		assert.Equal(t, "There are 42 sales rows.", resp.Answer)
		require.Len(t, resp.QueryAttempts, 1)
		assert.Equal(t, `EVALUATE ROW("Result", COUNTROWS('Sales'))`, resp.FinalQuery)
		assert.Empty(t, resp.Error)
	})

	t.Run("QUERY链路无候选时走生成器", func(t *testing.T) {
		ds := newPipelineSource()
		ds.rows["EVALUATE 'Sales'"] = []chatCommon.Row{{"Amount": 10}}

		complete := routedComplete(t,
			noResolution,
			`{"action": "QUERY", "reason": "needs data", "dax": ""}`,
			"```dax\nEVALUATE 'Sales'\n```",
			"Total is 10.",
		)

		svc := NewChatService(complete)
		resp := svc.Answer(ctx, &AnswerRequest{Question: "total sales?", Source: ds})

		assert.Equal(t, chatCommon.ActionQuery, resp.Action)
		assert.Equal(t, "EVALUATE 'Sales'", resp.FinalQuery)
	})

	t.Run("生成输出不可提取时上抛ERROR", func(t *testing.T) {
		ds := newPipelineSource()
		complete := routedComplete(t,
			noResolution,
			`{"action": "QUERY", "reason": "needs data", "dax": ""}`,
			"I am unable to produce a query.",
			"I could not run a query for this question.",
		)

		svc := NewChatService(complete)
		resp := svc.Answer(ctx, &AnswerRequest{Question: "total sales?", Source: ds})

		assert.Equal(t, chatCommon.ActionError, resp.Action)
		assert.Empty(t, resp.FinalQuery)
		assert.Empty(t, resp.QueryAttempts)
		assert.Contains(t, resp.Error, "I am unable to produce a query.")
		assert.Equal(t, "I could not run a query for this question.", resp.Answer)
	})

	t.Run("重试耗尽后上抛ERROR", func(t *testing.T) {
		ds := newPipelineSource()
		ds.queryErrs = map[string]error{
			"EVALUATE BROKEN": fmt.Errorf("Unknown table BROKEN"),
		}

		complete := func(ctx context.Context, prompt string) (string, error) {
			switch {
			case strings.Contains(prompt, "need_resolution"):
				return noResolution, nil
			case strings.Contains(prompt, `"action"`):
				return `{"action": "QUERY", "reason": "needs data", "dax": "EVALUATE BROKEN"}`, nil
			case strings.Contains(prompt, "failed in Power BI executeQueries"):
				return "EVALUATE BROKEN", nil
			case strings.Contains(prompt, "Answer:"):
				return "The query kept failing.", nil
			default:
				t.Fatalf("unexpected prompt: %s", prompt)
				return "", nil
			}
		}

		svc := NewChatService(complete)
		resp := svc.Answer(ctx, &AnswerRequest{Question: "total sales?", Source: ds})

		assert.Equal(t, chatCommon.ActionError, resp.Action)
		assert.Equal(t, "EVALUATE BROKEN", resp.FinalQuery)
		assert.Len(t, resp.QueryAttempts, chatCommon.DefaultMaxRetries+1)
		assert.Contains(t, resp.Error, "Unknown table BROKEN")
		assert.Equal(t, "The query kept failing.", resp.Answer)
	})

	t.Run("Schema构建失败返回ERROR", func(t *testing.T) {
		ds := newPipelineSource()
		ds.schemaErr = fmt.Errorf("dataset unreachable")

		svc := NewChatService(routedComplete(t, noResolution, "", "", ""))
		resp := svc.Answer(ctx, &AnswerRequest{Question: "q", Source: ds})

		assert.Equal(t, chatCommon.ActionError, resp.Action)
		assert.Contains(t, resp.Answer, "Failed to load schema")
		assert.NotEmpty(t, resp.Error)
	})

	t.Run("空问题返回ERROR", func(t *testing.T) {
		svc := NewChatService(routedComplete(t, noResolution, "", "", ""))
		resp := svc.Answer(ctx, &AnswerRequest{Question: "   ", Source: newPipelineSource()})

		assert.Equal(t, chatCommon.ActionError, resp.Action)
		assert.NotEmpty(t, resp.Error)
	})

	t.Run("缺少数据源返回ERROR", func(t *testing.T) {
		svc := NewChatService(routedComplete(t, noResolution, "", "", ""))
		resp := svc.Answer(ctx, &AnswerRequest{Question: "q"})

		assert.Equal(t, chatCommon.ActionError, resp.Action)
	})

	t.Run("同一数据源的Schema只构建一次", func(t *testing.T) {
		ds := newPipelineSource()
		complete := routedComplete(t,
			noResolution,
			`{"action": "DESCRIBE", "reason": "", "dax": ""}`,
			"",
			"answer",
		)

		svc := NewChatService(complete)
		svc.Answer(ctx, &AnswerRequest{Question: "q1", Source: ds})
		svc.Answer(ctx, &AnswerRequest{Question: "q2", Source: ds})

		count := 0
		for _, q := range ds.executed {
			if q == "Q_TABLES" {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("失效后重新构建Schema", func(t *testing.T) {
		ds := newPipelineSource()
		complete := routedComplete(t,
			noResolution,
			`{"action": "DESCRIBE", "reason": "", "dax": ""}`,
			"",
			"answer",
		)

		svc := NewChatService(complete)
		svc.Answer(ctx, &AnswerRequest{Question: "q1", Source: ds})
		svc.InvalidateSchema(ds.Identity())
		svc.Answer(ctx, &AnswerRequest{Question: "q2", Source: ds})

		count := 0
		for _, q := range ds.executed {
			if q == "Q_TABLES" {
				count++
			}
		}
		assert.Equal(t, 2, count)
	})
}

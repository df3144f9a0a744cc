package planner

import (
	"context"
	"strings"

	"github.com/gogf/gf/v2/frame/g"

	"github.com/Malowking/datachat/chat/adapter"
	chatCommon "github.com/Malowking/datachat/chat/common"
	"github.com/Malowking/datachat/core/errors"
)

// Plan 规划结果。CandidateQuery是规划阶段顺带产出的候选查询，
// 为空时由生成器另行生成。
type Plan struct {
	Action         string
	Reason         string
	CandidateQuery string
}

// rawPlan 兼容模型输出的多种查询字段名
type rawPlan struct {
	Action     string `json:"action"`
	Reason     string `json:"reason"`
	DAX        string `json:"dax"`
	Query      string `json:"query"`
	DAXOrQuery string `json:"dax_or_query"`
}

// Planner 决策器：DESCRIBE仅凭Schema作答，QUERY走生成执行链路
type Planner struct{}

// NewPlanner 创建决策器
func NewPlanner() *Planner {
	return &Planner{}
}

// Decide 调用模型做DESCRIBE/QUERY决策。
// 输出无法解析或action未知时回退DESCRIBE，保证决策环节不阻断问答。
func (p *Planner) Decide(ctx context.Context, complete adapter.CompleteFunc, schema, question, dialectName string) (*Plan, error) {
	text, err := complete(ctx, p.buildPrompt(schema, question, dialectName))
	if err != nil {
		return nil, errors.Wrap(errors.ErrLLMCallFailed, "规划调用失败", err)
	}

	var raw rawPlan
	if !chatCommon.DecodeJSONMaybe(text, &raw) {
		g.Log().Warningf(ctx, "规划输出不是合法JSON，回退DESCRIBE: %s", text)
		return &Plan{Action: chatCommon.ActionDescribe}, nil
	}

	action := strings.ToUpper(strings.TrimSpace(raw.Action))
	if action != chatCommon.ActionDescribe && action != chatCommon.ActionQuery {
		g.Log().Warningf(ctx, "规划action未知(%s)，回退DESCRIBE", raw.Action)
		action = chatCommon.ActionDescribe
	}

	candidate := strings.TrimSpace(raw.DAX)
	if candidate == "" {
		candidate = strings.TrimSpace(raw.Query)
	}
	if candidate == "" {
		candidate = strings.TrimSpace(raw.DAXOrQuery)
	}

	return &Plan{
		Action:         action,
		Reason:         strings.TrimSpace(raw.Reason),
		CandidateQuery: candidate,
	}, nil
}

func (p *Planner) buildPrompt(schema, question, dialectName string) string {
	var target, queryKey, rules string
	if dialectName == chatCommon.DialectSQL {
		target = "a relational database"
		queryKey = "query"
		rules = `Rules for QUERY:
- Use ONLY names present in the schema.
- Generate a single read-only SELECT statement.
- Prefer querying real data tables rather than inventing lists of names.`
	} else {
		target = "a Power BI semantic model"
		queryKey = "dax"
		rules = `Rules for QUERY:
- Use ONLY names present in the schema.
- Always use EVALUATE with a table expression.
- Quote table names with spaces/hyphens using single quotes, e.g. 'Dim Date'.
- Prefer querying real data tables rather than inventing lists of names.`
	}

	return `Decide how to answer a question about ` + target + `.

You have a schema snapshot (tables, columns, measures, relationships). You can either:
- DESCRIBE: answer using only the schema (no query execution)
- QUERY: generate a query to execute, then answer from results

Return ONLY valid JSON with keys:
- "action": "DESCRIBE" or "QUERY"
- "reason": short reason
- "` + queryKey + `": a query string if action is "QUERY", otherwise ""

` + rules + `

Schema:
` + schema + `

Question:
` + question + `

JSON:`
}

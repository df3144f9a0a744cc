package generator

import (
	"regexp"
	"strings"

	chatCommon "github.com/Malowking/datachat/chat/common"
)

// SQLDialect 关系型数据库的SQL方言
type SQLDialect struct{}

func (d *SQLDialect) Name() string {
	return chatCommon.DialectSQL
}

func (d *SQLDialect) GeneratePrompt(schema, question string) string {
	return `Based on the table schema below, write a SQL query that would answer the user's question.

Hard rules (must follow):
1) Only use tables/columns that appear in the schema.
2) Return ONLY the SQL query inside a ` + "```sql" + ` code block. No explanation.
3) Generate a single read-only SELECT statement.
4) If the user asks to list items, limit output with LIMIT 50.
5) When filtering by date ranges, prefer half-open intervals: >= start AND < next period start.
6) For fuzzy text matching, use LOWER(column) LIKE LOWER('%value%').

Schema:
` + schema + `

Question:
` + question + `

SQL Query:`
}

func (d *SQLDialect) FixPrompt(schema, question, query, errMsg string) string {
	return `The previous SQL query failed to execute.

Schema:
` + schema + `

Question:
` + question + `

Failed SQL:
` + query + `

Database error:
` + errMsg + `

Write a corrected SQL query.

Hard rules (must follow):
1) Only use tables/columns that appear in the schema.
2) Return ONLY the SQL query inside a ` + "```sql" + ` code block.
3) Generate a single read-only SELECT statement.
4) Keep results small: LIMIT 50 for list outputs.

SQL Query:`
}

var sqlKeywordPattern = regexp.MustCompile(`(?is)\b(SELECT|WITH|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP)\b.*`)

// Extract 优先取```sql围栏，其次从首个SQL关键字截取到末尾
func (d *SQLDialect) Extract(text string) string {
	if candidate := chatCommon.ExtractFencedBlock(text, "sql"); candidate != "" {
		return candidate
	}
	if m := sqlKeywordPattern.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}

package generator

import (
	"regexp"
	"strings"

	chatCommon "github.com/Malowking/datachat/chat/common"
)

// DAXDialect Power BI语义模型的DAX方言
type DAXDialect struct{}

func (d *DAXDialect) Name() string {
	return chatCommon.DialectDAX
}

func (d *DAXDialect) GeneratePrompt(schema, question string) string {
	return `Generate DAX for Power BI executeQueries.

Hard rules (must follow):
1) Only use tables/columns/measures that appear in the schema.
2) Return ONLY the DAX query inside a ` + "```dax" + ` code block. No explanation.
3) Always return a table result using EVALUATE.
4) Column references MUST use the exact DAX form: 'Table'[Column]
   - Never write 'Table[Column]' (that is invalid).
5) Table references:
  - Always use 'Table'[Column] form.
  - If a table name contains spaces/symbols OR starts with underscore, ALWAYS wrap it in single quotes: '_Daly Production'[createdAt].
6) If the user asks for a total / count / average / min / max:
   - Return exactly ONE row using:
     EVALUATE ROW("Result", <number>)
   - Use CALCULATE/SUM/COUNTROWS/SUMX/AVERAGEX as needed.
7) If the user asks to list items:
   - Return a table with human-friendly columns (names over IDs when possible).
   - Limit output: TOPN(50, ..., <sort>, ASC/DESC)
8) When filtering by date ranges:
   - Prefer half-open intervals: >= start AND < next period start (safer than <= end).
9) For text matching or "I don't remember exact name":
   - Use CONTAINSSTRING( LOWER( 'Table'[TextCol] ), LOWER("value") ) where appropriate.

Schema:
` + schema + `

Question:
` + question + `

DAX Query:`
}

func (d *DAXDialect) FixPrompt(schema, question, query, errMsg string) string {
	return `The previous DAX query failed in Power BI executeQueries.

Schema:
` + schema + `

Question:
` + question + `

Failed DAX:
` + query + `

Power BI error:
` + errMsg + `

Write a corrected DAX query.

Hard rules (must follow):
1) Only use tables/columns/measures that appear in the schema.
2) Return ONLY the DAX query inside a ` + "```dax" + ` code block.
3) Always return a table result using EVALUATE.
4) Column references MUST use: 'Table'[Column] (never 'Table[Column]').
5) If the user asks for a total / count / average / min / max:
   - Return exactly ONE row:
     EVALUATE ROW("Result", <number>)
6) Prefer human-friendly columns (names) over IDs when possible.
7) Keep results small: TOPN(50, ...) for list outputs.
8) Table references:
  - Always use 'Table'[Column] form.
  - If a table name contains spaces/symbols OR starts with underscore, ALWAYS wrap it in single quotes: '_Daly Production'[createdAt].

DAX Query:`
}

var daxEvaluatePattern = regexp.MustCompile(`(?is)\bEVALUATE\b.*`)

// Extract 优先取```dax围栏，其次从首个EVALUATE截取，最后回退原文。
// 结果不含EVALUATE时视为不可执行。
func (d *DAXDialect) Extract(text string) string {
	candidate := chatCommon.ExtractFencedBlock(text, "dax")
	if candidate == "" {
		if m := daxEvaluatePattern.FindString(text); m != "" {
			candidate = strings.TrimSpace(m)
		}
	}
	if candidate == "" {
		candidate = strings.TrimSpace(text)
	}
	if candidate == "" || !strings.Contains(strings.ToUpper(candidate), "EVALUATE") {
		return ""
	}
	return candidate
}

package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/frame/g"

	"github.com/Malowking/datachat/chat/adapter"
	chatCommon "github.com/Malowking/datachat/chat/common"
	"github.com/Malowking/datachat/chat/datasource"
	"github.com/Malowking/datachat/chat/generator"
)

// Result 执行反馈环的结果。
// Succeeded为false时Response携带失败描述文本，仍交给答案合成器转述。
type Result struct {
	FinalQuery string   // 最后实际尝试的查询，提取失败时为空
	Response   string   // 成功时为行集JSON（截断200行），失败时为错误描述
	Attempts   []string // 实际提交执行过的查询，长度不超过maxRetries+1
	LastError  string   // 终止时数据源的最后错误，提取失败时为空
	Succeeded  bool
}

// FeedbackExecutor 带错误反馈修复的查询执行器
type FeedbackExecutor struct {
	maxRetries int
}

// NewFeedbackExecutor 创建执行器，maxRetries<0时取默认值
func NewFeedbackExecutor(maxRetries int) *FeedbackExecutor {
	if maxRetries < 0 {
		maxRetries = chatCommon.DefaultMaxRetries
	}
	return &FeedbackExecutor{maxRetries: maxRetries}
}

// Execute 提取-执行-修复循环。
// 模型输出无法提取出可执行查询时立即终止，不消耗尝试次数；
// 执行失败时用错误文本构造修复Prompt再生成，最多maxRetries次修复。
func (e *FeedbackExecutor) Execute(
	ctx context.Context,
	complete adapter.CompleteFunc,
	ds datasource.DataSource,
	dialect generator.Dialect,
	schema, question, initialText string,
) *Result {
	attempts := make([]string, 0, e.maxRetries+1)
	queryText := initialText
	label := strings.ToUpper(dialect.Name())

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		query := dialect.Extract(queryText)
		if query == "" {
			g.Log().Warningf(ctx, "模型输出无法提取%s查询，终止执行: %s", label, queryText)
			return &Result{
				FinalQuery: "",
				Response:   queryText,
				Attempts:   attempts,
				Succeeded:  false,
			}
		}

		attempts = append(attempts, query)
		g.Log().Infof(ctx, "执行%s查询 (尝试 %d/%d): %s", label, attempt+1, e.maxRetries+1, query)

		rows, err := ds.ExecuteQuery(ctx, query)
		if err == nil {
			return &Result{
				FinalQuery: query,
				Response:   serializeRows(rows),
				Attempts:   attempts,
				Succeeded:  true,
			}
		}

		g.Log().Warningf(ctx, "%s执行失败 (尝试 %d/%d): %v", label, attempt+1, e.maxRetries+1, err)

		if attempt == e.maxRetries {
			return &Result{
				FinalQuery: query,
				Response: fmt.Sprintf("%s execution error: %v\n\nLast attempted %s:\n%s",
					label, err, label, query),
				Attempts:  attempts,
				LastError: err.Error(),
				Succeeded: false,
			}
		}

		fixed, ferr := complete(ctx, dialect.FixPrompt(schema, question, query, err.Error()))
		if ferr != nil {
			g.Log().Errorf(ctx, "修复查询的模型调用失败: %v", ferr)
			return &Result{
				FinalQuery: query,
				Response: fmt.Sprintf("%s execution error: %v\n\nLast attempted %s:\n%s",
					label, err, label, query),
				Attempts:  attempts,
				LastError: err.Error(),
				Succeeded: false,
			}
		}
		queryText = fixed
	}

	// 不可达，循环内必定返回
	return &Result{Response: "unexpected state in feedback loop"}
}

// serializeRows 行集截断后序列化为缩进JSON，作为答案合成的原料
func serializeRows(rows []chatCommon.Row) string {
	if len(rows) > chatCommon.MaxResultRows {
		rows = rows[:chatCommon.MaxResultRows]
	}
	data, err := sonic.ConfigDefault.MarshalIndent(rows, "", "  ")
	if err != nil {
		// 行值包含不可序列化内容时退化为普通格式化
		return fmt.Sprintf("%v", rows)
	}
	return string(data)
}

package resolver

import (
	"context"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/frame/g"

	"github.com/Malowking/datachat/chat/adapter"
	chatCommon "github.com/Malowking/datachat/chat/common"
	"github.com/Malowking/datachat/chat/datasource"
	"github.com/Malowking/datachat/chat/schema"
)

// Resolution 值解析结果：可能被改写的问题与给用户看的解释说明
type Resolution struct {
	Question string
	Note     string
}

// resolvePlan 解析规划的模型输出
type resolvePlan struct {
	NeedResolution bool `json:"need_resolution"`
	Targets        []struct {
		Table  string `json:"table"`
		Column string `json:"column"`
		Why    string `json:"why"`
	} `json:"targets"`
	UserValue       string `json:"user_value"`
	RewriteQuestion string `json:"rewrite_question"`
}

// resolveMatch 候选匹配的模型输出
type resolveMatch struct {
	Resolved     string   `json:"resolved"`
	Alternatives []string `json:"alternatives"`
}

// ValueResolver 用户值解析器。
// 用户提到的实体值常带拼写误差，先让模型挑出可疑值与可采样的文本列，
// 再从数据里采样候选值做纠正。整个环节尽力而为：任何失败都静默退化，
// 绝不阻断后续问答。
type ValueResolver struct{}

// NewValueResolver 创建值解析器
func NewValueResolver() *ValueResolver {
	return &ValueResolver{}
}

// Resolve 按需解析问题中的用户值，返回（可能改写的）问题与说明
func (r *ValueResolver) Resolve(
	ctx context.Context,
	complete adapter.CompleteFunc,
	ds datasource.DataSource,
	snapshot, question string,
) *Resolution {
	unchanged := &Resolution{Question: question}

	if strings.TrimSpace(snapshot) == "" {
		return unchanged
	}
	textCols := schema.ParseTextColumns(snapshot)
	if len(textCols) == 0 {
		return unchanged
	}

	planText, err := complete(ctx, r.planPrompt(snapshot, question))
	if err != nil {
		g.Log().Warningf(ctx, "值解析规划调用失败，跳过解析: %v", err)
		return unchanged
	}

	var plan resolvePlan
	if !chatCommon.DecodeJSONMaybe(planText, &plan) {
		g.Log().Warningf(ctx, "值解析规划输出不是合法JSON，跳过解析: %s", planText)
		return unchanged
	}

	rewritten := strings.TrimSpace(plan.RewriteQuestion)
	if rewritten == "" {
		rewritten = question
	}
	if !plan.NeedResolution {
		return &Resolution{Question: rewritten}
	}

	userValue := strings.TrimSpace(plan.UserValue)
	if userValue == "" || len(plan.Targets) == 0 {
		return &Resolution{Question: rewritten}
	}

	// 最多采样3个目标列，单列失败不影响其余
	targets := plan.Targets
	if len(targets) > chatCommon.MaxResolveTargets {
		targets = targets[:chatCommon.MaxResolveTargets]
	}
	var collected []string
	for _, t := range targets {
		table := strings.TrimSpace(t.Table)
		column := strings.TrimSpace(t.Column)
		if table == "" || column == "" {
			continue
		}
		values, serr := ds.SampleDistinct(ctx, table, column, chatCommon.MaxSamplePerColumn)
		if serr != nil {
			g.Log().Warningf(ctx, "采样候选值失败 - %s[%s]: %v", table, column, serr)
			continue
		}
		collected = append(collected, values...)
	}

	candidates := dedupCap(collected, chatCommon.MaxCandidateValues)
	if len(candidates) == 0 {
		return &Resolution{Question: rewritten}
	}

	candidatesJSON, err := sonic.MarshalString(candidates)
	if err != nil {
		return &Resolution{Question: rewritten}
	}

	matchText, err := complete(ctx, r.matchPrompt(userValue, candidatesJSON))
	if err != nil {
		g.Log().Warningf(ctx, "值匹配调用失败，跳过解析: %v", err)
		return &Resolution{Question: rewritten}
	}

	var match resolveMatch
	if !chatCommon.DecodeJSONMaybe(matchText, &match) {
		return &Resolution{Question: rewritten}
	}

	if resolved := strings.TrimSpace(match.Resolved); resolved != "" {
		return &Resolution{
			Question: substituteValue(rewritten, userValue, resolved),
			Note:     "Interpreting '" + userValue + "' as '" + resolved + "'.",
		}
	}

	if len(match.Alternatives) > 0 {
		alts := match.Alternatives
		if len(alts) > chatCommon.MaxAlternatives {
			alts = alts[:chatCommon.MaxAlternatives]
		}
		return &Resolution{
			Question: rewritten,
			Note: "I found similar values for '" + userValue + "': " +
				strings.Join(alts, ", ") + ". If you meant one of these, tell me.",
		}
	}

	return &Resolution{Question: rewritten}
}

// substituteValue 原值在问题中出现则忽略大小写替换，否则以括注追加
func substituteValue(question, userValue, resolved string) string {
	if userValue != "" && strings.Contains(strings.ToLower(question), strings.ToLower(userValue)) {
		pattern := regexp.MustCompile("(?i)" + regexp.QuoteMeta(userValue))
		return pattern.ReplaceAllLiteralString(question, resolved)
	}
	return question + " (value: " + resolved + ")"
}

// dedupCap 保序去重并截断
func dedupCap(values []string, max int) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) >= max {
			break
		}
	}
	return out
}

func (r *ValueResolver) planPrompt(snapshot, question string) string {
	return `You help detect likely user-typed values (may contain typos) and decide what values to sample.

Schema:
` + snapshot + `

User question:
` + question + `

Return ONLY JSON:
{
  "need_resolution": true/false,
  "targets": [
    {"table": "...", "column": "...", "why": "short reason"}
  ],
  "user_value": "string the user likely refers to (exact substring or normalized)",
  "rewrite_question": "question rewritten to be clearer, keeping intent. If no change, same question."
}

Rules:
- Only propose targets that exist in the schema.
- Only choose a small number of targets (<= 3), likely text columns (names/labels).
- If the question does not reference a specific entity/value, set need_resolution=false.
`
}

func (r *ValueResolver) matchPrompt(userValue, candidatesJSON string) string {
	return `Resolve user value typos using candidate values sampled from the data.

User value (may be typo):
` + userValue + `

Candidate values:
` + candidatesJSON + `

Return ONLY JSON:
{
  "resolved": string or null,
  "alternatives": [string]
}

Rules:
- If a clear best match exists, set resolved to that exact candidate string.
- If multiple are close, put top 3 in alternatives and set resolved=null.
- If none are close, resolved=null and alternatives=[]
`
}

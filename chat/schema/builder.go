package schema

import (
	"context"
	"sort"
	"strings"

	"github.com/gogf/gf/v2/frame/g"

	chatCommon "github.com/Malowking/datachat/chat/common"
	"github.com/Malowking/datachat/chat/datasource"
	"github.com/Malowking/datachat/core/errors"
)

// SchemaBuilder 把数据源的结构信息固化为行式文本快照。
// 快照是扁平可grep的文本，直接作为各环节Prompt的接地材料。
type SchemaBuilder struct{}

// NewSchemaBuilder 创建Schema构建器
func NewSchemaBuilder() *SchemaBuilder {
	return &SchemaBuilder{}
}

// Build 执行四类结构查询并渲染快照文本。
// 四类条目全部为空视为Schema不可用（ErrSchemaEmpty），调用方不得缓存。
func (b *SchemaBuilder) Build(ctx context.Context, ds datasource.DataSource) (string, error) {
	queries := ds.SchemaQueries()

	tables, err := ds.ExecuteQuery(ctx, queries.Tables)
	if err != nil {
		return "", errors.Wrap(errors.ErrSchemaBuildFailed, "表结构查询失败", err)
	}
	cols, err := ds.ExecuteQuery(ctx, queries.Columns)
	if err != nil {
		return "", errors.Wrap(errors.ErrSchemaBuildFailed, "列结构查询失败", err)
	}
	rels, err := ds.ExecuteQuery(ctx, queries.Relationships)
	if err != nil {
		return "", errors.Wrap(errors.ErrSchemaBuildFailed, "关系结构查询失败", err)
	}
	meas, err := ds.ExecuteQuery(ctx, queries.Measures)
	if err != nil {
		return "", errors.Wrap(errors.ErrSchemaBuildFailed, "度量结构查询失败", err)
	}

	tableNames := make([]string, 0, len(tables))
	for _, t := range tables {
		if name := chatCommon.GetAnyString(t, "Name", "Table", "TableName"); name != "" {
			tableNames = append(tableNames, name)
		}
	}

	colLines := make([]string, 0, len(cols))
	for _, c := range cols {
		table := chatCommon.GetAnyString(c, "Table", "TableName")
		col := chatCommon.GetAnyString(c, "Name", "Column", "ColumnName")
		dtype := chatCommon.GetAnyString(c, "DataType", "Type")
		if table == "" || col == "" {
			continue
		}
		line := "- " + table + "[" + col + "]"
		if dtype != "" {
			line += " : " + dtype
		} else {
			line += " :"
		}
		colLines = append(colLines, strings.TrimRight(line, " "))
	}

	measLines := make([]string, 0, len(meas))
	for _, m := range meas {
		table := chatCommon.GetAnyString(m, "Table", "TableName")
		name := chatCommon.GetAnyString(m, "Name", "Measure", "MeasureName")
		expr := chatCommon.GetAnyString(m, "Expression", "DaxExpression")
		if table == "" || name == "" {
			continue
		}
		measLines = append(measLines, "- "+table+"["+name+"] = "+truncateExpr(expr))
	}

	relLines := make([]string, 0, len(rels))
	for _, r := range rels {
		ft := chatCommon.GetAnyString(r, "FromTable")
		fc := chatCommon.GetAnyString(r, "FromColumn")
		tt := chatCommon.GetAnyString(r, "ToTable")
		tc := chatCommon.GetAnyString(r, "ToColumn")
		if ft == "" || fc == "" || tt == "" || tc == "" {
			continue
		}
		relLines = append(relLines, "- "+ft+"["+fc+"] -> "+tt+"["+tc+"]")
	}

	if len(tableNames) == 0 && len(colLines) == 0 && len(measLines) == 0 && len(relLines) == 0 {
		return "", errors.Newf(errors.ErrSchemaEmpty,
			"结构提取结果为空，数据源 %s 无可用的表/列/度量/关系", ds.Identity())
	}

	g.Log().Infof(ctx, "Schema快照构建完成 - Identity: %s, Tables: %d, Columns: %d, Measures: %d, Relationships: %d",
		ds.Identity(), len(tableNames), len(colLines), len(measLines), len(relLines))

	return render(tableNames, colLines, measLines, relLines), nil
}

// truncateExpr 截断过长的度量表达式，约束快照体积
func truncateExpr(expr string) string {
	runes := []rune(expr)
	if len(runes) > chatCommon.MaxMeasureExprRunes {
		return string(runes[:chatCommon.MaxMeasureExprRunes]) + "…"
	}
	return expr
}

// render 渲染固定文法的快照文本
func render(tableNames, colLines, measLines, relLines []string) string {
	lines := make([]string, 0, len(tableNames)+len(colLines)+len(measLines)+len(relLines)+8)

	lines = append(lines, "TABLES:")
	for _, n := range sortedDistinct(tableNames) {
		lines = append(lines, "- "+n)
	}

	lines = append(lines, "", "COLUMNS (Table[Column] : DataType):")
	lines = append(lines, capLines(colLines, chatCommon.MaxSnapshotColumns)...)

	lines = append(lines, "", "MEASURES (Table[Measure] = Expression):")
	lines = append(lines, capLines(measLines, chatCommon.MaxSnapshotMeasures)...)

	lines = append(lines, "", "RELATIONSHIPS (From -> To):")
	lines = append(lines, capLines(relLines, chatCommon.MaxSnapshotRelations)...)

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func sortedDistinct(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func capLines(lines []string, max int) []string {
	if len(lines) > max {
		return lines[:max]
	}
	return lines
}

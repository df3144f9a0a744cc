package service

import (
	"context"
	"strings"

	"github.com/gogf/gf/v2/frame/g"
	"github.com/google/uuid"

	"github.com/Malowking/datachat/chat/adapter"
	"github.com/Malowking/datachat/chat/answer"
	"github.com/Malowking/datachat/chat/cache"
	chatCommon "github.com/Malowking/datachat/chat/common"
	"github.com/Malowking/datachat/chat/datasource"
	"github.com/Malowking/datachat/chat/executor"
	"github.com/Malowking/datachat/chat/generator"
	"github.com/Malowking/datachat/chat/planner"
	"github.com/Malowking/datachat/chat/resolver"
	"github.com/Malowking/datachat/chat/schema"
	"github.com/Malowking/datachat/core/errors"
)

var errNoSource = errors.New(errors.ErrInvalidParameter, "缺少数据源配置：需提供Source或Config")

// AnswerRequest 问答请求。
// Source与Config二选一：Source为已连接的数据源（由调用方管理生命周期），
// Config为连接配置（服务负责连接与关闭）。
type AnswerRequest struct {
	Question string             `json:"question"`
	Config   *datasource.Config `json:"datasource,omitempty"`
	Source   datasource.DataSource
	Tone     *answer.ToneConfig `json:"tone,omitempty"`
}

// AnswerResponse 问答响应，对外契约
type AnswerResponse struct {
	Answer         string   `json:"answer"`
	ResolutionNote string   `json:"resolution_note"`
	Action         string   `json:"action"` // DESCRIBE / QUERY / ERROR
	QueryAttempts  []string `json:"query_attempts"`
	FinalQuery     string   `json:"final_query"`
	Error          string   `json:"error,omitempty"`
}

// ChatService 数据问答服务。
// 链路：值解析 -> 规划 -> DESCRIBE凭Schema作答 / QUERY生成执行后作答。
// Schema快照按数据源Identity进程内缓存。
type ChatService struct {
	builder     *schema.SchemaBuilder
	schemaCache *cache.SchemaCache
	resolver    *resolver.ValueResolver
	planner     *planner.Planner
	executor    *executor.FeedbackExecutor
	synthesizer *answer.Synthesizer
	complete    adapter.CompleteFunc
}

// NewChatService 创建问答服务
func NewChatService(complete adapter.CompleteFunc) *ChatService {
	return &ChatService{
		builder:     schema.NewSchemaBuilder(),
		schemaCache: cache.NewSchemaCache(),
		resolver:    resolver.NewValueResolver(),
		planner:     planner.NewPlanner(),
		executor:    executor.NewFeedbackExecutor(chatCommon.DefaultMaxRetries),
		synthesizer: answer.NewSynthesizer(),
		complete:    complete,
	}
}

// InvalidateSchema 失效指定数据源的Schema快照
func (s *ChatService) InvalidateSchema(identity string) {
	s.schemaCache.Invalidate(identity)
}

// Answer 处理一次问答。始终返回响应体，错误以action=ERROR表达
func (s *ChatService) Answer(ctx context.Context, req *AnswerRequest) *AnswerResponse {
	cycleID := uuid.New().String()[:8]

	if strings.TrimSpace(req.Question) == "" {
		return errorResponse("Question must not be empty", "问题为空")
	}

	ds, cleanup, err := s.obtainSource(ctx, req)
	if err != nil {
		g.Log().Errorf(ctx, "[%s] 数据源不可用: %v", cycleID, err)
		return errorResponse("Failed to connect data source: "+err.Error(), err.Error())
	}
	if cleanup != nil {
		defer cleanup()
	}

	g.Log().Infof(ctx, "[%s] 问答开始 - Identity: %s, Dialect: %s, Question: %s",
		cycleID, ds.Identity(), ds.Dialect(), req.Question)

	snapshot, err := s.schemaCache.GetOrBuild(ctx, ds.Identity(), func(ctx context.Context) (string, error) {
		return s.builder.Build(ctx, ds)
	})
	if err != nil {
		g.Log().Errorf(ctx, "[%s] Schema加载失败: %v", cycleID, err)
		return errorResponse("Failed to load schema: "+err.Error(), err.Error())
	}

	dialect, err := generatorFor(ds)
	if err != nil {
		return errorResponse(err.Error(), err.Error())
	}

	resolution := s.resolver.Resolve(ctx, s.complete, ds, snapshot, req.Question)
	question := resolution.Question
	if resolution.Note != "" {
		g.Log().Infof(ctx, "[%s] 值解析: %s", cycleID, resolution.Note)
	}

	plan, err := s.planner.Decide(ctx, s.complete, snapshot, question, dialect.Name())
	if err != nil {
		g.Log().Errorf(ctx, "[%s] 规划失败: %v", cycleID, err)
		return errorResponse("Failed to plan the question: "+err.Error(), err.Error())
	}
	g.Log().Infof(ctx, "[%s] 规划结果 - Action: %s, Reason: %s", cycleID, plan.Action, plan.Reason)

	if plan.Action != chatCommon.ActionQuery {
		text, err := s.synthesizer.FromSchema(ctx, s.complete, req.Tone, snapshot, question)
		if err != nil {
			g.Log().Errorf(ctx, "[%s] 结构问答失败: %v", cycleID, err)
			return errorResponse("Failed to answer from schema: "+err.Error(), err.Error())
		}
		return &AnswerResponse{
			Answer:         text,
			ResolutionNote: resolution.Note,
			Action:         chatCommon.ActionDescribe,
			QueryAttempts:  []string{},
		}
	}

	initialText := plan.CandidateQuery
	if initialText == "" {
		initialText, err = s.complete(ctx, dialect.GeneratePrompt(snapshot, question))
		if err != nil {
			g.Log().Errorf(ctx, "[%s] 查询生成失败: %v", cycleID, err)
			return errorResponse("Failed to generate query: "+err.Error(), err.Error())
		}
	}

	result := s.executor.Execute(ctx, s.complete, ds, dialect, snapshot, question, initialText)
	g.Log().Infof(ctx, "[%s] 执行结束 - Succeeded: %v, Attempts: %d, FinalQuery: %s",
		cycleID, result.Succeeded, len(result.Attempts), result.FinalQuery)

	text, err := s.synthesizer.FromRows(ctx, s.complete, req.Tone, question, result.FinalQuery, result.Response)
	if err != nil {
		g.Log().Errorf(ctx, "[%s] 行集问答失败: %v", cycleID, err)
		return errorResponse("Failed to answer from rows: "+err.Error(), err.Error())
	}

	resp := &AnswerResponse{
		Answer:         text,
		ResolutionNote: resolution.Note,
		Action:         chatCommon.ActionQuery,
		QueryAttempts:  result.Attempts,
		FinalQuery:     result.FinalQuery,
	}
	// 执行终止作为显式错误上抛：提取失败带原始模型输出，执行失败带数据源错误
	if !result.Succeeded {
		resp.Action = chatCommon.ActionError
		if result.FinalQuery == "" {
			resp.Error = "no executable query found in model output: " + strings.TrimSpace(result.Response)
		} else {
			resp.Error = result.LastError
		}
	}
	return resp
}

// obtainSource 取得可用数据源；由服务建连的返回cleanup
func (s *ChatService) obtainSource(ctx context.Context, req *AnswerRequest) (datasource.DataSource, func(), error) {
	if req.Source != nil {
		return req.Source, nil, nil
	}
	if req.Config == nil {
		return nil, nil, errNoSource
	}
	ds, err := datasource.Create(req.Config)
	if err != nil {
		return nil, nil, err
	}
	if err := ds.Connect(ctx); err != nil {
		return nil, nil, err
	}
	return ds, func() {
		if cerr := ds.Close(); cerr != nil {
			g.Log().Warningf(ctx, "关闭数据源失败: %v", cerr)
		}
	}, nil
}

func generatorFor(ds datasource.DataSource) (generator.Dialect, error) {
	return generator.ForName(ds.Dialect())
}

func errorResponse(message, errText string) *AnswerResponse {
	return &AnswerResponse{
		Answer:        message,
		Action:        chatCommon.ActionError,
		QueryAttempts: []string{},
		Error:         errText,
	}
}

package adapter

import (
	"context"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/Malowking/datachat/core/errors"
	"github.com/Malowking/datachat/core/model"
)

// CompleteFunc 单轮补全函数，问答链路所有LLM调用都经由它注入。
// 测试时直接换成脚本化实现，不需要真实模型。
type CompleteFunc func(ctx context.Context, prompt string) (string, error)

// NewModelComplete 把eino对话模型包装为CompleteFunc，带瞬时失败重试
func NewModelComplete(cm einoModel.BaseChatModel, modelName string) CompleteFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		result, err := model.RetryWithSameModel(ctx, modelName, nil, func(ctx context.Context) (interface{}, error) {
			msg, err := cm.Generate(ctx, []*schema.Message{
				schema.UserMessage(prompt),
			})
			if err != nil {
				return nil, err
			}
			return msg.Content, nil
		})
		if err != nil {
			return "", err
		}
		content, ok := result.(string)
		if !ok {
			return "", errors.New(errors.ErrLLMCallFailed, "模型返回内容类型异常")
		}
		return content, nil
	}
}

// DefaultComplete 基于全局配置的对话模型构造CompleteFunc
func DefaultComplete(ctx context.Context) (CompleteFunc, error) {
	cm, err := model.GetChatModel(ctx, nil)
	if err != nil {
		return nil, err
	}
	return NewModelComplete(cm, model.ChatModelName()), nil
}

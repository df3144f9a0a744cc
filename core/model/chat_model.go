package model

import (
	"context"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/gogf/gf/v2/frame/g"

	"github.com/Malowking/datachat/core/errors"
)

// ChatModelConfig 对话模型配置（配置文件chat节）
type ChatModelConfig struct {
	Provider string `json:"provider"` // openai（默认）或 qwen
	BaseURL  string `json:"baseURL"`
	APIKey   string `json:"apiKey"`
	Model    string `json:"model"`
}

var (
	chatModel     einoModel.BaseChatModel
	chatModelName string
	chatModelOnce sync.Once
)

// GetChatModel 获取全局对话模型。
// cfg为nil时从配置文件chat节读取；按provider选择openai或qwen实现。
func GetChatModel(ctx context.Context, cfg *ChatModelConfig) (einoModel.BaseChatModel, error) {
	if chatModel != nil {
		return chatModel, nil
	}
	if cfg == nil {
		cfg = &ChatModelConfig{}
		if err := g.Cfg().MustGet(ctx, "chat").Scan(cfg); err != nil {
			return nil, errors.Wrap(errors.ErrModelConfigInvalid, "读取chat模型配置失败", err)
		}
	}
	if cfg.Model == "" {
		return nil, errors.New(errors.ErrModelNotConfigured, "chat模型未配置，请检查配置文件chat节")
	}

	var (
		cm  einoModel.BaseChatModel
		err error
	)
	switch cfg.Provider {
	case "qwen":
		cm, err = qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		})
	default:
		cm, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		})
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrModelConfigInvalid, "创建对话模型失败", err)
	}

	chatModelOnce.Do(func() {
		chatModel = cm
		chatModelName = cfg.Model
	})
	return chatModel, nil
}

// ChatModelName 当前对话模型名，仅用于日志
func ChatModelName() string {
	return chatModelName
}

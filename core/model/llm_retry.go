package model

import (
	"context"
	"time"

	"github.com/gogf/gf/v2/frame/g"

	"github.com/Malowking/datachat/core/errors"
)

// SingleModelRetryConfig 单个模型重试配置
type SingleModelRetryConfig struct {
	MaxRetries int           // 最大重试次数
	RetryDelay time.Duration // 重试延迟
}

// DefaultSingleModelRetryConfig 默认单个模型重试配置
func DefaultSingleModelRetryConfig() *SingleModelRetryConfig {
	return &SingleModelRetryConfig{
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}
}

// SingleModelCallFunc 单个模型调用函数类型
type SingleModelCallFunc func(context.Context) (interface{}, error)

// RetryWithSameModel 使用同一个模型重试。
// 面向瞬时网络抖动与限流，语义层面的失败由上层的执行反馈环处理。
func RetryWithSameModel(ctx context.Context, modelName string, config *SingleModelRetryConfig, callFunc SingleModelCallFunc) (interface{}, error) {
	if config == nil {
		config = DefaultSingleModelRetryConfig()
	}

	var lastErr error

	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		if attempt > 0 {
			g.Log().Infof(ctx, "[模型重试] 尝试 %d/%d: 重试模型 %s",
				attempt+1, config.MaxRetries, modelName)
		}

		result, err := callFunc(ctx)
		if err == nil {
			if attempt > 0 {
				g.Log().Infof(ctx, "[模型重试] 成功: 模型 %s 在第 %d 次尝试成功", modelName, attempt+1)
			}
			return result, nil
		}

		lastErr = err
		g.Log().Warningf(ctx, "[模型重试] 失败: 模型 %s, 尝试 %d/%d, 错误: %v",
			modelName, attempt+1, config.MaxRetries, err)

		if attempt < config.MaxRetries-1 {
			time.Sleep(config.RetryDelay)
		}
	}

	return nil, errors.Newf(errors.ErrLLMCallFailed, "模型 %s 调用失败，错误: %v", modelName, lastErr)
}

package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/gogf/gf/v2/frame/g"

	chatCommon "github.com/Malowking/datachat/chat/common"
)

// ValidateConfiguration 校验启动所需的配置项
func ValidateConfiguration(ctx context.Context) error {
	var missingConfigs []string
	var warnings []string

	// 验证 Chat 模型配置
	chatModel := g.Cfg().MustGet(ctx, "chat.model", "").String()
	chatAPIKey := g.Cfg().MustGet(ctx, "chat.apiKey", "").String()
	chatBaseURL := g.Cfg().MustGet(ctx, "chat.baseURL", "").String()

	if chatModel == "" {
		missingConfigs = append(missingConfigs, "chat.model")
	}
	if chatAPIKey == "" {
		warnings = append(warnings, "chat.apiKey is not set")
	}
	if chatBaseURL == "" {
		warnings = append(warnings, "chat.baseURL is not set")
	}

	// 验证数据源配置
	dsType := g.Cfg().MustGet(ctx, "datasource.type", "").String()
	switch dsType {
	case "":
		missingConfigs = append(missingConfigs, "datasource.type")
	case chatCommon.DataSourceTypePowerBI:
		for _, key := range []string{
			"datasource.powerbi.tenant_id",
			"datasource.powerbi.client_id",
			"datasource.powerbi.client_secret",
			"datasource.powerbi.workspace_id",
			"datasource.powerbi.dataset_id",
		} {
			if g.Cfg().MustGet(ctx, key, "").String() == "" {
				missingConfigs = append(missingConfigs, key)
			}
		}
	case chatCommon.DataSourceTypeRelational:
		for _, key := range []string{
			"datasource.relational.db_type",
			"datasource.relational.host",
			"datasource.relational.database",
			"datasource.relational.username",
		} {
			if g.Cfg().MustGet(ctx, key, "").String() == "" {
				missingConfigs = append(missingConfigs, key)
			}
		}
	default:
		missingConfigs = append(missingConfigs, "datasource.type (unsupported: "+dsType+")")
	}

	for _, w := range warnings {
		g.Log().Warningf(ctx, "配置警告: %s", w)
	}

	if len(missingConfigs) > 0 {
		return fmt.Errorf("缺少必需配置项: %s", strings.Join(missingConfigs, ", "))
	}
	return nil
}

package datasource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/net/gclient"

	chatCommon "github.com/Malowking/datachat/chat/common"
	"github.com/Malowking/datachat/core/errors"
)

const (
	powerBIAPIBase = "https://api.powerbi.com/v1.0/myorg"
	powerBIScope   = "https://analysis.windows.net/powerbi/api/.default"
	aadAuthority   = "https://login.microsoftonline.com"
)

// PowerBIConfig Power BI语义模型连接配置（应用专用凭据流）
type PowerBIConfig struct {
	TenantID     string `json:"tenant_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	WorkspaceID  string `json:"workspace_id"`
	DatasetID    string `json:"dataset_id"`
}

// PowerBISource Power BI语义模型数据源，通过executeQueries REST接口执行DAX
type PowerBISource struct {
	config *PowerBIConfig
	client *gclient.Client
}

// NewPowerBISource 创建Power BI数据源
func NewPowerBISource(config *PowerBIConfig) *PowerBISource {
	return &PowerBISource{
		config: config,
	}
}

// Connect 获取访问令牌并初始化HTTP客户端
func (s *PowerBISource) Connect(ctx context.Context) error {
	token, err := s.acquireToken(ctx)
	if err != nil {
		return err
	}

	client := g.Client()
	client.SetTimeout(60 * time.Second)
	client.SetHeader("Authorization", "Bearer "+token)
	s.client = client.ContentJson()
	return nil
}

// acquireToken 通过AAD client_credentials流获取令牌
func (s *PowerBISource) acquireToken(ctx context.Context) (string, error) {
	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", aadAuthority, s.config.TenantID)

	resp, err := g.Client().SetTimeout(30*time.Second).Post(ctx, tokenURL, g.Map{
		"grant_type":    "client_credentials",
		"client_id":     s.config.ClientID,
		"client_secret": s.config.ClientSecret,
		"scope":         powerBIScope,
	})
	if err != nil {
		return "", errors.Wrap(errors.ErrDataSourceConnect, "请求AAD令牌失败", err)
	}
	defer resp.Close()

	body := resp.ReadAllString()
	if resp.StatusCode >= 400 {
		return "", errors.Newf(errors.ErrDataSourceAuth, "获取令牌失败 (%d): %s", resp.StatusCode, body)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := sonic.UnmarshalString(body, &tokenResp); err != nil || tokenResp.AccessToken == "" {
		return "", errors.Newf(errors.ErrDataSourceAuth, "令牌响应无access_token: %s", body)
	}
	return tokenResp.AccessToken, nil
}

// Close 关闭连接（REST无持久连接，仅释放客户端）
func (s *PowerBISource) Close() error {
	s.client = nil
	return nil
}

// Identity 返回 workspace:dataset 作为缓存键
func (s *PowerBISource) Identity() string {
	return fmt.Sprintf("%s:%s", s.config.WorkspaceID, s.config.DatasetID)
}

// Dialect 查询方言
func (s *PowerBISource) Dialect() string {
	return chatCommon.DialectDAX
}

// ExecuteQuery 通过executeQueries执行DAX，返回首个结果表的行集
func (s *PowerBISource) ExecuteQuery(ctx context.Context, query string) ([]chatCommon.Row, error) {
	if s.client == nil {
		return nil, errors.New(errors.ErrDataSourceConnect, "数据源未连接")
	}

	url := fmt.Sprintf("%s/groups/%s/datasets/%s/executeQueries",
		powerBIAPIBase, s.config.WorkspaceID, s.config.DatasetID)

	resp, err := s.client.Post(ctx, url, g.Map{
		"queries":            []g.Map{{"query": query}},
		"serializerSettings": g.Map{"includeNulls": true},
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrQueryExecuteFailed, "executeQueries请求失败", err)
	}
	defer resp.Close()

	body := resp.ReadAllString()
	if resp.StatusCode >= 400 {
		return nil, errors.Newf(errors.ErrQueryExecuteFailed, "executeQueries failed (%d): %s", resp.StatusCode, body)
	}

	return firstTableRows(body)
}

// firstTableRows 提取响应中首个结果表的行
func firstTableRows(body string) ([]chatCommon.Row, error) {
	var parsed struct {
		Results []struct {
			Tables []struct {
				Rows []chatCommon.Row `json:"rows"`
			} `json:"tables"`
		} `json:"results"`
	}
	if err := sonic.UnmarshalString(body, &parsed); err != nil {
		return nil, errors.Wrap(errors.ErrQueryExecuteFailed, "解析executeQueries响应失败", err)
	}
	if len(parsed.Results) == 0 || len(parsed.Results[0].Tables) == 0 {
		return []chatCommon.Row{}, nil
	}
	return parsed.Results[0].Tables[0].Rows, nil
}

// SchemaQueries 四条INFO.VIEW结构查询
func (s *PowerBISource) SchemaQueries() SchemaQueries {
	return SchemaQueries{
		Tables:        "EVALUATE INFO.VIEW.TABLES()",
		Columns:       "EVALUATE INFO.VIEW.COLUMNS()",
		Relationships: "EVALUATE INFO.VIEW.RELATIONSHIPS()",
		Measures:      "EVALUATE INFO.VIEW.MEASURES()",
	}
}

// SampleDistinct 用TOPN+DISTINCT采样列值
func (s *PowerBISource) SampleDistinct(ctx context.Context, table, column string, limit int) ([]string, error) {
	dax := fmt.Sprintf(`EVALUATE
TOPN(
    %d,
    DISTINCT(SELECTCOLUMNS('%s', "value", '%s'[%s])),
    [value], ASC
)`, limit, table, table, column)

	rows, err := s.ExecuteQuery(ctx, dax)
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if v := chatCommon.GetAnyString(row, "value"); v != "" {
			values = append(values, v)
		}
	}
	return values, nil
}

// TestConnection 执行一条结构查询验证连通性
func (s *PowerBISource) TestConnection(ctx context.Context) error {
	_, err := s.ExecuteQuery(ctx, s.SchemaQueries().Tables)
	if err != nil {
		if strings.Contains(err.Error(), "401") || strings.Contains(err.Error(), "403") {
			return errors.Wrap(errors.ErrDataSourceAuth, "Power BI认证失败，请检查租户与凭据", err)
		}
		return err
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/os/gcmd"

	"github.com/Malowking/datachat/chat/adapter"
	"github.com/Malowking/datachat/chat/answer"
	"github.com/Malowking/datachat/chat/datasource"
	"github.com/Malowking/datachat/chat/service"
	"github.com/Malowking/datachat/core/config"
)

var (
	Main = gcmd.Command{
		Name:  "main",
		Usage: "main <question>",
		Brief: "answer a data question against the configured data source",
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			if err = config.ValidateConfiguration(ctx); err != nil {
				return err
			}

			args := parser.GetArgAll()
			if len(args) < 2 {
				return fmt.Errorf("用法: datachat <question>")
			}
			question := strings.Join(args[1:], " ")

			complete, err := adapter.DefaultComplete(ctx)
			if err != nil {
				return err
			}

			dsConfig := &datasource.Config{}
			if err = g.Cfg().MustGet(ctx, "datasource").Scan(dsConfig); err != nil {
				return err
			}

			// 语气配置可缺省
			tone := &answer.ToneConfig{}
			if v, _ := g.Cfg().Get(ctx, "tone"); v != nil && !v.IsEmpty() {
				if err = v.Scan(tone); err != nil {
					return err
				}
			}

			svc := service.NewChatService(complete)
			resp := svc.Answer(ctx, &service.AnswerRequest{
				Question: question,
				Config:   dsConfig,
				Tone:     tone,
			})

			out, err := sonic.ConfigDefault.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
)

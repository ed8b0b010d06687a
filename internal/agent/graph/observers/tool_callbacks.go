package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/avaestate/ava-agent/pkg/logger"
)

func newToolHandler() *callbackHelper.ToolCallbackHandler {
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			args := ""
			if input != nil {
				args = input.ArgumentsInJSON
			}
			logx.Info().
				Str("conversation_id", threadOf(ctx)).
				Str("tool", info.Name).
				Str("arguments", truncate(args, 500)).
				Msg("tool call started")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			resp := ""
			if output != nil {
				resp = output.Response
			}
			logx.Debug().
				Str("conversation_id", threadOf(ctx)).
				Str("tool", info.Name).
				Str("response", truncate(resp, 300)).
				Msg("tool call finished")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).
				Str("conversation_id", threadOf(ctx)).
				Str("tool", info.Name).
				Msg("tool call failed")
			return ctx
		},
	}
}

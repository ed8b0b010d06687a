package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	agentmodel "github.com/avaestate/ava-agent/internal/agent/model"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// newModelHandler logs model calls and prices their token usage. The cost is
// added to the Turn in ctx when there is one.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ev := logx.Debug().
				Str("conversation_id", threadOf(ctx)).
				Str("role", info.Name).
				Str("type", info.Type)
			if input != nil {
				ev = ev.Int("messages", len(input.Messages)).
					Int("tools", len(input.Tools)).
					Str("user", truncate(lastUserContent(input.Messages), 200))
			}
			ev.Msg("model call started")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			if output == nil {
				return ctx
			}
			name := ""
			if output.Config != nil {
				name = output.Config.Model
			}
			cost := agentmodel.ComputeCost(name, usageOf(output))

			ev := logx.Debug().
				Str("conversation_id", threadOf(ctx)).
				Str("role", info.Name).
				Str("model", name).
				Int("prompt_tokens", cost.PromptTokens).
				Int("completion_tokens", cost.CompletionTokens).
				Float64("cost_usd", cost.TotalUSD)
			if turn, ok := agentmodel.TurnFrom(ctx); ok {
				ev = ev.Float64("turn_cost_usd", turn.AddCost(cost.TotalUSD))
			}
			if output.Message != nil {
				ev = ev.Int("tool_calls", len(output.Message.ToolCalls)).
					Str("assistant", truncate(output.Message.Content, 200))
			}
			ev.Msg("model call finished")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).
				Str("conversation_id", threadOf(ctx)).
				Str("role", info.Name).
				Msg("model call failed")
			return ctx
		},
	}
}

func usageOf(out *model.CallbackOutput) *schema.TokenUsage {
	if out.TokenUsage != nil {
		return &schema.TokenUsage{
			PromptTokens:     out.TokenUsage.PromptTokens,
			CompletionTokens: out.TokenUsage.CompletionTokens,
			TotalTokens:      out.TokenUsage.TotalTokens,
		}
	}
	if out.Message != nil && out.Message.ResponseMeta != nil {
		return out.Message.ResponseMeta.Usage
	}
	return nil
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

func threadOf(ctx context.Context) string {
	if turn, ok := agentmodel.TurnFrom(ctx); ok {
		return turn.ThreadID
	}
	return ""
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

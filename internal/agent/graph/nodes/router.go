package nodes

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/avaestate/ava-agent/internal/agent/graph/llm"
	"github.com/avaestate/ava-agent/internal/agent/graph/parsers"
	"github.com/avaestate/ava-agent/internal/agent/graph/prompts"
	"github.com/avaestate/ava-agent/internal/agent/model"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// NewRouterStep classifies the turn as a text conversation or an audio reply.
// A failed model call is fatal for the turn.
func NewRouterStep(d *Deps) Step {
	return Step{
		Name: NodeRouter,
		Run: func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
			system, err := prompts.RenderRouter(ctx, d.Prompt)
			if err != nil {
				return model.Update{}, err
			}
			msgs := []*schema.Message{schema.SystemMessage(system)}
			msgs = append(msgs, model.ToSchemaMessages(model.Tail(s.Messages, d.Conversation.RouterMessagesToAnalyze))...)

			out, err := llm.Text(ctx, "router", d.Models.Router, msgs)
			if err != nil {
				return model.Update{}, err
			}
			label, ok := parsers.ParseRouterLabel(out)
			if !ok {
				logx.Warn().
					Str("conversation_id", s.ThreadID).
					Str("raw", out).
					Msg("router returned an unknown label, using conversation")
			}
			return model.Update{Workflow: model.Ptr(label)}, nil
		},
		Recover: Propagate(),
	}
}

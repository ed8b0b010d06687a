package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/avaestate/ava-agent/internal/agent/graph/llm"
	"github.com/avaestate/ava-agent/internal/agent/graph/prompts"
	"github.com/avaestate/ava-agent/internal/agent/graph/toolloop"
	"github.com/avaestate/ava-agent/internal/agent/model"
)

// Deps are the collaborators shared by every step of the turn graph.
// Memory, Activity and Synthesizer are optional.
type Deps struct {
	Models       *llm.ChatModels
	Loop         *toolloop.Loop
	Memory       model.MemoryManager
	Activity     model.ActivitySource
	Search       model.SearchAPI
	Cards        model.CardSender
	Synthesizer  model.Synthesizer
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
}

func (d *Deps) agentStrategy() bool {
	return d.Conversation.SearchStrategy != model.StrategySingleShot && d.Loop != nil
}

// replyPrompt assembles the character card followed by the full history.
func (d *Deps) replyPrompt(ctx context.Context, s *model.ConversationState, toolsEnabled bool) ([]*schema.Message, error) {
	card, err := prompts.RenderCharacterCard(ctx, d.Prompt, prompts.CharacterVars{
		CurrentActivity: s.CurrentActivity,
		ApplyActivity:   s.ApplyActivity,
		MemoryContext:   s.MemoryContext,
		Summary:         s.Summary,
		ToolsEnabled:    toolsEnabled,
	})
	if err != nil {
		return nil, err
	}
	msgs := make([]*schema.Message, 0, len(s.Messages)+1)
	msgs = append(msgs, schema.SystemMessage(card))
	return append(msgs, model.ToSchemaMessages(s.Messages)...), nil
}

// plainReply generates a reply with the response model and no tools bound.
func (d *Deps) plainReply(ctx context.Context, s *model.ConversationState) (string, error) {
	msgs, err := d.replyPrompt(ctx, s, false)
	if err != nil {
		return "", err
	}
	reply, err := llm.Text(ctx, "response", d.Models.Response, msgs)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("response model returned an empty reply")
	}
	return reply, nil
}

func contents(msgs []model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

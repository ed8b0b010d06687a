package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/avaestate/ava-agent/internal/agent/graph/llm"
	"github.com/avaestate/ava-agent/internal/agent/graph/prompts"
	"github.com/avaestate/ava-agent/internal/agent/model"
)

// NewSummarizeStep folds older messages into the running summary and keeps
// only the last MessagesAfterSummary messages.
func NewSummarizeStep(d *Deps) Step {
	return Step{
		Name: NodeSummarize,
		Run: func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
			keep := d.Conversation.MessagesAfterSummary
			if keep < 0 {
				keep = 0
			}
			if len(s.Messages) <= keep {
				return model.Update{}, nil
			}

			instruction, err := prompts.RenderSummaryInstruction(ctx, d.Prompt, s.Summary)
			if err != nil {
				return model.Update{}, err
			}
			msgs := append(model.ToSchemaMessages(s.Messages), schema.UserMessage(instruction))
			summary, err := llm.Text(ctx, "summarizer", d.Models.Summarizer, msgs)
			if err != nil {
				return model.Update{}, err
			}
			summary = strings.TrimSpace(summary)
			if summary == "" {
				return model.Update{}, fmt.Errorf("summarizer returned an empty summary")
			}

			old := s.Messages[:len(s.Messages)-keep]
			remove := make([]string, 0, len(old))
			for _, m := range old {
				remove = append(remove, m.ID)
			}
			return model.Update{Summary: model.Ptr(summary), Remove: remove}, nil
		},
		Recover: Degrade(func(error) model.Update { return model.Update{} }),
	}
}

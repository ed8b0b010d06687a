package nodes

import (
	"context"
	"strings"

	"github.com/avaestate/ava-agent/internal/agent/model"
)

// NewMemoryExtractionStep stores durable facts from the newest user message.
// Failures never block the turn.
func NewMemoryExtractionStep(d *Deps) Step {
	return Step{
		Name: NodeMemoryExtraction,
		Run: func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
			last, ok := s.LastMessage()
			if !ok || d.Memory == nil || last.Role != model.RoleUser || last.Kind != model.KindChat {
				return model.Update{}, nil
			}
			return model.Update{}, d.Memory.ExtractAndStore(ctx, s.ThreadID, last)
		},
		Recover: Degrade(func(error) model.Update { return model.Update{} }),
	}
}

// NewMemoryInjectionStep loads memories relevant to the recent messages into
// the per-turn memory context.
func NewMemoryInjectionStep(d *Deps) Step {
	return Step{
		Name: NodeMemoryInjection,
		Run: func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
			if d.Memory == nil {
				return model.Update{MemoryContext: model.Ptr("")}, nil
			}
			recent := model.Tail(s.Messages, d.Conversation.MemoryMessagesToAnalyze)
			memories, err := d.Memory.Relevant(ctx, s.ThreadID, strings.Join(contents(recent), " "))
			if err != nil {
				return model.Update{}, err
			}
			return model.Update{MemoryContext: model.Ptr(d.Memory.FormatForPrompt(memories))}, nil
		},
		Recover: Degrade(func(error) model.Update {
			return model.Update{MemoryContext: model.Ptr("")}
		}),
	}
}

// NewContextInjectionStep records what the character is doing right now and
// whether that changed since the last turn.
func NewContextInjectionStep(d *Deps) Step {
	return Step{
		Name: NodeContextInjection,
		Run: func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
			activity := ""
			if d.Activity != nil {
				activity = d.Activity.CurrentActivity(ctx)
			}
			return model.Update{
				CurrentActivity: model.Ptr(activity),
				ApplyActivity:   model.Ptr(activity != s.CurrentActivity),
			}, nil
		},
		Recover: Degrade(func(error) model.Update {
			return model.Update{ApplyActivity: model.Ptr(false)}
		}),
	}
}

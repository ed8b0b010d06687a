package nodes

import (
	"context"
	"fmt"
	"strconv"

	"github.com/avaestate/ava-agent/internal/agent/model"
	errx "github.com/avaestate/ava-agent/internal/core/error"
)

// NewProjectCardStep sends the project card chosen by the card decision.
// Any failure hands the turn to fallback, normally the continue step, so the
// pending text reply is still delivered.
func NewProjectCardStep(d *Deps, fallback Step) Step {
	return Step{
		Name: NodeProjectCard,
		Run: func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
			if s.ProjectID == nil {
				return model.Update{}, errx.ErrMissingProjectID
			}
			if d.Cards == nil {
				return model.Update{}, fmt.Errorf("card sender is not configured")
			}
			id := *s.ProjectID
			res, err := d.Cards.SendProjectCard(ctx, id, s.ThreadID)
			if err != nil {
				return model.Update{}, err
			}
			if res == nil || !res.Success {
				msg := ""
				if res != nil {
					msg = res.Message
				}
				return model.Update{}, fmt.Errorf("%w: %s", errx.ErrCardRejected, msg)
			}

			name := s.ProjectName
			if name == "" {
				name = fmt.Sprintf("project %d", id)
			}
			receipt := model.CardReceipt{
				Kind:    "project",
				ID:      strconv.Itoa(id),
				Name:    name,
				Message: res.Message,
			}
			if turn, ok := model.TurnFrom(ctx); ok {
				turn.AddCard(receipt)
			}
			return model.Update{
				Append: []model.Message{
					model.AssistantMessage(fmt.Sprintf("I've sent you the project card for %s.", name)).WithKind(model.KindCard),
				},
				Workflow:     model.Ptr(model.WorkflowProjectCard),
				PendingReply: model.Ptr(""),
				Cards:        []model.CardReceipt{receipt},
			}, nil
		},
		Recover: FallbackTo(fallback),
	}
}

package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/avaestate/ava-agent/internal/agent/graph/tools"
	"github.com/avaestate/ava-agent/internal/agent/model"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// NewConversationStep produces the pending text reply. The agent strategy
// runs the tool loop first; any failure there falls back to a plain
// completion, and a failed plain completion degrades to a canned apology.
func NewConversationStep(d *Deps) Step {
	return Step{
		Name: NodeConversation,
		Run: func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
			reply, err := d.generateReply(ctx, s)
			if err != nil {
				return model.Update{}, err
			}
			u := model.Update{PendingReply: model.Ptr(reply)}
			recordTurnResults(ctx, s, &u)
			return u, nil
		},
		Recover: Degrade(func(error) model.Update {
			return model.Update{PendingReply: model.Ptr(CannedReply)}
		}),
	}
}

// generateReply runs the tool loop under the agent strategy and falls back
// to a plain completion when the loop is disabled or fails.
func (d *Deps) generateReply(ctx context.Context, s *model.ConversationState) (string, error) {
	reply, err := d.agentReply(ctx, s)
	if err == nil {
		return reply, nil
	}
	if d.agentStrategy() {
		logx.Warn().Err(err).
			Str("conversation_id", s.ThreadID).
			Msg("tool loop failed, retrying without tools")
	}
	return d.plainReply(ctx, s)
}

// recordTurnResults copies what the tools did this turn into the update so
// the card decision of later turns sees the latest search.
func recordTurnResults(ctx context.Context, s *model.ConversationState, u *model.Update) {
	turn, ok := model.TurnFrom(ctx)
	if !ok {
		return
	}
	if q, res, searched := turn.LastSearch(); searched && !s.NeedsAPI {
		u.NeedsAPI = model.Ptr(true)
		u.APIInfo = model.Ptr(tools.FormatSearchResults(res, q))
		u.APIParams = &q
	}
	u.Cards = turn.Cards()
}

func (d *Deps) agentReply(ctx context.Context, s *model.ConversationState) (string, error) {
	if !d.agentStrategy() {
		return "", fmt.Errorf("tool loop disabled")
	}
	msgs, err := d.replyPrompt(ctx, s, true)
	if err != nil {
		return "", err
	}
	out, err := d.Loop.Run(ctx, msgs)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Content), nil
}

// NewContinueConversationStep commits the pending reply as an assistant
// message. Without a pending reply it generates a plain one.
func NewContinueConversationStep(d *Deps) Step {
	return Step{
		Name: NodeContinueConversation,
		Run: func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
			reply := s.PendingReply
			if reply == "" {
				var err error
				if reply, err = d.plainReply(ctx, s); err != nil {
					return model.Update{}, err
				}
			}
			return model.Update{
				Append:       []model.Message{model.AssistantMessage(reply)},
				PendingReply: model.Ptr(""),
			}, nil
		},
		Recover: Degrade(func(error) model.Update {
			return model.Update{
				Append:       []model.Message{model.AssistantMessage(CannedReply)},
				PendingReply: model.Ptr(""),
			}
		}),
	}
}

// NewAudioStep writes a reply the same way the conversation step does and
// synthesizes it. A failed
// synthesis still delivers the text, recorded as a conversation turn.
func NewAudioStep(d *Deps) Step {
	return Step{
		Name: NodeAudio,
		Run: func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
			reply, err := d.generateReply(ctx, s)
			if err != nil {
				return model.Update{}, err
			}
			u := model.Update{Append: []model.Message{model.AssistantMessage(reply)}}
			recordTurnResults(ctx, s, &u)

			if d.Synthesizer == nil {
				logx.Warn().Str("conversation_id", s.ThreadID).Msg("no synthesizer configured, replying with text")
				u.Workflow = model.Ptr(model.WorkflowConversation)
				return u, nil
			}
			audio, mime, err := d.Synthesizer.Synthesize(ctx, reply)
			if err != nil || len(audio) == 0 {
				logx.Warn().Err(err).
					Str("conversation_id", s.ThreadID).
					Msg("speech synthesis failed, replying with text")
				u.Workflow = model.Ptr(model.WorkflowConversation)
				return u, nil
			}
			u.AudioBuffer = audio
			u.AudioMIME = model.Ptr(mime)
			return u, nil
		},
		Recover: Degrade(func(error) model.Update {
			return model.Update{
				Append:   []model.Message{model.AssistantMessage(CannedReply)},
				Workflow: model.Ptr(model.WorkflowConversation),
			}
		}),
	}
}

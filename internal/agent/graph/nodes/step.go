package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/avaestate/ava-agent/internal/agent/model"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

type recoveryKind int

const (
	recoverPropagate recoveryKind = iota
	recoverDegrade
	recoverFallback
)

// Recovery declares what happens when a step's Run fails.
type Recovery struct {
	kind     recoveryKind
	degrade  func(error) model.Update
	fallback *Step
}

// Propagate makes the failure fatal for the turn.
func Propagate() Recovery {
	return Recovery{kind: recoverPropagate}
}

// Degrade replaces the failed update with the one built by fn.
func Degrade(fn func(error) model.Update) Recovery {
	return Recovery{kind: recoverDegrade, degrade: fn}
}

// FallbackTo runs another step on the unchanged state instead.
func FallbackTo(step Step) Recovery {
	return Recovery{kind: recoverFallback, fallback: &step}
}

// Step is one node of the turn graph. Run reads the state and returns a
// partial update; it never mutates the state itself.
type Step struct {
	Name    string
	Run     func(ctx context.Context, s *model.ConversationState) (model.Update, error)
	Recover Recovery
}

// Exec runs the step, applies its recovery on failure and merges the
// resulting update into s.
func (st Step) Exec(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error) {
	if turn, ok := model.TurnFrom(ctx); ok {
		turn.Visit(st.Name)
	}
	u, err := st.safeRun(ctx, s)
	if err != nil {
		switch st.Recover.kind {
		case recoverDegrade:
			logx.Warn().Err(err).
				Str("conversation_id", s.ThreadID).
				Str("node", st.Name).
				Msg("step failed, degrading")
			u = st.Recover.degrade(err)
		case recoverFallback:
			logx.Warn().Err(err).
				Str("conversation_id", s.ThreadID).
				Str("node", st.Name).
				Str("fallback", st.Recover.fallback.Name).
				Msg("step failed, falling back")
			return st.Recover.fallback.Exec(ctx, s)
		default:
			logx.Error().Err(err).
				Str("conversation_id", s.ThreadID).
				Str("node", st.Name).
				Msg("step failed")
			return nil, fmt.Errorf("%s: %w", st.Name, err)
		}
	}

	s.Apply(u)
	logx.Debug().
		Str("conversation_id", s.ThreadID).
		Str("node", st.Name).
		Int("messages", len(s.Messages)).
		Msg("step completed")
	return s, nil
}

func (st Step) safeRun(ctx context.Context, s *model.ConversationState) (u model.Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic recovered: %v", r)
			u = model.Update{}
		}
	}()
	if st.Run == nil {
		return model.Update{}, fmt.Errorf("step has no run function")
	}
	return st.Run(ctx, s)
}

// Lambda adapts the step to an Eino graph node.
func (st Step) Lambda() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error) {
		if s == nil {
			return nil, fmt.Errorf("%s: nil state", st.Name)
		}
		return st.Exec(ctx, s)
	})
}

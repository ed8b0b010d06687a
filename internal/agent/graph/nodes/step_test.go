package nodes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avaestate/ava-agent/internal/agent/model"
)

func failing(err error) func(context.Context, *model.ConversationState) (model.Update, error) {
	return func(context.Context, *model.ConversationState) (model.Update, error) {
		return model.Update{}, err
	}
}

func TestStepPropagateReturnsError(t *testing.T) {
	boom := errors.New("boom")
	st := Step{Name: "router_node", Run: failing(boom), Recover: Propagate()}

	_, err := st.Exec(context.Background(), model.NewConversationState("t1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "router_node")
}

func TestStepDegradeAppliesReplacementUpdate(t *testing.T) {
	st := Step{
		Name: "search_node",
		Run:  failing(errors.New("timeout")),
		Recover: Degrade(func(err error) model.Update {
			return model.Update{APIInfo: model.Ptr("Error processing search: " + err.Error())}
		}),
	}

	s, err := st.Exec(context.Background(), model.NewConversationState("t1"))
	require.NoError(t, err)
	assert.Equal(t, "Error processing search: timeout", s.APIInfo)
}

func TestStepFallbackRunsOtherStepOnUnchangedState(t *testing.T) {
	fallback := Step{
		Name: "continue",
		Run: func(context.Context, *model.ConversationState) (model.Update, error) {
			return model.Update{Append: []model.Message{model.AssistantMessage("hi")}}, nil
		},
		Recover: Propagate(),
	}
	st := Step{Name: "card", Run: failing(errors.New("rejected")), Recover: FallbackTo(fallback)}

	s, err := st.Exec(context.Background(), model.NewConversationState("t1"))
	require.NoError(t, err)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, "hi", s.Messages[0].Content)
}

func TestStepRecoversPanics(t *testing.T) {
	st := Step{
		Name: "memory",
		Run: func(context.Context, *model.ConversationState) (model.Update, error) {
			panic("nil map")
		},
		Recover: Degrade(func(error) model.Update { return model.Update{MemoryContext: model.Ptr("")} }),
	}

	_, err := st.Exec(context.Background(), model.NewConversationState("t1"))
	require.NoError(t, err)

	st.Recover = Propagate()
	_, err = st.Exec(context.Background(), model.NewConversationState("t1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic recovered")
}

func TestStepWithoutRunFails(t *testing.T) {
	_, err := Step{Name: "empty", Recover: Propagate()}.Exec(context.Background(), model.NewConversationState("t1"))
	assert.Error(t, err)
}

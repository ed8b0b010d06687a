package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/compose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avaestate/ava-agent/internal/agent/graph/nodes"
	"github.com/avaestate/ava-agent/internal/agent/graph/tools"
	"github.com/avaestate/ava-agent/internal/agent/model"
	"github.com/avaestate/ava-agent/internal/testutil/fakeapi"
	"github.com/avaestate/ava-agent/internal/testutil/fakellm"
)

func TestSelectWorkflowIsPure(t *testing.T) {
	for _, wf := range []string{"", model.WorkflowConversation, model.WorkflowProjectCard, "AUDIO", "image"} {
		s := &model.ConversationState{Workflow: wf}
		assert.Equal(t, nodes.NodeConversation, SelectWorkflow(s), wf)
	}

	s := &model.ConversationState{Workflow: model.WorkflowAudio, Messages: []model.Message{model.UserMessage("x")}}
	before := s.Clone()
	assert.Equal(t, nodes.NodeAudio, SelectWorkflow(s))
	assert.Equal(t, nodes.NodeAudio, SelectWorkflow(s))
	assert.Equal(t, before, s)
}

func TestShouldSummarizeBoundaries(t *testing.T) {
	const trigger = 10
	cond := ShouldSummarize(trigger)
	withN := func(n int) *model.ConversationState {
		s := model.NewConversationState("t")
		for i := 0; i < n; i++ {
			s.Messages = append(s.Messages, model.UserMessage("m"))
		}
		return s
	}

	assert.Equal(t, compose.END, cond(withN(trigger-1)))
	assert.Equal(t, compose.END, cond(withN(trigger)))
	assert.Equal(t, nodes.NodeSummarize, cond(withN(trigger+1)))
}

func miamiInfo() string {
	return tools.FormatSearchResults(fakeapi.MiamiResult(), model.SearchQuery{NameQuery: model.Ptr("Miami")}.Normalized())
}

func cardState() *model.ConversationState {
	s := model.NewConversationState("5491122334455")
	s.Messages = []model.Message{model.UserMessage("Tell me about Torre Platinum")}
	s.APIInfo = miamiInfo()
	s.PendingReply = "Torre Platinum is a great pick."
	return s
}

func TestShouldSendProjectCard(t *testing.T) {
	confident := `{"send_card": true, "project_id": 395, "project_name": "Torre Platinum", "confidence": 0.93}`

	tests := []struct {
		name      string
		answer    fakellm.RespondFunc
		mutate    func(*model.ConversationState)
		want      string
		wantCalls int
	}{
		{name: "confident known project", answer: fakellm.Text(confident), want: nodes.NodeProjectCard, wantCalls: 1},
		{name: "below threshold", answer: fakellm.Text(`{"send_card": true, "project_id": 395, "confidence": 0.5}`), want: nodes.NodeContinueConversation, wantCalls: 1},
		{name: "declined", answer: fakellm.Text(`{"send_card": false}`), want: nodes.NodeContinueConversation, wantCalls: 1},
		{name: "fabricated id", answer: fakellm.Text(`{"send_card": true, "project_id": 39, "confidence": 0.99}`), want: nodes.NodeContinueConversation, wantCalls: 1},
		{name: "string id", answer: fakellm.Text(`{"send_card": true, "project_id": "395", "confidence": "0.9"}`), want: nodes.NodeProjectCard, wantCalls: 1},
		{name: "model failure", answer: fakellm.Fail(errors.New("down")), want: nodes.NodeContinueConversation, wantCalls: 1},
		{name: "garbage", answer: fakellm.Text("sure, send it"), want: nodes.NodeContinueConversation, wantCalls: 1},
		{
			name:   "no search results",
			answer: fakellm.Text(confident),
			mutate: func(s *model.ConversationState) { s.APIInfo = "" },
			want:   nodes.NodeContinueConversation,
		},
		{
			name:   "search error note",
			answer: fakellm.Text(confident),
			mutate: func(s *model.ConversationState) { s.APIInfo = "Error processing search: timeout (Project ID: 395)" },
			want:   nodes.NodeContinueConversation,
		},
		{
			name:   "tool already sent a card",
			answer: fakellm.Text(confident),
			mutate: func(s *model.ConversationState) { s.Cards = []model.CardReceipt{{Kind: "unit", ID: fakeapi.MiamiUnitID}} },
			want:   nodes.NodeContinueConversation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decider := fakellm.New(tt.answer)
			cond := ShouldSendProjectCard(CardDecider{Model: decider, Threshold: 0.8, RecentSize: 3})
			s := cardState()
			if tt.mutate != nil {
				tt.mutate(s)
			}

			assert.Equal(t, tt.want, cond(context.Background(), s))
			assert.Len(t, decider.Calls(), tt.wantCalls)
			if tt.want == nodes.NodeProjectCard {
				require.NotNil(t, s.ProjectID)
				assert.Equal(t, 395, *s.ProjectID)
			} else {
				assert.Nil(t, s.ProjectID)
			}
		})
	}
}

func TestShouldSendProjectCardSeesPendingReplyAndResults(t *testing.T) {
	decider := fakellm.New(fakellm.Text(`{"send_card": false}`))
	cond := ShouldSendProjectCard(CardDecider{Model: decider, Threshold: 0.8, RecentSize: 3})

	cond(context.Background(), cardState())
	require.Len(t, decider.Calls(), 1)
	call := decider.Calls()[0]
	assert.True(t, call.Contains("Tell me about Torre Platinum"))
	assert.True(t, call.Contains("Torre Platinum is a great pick."))
	assert.True(t, call.Contains("(Project ID: 395)"))
}

func TestShouldSendProjectCardSkipsWhenTurnSentCard(t *testing.T) {
	decider := fakellm.New(fakellm.Text(`{"send_card": true, "project_id": 395, "confidence": 1}`))
	cond := ShouldSendProjectCard(CardDecider{Model: decider, Threshold: 0.8})

	turn := model.NewTurn("5491122334455")
	turn.AddCard(model.CardReceipt{Kind: "project", ID: "395"})
	got := cond(model.WithTurn(context.Background(), turn), cardState())

	assert.Equal(t, nodes.NodeContinueConversation, got)
	assert.Empty(t, decider.Calls())
}

func TestTransitionTableIsConsistent(t *testing.T) {
	known := map[string]bool{compose.START: true, compose.END: true}
	for _, n := range transitions.Nodes {
		known[n] = true
	}
	for _, e := range transitions.Edges {
		assert.True(t, known[e.From], e.From)
		assert.True(t, known[e.To], e.To)
	}
	conds := map[string]bool{CondSelectWorkflow: true, CondShouldSendProjectCard: true, CondShouldSummarize: true}
	for _, b := range transitions.Branches {
		assert.True(t, known[b.From], b.From)
		assert.True(t, conds[b.Condition], b.Condition)
		for _, target := range b.Targets {
			assert.True(t, known[target], target)
		}
	}
}

package toolloop

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avaestate/ava-agent/internal/agent/graph/tools"
	"github.com/avaestate/ava-agent/internal/agent/model"
	"github.com/avaestate/ava-agent/internal/testutil/fakellm"
)

type stubSearch struct{ calls int }

func (s *stubSearch) Search(context.Context, model.SearchQuery) (*model.SearchResult, error) {
	s.calls++
	return &model.SearchResult{Success: true, Projects: model.ProjectsPayload{Regions: []model.Region{{
		RegionName:         "Miami",
		ExactMatchExamples: []model.ProjectExample{{ProjectID: 395, ProjectName: "Torre Platinum"}},
	}}}}, nil
}

type stubCards struct{ projects []int }

func (s *stubCards) SendProjectCard(_ context.Context, id int, _ string) (*model.CardResult, error) {
	s.projects = append(s.projects, id)
	return &model.CardResult{Success: true}, nil
}

func (s *stubCards) SendUnitCard(context.Context, string, string) (*model.CardResult, error) {
	return &model.CardResult{Success: true}, nil
}

func newLoop(t *testing.T, respond fakellm.RespondFunc, maxIter int) (*Loop, *fakellm.Model, *stubSearch, *stubCards) {
	t.Helper()
	fake := fakellm.New(respond)
	search := &stubSearch{}
	cards := &stubCards{}
	loop, err := New(context.Background(), Config{
		Model:         fake,
		Tools:         tools.GetQueryTools(tools.Deps{Search: search, Cards: cards}),
		MaxIterations: maxIter,
	})
	require.NoError(t, err)
	return loop, fake, search, cards
}

func prompt() []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage("You are Ava."),
		schema.UserMessage("What projects are available in Miami?"),
	}
}

func TestLoopRunsToolThenAnswers(t *testing.T) {
	loop, fake, search, _ := newLoop(t, fakellm.Sequence(
		fakellm.ToolCall("", tools.ToolSearchProjects, `{"semantic_query": "projects in Miami"}`),
		schema.AssistantMessage("In Miami I have Torre Platinum available.", nil),
	), 3)

	turn := model.NewTurn("5215550001")
	out, err := loop.Run(model.WithTurn(context.Background(), turn), prompt())
	require.NoError(t, err)

	assert.Equal(t, "In Miami I have Torre Platinum available.", out.Content)
	assert.Equal(t, 1, search.calls)
	assert.True(t, turn.KnowsProject(395))

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.NotEmpty(t, calls[0].Tools, "tools are bound before the cap")

	// the tool result carries the synthesized call id
	var toolMsg *schema.Message
	for _, m := range calls[1].Messages {
		if m.Role == schema.Tool {
			toolMsg = m
		}
	}
	require.NotNil(t, toolMsg)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Contains(t, toolMsg.Content, "Region: Miami")
}

func TestLoopForcesTerminationAtCap(t *testing.T) {
	loop, fake, search, _ := newLoop(t, func(_ context.Context, call fakellm.Call) (*schema.Message, error) {
		if len(call.Tools) == 0 {
			return schema.AssistantMessage("Here is what I found so far.", nil), nil
		}
		return fakellm.ToolCall("", tools.ToolSearchProjects, `{"name_query": "Torre"}`), nil
	}, 3)

	out, err := loop.Run(model.WithTurn(context.Background(), model.NewTurn("t1")), prompt())
	require.NoError(t, err)
	assert.Equal(t, "Here is what I found so far.", out.Content)

	calls := fake.Calls()
	require.Len(t, calls, 3)
	assert.NotEmpty(t, calls[0].Tools)
	assert.NotEmpty(t, calls[1].Tools)
	assert.Empty(t, calls[2].Tools, "the capped call runs without tools")
	assert.True(t, calls[2].Contains("SYSTEM NOTICE"))
	assert.Equal(t, 2, search.calls)
}

func TestLoopSendsCardForSearchedProject(t *testing.T) {
	loop, _, _, cards := newLoop(t, fakellm.Sequence(
		fakellm.ToolCall("a", tools.ToolSearchProjects, `{"name_query": "Torre Platinum"}`),
		fakellm.ToolCall("b", tools.ToolSendProjectCard, `{"project_id": "395", "project_name": "Torre Platinum"}`),
		schema.AssistantMessage("I just sent you the card.", nil),
	), 4)

	turn := model.NewTurn("5215550001")
	out, err := loop.Run(model.WithTurn(context.Background(), turn), prompt())
	require.NoError(t, err)
	assert.Equal(t, "I just sent you the card.", out.Content)
	assert.Equal(t, []int{395}, cards.projects)
	assert.Len(t, turn.Cards(), 1)
}

func TestLoopFailsOnEmptyAnswer(t *testing.T) {
	loop, _, _, _ := newLoop(t, fakellm.Text("   "), 3)
	_, err := loop.Run(context.Background(), prompt())
	assert.Error(t, err)
}

func TestNewRequiresModel(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestPairToolResultsMatchesCallsByPosition(t *testing.T) {
	history := []*schema.Message{
		schema.UserMessage("Miami and Brickell?"),
		schema.AssistantMessage("", []schema.ToolCall{
			{ID: "call_a", Function: schema.FunctionCall{Name: tools.ToolSearchProjects}},
			{ID: "call_b", Function: schema.FunctionCall{Name: tools.ToolSearchProjects}},
		}),
	}
	in := []*schema.Message{
		{Role: schema.Tool, Content: "miami results"},
		{Role: schema.Tool, Content: "brickell results", ToolCallID: "call_b"},
	}

	pairToolResults(in, history)
	assert.Equal(t, "call_a", in[0].ToolCallID)
	assert.Equal(t, "call_b", in[1].ToolCallID)

	in = []*schema.Message{{Role: schema.Tool}, {Role: schema.Tool}}
	pairToolResults(in, history)
	assert.Equal(t, "call_a", in[0].ToolCallID)
	assert.Equal(t, "call_b", in[1].ToolCallID)
}

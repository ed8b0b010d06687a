package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avaestate/ava-agent/internal/agent/graph/llm"
	"github.com/avaestate/ava-agent/internal/agent/graph/parsers"
	"github.com/avaestate/ava-agent/internal/agent/graph/toolloop"
	"github.com/avaestate/ava-agent/internal/agent/graph/tools"
	"github.com/avaestate/ava-agent/internal/agent/model"
	"github.com/avaestate/ava-agent/internal/testutil/fakeapi"
	"github.com/avaestate/ava-agent/internal/testutil/fakellm"
)

type fakeMemory struct {
	stored   []string
	relevant []string
	err      error
}

func (f *fakeMemory) ExtractAndStore(_ context.Context, _ string, msg model.Message) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, msg.Content)
	return nil
}

func (f *fakeMemory) Relevant(context.Context, string, string) ([]string, error) {
	return f.relevant, f.err
}

func (f *fakeMemory) FormatForPrompt(memories []string) string {
	if len(memories) == 0 {
		return ""
	}
	return "- " + strings.Join(memories, "\n- ")
}

type fixedActivity string

func (a fixedActivity) CurrentActivity(context.Context) string { return string(a) }

type fakeSynth struct{ err error }

func (f fakeSynth) Synthesize(context.Context, string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("RIFF"), "audio/wav", nil
}

func testDeps(strategy string) (*Deps, *fakeapi.Search, *fakeapi.Cards) {
	search := &fakeapi.Search{}
	cards := &fakeapi.Cards{}
	cfg := model.DefaultConversationConfig()
	cfg.SearchStrategy = strategy
	cfg.MessagesAfterSummary = 2
	return &Deps{
		Models: &llm.ChatModels{
			Router:      fakellm.New(fakellm.Text(`{"response_type": "conversation"}`)),
			Extractor:   fakellm.New(fakellm.Text(parsers.NoSearchSentinel)),
			Formatter:   fakellm.New(fakellm.Text("Torre Platinum in Miami has 2 bedroom units.")),
			CardDecider: fakellm.New(fakellm.Text(`{"send_card": false}`)),
			Summarizer:  fakellm.New(fakellm.Text("The user is looking for a flat in Miami.")),
			Response:    fakellm.New(fakellm.Text("Happy to help!")),
		},
		Search:       search,
		Cards:        cards,
		Prompt:       model.PromptConfig{CharacterName: "Ava", BusinessName: "Ava Realty"},
		Conversation: cfg,
	}, search, cards
}


func stateWith(msgs ...model.Message) *model.ConversationState {
	s := model.NewConversationState("5491122334455")
	s.Messages = append(s.Messages, msgs...)
	return s
}

func withTurn(s *model.ConversationState) (context.Context, *model.Turn) {
	turn := model.NewTurn(s.ThreadID)
	return model.WithTurn(context.Background(), turn), turn
}

func TestMemoryExtractionStoresOnlyUserChat(t *testing.T) {
	d, _, _ := testDeps(model.StrategyAgent)
	mem := &fakeMemory{}
	d.Memory = mem
	step := NewMemoryExtractionStep(d)

	_, err := step.Exec(context.Background(), stateWith(model.UserMessage("I have two kids")))
	require.NoError(t, err)
	_, err = step.Exec(context.Background(), stateWith(model.AssistantMessage("Nice!")))
	require.NoError(t, err)

	assert.Equal(t, []string{"I have two kids"}, mem.stored)
}

func TestMemoryStepsDegradeOnFailure(t *testing.T) {
	d, _, _ := testDeps(model.StrategyAgent)
	d.Memory = &fakeMemory{err: errors.New("disk full")}

	s := stateWith(model.UserMessage("hello"))
	s.MemoryContext = "stale"
	_, err := NewMemoryExtractionStep(d).Exec(context.Background(), s)
	require.NoError(t, err)
	_, err = NewMemoryInjectionStep(d).Exec(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, s.MemoryContext)
}

func TestMemoryInjectionFormatsRelevantMemories(t *testing.T) {
	d, _, _ := testDeps(model.StrategyAgent)
	d.Memory = &fakeMemory{relevant: []string{"Budget is 500k", "Wants 2 bedrooms"}}

	s, err := NewMemoryInjectionStep(d).Exec(context.Background(), stateWith(model.UserMessage("anything in Miami?")))
	require.NoError(t, err)
	assert.Equal(t, "- Budget is 500k\n- Wants 2 bedrooms", s.MemoryContext)
}

func TestContextInjectionFlagsChangedActivity(t *testing.T) {
	d, _, _ := testDeps(model.StrategyAgent)
	d.Activity = fixedActivity("Showing a penthouse in Brickell")

	s := stateWith(model.UserMessage("hi"))
	s, err := NewContextInjectionStep(d).Exec(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, s.ApplyActivity)
	assert.Equal(t, "Showing a penthouse in Brickell", s.CurrentActivity)

	s, err = NewContextInjectionStep(d).Exec(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, s.ApplyActivity)
}

func TestRouterLabels(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
	}{
		{name: "audio json", out: "```json\n{\"response_type\": \"audio\"}\n```", want: model.WorkflowAudio},
		{name: "conversation", out: `{"response_type": "conversation"}`, want: model.WorkflowConversation},
		{name: "unknown label", out: `{"response_type": "image"}`, want: model.WorkflowConversation},
		{name: "garbage", out: "I think the user wants to talk", want: model.WorkflowConversation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, _ := testDeps(model.StrategyAgent)
			d.Models.Router = fakellm.New(fakellm.Text(tt.out))

			s, err := NewRouterStep(d).Exec(context.Background(), stateWith(model.UserMessage("send me a voice note")))
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Workflow)
		})
	}
}

func TestRouterFailureIsFatal(t *testing.T) {
	d, _, _ := testDeps(model.StrategyAgent)
	d.Models.Router = fakellm.New(fakellm.Fail(errors.New("quota exceeded")))

	_, err := NewRouterStep(d).Exec(context.Background(), stateWith(model.UserMessage("hi")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestRouterAnalyzesOnlyRecentMessages(t *testing.T) {
	d, _, _ := testDeps(model.StrategyAgent)
	router := fakellm.New(fakellm.Text(`{"response_type": "conversation"}`))
	d.Models.Router = router

	s := stateWith(
		model.UserMessage("m1"), model.AssistantMessage("m2"),
		model.UserMessage("m3"), model.AssistantMessage("m4"), model.UserMessage("m5"),
	)
	_, err := NewRouterStep(d).Exec(context.Background(), s)
	require.NoError(t, err)

	calls := router.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].Messages, 1+d.Conversation.RouterMessagesToAnalyze)
	assert.False(t, calls[0].Contains("m2"))
	assert.True(t, calls[0].Contains("m5"))
}

func TestAgentSearchStepDefersToToolLoop(t *testing.T) {
	d, search, _ := testDeps(model.StrategyAgent)
	d.Loop = &toolloop.Loop{}

	s, err := NewSearchStep(d).Exec(context.Background(), stateWith(model.UserMessage("flats in Miami?")))
	require.NoError(t, err)
	assert.False(t, s.NeedsAPI)
	assert.Empty(t, search.Queries())
	assert.Empty(t, d.Models.Extractor.(*fakellm.Model).Calls())
}

func TestSingleShotSearchNoSearchNeeded(t *testing.T) {
	d, search, _ := testDeps(model.StrategySingleShot)

	s, err := NewSearchStep(d).Exec(context.Background(), stateWith(model.UserMessage("hi Ava!")))
	require.NoError(t, err)
	assert.False(t, s.NeedsAPI)
	assert.Len(t, s.Messages, 1)
	assert.Empty(t, search.Queries())
}

func TestSingleShotSearchMalformedJSON(t *testing.T) {
	d, search, _ := testDeps(model.StrategySingleShot)
	d.Models.Extractor = fakellm.New(fakellm.Text(`{"nameQuery": "Miami", "searchIn": [`))

	s, err := NewSearchStep(d).Exec(context.Background(), stateWith(model.UserMessage("flats in Miami?")))
	require.NoError(t, err)
	assert.False(t, s.NeedsAPI)
	assert.True(t, strings.HasPrefix(s.APIInfo, "Error: "), s.APIInfo)
	assert.Empty(t, search.Queries())
}

func TestSingleShotSearchAppendsContext(t *testing.T) {
	d, search, _ := testDeps(model.StrategySingleShot)
	d.Models.Extractor = fakellm.New(fakellm.Text("```json\n" +
		`{"nameQuery": " Miami ", "searchIn": ["Zones", "zones", "moon"], "params": {"bedrooms": "2"}}` + "\n```"))

	s := stateWith(model.UserMessage("2 bedroom flats in Miami?"))
	ctx, turn := withTurn(s)
	s, err := NewSearchStep(d).Exec(ctx, s)
	require.NoError(t, err)

	require.Len(t, search.Queries(), 1)
	q := search.Queries()[0]
	assert.Equal(t, "Miami", *q.NameQuery)
	assert.Equal(t, []model.SearchTarget{model.SearchZones}, q.SearchIn)
	assert.Equal(t, 2, *q.Params.Bedrooms)

	assert.True(t, s.NeedsAPI)
	assert.Contains(t, s.APIInfo, "Torre Platinum")
	require.NotNil(t, s.APIParams)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, model.KindSearchContext, s.Messages[1].Kind)
	assert.Equal(t, "Torre Platinum in Miami has 2 bedroom units.", s.Messages[1].Content)
	assert.True(t, turn.KnowsProject(395))
}

func TestSingleShotSearchFormatterFallback(t *testing.T) {
	d, _, _ := testDeps(model.StrategySingleShot)
	d.Models.Extractor = fakellm.New(fakellm.Text(`{"nameQuery": "Miami"}`))
	d.Models.Formatter = fakellm.New(fakellm.Fail(errors.New("overloaded")))

	s, err := NewSearchStep(d).Exec(context.Background(), stateWith(model.UserMessage("Miami?")))
	require.NoError(t, err)
	require.Len(t, s.Messages, 2)
	assert.Contains(t, s.Messages[1].Content, "SEARCH RESULTS")
}

func TestSingleShotSearchAPIFailureDegrades(t *testing.T) {
	d, search, _ := testDeps(model.StrategySingleShot)
	d.Models.Extractor = fakellm.New(fakellm.Text(`{"nameQuery": "Miami"}`))
	search.Err = errors.New("502 bad gateway")

	s, err := NewSearchStep(d).Exec(context.Background(), stateWith(model.UserMessage("Miami?")))
	require.NoError(t, err)
	assert.False(t, s.NeedsAPI)
	assert.Equal(t, "Error processing search: 502 bad gateway", s.APIInfo)
	assert.Len(t, s.Messages, 1)
}

func newAgentDeps(t *testing.T, respond fakellm.RespondFunc) (*Deps, *fakeapi.Search, *fakeapi.Cards, *fakellm.Model) {
	t.Helper()
	d, search, cards := testDeps(model.StrategyAgent)
	resp := fakellm.New(respond)
	d.Models.Response = resp
	loop, err := toolloop.New(context.Background(), toolloop.Config{
		Model:         resp,
		Tools:         tools.GetQueryTools(tools.Deps{Search: search, Cards: cards}),
		MaxIterations: d.Conversation.AgentMaxIterations,
	})
	require.NoError(t, err)
	d.Loop = loop
	return d, search, cards, resp
}

func TestConversationAgentRecordsSearchAndCards(t *testing.T) {
	d, search, cards, _ := newAgentDeps(t, fakellm.Sequence(
		fakellm.ToolCall("", tools.ToolSearchProjects, `{"name_query": "Torre Platinum"}`),
		fakellm.ToolCall("", tools.ToolSendProjectCard, `{"project_id": 395, "project_name": "Torre Platinum"}`),
		schema.AssistantMessage("I sent you the Torre Platinum card.", nil),
	))

	s := stateWith(model.UserMessage("Tell me about Torre Platinum"))
	ctx, _ := withTurn(s)
	s, err := NewConversationStep(d).Exec(ctx, s)
	require.NoError(t, err)

	assert.Equal(t, "I sent you the Torre Platinum card.", s.PendingReply)
	assert.True(t, s.NeedsAPI)
	assert.Contains(t, s.APIInfo, "(Project ID: 395)")
	require.NotNil(t, s.APIParams)
	assert.Equal(t, "Torre Platinum", *s.APIParams.NameQuery)
	require.Len(t, s.Cards, 1)
	assert.Equal(t, "395", s.Cards[0].ID)
	assert.Len(t, search.Queries(), 1)
	assert.Equal(t, []fakeapi.Sent{{Kind: "project", ID: "395", ThreadID: s.ThreadID}}, cards.Sent())
	assert.Len(t, s.Messages, 1, "conversation step only stages the reply")
}

func TestConversationFallsBackToPlainReply(t *testing.T) {
	d, _, _, resp := newAgentDeps(t, func(_ context.Context, call fakellm.Call) (*schema.Message, error) {
		if len(call.Tools) > 0 {
			return nil, errors.New("tool schema rejected")
		}
		return schema.AssistantMessage("Plain answer.", nil), nil
	})

	s, err := NewConversationStep(d).Exec(context.Background(), stateWith(model.UserMessage("hi")))
	require.NoError(t, err)
	assert.Equal(t, "Plain answer.", s.PendingReply)
	assert.Len(t, resp.Calls(), 2)
}

func TestConversationDegradesToCannedReply(t *testing.T) {
	d, _, _, _ := newAgentDeps(t, fakellm.Fail(errors.New("down")))

	s, err := NewConversationStep(d).Exec(context.Background(), stateWith(model.UserMessage("hi")))
	require.NoError(t, err)
	assert.Equal(t, CannedReply, s.PendingReply)
}

func TestContinueConversationCommitsPendingReply(t *testing.T) {
	d, _, _ := testDeps(model.StrategyAgent)
	s := stateWith(model.UserMessage("hi"))
	s.PendingReply = "Hello there!"

	s, err := NewContinueConversationStep(d).Exec(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, model.RoleAssistant, s.Messages[1].Role)
	assert.Equal(t, "Hello there!", s.Messages[1].Content)
	assert.Empty(t, s.PendingReply)
}

func TestContinueConversationGeneratesWhenNothingPending(t *testing.T) {
	d, _, _ := testDeps(model.StrategyAgent)

	s, err := NewContinueConversationStep(d).Exec(context.Background(), stateWith(model.UserMessage("hi")))
	require.NoError(t, err)
	last, _ := s.LastReply()
	assert.Equal(t, "Happy to help!", last.Content)
}

func TestAudioStep(t *testing.T) {
	t.Run("synthesized", func(t *testing.T) {
		d, _, _ := testDeps(model.StrategyAgent)
		d.Synthesizer = fakeSynth{}
		s := stateWith(model.UserMessage("voice note please"))
		s.Workflow = model.WorkflowAudio

		s, err := NewAudioStep(d).Exec(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, model.WorkflowAudio, s.Workflow)
		assert.Equal(t, []byte("RIFF"), s.AudioBuffer)
		assert.Equal(t, "audio/wav", s.AudioMIME)
		last, _ := s.LastReply()
		assert.Equal(t, "Happy to help!", last.Content)
	})

	t.Run("synthesis failure keeps text", func(t *testing.T) {
		d, _, _ := testDeps(model.StrategyAgent)
		d.Synthesizer = fakeSynth{err: errors.New("tts unavailable")}
		s := stateWith(model.UserMessage("voice note please"))
		s.Workflow = model.WorkflowAudio

		s, err := NewAudioStep(d).Exec(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, model.WorkflowConversation, s.Workflow)
		assert.Nil(t, s.AudioBuffer)
		last, _ := s.LastReply()
		assert.Equal(t, "Happy to help!", last.Content)
	})

	t.Run("agent strategy searches through the tool loop", func(t *testing.T) {
		d, search, _, resp := newAgentDeps(t, fakellm.Sequence(
			fakellm.ToolCall("", tools.ToolSearchProjects, `{"name_query": "Torre Platinum"}`),
			schema.AssistantMessage("Torre Platinum has a 2 bedroom unit.", nil),
		))
		d.Synthesizer = fakeSynth{}
		s := stateWith(model.UserMessage("voice note about Torre Platinum"))
		s.Workflow = model.WorkflowAudio
		ctx, _ := withTurn(s)

		s, err := NewAudioStep(d).Exec(ctx, s)
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Calls()[0].Tools)
		assert.Len(t, search.Queries(), 1)
		assert.Equal(t, model.WorkflowAudio, s.Workflow)
		assert.True(t, s.NeedsAPI)
		assert.Contains(t, s.APIInfo, "(Project ID: 395)")
		last, _ := s.LastReply()
		assert.Equal(t, "Torre Platinum has a 2 bedroom unit.", last.Content)
	})

	t.Run("tool loop failure falls back to plain reply", func(t *testing.T) {
		d, _, _, resp := newAgentDeps(t, func(_ context.Context, call fakellm.Call) (*schema.Message, error) {
			if len(call.Tools) > 0 {
				return nil, errors.New("tool schema rejected")
			}
			return schema.AssistantMessage("Plain voice answer.", nil), nil
		})
		d.Synthesizer = fakeSynth{}

		s, err := NewAudioStep(d).Exec(context.Background(), stateWith(model.UserMessage("voice please")))
		require.NoError(t, err)
		assert.Len(t, resp.Calls(), 2)
		last, _ := s.LastReply()
		assert.Equal(t, "Plain voice answer.", last.Content)
	})
}

func TestProjectCardStep(t *testing.T) {
	t.Run("sent", func(t *testing.T) {
		d, _, cards := testDeps(model.StrategyAgent)
		s := stateWith(model.UserMessage("show me Torre Platinum"))
		s.PendingReply = "Torre Platinum is lovely."
		s.ProjectID = model.Ptr(395)
		s.ProjectName = "Torre Platinum"

		s, err := NewProjectCardStep(d, NewContinueConversationStep(d)).Exec(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, model.WorkflowProjectCard, s.Workflow)
		require.Len(t, s.Messages, 2)
		assert.Equal(t, model.KindCard, s.Messages[1].Kind)
		assert.Contains(t, s.Messages[1].Content, "Torre Platinum")
		assert.Empty(t, s.PendingReply)
		require.Len(t, s.Cards, 1)
		assert.Len(t, cards.Sent(), 1)
	})

	failures := map[string]func(*Deps, *fakeapi.Cards, *model.ConversationState){
		"missing id": func(*Deps, *fakeapi.Cards, *model.ConversationState) {},
		"api error": func(_ *Deps, c *fakeapi.Cards, s *model.ConversationState) {
			c.Err = errors.New("timeout")
			s.ProjectID = model.Ptr(395)
		},
		"rejected": func(_ *Deps, c *fakeapi.Cards, s *model.ConversationState) {
			c.Result = &model.CardResult{Success: false, Message: "template not approved"}
			s.ProjectID = model.Ptr(395)
		},
	}
	for name, setup := range failures {
		t.Run(name+" falls back to continue", func(t *testing.T) {
			d, _, cards := testDeps(model.StrategyAgent)
			s := stateWith(model.UserMessage("show me Torre Platinum"))
			s.PendingReply = "Torre Platinum is lovely."
			setup(d, cards, s)

			s, err := NewProjectCardStep(d, NewContinueConversationStep(d)).Exec(context.Background(), s)
			require.NoError(t, err)
			last, _ := s.LastReply()
			assert.Equal(t, "Torre Platinum is lovely.", last.Content)
			assert.Equal(t, model.KindChat, last.Kind)
			assert.Empty(t, s.Cards)
		})
	}
}

func TestSummarizeKeepsTail(t *testing.T) {
	d, _, _ := testDeps(model.StrategyAgent)
	d.Conversation.MessagesAfterSummary = 5

	var msgs []model.Message
	for i := 0; i < 22; i++ {
		msgs = append(msgs, model.UserMessage(fmt.Sprintf("m%d", i)))
	}
	s := stateWith(msgs...)
	tail := append([]model.Message(nil), msgs[17:]...)

	s, err := NewSummarizeStep(d).Exec(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, tail, s.Messages)
	assert.Equal(t, "The user is looking for a flat in Miami.", s.Summary)
}

func TestSummarizeExtendsExistingSummary(t *testing.T) {
	d, _, _ := testDeps(model.StrategyAgent)
	summarizer := fakellm.New(fakellm.Text("Longer summary."))
	d.Models.Summarizer = summarizer

	s := stateWith(model.UserMessage("a"), model.AssistantMessage("b"), model.UserMessage("c"))
	s.Summary = "Earlier summary."
	s, err := NewSummarizeStep(d).Exec(context.Background(), s)
	require.NoError(t, err)

	require.Len(t, summarizer.Calls(), 1)
	assert.True(t, summarizer.Calls()[0].Contains("Earlier summary."))
	assert.True(t, summarizer.Calls()[0].Contains("Extend the summary"))
	assert.Equal(t, "Longer summary.", s.Summary)
	assert.Len(t, s.Messages, 2)
}

func TestSummarizeFailureIsNoOp(t *testing.T) {
	d, _, _ := testDeps(model.StrategyAgent)
	d.Models.Summarizer = fakellm.New(fakellm.Fail(errors.New("down")))

	s := stateWith(model.UserMessage("a"), model.AssistantMessage("b"), model.UserMessage("c"))
	s.Summary = "kept"
	s, err := NewSummarizeStep(d).Exec(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, s.Messages, 3)
	assert.Equal(t, "kept", s.Summary)
}

func TestSingleShotSearchUnsuccessfulResultDegrades(t *testing.T) {
	d, search, _ := testDeps(model.StrategySingleShot)
	d.Models.Extractor = fakellm.New(fakellm.Text(`{"nameQuery": "Miami"}`))
	search.Result = &model.SearchResult{Success: false, Message: "index rebuilding"}

	s, err := NewSearchStep(d).Exec(context.Background(), stateWith(model.UserMessage("Miami?")))
	require.NoError(t, err)
	assert.False(t, s.NeedsAPI)
	assert.Equal(t, "Error processing search: no search result available: index rebuilding", s.APIInfo)
}

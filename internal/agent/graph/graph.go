package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/avaestate/ava-agent/internal/agent/graph/nodes"
	"github.com/avaestate/ava-agent/internal/agent/model"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// GraphName is the compiled graph's name in callbacks.
const GraphName = "ava_turn"

// GraphBuilder handles the construction of the turn graph from the
// transition table.
type GraphBuilder struct {
	deps       *nodes.Deps
	graph      *compose.Graph[*model.ConversationState, *model.ConversationState]
	steps      map[string]nodes.Step
	conditions map[string]compose.GraphBranchCondition[*model.ConversationState]
}

// BuildGraph constructs and returns the compiled turn graph.
func BuildGraph(ctx context.Context, deps *nodes.Deps) (compose.Runnable[*model.ConversationState, *model.ConversationState], error) {
	if deps == nil {
		return nil, fmt.Errorf("graph deps are nil")
	}
	if err := deps.Models.Validate(); err != nil {
		return nil, err
	}

	b := &GraphBuilder{
		deps:  deps,
		graph: compose.NewGraph[*model.ConversationState, *model.ConversationState](),
	}
	b.registerSteps()
	b.registerConditions()

	if err := b.addNodes(); err != nil {
		return nil, err
	}
	if err := b.addEdges(); err != nil {
		return nil, err
	}
	if err := b.addBranches(); err != nil {
		return nil, err
	}
	return b.compile(ctx)
}

func (b *GraphBuilder) registerSteps() {
	d := b.deps
	cont := nodes.NewContinueConversationStep(d)
	b.steps = map[string]nodes.Step{
		nodes.NodeMemoryExtraction:     nodes.NewMemoryExtractionStep(d),
		nodes.NodeRouter:               nodes.NewRouterStep(d),
		nodes.NodeContextInjection:     nodes.NewContextInjectionStep(d),
		nodes.NodeMemoryInjection:      nodes.NewMemoryInjectionStep(d),
		nodes.NodeSearch:               nodes.NewSearchStep(d),
		nodes.NodeConversation:         nodes.NewConversationStep(d),
		nodes.NodeAudio:                nodes.NewAudioStep(d),
		nodes.NodeProjectCard:          nodes.NewProjectCardStep(d, cont),
		nodes.NodeContinueConversation: cont,
		nodes.NodeSummarize:            nodes.NewSummarizeStep(d),
	}
}

func (b *GraphBuilder) registerConditions() {
	summarize := ShouldSummarize(b.deps.Conversation.SummaryTrigger)
	card := ShouldSendProjectCard(CardDecider{
		Model:      b.deps.Models.CardDecider,
		Threshold:  b.deps.Conversation.CardConfidenceThreshold,
		RecentSize: b.deps.Conversation.SearchMessagesToAnalyze,
	})

	b.conditions = map[string]compose.GraphBranchCondition[*model.ConversationState]{
		CondSelectWorkflow: func(_ context.Context, s *model.ConversationState) (string, error) {
			return SelectWorkflow(s), nil
		},
		CondShouldSendProjectCard: func(ctx context.Context, s *model.ConversationState) (string, error) {
			return card(ctx, s), nil
		},
		CondShouldSummarize: func(_ context.Context, s *model.ConversationState) (string, error) {
			return summarize(s), nil
		},
	}
}

func (b *GraphBuilder) addNodes() error {
	for _, name := range transitions.Nodes {
		step, ok := b.steps[name]
		if !ok {
			return fmt.Errorf("no step registered for node %s", name)
		}
		if err := b.graph.AddLambdaNode(name, step.Lambda(), compose.WithNodeName(name)); err != nil {
			return fmt.Errorf("add node %s: %w", name, err)
		}
	}
	return nil
}

func (b *GraphBuilder) addEdges() error {
	for _, e := range transitions.Edges {
		if err := b.graph.AddEdge(e.From, e.To); err != nil {
			logx.Error().Err(err).Str("from", e.From).Str("to", e.To).Msg("Error adding edge")
			return fmt.Errorf("add edge %s -> %s: %w", e.From, e.To, err)
		}
	}
	return nil
}

func (b *GraphBuilder) addBranches() error {
	for _, br := range transitions.Branches {
		cond, ok := b.conditions[br.Condition]
		if !ok {
			return fmt.Errorf("unknown branch condition %s", br.Condition)
		}
		targets := make(map[string]bool, len(br.Targets))
		for _, t := range br.Targets {
			targets[t] = true
		}
		if err := b.graph.AddBranch(br.From, compose.NewGraphBranch(cond, targets)); err != nil {
			logx.Error().Err(err).Str("from", br.From).Str("condition", br.Condition).Msg("Error adding branch")
			return fmt.Errorf("add branch %s after %s: %w", br.Condition, br.From, err)
		}
	}
	return nil
}

// compile bounds the run so a wiring mistake cannot loop forever.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*model.ConversationState, *model.ConversationState], error) {
	maxSteps := 2*len(transitions.Nodes) + 2
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName(GraphName),
		compose.WithMaxRunSteps(maxSteps),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}
	logx.Debug().Int("max_run_steps", maxSteps).Msg("Graph compiled successfully")
	return runnable, nil
}

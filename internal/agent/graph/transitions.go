package graph

import (
	"github.com/cloudwego/eino/compose"

	"github.com/avaestate/ava-agent/internal/agent/graph/nodes"
)

// Branch condition names.
const (
	CondSelectWorkflow        = "select_workflow"
	CondShouldSendProjectCard = "should_send_project_card"
	CondShouldSummarize       = "should_summarize_conversation"
)

type edge struct {
	From, To string
}

type branch struct {
	From      string
	Condition string
	Targets   []string
}

// transitions is the whole shape of a turn. The builder adds exactly these
// edges and branches.
var transitions = struct {
	Nodes    []string
	Edges    []edge
	Branches []branch
}{
	Nodes: []string{
		nodes.NodeMemoryExtraction,
		nodes.NodeRouter,
		nodes.NodeContextInjection,
		nodes.NodeMemoryInjection,
		nodes.NodeSearch,
		nodes.NodeConversation,
		nodes.NodeAudio,
		nodes.NodeProjectCard,
		nodes.NodeContinueConversation,
		nodes.NodeSummarize,
	},
	Edges: []edge{
		{compose.START, nodes.NodeMemoryExtraction},
		{nodes.NodeMemoryExtraction, nodes.NodeRouter},
		{nodes.NodeRouter, nodes.NodeContextInjection},
		{nodes.NodeContextInjection, nodes.NodeMemoryInjection},
		{nodes.NodeMemoryInjection, nodes.NodeSearch},
		{nodes.NodeSummarize, compose.END},
	},
	Branches: []branch{
		{
			From:      nodes.NodeSearch,
			Condition: CondSelectWorkflow,
			Targets:   []string{nodes.NodeAudio, nodes.NodeConversation},
		},
		{
			From:      nodes.NodeConversation,
			Condition: CondShouldSendProjectCard,
			Targets:   []string{nodes.NodeProjectCard, nodes.NodeContinueConversation},
		},
		{
			From:      nodes.NodeContinueConversation,
			Condition: CondShouldSummarize,
			Targets:   []string{nodes.NodeSummarize, compose.END},
		},
		{
			From:      nodes.NodeProjectCard,
			Condition: CondShouldSummarize,
			Targets:   []string{nodes.NodeSummarize, compose.END},
		},
		{
			From:      nodes.NodeAudio,
			Condition: CondShouldSummarize,
			Targets:   []string{nodes.NodeSummarize, compose.END},
		},
	},
}

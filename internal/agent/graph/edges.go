package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/avaestate/ava-agent/internal/agent/graph/llm"
	"github.com/avaestate/ava-agent/internal/agent/graph/nodes"
	"github.com/avaestate/ava-agent/internal/agent/graph/parsers"
	"github.com/avaestate/ava-agent/internal/agent/graph/prompts"
	agentmodel "github.com/avaestate/ava-agent/internal/agent/model"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// SelectWorkflow picks the reply generator chosen by the router.
func SelectWorkflow(s *agentmodel.ConversationState) string {
	if s.Workflow == agentmodel.WorkflowAudio {
		return nodes.NodeAudio
	}
	return nodes.NodeConversation
}

// ShouldSummarize returns the summarization check for a message trigger.
func ShouldSummarize(trigger int) func(*agentmodel.ConversationState) string {
	return func(s *agentmodel.ConversationState) string {
		if len(s.Messages) > trigger {
			return nodes.NodeSummarize
		}
		return compose.END
	}
}

// CardDecider configures ShouldSendProjectCard.
type CardDecider struct {
	Model      model.BaseChatModel
	Threshold  float64
	RecentSize int
}

// ShouldSendProjectCard asks the classifier whether the latest user message
// pins down exactly one project from the latest search results. It records
// the chosen project in the state. Any failure continues the conversation.
func ShouldSendProjectCard(d CardDecider) func(context.Context, *agentmodel.ConversationState) string {
	return func(ctx context.Context, s *agentmodel.ConversationState) string {
		id, name, err := decideCard(ctx, d, s)
		if err != nil {
			logx.Warn().Err(err).
				Str("conversation_id", s.ThreadID).
				Msg("card decision failed, continuing conversation")
			return nodes.NodeContinueConversation
		}
		if id == 0 {
			return nodes.NodeContinueConversation
		}
		s.Apply(agentmodel.Update{ProjectID: agentmodel.Ptr(id), ProjectName: agentmodel.Ptr(name)})
		logx.Info().
			Str("conversation_id", s.ThreadID).
			Int("project_id", id).
			Str("project_name", name).
			Msg("sending project card")
		return nodes.NodeProjectCard
	}
}

func decideCard(ctx context.Context, d CardDecider, s *agentmodel.ConversationState) (int, string, error) {
	if len(s.Cards) > 0 {
		return 0, "", nil
	}
	turn, hasTurn := agentmodel.TurnFrom(ctx)
	if hasTurn && len(turn.Cards()) > 0 {
		return 0, "", nil
	}
	if strings.TrimSpace(s.APIInfo) == "" || strings.HasPrefix(s.APIInfo, "Error") {
		return 0, "", nil
	}
	user, ok := s.LastUserMessage()
	if !ok {
		return 0, "", nil
	}
	if d.Model == nil {
		return 0, "", fmt.Errorf("card decider model is nil")
	}

	var recent []string
	for _, m := range agentmodel.Tail(s.Messages, d.RecentSize) {
		recent = append(recent, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	if s.PendingReply != "" {
		recent = append(recent, fmt.Sprintf("%s: %s", agentmodel.RoleAssistant, s.PendingReply))
	}
	prompt, err := prompts.RenderCardDecision(ctx, user.Content, recent, s.APIInfo)
	if err != nil {
		return 0, "", err
	}
	out, err := llm.Text(ctx, "card_decider", d.Model, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return 0, "", err
	}
	decision, err := parsers.ParseCardDecision(out)
	if err != nil {
		return 0, "", err
	}
	if !decision.SendCard || decision.Confidence < d.Threshold {
		return 0, "", nil
	}
	if !knownProject(s, turn, hasTurn, decision.ProjectID) {
		return 0, "", fmt.Errorf("project %d is not in the latest search results", decision.ProjectID)
	}
	return decision.ProjectID, decision.ProjectName, nil
}

// knownProject accepts only ids listed by the latest search, either in this
// turn's ledger or in the persisted results.
func knownProject(s *agentmodel.ConversationState, turn *agentmodel.Turn, hasTurn bool, id int) bool {
	if hasTurn && turn.KnowsProject(id) {
		return true
	}
	for _, needle := range []string{
		fmt.Sprintf("(Project ID: %d)", id),
		fmt.Sprintf("\"projectId\": %d,", id),
		fmt.Sprintf("\"projectId\": %d\n", id),
	} {
		if strings.Contains(s.APIInfo, needle) {
			return true
		}
	}
	return false
}

package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/avaestate/ava-agent/internal/agent/graph/llm"
	"github.com/avaestate/ava-agent/internal/agent/graph/parsers"
	"github.com/avaestate/ava-agent/internal/agent/graph/prompts"
	"github.com/avaestate/ava-agent/internal/agent/graph/tools"
	"github.com/avaestate/ava-agent/internal/agent/model"
	errx "github.com/avaestate/ava-agent/internal/core/error"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// NewSearchStep decides whether the turn needs catalogue data. With the agent
// strategy the decision is left to the tool loop in the conversation step.
// With the single-shot strategy the step extracts a query, calls the search
// API and appends the formatted results as a search context message.
func NewSearchStep(d *Deps) Step {
	return Step{
		Name: NodeSearch,
		Run: func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
			if d.agentStrategy() {
				return model.Update{NeedsAPI: model.Ptr(false)}, nil
			}
			return d.singleShotSearch(ctx, s)
		},
		Recover: Degrade(func(err error) model.Update {
			return model.Update{
				NeedsAPI: model.Ptr(false),
				APIInfo:  model.Ptr(fmt.Sprintf("Error processing search: %v", err)),
			}
		}),
	}
}

func (d *Deps) singleShotSearch(ctx context.Context, s *model.ConversationState) (model.Update, error) {
	last, ok := s.LastUserMessage()
	if !ok {
		return model.Update{NeedsAPI: model.Ptr(false)}, nil
	}
	recent := contents(model.Tail(s.Messages, d.Conversation.SearchMessagesToAnalyze))
	prompt, err := prompts.RenderSearchExtraction(ctx, last.Content, recent, s.MemoryContext, parsers.NoSearchSentinel)
	if err != nil {
		return model.Update{}, err
	}
	out, err := llm.Text(ctx, "search_extractor", d.Models.Extractor, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return model.Update{}, err
	}

	decision := parsers.ParseSearchDecision(out)
	logx.Debug().
		Str("conversation_id", s.ThreadID).
		Str("decision", decision.Kind.String()).
		Msg("search decision parsed")

	switch decision.Kind {
	case model.DecisionNoSearch:
		return model.Update{NeedsAPI: model.Ptr(false)}, nil
	case model.DecisionParseError:
		return model.Update{
			NeedsAPI: model.Ptr(false),
			APIInfo:  model.Ptr(fmt.Sprintf("Error: %v", decision.Err)),
		}, nil
	}

	if d.Search == nil {
		return model.Update{}, fmt.Errorf("search api is not configured")
	}
	q := decision.Query.Normalized()
	res, err := d.Search.Search(ctx, q)
	if err != nil {
		return model.Update{}, err
	}
	if res == nil || !res.Success {
		msg := "empty answer"
		if res != nil && res.Message != "" {
			msg = res.Message
		}
		return model.Update{}, fmt.Errorf("%w: %s", errx.ErrNoSearchResult, msg)
	}
	if turn, ok := model.TurnFrom(ctx); ok {
		turn.RecordSearch(q, res)
	}

	formatted := d.formatResults(ctx, q, res)
	searchMsg := model.UserMessage(formatted).WithKind(model.KindSearchContext)
	return model.Update{
		Append:    []model.Message{searchMsg},
		NeedsAPI:  model.Ptr(true),
		APIInfo:   model.Ptr(tools.FormatSearchResults(res, q)),
		APIParams: &q,
	}, nil
}

// formatResults asks the formatter model for a natural-language rendition
// and falls back to the deterministic formatter.
func (d *Deps) formatResults(ctx context.Context, q model.SearchQuery, res *model.SearchResult) string {
	fallback := tools.FormatSearchResults(res, q)
	if d.Models.Formatter == nil {
		return fallback
	}
	prompt, err := prompts.RenderSearchFormatting(ctx, q.Label(), string(res.RawJSON()))
	if err != nil {
		return fallback
	}
	out, err := llm.Text(ctx, "search_formatter", d.Models.Formatter, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil || strings.TrimSpace(out) == "" {
		logx.Warn().Err(err).Msg("search formatter failed, using plain formatting")
		return fallback
	}
	return strings.TrimSpace(out)
}

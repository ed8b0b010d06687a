package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/avaestate/ava-agent/internal/agent/graph/tools"
	"github.com/avaestate/ava-agent/internal/agent/model"
)

var (
	//go:embed template/character_card.txt
	characterCardPrompt string
	//go:embed template/router.txt
	routerPrompt string
	//go:embed template/search_extraction.txt
	searchExtractionPrompt string
	//go:embed template/search_formatting.txt
	searchFormattingPrompt string
	//go:embed template/card_decision.txt
	cardDecisionPrompt string
	//go:embed template/memory_analysis.txt
	memoryAnalysisPrompt string
	//go:embed template/summary_create.txt
	summaryCreatePrompt string
	//go:embed template/summary_extend.txt
	summaryExtendPrompt string
)

// render formats a Go template through the Eino prompt component so every
// render triggers prompt callbacks.
func render(ctx context.Context, name, tpl string, vars map[string]any) (string, error) {
	msgs, err := prompt.FromMessages(schema.GoTemplate, schema.SystemMessage(tpl)).Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%s prompt render: empty result", name)
	}
	return msgs[0].Content, nil
}

// CharacterVars are the per-turn inputs of the character card.
type CharacterVars struct {
	CurrentActivity string
	ApplyActivity   bool
	MemoryContext   string
	Summary         string
	ToolsEnabled    bool
}

// RenderCharacterCard renders the system prompt used by every reply generator.
func RenderCharacterCard(ctx context.Context, cfg model.PromptConfig, v CharacterVars) (string, error) {
	return render(ctx, "character card", characterCardPrompt, map[string]any{
		"CharacterName":   cfg.CharacterName,
		"BusinessName":    cfg.BusinessName,
		"CurrentActivity": v.CurrentActivity,
		"ApplyActivity":   v.ApplyActivity,
		"MemoryContext":   v.MemoryContext,
		"Summary":         v.Summary,
		"ToolsEnabled":    v.ToolsEnabled,
		"SearchTool":      tools.ToolSearchProjects,
		"ProjectCardTool": tools.ToolSendProjectCard,
		"UnitCardTool":    tools.ToolSendUnitCard,
	})
}

func RenderRouter(ctx context.Context, cfg model.PromptConfig) (string, error) {
	return render(ctx, "router", routerPrompt, map[string]any{
		"CharacterName": cfg.CharacterName,
	})
}

// RenderSearchExtraction builds the single-shot prompt that either returns
// the no-search sentinel or a structured query.
func RenderSearchExtraction(ctx context.Context, query string, recent []string, memoryContext, sentinel string) (string, error) {
	return render(ctx, "search extraction", searchExtractionPrompt, map[string]any{
		"Query":         query,
		"Recent":        recent,
		"MemoryContext": memoryContext,
		"Sentinel":      sentinel,
	})
}

func RenderSearchFormatting(ctx context.Context, label string, resultsJSON string) (string, error) {
	return render(ctx, "search formatting", searchFormattingPrompt, map[string]any{
		"Label":       label,
		"ResultsJSON": resultsJSON,
	})
}

func RenderCardDecision(ctx context.Context, userMessage string, recent []string, searchResults string) (string, error) {
	return render(ctx, "card decision", cardDecisionPrompt, map[string]any{
		"UserMessage":   userMessage,
		"Recent":        recent,
		"SearchResults": searchResults,
	})
}

func RenderMemoryAnalysis(ctx context.Context, message string) (string, error) {
	return render(ctx, "memory analysis", memoryAnalysisPrompt, map[string]any{
		"Message": message,
	})
}

// RenderSummaryInstruction asks to extend the existing summary, or to create
// one when there is none yet.
func RenderSummaryInstruction(ctx context.Context, cfg model.PromptConfig, summary string) (string, error) {
	if summary == "" {
		return render(ctx, "summary", summaryCreatePrompt, map[string]any{
			"CharacterName": cfg.CharacterName,
		})
	}
	return render(ctx, "summary", summaryExtendPrompt, map[string]any{
		"CharacterName": cfg.CharacterName,
		"Summary":       summary,
	})
}

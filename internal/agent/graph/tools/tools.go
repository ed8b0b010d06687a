package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/avaestate/ava-agent/internal/agent/model"
)

// Tool names exposed to the response model.
const (
	ToolSearchProjects  = "search_projects"
	ToolSendProjectCard = "send_project_card"
	ToolSendUnitCard    = "send_unit_card"
)

// Deps are the collaborators the tools call into.
type Deps struct {
	Search model.SearchAPI
	Cards  model.CardSender
}

// GetQueryTools returns the tools bound to the response model in the agent
// strategy.
func GetQueryTools(deps Deps) []tool.BaseTool {
	return []tool.BaseTool{
		createSearchProjectsTool(deps.Search),
		createSendProjectCardTool(deps.Cards),
		createSendUnitCardTool(deps.Cards),
	}
}

// GetToolInfos collects the schema of every tool for model binding.
func GetToolInfos(ctx context.Context, tools []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

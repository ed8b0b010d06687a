package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/avaestate/ava-agent/internal/agent/model"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

type SendProjectCardInput struct {
	ProjectID   int    `json:"project_id"`
	ProjectName string `json:"project_name"`
}

type SendUnitCardInput struct {
	UnitID   string `json:"unit_id"`
	UnitName string `json:"unit_name"`
}

func createSendProjectCardTool(cards model.CardSender) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSendProjectCard,
			Desc: "Send the WhatsApp card of ONE real-estate project. Use it when the user asks for details " +
				"about one specific project. The project_id must be copied from a search_projects result of this turn.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"project_id": {
					Type:     schema.Integer,
					Desc:     "Numeric Project ID exactly as shown in the search results.",
					Required: true,
				},
				"project_name": {
					Type:     schema.String,
					Desc:     "Project name, used to confirm to the user.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *SendProjectCardInput) (string, error) {
			turn, ok := model.TurnFrom(ctx)
			if !ok {
				return "Error: no active conversation for this card.", nil
			}
			if !turn.KnowsProject(in.ProjectID) {
				logx.Warn().
					Str("conversation_id", turn.ThreadID).
					Int("project_id", in.ProjectID).
					Msg("rejected project card for id not present in search results")
				return rejection("project_id", strconv.Itoa(in.ProjectID)), nil
			}

			res, err := cards.SendProjectCard(ctx, in.ProjectID, turn.ThreadID)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", turn.ThreadID).Int("project_id", in.ProjectID).Msg("send project card failed")
				return fmt.Sprintf("Error: the card for project %s could not be sent: %v", in.ProjectName, err), nil
			}
			if !res.Success {
				return fmt.Sprintf("Error: there was a problem sending the card for project %s: %s", in.ProjectName, res.Message), nil
			}

			turn.AddCard(model.CardReceipt{Kind: "project", ID: strconv.Itoa(in.ProjectID), Name: in.ProjectName, Message: res.Message})
			return fmt.Sprintf("The card for project %s was sent successfully.", in.ProjectName), nil
		},
	)
}

func createSendUnitCardTool(cards model.CardSender) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSendUnitCard,
			Desc: "Send the WhatsApp card of ONE unit inside a project. Unit IDs are UUIDs " +
				"(e.g. 46831b47-c4e5-451d-8b74-6058ebbf639b) and must be copied from a search_projects result of this turn.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"unit_id": {
					Type:     schema.String,
					Desc:     "Unit ID (UUID) exactly as shown in the search results.",
					Required: true,
				},
				"unit_name": {
					Type:     schema.String,
					Desc:     "Unit name, used to confirm to the user.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *SendUnitCardInput) (string, error) {
			turn, ok := model.TurnFrom(ctx)
			if !ok {
				return "Error: no active conversation for this card.", nil
			}
			id, err := uuid.Parse(strings.TrimSpace(in.UnitID))
			if err != nil || !turn.KnowsUnit(id.String()) {
				logx.Warn().
					Str("conversation_id", turn.ThreadID).
					Str("unit_id", in.UnitID).
					Msg("rejected unit card for id not present in search results")
				return rejection("unit_id", in.UnitID), nil
			}

			res, err := cards.SendUnitCard(ctx, id.String(), turn.ThreadID)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", turn.ThreadID).Str("unit_id", in.UnitID).Msg("send unit card failed")
				return fmt.Sprintf("Error: the card for unit %s could not be sent: %v", in.UnitName, err), nil
			}
			if !res.Success {
				return fmt.Sprintf("Error: there was a problem sending the card for unit %s: %s", in.UnitName, res.Message), nil
			}

			turn.AddCard(model.CardReceipt{Kind: "unit", ID: id.String(), Name: in.UnitName, Message: res.Message})
			return fmt.Sprintf("The card for unit %s was sent successfully.", in.UnitName), nil
		},
	)
}

func rejection(field, value string) string {
	return fmt.Sprintf(
		`{"error":"unknown_identifier","field":%q,"value":%q,"note":"use an identifier copied verbatim from the latest %s result"}`,
		field, value, ToolSearchProjects,
	)
}

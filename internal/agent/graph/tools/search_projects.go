package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/avaestate/ava-agent/internal/agent/model"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// ===================================
// Search Projects Tool
// ===================================

type SearchProjectsInput struct {
	NameQuery      *string  `json:"name_query,omitempty"`
	SemanticQuery  *string  `json:"semantic_query,omitempty"`
	SearchIn       []string `json:"search_in,omitempty"`
	Bedrooms       *int     `json:"bedrooms,omitempty"`
	MinPrice       *int     `json:"min_price,omitempty"`
	MaxPrice       *int     `json:"max_price,omitempty"`
	PropertyType   *string  `json:"property_type,omitempty"`
	FlexibleSearch *bool    `json:"flexible_search,omitempty"`
	UseNameGuesser *bool    `json:"use_name_guesser,omitempty"`
}

// Query converts tool arguments into a normalized structured query. The
// tool searches projects unless told otherwise.
func (in *SearchProjectsInput) Query() model.SearchQuery {
	q := model.SearchQuery{
		NameQuery:       in.NameQuery,
		SemanticQuery:   in.SemanticQuery,
		FlexibleSearch:  true,
		IncludeExamples: true,
		UseNameGuesser:  true,
	}
	for _, s := range in.SearchIn {
		q.SearchIn = append(q.SearchIn, model.SearchTarget(s))
	}
	if len(q.SearchIn) == 0 {
		q.SearchIn = []model.SearchTarget{model.SearchProjects}
	}
	if in.Bedrooms != nil || in.MinPrice != nil || in.MaxPrice != nil || in.PropertyType != nil {
		q.Params = &model.SearchParams{
			Bedrooms:     in.Bedrooms,
			MinPrice:     in.MinPrice,
			MaxPrice:     in.MaxPrice,
			PropertyType: in.PropertyType,
		}
	}
	if in.FlexibleSearch != nil {
		q.FlexibleSearch = *in.FlexibleSearch
	}
	if in.UseNameGuesser != nil {
		q.UseNameGuesser = *in.UseNameGuesser
	}
	return q.Normalized()
}

func createSearchProjectsTool(api model.SearchAPI) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSearchProjects,
			Desc: "Search the real-estate catalogue. Use it when the user asks about available projects, " +
				"locations, names, prices, bedrooms or wants to compare options. The result lists Project IDs " +
				"and Unit IDs that are the ONLY identifiers you may pass to the card tools.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"name_query": {
					Type: schema.String,
					Desc: "Exact project or developer name to look for (e.g. Torre Platinum).",
				},
				"semantic_query": {
					Type: schema.String,
					Desc: "Natural language description of what the user wants (e.g. apartments near the beach in Miami).",
				},
				"search_in": {
					Type:     schema.Array,
					Desc:     "Where to search: projects, zones, developers, pois. Defaults to projects.",
					ElemInfo: &schema.ParameterInfo{Type: schema.String, Enum: []string{"projects", "zones", "developers", "pois"}},
				},
				"bedrooms":      {Type: schema.Integer, Desc: "Number of bedrooms."},
				"min_price":     {Type: schema.Integer, Desc: "Minimum price in USD."},
				"max_price":     {Type: schema.Integer, Desc: "Maximum price in USD."},
				"property_type": {Type: schema.String, Desc: "Property type such as apartment or house."},
				"flexible_search": {
					Type: schema.Boolean,
					Desc: "Allow the API to relax filters when nothing matches exactly. Defaults to true.",
				},
				"use_name_guesser": {
					Type: schema.Boolean,
					Desc: "Let the API resolve approximate names. Defaults to true.",
				},
			}),
		},
		func(ctx context.Context, in *SearchProjectsInput) (string, error) {
			q := in.Query()
			threadID := ""
			turn, hasTurn := model.TurnFrom(ctx)
			if hasTurn {
				threadID = turn.ThreadID
			}

			res, err := api.Search(ctx, q)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", threadID).Str("tool", ToolSearchProjects).Msg("search failed")
				return fmt.Sprintf("Error in search: %v", err), nil
			}
			if res == nil || !res.Success {
				msg := "unknown error"
				if res != nil && res.Message != "" {
					msg = res.Message
				}
				return fmt.Sprintf("Error in search: %s", msg), nil
			}

			if hasTurn {
				turn.RecordSearch(q, res)
			}
			logx.Debug().
				Str("conversation_id", threadID).
				Ints("project_ids", res.ProjectIDs()).
				Msg("search_projects completed")
			return FormatSearchResults(res, q), nil
		},
	)
}

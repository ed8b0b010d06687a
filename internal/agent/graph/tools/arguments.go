package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/avaestate/ava-agent/internal/agent/model"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// SanitizeArguments coerces loosely typed tool arguments so they decode into
// the tool input structs. It never fails: unparseable input is returned as is
// and the tool reports the problem itself.
func SanitizeArguments(_ context.Context, name, arguments string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		return arguments, nil
	}

	switch name {
	case ToolSearchProjects:
		for _, k := range []string{"name_query", "semantic_query", "property_type"} {
			coerceString(m, k)
		}
		for _, k := range []string{"bedrooms", "min_price", "max_price"} {
			coerceInt(m, k)
		}
		for _, k := range []string{"flexible_search", "use_name_guesser"} {
			coerceBool(m, k)
		}
		switch v := m["search_in"].(type) {
		case string:
			m["search_in"] = []string{strings.TrimSpace(v)}
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, strings.TrimSpace(s))
				}
			}
			m["search_in"] = out
		case nil:
		default:
			delete(m, "search_in")
		}
	case ToolSendProjectCard:
		coerceInt(m, "project_id")
		coerceString(m, "project_name")
	case ToolSendUnitCard:
		coerceString(m, "unit_id")
		coerceString(m, "unit_name")
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments, nil
	}
	return string(b), nil
}

// HandleUnknownTool answers hallucinated tool names with a structured error
// the model can recover from.
func HandleUnknownTool(ctx context.Context, name, input string) (string, error) {
	threadID := ""
	if turn, ok := model.TurnFrom(ctx); ok {
		threadID = turn.ThreadID
	}
	logx.Warn().
		Str("conversation_id", threadID).
		Str("tool_name", name).
		Str("arguments", input).
		Msg("Unknown or invalid tool call; returning fallback result")
	return fmt.Sprintf(`{"error":"unknown_tool","name":%q,"available":[%q,%q,%q]}`,
		name, ToolSearchProjects, ToolSendProjectCard, ToolSendUnitCard), nil
}

func coerceString(m map[string]any, key string) {
	v, ok := m[key]
	if !ok {
		return
	}
	switch vv := v.(type) {
	case nil:
		delete(m, key)
	case string:
		if s := strings.TrimSpace(vv); s != "" {
			m[key] = s
		} else {
			delete(m, key)
		}
	case float64, bool:
		m[key] = fmt.Sprint(vv)
	default:
		delete(m, key)
	}
}

func coerceInt(m map[string]any, key string) {
	v, ok := m[key]
	if !ok {
		return
	}
	if n := model.AsInt(v); n != nil {
		m[key] = *n
		return
	}
	delete(m, key)
}

func coerceBool(m map[string]any, key string) {
	v, ok := m[key]
	if !ok {
		return
	}
	switch vv := v.(type) {
	case bool:
	case string:
		switch strings.ToLower(strings.TrimSpace(vv)) {
		case "true", "yes", "1":
			m[key] = true
		case "false", "no", "0":
			m[key] = false
		default:
			delete(m, key)
		}
	default:
		delete(m, key)
	}
}

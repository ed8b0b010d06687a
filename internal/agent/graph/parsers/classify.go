package parsers

import (
	"fmt"
	"strings"

	"github.com/avaestate/ava-agent/internal/agent/model"
)

// ParseRouterLabel extracts the workflow label from the router output. It
// accepts {"response_type": "..."} or a bare label. The second return value
// is false when the label had to be defaulted to conversation.
func ParseRouterLabel(content string) (string, bool) {
	label := ""
	if obj, err := FindJSONObject(content); err == nil {
		for _, key := range []string{"response_type", "workflow", "type"} {
			if v, ok := obj[key].(string); ok {
				label = v
				break
			}
		}
	} else {
		label = stripFences(content)
	}

	switch strings.ToLower(strings.Trim(strings.TrimSpace(label), `"'.`)) {
	case model.WorkflowAudio:
		return model.WorkflowAudio, true
	case model.WorkflowConversation:
		return model.WorkflowConversation, true
	default:
		return model.WorkflowConversation, false
	}
}

// CardDecision is the classification behind should_send_project_card.
type CardDecision struct {
	SendCard    bool
	ProjectID   int
	ProjectName string
	Confidence  float64
}

// ParseCardDecision decodes {"send_card", "project_id", "project_name",
// "confidence"}. A project id that is not a positive integer is an error.
func ParseCardDecision(content string) (CardDecision, error) {
	obj, err := FindJSONObject(content)
	if err != nil {
		return CardDecision{}, err
	}

	var d CardDecision
	switch v := obj["send_card"].(type) {
	case bool:
		d.SendCard = v
	case string:
		d.SendCard = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	if !d.SendCard {
		return d, nil
	}

	id := model.AsInt(obj["project_id"])
	if id == nil || *id <= 0 {
		return CardDecision{}, fmt.Errorf("project_id %v is not a positive integer", obj["project_id"])
	}
	d.ProjectID = *id
	if name, ok := obj["project_name"].(string); ok {
		d.ProjectName = strings.TrimSpace(name)
	}
	switch c := obj["confidence"].(type) {
	case float64:
		d.Confidence = c
	case string:
		_, _ = fmt.Sscan(strings.TrimSpace(c), &d.Confidence)
	}
	return d, nil
}

// MemoryAnalysis is the answer of the memory-analysis prompt.
type MemoryAnalysis struct {
	IsImportant     bool
	FormattedMemory string
}

// ParseMemoryAnalysis decodes {"is_important", "formatted_memory"}.
func ParseMemoryAnalysis(content string) (MemoryAnalysis, error) {
	obj, err := FindJSONObject(content)
	if err != nil {
		return MemoryAnalysis{}, err
	}
	var a MemoryAnalysis
	if v, ok := obj["is_important"].(bool); ok {
		a.IsImportant = v
	}
	if v, ok := obj["formatted_memory"].(string); ok {
		a.FormattedMemory = strings.TrimSpace(v)
	}
	if a.IsImportant && a.FormattedMemory == "" {
		a.IsImportant = false
	}
	return a, nil
}

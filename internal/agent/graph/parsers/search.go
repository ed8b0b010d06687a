package parsers

import (
	"fmt"
	"strings"

	"github.com/avaestate/ava-agent/internal/agent/model"
)

// NoSearchSentinel is the literal the extraction prompt asks for when the
// user turn needs no catalogue lookup.
const NoSearchSentinel = "NO_SEARCH_NEEDED"

// ParseSearchDecision decodes the search-extraction output exactly once. The
// sentinel wins over any JSON in the same answer; otherwise the first JSON
// object becomes the query and anything else is a parse error.
func ParseSearchDecision(content string) model.SearchDecision {
	d := model.SearchDecision{Raw: content}

	if strings.Contains(strings.ToUpper(content), NoSearchSentinel) {
		d.Kind = model.DecisionNoSearch
		return d
	}
	if strings.TrimSpace(content) == "" {
		d.Kind = model.DecisionParseError
		d.Err = fmt.Errorf("empty extraction output")
		return d
	}

	obj, err := FindJSONObject(content)
	if err != nil {
		d.Kind = model.DecisionParseError
		d.Err = fmt.Errorf("invalid parameter format: %w", err)
		return d
	}

	d.Kind = model.DecisionQuery
	d.Query = model.DecodeSearchQuery(obj)
	return d
}

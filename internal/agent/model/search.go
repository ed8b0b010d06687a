package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SearchTarget is one entity family the search API can look into.
type SearchTarget string

const (
	SearchZones      SearchTarget = "zones"
	SearchProjects   SearchTarget = "projects"
	SearchDevelopers SearchTarget = "developers"
	SearchPOIs       SearchTarget = "pois"
)

// Valid reports whether t is a target the API understands.
func (t SearchTarget) Valid() bool {
	switch t {
	case SearchZones, SearchProjects, SearchDevelopers, SearchPOIs:
		return true
	}
	return false
}

// SearchParams are the optional filters of a structured query.
type SearchParams struct {
	Bedrooms     *int    `json:"bedrooms,omitempty" msgpack:"bedrooms,omitempty"`
	MinPrice     *int    `json:"minPrice,omitempty" msgpack:"minPrice,omitempty"`
	MaxPrice     *int    `json:"maxPrice,omitempty" msgpack:"maxPrice,omitempty"`
	PropertyType *string `json:"propertyType,omitempty" msgpack:"propertyType,omitempty"`
}

func (p *SearchParams) empty() bool {
	return p == nil || (p.Bedrooms == nil && p.MinPrice == nil && p.MaxPrice == nil && p.PropertyType == nil)
}

// SearchQuery is the structured query sent to the search API. The same
// shape serves the tool loop and the single-shot search step.
type SearchQuery struct {
	NameQuery       *string        `json:"nameQuery,omitempty" msgpack:"nameQuery,omitempty"`
	SemanticQuery   *string        `json:"semanticQuery,omitempty" msgpack:"semanticQuery,omitempty"`
	SearchIn        []SearchTarget `json:"searchIn" msgpack:"searchIn"`
	Params          *SearchParams  `json:"params,omitempty" msgpack:"params,omitempty"`
	FlexibleSearch  bool           `json:"flexibleSearch" msgpack:"flexibleSearch"`
	IncludeExamples bool           `json:"includeExamples" msgpack:"includeExamples"`
	UseNameGuesser  bool           `json:"useNameGuesser" msgpack:"useNameGuesser"`
}

// Normalized returns a cleaned copy of q: strings trimmed, blanks dropped,
// unknown or repeated search targets removed (zones when nothing is left),
// negative filters dropped and an empty params block removed. Calling it on
// its own output returns an equal value.
func (q SearchQuery) Normalized() SearchQuery {
	out := SearchQuery{
		NameQuery:       trimmedOrNil(q.NameQuery),
		SemanticQuery:   trimmedOrNil(q.SemanticQuery),
		FlexibleSearch:  q.FlexibleSearch,
		IncludeExamples: q.IncludeExamples,
		UseNameGuesser:  q.UseNameGuesser,
	}

	seen := make(map[SearchTarget]bool, len(q.SearchIn))
	for _, t := range q.SearchIn {
		t = SearchTarget(strings.ToLower(strings.TrimSpace(string(t))))
		if !t.Valid() || seen[t] {
			continue
		}
		seen[t] = true
		out.SearchIn = append(out.SearchIn, t)
	}
	if len(out.SearchIn) == 0 {
		out.SearchIn = []SearchTarget{SearchZones}
	}

	if q.Params != nil {
		p := &SearchParams{
			Bedrooms:     nonNegative(q.Params.Bedrooms),
			MinPrice:     nonNegative(q.Params.MinPrice),
			MaxPrice:     nonNegative(q.Params.MaxPrice),
			PropertyType: trimmedOrNil(q.Params.PropertyType),
		}
		if !p.empty() {
			out.Params = p
		}
	}
	return out
}

// Label is a short human description of what was searched for.
func (q SearchQuery) Label() string {
	switch {
	case q.NameQuery != nil && *q.NameQuery != "":
		return *q.NameQuery
	case q.SemanticQuery != nil && *q.SemanticQuery != "":
		return *q.SemanticQuery
	default:
		return "Real estate search"
	}
}

// DecodeSearchQuery builds a query from loosely typed model output. Numbers
// may arrive as JSON numbers or numeric strings; anything that does not parse
// is dropped. The three flags default to true.
func DecodeSearchQuery(raw map[string]any) SearchQuery {
	q := SearchQuery{
		NameQuery:       asString(raw["nameQuery"]),
		SemanticQuery:   asString(raw["semanticQuery"]),
		SearchIn:        asTargets(raw["searchIn"]),
		FlexibleSearch:  asBool(raw["flexibleSearch"], true),
		IncludeExamples: asBool(raw["includeExamples"], true),
		UseNameGuesser:  asBool(raw["useNameGuesser"], true),
	}
	if pm, ok := raw["params"].(map[string]any); ok {
		q.Params = &SearchParams{
			Bedrooms:     AsInt(pm["bedrooms"]),
			MinPrice:     AsInt(pm["minPrice"]),
			MaxPrice:     AsInt(pm["maxPrice"]),
			PropertyType: asString(pm["propertyType"]),
		}
	}
	return q
}

// AsInt coerces a decoded JSON value into an int. It returns nil for nulls,
// non-numeric strings, fractional strings and non-finite numbers.
func AsInt(v any) *int {
	switch n := v.(type) {
	case nil:
		return nil
	case int:
		return Ptr(n)
	case int64:
		return Ptr(int(n))
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		return Ptr(int(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return Ptr(int(i))
		}
		if f, err := n.Float64(); err == nil {
			return AsInt(f)
		}
		return nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return nil
		}
		return Ptr(i)
	default:
		return nil
	}
}

func asString(v any) *string {
	switch s := v.(type) {
	case nil:
		return nil
	case string:
		return Ptr(s)
	case float64, int, bool:
		return Ptr(fmt.Sprint(s))
	default:
		return nil
	}
}

func asBool(v any, def bool) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	case float64:
		return b != 0
	}
	return def
}

func asTargets(v any) []SearchTarget {
	switch t := v.(type) {
	case string:
		return []SearchTarget{SearchTarget(t)}
	case []string:
		out := make([]SearchTarget, 0, len(t))
		for _, s := range t {
			out = append(out, SearchTarget(s))
		}
		return out
	case []any:
		out := make([]SearchTarget, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, SearchTarget(s))
			}
		}
		return out
	default:
		return nil
	}
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func nonNegative(n *int) *int {
	if n == nil || *n < 0 {
		return nil
	}
	return Ptr(*n)
}

// SearchResult is the payload returned by the search API.
type SearchResult struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message,omitempty"`
	Projects ProjectsPayload `json:"projects"`

	// Raw holds the exact bytes received so formatters can echo them back.
	Raw json.RawMessage `json:"-"`
}

type ProjectsPayload struct {
	Regions []Region `json:"regions"`
}

type Region struct {
	RegionName         string           `json:"regionName"`
	Counts             RegionCounts     `json:"counts"`
	ExactMatchExamples []ProjectExample `json:"exactMatchExamples"`
}

type RegionCounts struct {
	TotalAssociatedProjects int `json:"totalAssociatedProjectsCount"`
	ProjectsMatchingExactly int `json:"projectsMatchingExactParamsCount"`
}

type ProjectExample struct {
	ProjectID                int           `json:"projectId"`
	ProjectName              string        `json:"projectName"`
	UnitsMatchingParamsCount int           `json:"unitsMatchingParamsCount"`
	UnitsExample             []UnitExample `json:"unitsExample"`
}

type UnitExample struct {
	UnitID   string  `json:"unitId"`
	UnitName string  `json:"unitName"`
	Bedrooms int     `json:"bedrooms"`
	Price    float64 `json:"price"`
	UnitType string  `json:"unitType"`
}

// ProjectIDs lists every project id present in the result, in order.
func (r *SearchResult) ProjectIDs() []int {
	if r == nil {
		return nil
	}
	var ids []int
	for _, region := range r.Projects.Regions {
		for _, p := range region.ExactMatchExamples {
			ids = append(ids, p.ProjectID)
		}
	}
	return ids
}

// UnitIDs lists every unit id present in the result, in order.
func (r *SearchResult) UnitIDs() []string {
	if r == nil {
		return nil
	}
	var ids []string
	for _, region := range r.Projects.Regions {
		for _, p := range region.ExactMatchExamples {
			for _, u := range p.UnitsExample {
				if u.UnitID != "" {
					ids = append(ids, u.UnitID)
				}
			}
		}
	}
	return ids
}

// RawJSON returns the received payload, or a re-encoding when the result was
// built in memory.
func (r *SearchResult) RawJSON() []byte {
	if r == nil {
		return nil
	}
	if len(r.Raw) > 0 {
		return r.Raw
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return b
}

// DecisionKind tags the outcome of the search-parameter extraction call.
type DecisionKind int

const (
	DecisionNoSearch DecisionKind = iota
	DecisionQuery
	DecisionParseError
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionNoSearch:
		return "no_search"
	case DecisionQuery:
		return "query"
	case DecisionParseError:
		return "parse_error"
	default:
		return "unknown"
	}
}

// SearchDecision is decoded once from the extraction output; callers switch
// on Kind and never inspect Raw for sentinels.
type SearchDecision struct {
	Kind  DecisionKind
	Query SearchQuery
	Err   error
	Raw   string
}

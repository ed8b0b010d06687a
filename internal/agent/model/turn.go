package model

import (
	"context"
	"strings"
	"sync"
)

type turnKey struct{}

// Turn carries per-turn context that tools need but the model must not
// supply: the thread id, the identifiers returned by the latest search, the
// cards already sent, and the running model cost.
type Turn struct {
	ThreadID string

	mu       sync.Mutex
	searched bool
	query    SearchQuery
	result   *SearchResult
	projects map[int]string
	units    map[string]string
	cards    []CardReceipt
	costUSD  float64
	path     []string
}

// NewTurn creates the context object for one traversal of the graph.
func NewTurn(threadID string) *Turn {
	return &Turn{
		ThreadID: threadID,
		projects: map[int]string{},
		units:    map[string]string{},
	}
}

// WithTurn attaches t to ctx.
func WithTurn(ctx context.Context, t *Turn) context.Context {
	return context.WithValue(ctx, turnKey{}, t)
}

// TurnFrom returns the turn attached to ctx, if any.
func TurnFrom(ctx context.Context) (*Turn, bool) {
	t, ok := ctx.Value(turnKey{}).(*Turn)
	return t, ok && t != nil
}

// RecordSearch remembers q and r as the latest search of the turn and
// replaces the ledger with the identifiers found in r.
func (t *Turn) RecordSearch(q SearchQuery, r *SearchResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.searched = true
	t.query = q
	t.result = r
	t.projects = map[int]string{}
	t.units = map[string]string{}
	if r == nil {
		return
	}
	for _, region := range r.Projects.Regions {
		for _, p := range region.ExactMatchExamples {
			t.projects[p.ProjectID] = p.ProjectName
			for _, u := range p.UnitsExample {
				if u.UnitID != "" {
					t.units[strings.ToLower(u.UnitID)] = u.UnitName
				}
			}
		}
	}
}

// Searched reports whether search_projects ran during this turn.
func (t *Turn) Searched() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.searched
}

// LastSearch returns the latest query and result recorded this turn.
func (t *Turn) LastSearch() (SearchQuery, *SearchResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.query, t.result, t.searched
}

// KnowsProject reports whether id appeared in the latest search result.
func (t *Turn) KnowsProject(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.projects[id]
	return ok
}

// KnowsUnit reports whether id appeared in the latest search result.
func (t *Turn) KnowsUnit(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.units[strings.ToLower(strings.TrimSpace(id))]
	return ok
}

// AddCard records a card delivered by a tool.
func (t *Turn) AddCard(c CardReceipt) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cards = append(t.cards, c)
}

// Cards returns the cards delivered during this turn.
func (t *Turn) Cards() []CardReceipt {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]CardReceipt(nil), t.cards...)
}

// AddCost accumulates model cost in USD and returns the running total.
func (t *Turn) AddCost(usd float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.costUSD += usd
	return t.costUSD
}

// CostUSD returns the accumulated model cost.
func (t *Turn) CostUSD() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.costUSD
}

// Visit appends a node name to the traversal path.
func (t *Turn) Visit(node string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.path = append(t.path, node)
}

// Path returns the nodes executed so far, in order.
func (t *Turn) Path() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.path...)
}

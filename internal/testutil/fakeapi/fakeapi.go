// Package fakeapi provides in-memory search and card APIs for tests.
package fakeapi

import (
	"context"
	"strconv"
	"sync"

	"github.com/avaestate/ava-agent/internal/agent/model"
)

// MiamiUnitID is the unit listed in MiamiResult.
const MiamiUnitID = "3f0c8a52-7d0e-4b8a-9f39-2f4f4f1b7c11"

// MiamiResult is a one-region, one-project search result.
func MiamiResult() *model.SearchResult {
	return &model.SearchResult{
		Success: true,
		Projects: model.ProjectsPayload{Regions: []model.Region{{
			RegionName: "Miami",
			Counts:     model.RegionCounts{TotalAssociatedProjects: 12, ProjectsMatchingExactly: 4},
			ExactMatchExamples: []model.ProjectExample{{
				ProjectID:                395,
				ProjectName:              "Torre Platinum",
				UnitsMatchingParamsCount: 7,
				UnitsExample: []model.UnitExample{{
					UnitID: MiamiUnitID, UnitName: "A-1203", Bedrooms: 2, Price: 450000, UnitType: "apartment",
				}},
			}},
		}}},
	}
}

// Search answers every query with Result or Err.
type Search struct {
	Result *model.SearchResult
	Err    error

	mu      sync.Mutex
	queries []model.SearchQuery
}

func (s *Search) Search(_ context.Context, q model.SearchQuery) (*model.SearchResult, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Result == nil {
		return MiamiResult(), nil
	}
	return s.Result, nil
}

// Queries returns the queries received so far.
func (s *Search) Queries() []model.SearchQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SearchQuery(nil), s.queries...)
}

// Sent is one delivered card.
type Sent struct {
	Kind     string
	ID       string
	ThreadID string
}

// Cards records card deliveries. A nil Result means success.
type Cards struct {
	Result *model.CardResult
	Err    error

	mu   sync.Mutex
	sent []Sent
}

func (c *Cards) SendProjectCard(_ context.Context, projectID int, threadID string) (*model.CardResult, error) {
	return c.record(Sent{Kind: "project", ID: strconv.Itoa(projectID), ThreadID: threadID})
}

func (c *Cards) SendUnitCard(_ context.Context, unitID, threadID string) (*model.CardResult, error) {
	return c.record(Sent{Kind: "unit", ID: unitID, ThreadID: threadID})
}

func (c *Cards) record(s Sent) (*model.CardResult, error) {
	c.mu.Lock()
	c.sent = append(c.sent, s)
	c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	if c.Result == nil {
		return &model.CardResult{Success: true, Message: "sent"}, nil
	}
	return c.Result, nil
}

// Sent returns the deliveries so far.
func (c *Cards) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

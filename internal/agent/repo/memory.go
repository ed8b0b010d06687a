package repo

import (
	"context"
	"sync"

	"github.com/avaestate/ava-agent/internal/agent/model"
	errx "github.com/avaestate/ava-agent/internal/core/error"
)

// MemoryCheckpointStore is a map-backed store for tests and local runs.
// It hands out copies so callers never share state with the store.
type MemoryCheckpointStore struct {
	mu     sync.RWMutex
	states map[string]*model.ConversationState
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{states: map[string]*model.ConversationState{}}
}

func (m *MemoryCheckpointStore) Load(_ context.Context, threadID string) (*model.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[threadID]
	if !ok {
		return nil, nil
	}
	return persisted(s), nil
}

func (m *MemoryCheckpointStore) Save(_ context.Context, s *model.ConversationState) error {
	if s == nil || s.ThreadID == "" {
		return errx.ErrMissingThreadID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[s.ThreadID] = persisted(s)
	return nil
}

func (m *MemoryCheckpointStore) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, threadID)
	return nil
}

// persisted copies s without its per-turn fields, matching what the
// durable stores keep.
func persisted(s *model.ConversationState) *model.ConversationState {
	c := s.Clone()
	c.MemoryContext = ""
	c.PendingReply = ""
	c.AudioBuffer = nil
	c.AudioMIME = ""
	c.ImagePath = ""
	c.Cards = nil
	return c
}

var _ model.CheckpointStore = (*MemoryCheckpointStore)(nil)

package model

import (
	"time"
)

// Workflow labels chosen by the router, plus the card outcome recorded after
// a successful card delivery.
const (
	WorkflowConversation = "conversation"
	WorkflowAudio        = "audio"
	WorkflowProjectCard  = "project_card"
)

// CardReceipt records a card pushed to the user during the current turn.
type CardReceipt struct {
	Kind    string `json:"kind"` // "project" or "unit"
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message,omitempty"`
}

// ConversationState is threaded through every step of a turn and persisted
// between turns. Fields tagged `-` are per-turn artifacts and never reach
// the checkpoint store.
type ConversationState struct {
	ThreadID        string       `json:"thread_id" msgpack:"thread_id"`
	Messages        []Message    `json:"messages" msgpack:"messages"`
	Summary         string       `json:"summary,omitempty" msgpack:"summary,omitempty"`
	Workflow        string       `json:"workflow,omitempty" msgpack:"workflow,omitempty"`
	CurrentActivity string       `json:"current_activity,omitempty" msgpack:"current_activity,omitempty"`
	ApplyActivity   bool         `json:"apply_activity" msgpack:"apply_activity"`
	NeedsAPI        bool         `json:"needs_api" msgpack:"needs_api"`
	APIInfo         string       `json:"api_info,omitempty" msgpack:"api_info,omitempty"`
	APIParams       *SearchQuery `json:"api_params,omitempty" msgpack:"api_params,omitempty"`
	ProjectID       *int         `json:"project_id,omitempty" msgpack:"project_id,omitempty"`
	ProjectName     string       `json:"project_name,omitempty" msgpack:"project_name,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at" msgpack:"updated_at"`

	MemoryContext string        `json:"-" msgpack:"-"`
	PendingReply  string        `json:"-" msgpack:"-"`
	AudioBuffer   []byte        `json:"-" msgpack:"-"`
	AudioMIME     string        `json:"-" msgpack:"-"`
	ImagePath     string        `json:"-" msgpack:"-"`
	Cards         []CardReceipt `json:"-" msgpack:"-"`
}

// NewConversationState creates an empty state for a thread seen for the first time.
func NewConversationState(threadID string) *ConversationState {
	return &ConversationState{
		ThreadID: threadID,
		Messages: []Message{},
	}
}

// BeginTurn clears per-turn fields before a new traversal. APIInfo is kept so
// the card decision can still see the latest search results.
func (s *ConversationState) BeginTurn() {
	s.Workflow = ""
	s.NeedsAPI = false
	s.APIParams = nil
	s.ProjectID = nil
	s.ProjectName = ""
	s.MemoryContext = ""
	s.PendingReply = ""
	s.AudioBuffer = nil
	s.AudioMIME = ""
	s.ImagePath = ""
	s.Cards = nil
}

// LastMessage returns the newest message, if any.
func (s *ConversationState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastUserMessage returns the newest message authored by the user, skipping
// synthetic search context.
func (s *ConversationState) LastUserMessage() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == RoleUser && m.Kind == KindChat {
			return m, true
		}
	}
	return Message{}, false
}

// LastReply returns the newest assistant message.
func (s *ConversationState) LastReply() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// Clone returns a deep enough copy for tests and snapshots.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	c.Cards = append([]CardReceipt(nil), s.Cards...)
	c.AudioBuffer = append([]byte(nil), s.AudioBuffer...)
	if s.ProjectID != nil {
		c.ProjectID = Ptr(*s.ProjectID)
	}
	if s.APIParams != nil {
		q := s.APIParams.Normalized()
		c.APIParams = &q
	}
	return &c
}

// Update is the partial result of one step. Nil pointer fields leave the
// state untouched. Messages only change through Append and Remove.
type Update struct {
	Append []Message
	Remove []string

	Summary         *string
	Workflow        *string
	CurrentActivity *string
	ApplyActivity   *bool
	MemoryContext   *string
	NeedsAPI        *bool
	APIInfo         *string
	APIParams       *SearchQuery
	ProjectID       *int
	ProjectName     *string
	PendingReply    *string
	AudioBuffer     []byte
	AudioMIME       *string
	ImagePath       *string
	Cards           []CardReceipt
}

// Empty reports whether the update carries no change.
func (u Update) Empty() bool {
	return len(u.Append) == 0 && len(u.Remove) == 0 &&
		u.Summary == nil && u.Workflow == nil && u.CurrentActivity == nil &&
		u.ApplyActivity == nil && u.MemoryContext == nil && u.NeedsAPI == nil &&
		u.APIInfo == nil && u.APIParams == nil && u.ProjectID == nil &&
		u.ProjectName == nil && u.PendingReply == nil && u.AudioBuffer == nil &&
		u.AudioMIME == nil && u.ImagePath == nil && len(u.Cards) == 0
}

// Apply merges u into s. Removals run before appends so a step can prune and
// add in one update.
func (s *ConversationState) Apply(u Update) {
	if len(u.Remove) > 0 {
		drop := make(map[string]struct{}, len(u.Remove))
		for _, id := range u.Remove {
			drop[id] = struct{}{}
		}
		kept := s.Messages[:0:0]
		for _, m := range s.Messages {
			if _, ok := drop[m.ID]; !ok {
				kept = append(kept, m)
			}
		}
		s.Messages = kept
	}
	if len(u.Append) > 0 {
		s.Messages = append(s.Messages, u.Append...)
	}

	if u.Summary != nil {
		s.Summary = *u.Summary
	}
	if u.Workflow != nil {
		s.Workflow = *u.Workflow
	}
	if u.CurrentActivity != nil {
		s.CurrentActivity = *u.CurrentActivity
	}
	if u.ApplyActivity != nil {
		s.ApplyActivity = *u.ApplyActivity
	}
	if u.MemoryContext != nil {
		s.MemoryContext = *u.MemoryContext
	}
	if u.NeedsAPI != nil {
		s.NeedsAPI = *u.NeedsAPI
	}
	if u.APIInfo != nil {
		s.APIInfo = *u.APIInfo
	}
	if u.APIParams != nil {
		s.APIParams = u.APIParams
	}
	if u.ProjectID != nil {
		s.ProjectID = u.ProjectID
	}
	if u.ProjectName != nil {
		s.ProjectName = *u.ProjectName
	}
	if u.PendingReply != nil {
		s.PendingReply = *u.PendingReply
	}
	if u.AudioBuffer != nil {
		s.AudioBuffer = u.AudioBuffer
	}
	if u.AudioMIME != nil {
		s.AudioMIME = *u.AudioMIME
	}
	if u.ImagePath != nil {
		s.ImagePath = *u.ImagePath
	}
	if len(u.Cards) > 0 {
		s.Cards = append(s.Cards, u.Cards...)
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

package model

import (
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// Role is the speaker of a persisted conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageKind tags messages that were produced by the agent itself rather
// than typed by a participant.
type MessageKind string

const (
	KindChat          MessageKind = ""
	KindSearchContext MessageKind = "search_context"
	KindCard          MessageKind = "card"
)

// Message is one entry of the conversation history. IDs are unique within a
// thread so the summarizer can prune by id.
type Message struct {
	ID        string      `json:"id" msgpack:"id"`
	Role      Role        `json:"role" msgpack:"role"`
	Content   string      `json:"content" msgpack:"content"`
	Kind      MessageKind `json:"kind,omitempty" msgpack:"kind,omitempty"`
	CreatedAt time.Time   `json:"created_at" msgpack:"created_at"`
}

// NewMessage builds a message with a fresh UUIDv4 id.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// UserMessage is a shortcut for NewMessage(RoleUser, content).
func UserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// AssistantMessage is a shortcut for NewMessage(RoleAssistant, content).
func AssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// WithKind returns a copy of m tagged with kind.
func (m Message) WithKind(kind MessageKind) Message {
	m.Kind = kind
	return m
}

// ToSchema converts the message into the chat model representation.
func (m Message) ToSchema() *schema.Message {
	if m.Role == RoleAssistant {
		return schema.AssistantMessage(m.Content, nil)
	}
	return schema.UserMessage(m.Content)
}

// ToSchemaMessages converts a slice of messages for a model call.
func ToSchemaMessages(msgs []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToSchema())
	}
	return out
}

// Tail returns at most the last n messages of msgs.
func Tail(msgs []Message, n int) []Message {
	if n <= 0 {
		return nil
	}
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

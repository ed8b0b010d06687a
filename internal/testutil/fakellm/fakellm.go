// Package fakellm provides scripted chat models for tests.
package fakellm

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Call is one recorded Generate invocation.
type Call struct {
	Messages []*schema.Message
	Tools    []*schema.ToolInfo
}

// Contains reports whether any message of the call contains s.
func (c Call) Contains(s string) bool {
	for _, m := range c.Messages {
		if m != nil && strings.Contains(m.Content, s) {
			return true
		}
	}
	return false
}

// RespondFunc produces the reply for a call.
type RespondFunc func(ctx context.Context, call Call) (*schema.Message, error)

type recorder struct {
	mu    sync.Mutex
	calls []Call
}

// Model implements model.ToolCallingChatModel. Copies made by WithTools
// share the recorder and the responder.
type Model struct {
	respond RespondFunc
	tools   []*schema.ToolInfo
	rec     *recorder
}

var _ model.ToolCallingChatModel = (*Model)(nil)

func New(fn RespondFunc) *Model {
	return &Model{respond: fn, rec: &recorder{}}
}

func (m *Model) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	call := Call{Messages: append([]*schema.Message(nil), input...), Tools: m.tools}
	m.rec.mu.Lock()
	m.rec.calls = append(m.rec.calls, call)
	m.rec.mu.Unlock()
	return m.respond(ctx, call)
}

func (m *Model) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func (m *Model) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return &Model{respond: m.respond, tools: tools, rec: m.rec}, nil
}

// Calls returns every recorded call in order.
func (m *Model) Calls() []Call {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	return append([]Call(nil), m.rec.calls...)
}

// Text always answers with s.
func Text(s string) RespondFunc {
	return func(context.Context, Call) (*schema.Message, error) {
		return schema.AssistantMessage(s, nil), nil
	}
}

// Fail always returns err.
func Fail(err error) RespondFunc {
	return func(context.Context, Call) (*schema.Message, error) {
		return nil, err
	}
}

// Sequence answers with msgs in order and repeats the last one.
func Sequence(msgs ...*schema.Message) RespondFunc {
	var mu sync.Mutex
	i := 0
	return func(context.Context, Call) (*schema.Message, error) {
		mu.Lock()
		defer mu.Unlock()
		m := msgs[i]
		if i < len(msgs)-1 {
			i++
		}
		cp := *m
		cp.ToolCalls = append([]schema.ToolCall(nil), m.ToolCalls...)
		return &cp, nil
	}
}

// ToolCall builds an assistant message requesting one tool call. An empty
// id mimics providers that omit it.
func ToolCall(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

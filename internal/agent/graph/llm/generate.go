package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Generate calls m under a chat-model RunInfo named after the role so the
// observer callbacks fire even when the call happens inside a lambda node.
// Models that do not report their own callbacks get them emitted here.
func Generate(ctx context.Context, role string, m model.BaseChatModel, msgs []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if m == nil {
		return nil, fmt.Errorf("%s: chat model is nil", role)
	}
	typ, _ := components.GetType(m)
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      role,
		Type:      typ,
		Component: components.ComponentOfChatModel,
	})

	if components.IsCallbacksEnabled(m) {
		out, err := m.Generate(ctx, msgs, opts...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", role, err)
		}
		return out, nil
	}

	ctx = callbacks.OnStart(ctx, &model.CallbackInput{Messages: msgs})
	out, err := m.Generate(ctx, msgs, opts...)
	if err != nil {
		callbacks.OnError(ctx, err)
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	callbacks.OnEnd(ctx, &model.CallbackOutput{Message: out, TokenUsage: usageOf(out)})
	return out, nil
}

// Text calls Generate and returns the content, failing on a nil
// message.
func Text(ctx context.Context, role string, m model.BaseChatModel, msgs []*schema.Message) (string, error) {
	out, err := Generate(ctx, role, m, msgs)
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", fmt.Errorf("%s: empty response", role)
	}
	return out.Content, nil
}

func usageOf(m *schema.Message) *model.TokenUsage {
	if m == nil || m.ResponseMeta == nil || m.ResponseMeta.Usage == nil {
		return nil
	}
	u := m.ResponseMeta.Usage
	return &model.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

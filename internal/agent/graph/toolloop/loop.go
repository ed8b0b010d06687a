package toolloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/avaestate/ava-agent/internal/agent/graph/llm"
	"github.com/avaestate/ava-agent/internal/agent/graph/tools"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

const (
	nodeModel = "agent_model"
	nodeTools = "agent_tools"

	DefaultMaxIterations = 3
)

// loopState is the local state of one loop invocation. It is only touched
// inside Eino state handlers and compose.ProcessState.
type loopState struct {
	History      []*schema.Message
	Iterations   int
	LimitReached bool
	IDSeq        int
}

// Config wires the loop.
type Config struct {
	Model         model.ToolCallingChatModel
	Tools         []tool.BaseTool
	MaxIterations int
}

// Loop alternates model calls and tool execution until the model answers
// without tool calls or the iteration cap is hit. The call that reaches the
// cap runs without tools after a wrap-up notice, so the loop always ends
// with a text answer.
type Loop struct {
	runnable      compose.Runnable[[]*schema.Message, *schema.Message]
	maxIterations int
}

// New compiles the loop sub-graph.
func New(ctx context.Context, cfg Config) (*Loop, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("tool loop model is nil")
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	infos, err := tools.GetToolInfos(ctx, cfg.Tools)
	if err != nil {
		return nil, err
	}
	withTools, err := cfg.Model.WithTools(infos)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:                cfg.Tools,
		ExecuteSequentially:  true,
		UnknownToolsHandler:  tools.HandleUnknownTool,
		ToolArgumentsHandler: tools.SanitizeArguments,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return nil, fmt.Errorf("failed to create tools node: %w", err)
	}

	g := compose.NewGraph[[]*schema.Message, *schema.Message](
		compose.WithGenLocalState(func(ctx context.Context) *loopState {
			return &loopState{}
		}),
	)

	if err := g.AddLambdaNode(nodeModel,
		compose.InvokableLambda(func(ctx context.Context, in []*schema.Message) (*schema.Message, error) {
			var limit bool
			_ = compose.ProcessState(ctx, func(_ context.Context, s *loopState) error {
				limit = s.LimitReached
				return nil
			})
			if limit {
				return llm.Generate(ctx, "agent_wrap_up", cfg.Model, in)
			}
			return llm.Generate(ctx, "agent", withTools, in)
		}),
		compose.WithStatePreHandler(modelPreHandler(maxIter)),
		compose.WithStatePostHandler(modelPostHandler()),
	); err != nil {
		return nil, fmt.Errorf("add model node: %w", err)
	}
	if err := g.AddToolsNode(nodeTools, toolsNode); err != nil {
		return nil, fmt.Errorf("add tools node: %w", err)
	}

	if err := g.AddEdge(compose.START, nodeModel); err != nil {
		return nil, err
	}
	if err := g.AddEdge(nodeTools, nodeModel); err != nil {
		return nil, err
	}
	if err := g.AddBranch(nodeModel, compose.NewGraphBranch(
		continueCondition,
		map[string]bool{nodeTools: true, compose.END: true},
	)); err != nil {
		return nil, fmt.Errorf("add loop branch: %w", err)
	}

	runnable, err := g.Compile(ctx,
		compose.WithGraphName("tool_loop"),
		compose.WithMaxRunSteps(2*maxIter+4),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling tool loop")
		return nil, fmt.Errorf("error compiling tool loop: %w", err)
	}
	return &Loop{runnable: runnable, maxIterations: maxIter}, nil
}

// Run executes the loop over the prepared prompt (system card plus history)
// and returns the final assistant message.
func (l *Loop) Run(ctx context.Context, msgs []*schema.Message, opts ...compose.Option) (*schema.Message, error) {
	out, err := l.runnable.Invoke(ctx, msgs, opts...)
	if err != nil {
		return nil, err
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return nil, fmt.Errorf("tool loop ended without a text answer")
	}
	return out, nil
}

// MaxIterations returns the configured cap on model calls.
func (l *Loop) MaxIterations() int {
	return l.maxIterations
}

func modelPreHandler(maxIter int) func(context.Context, []*schema.Message, *loopState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, s *loopState) ([]*schema.Message, error) {
		pairToolResults(in, s.History)
		s.History = append(s.History, in...)
		s.Iterations++

		if !s.LimitReached && s.Iterations >= maxIter {
			s.LimitReached = true
			s.History = append(s.History, schema.SystemMessage(fmt.Sprintf(
				"SYSTEM NOTICE: You have reached the maximum number of tool iterations (%d). "+
					"Answer the user now using the information you have already gathered. "+
					"Do not call any more tools.",
				maxIter,
			)))
			logx.Warn().Int("iterations", s.Iterations).Msg("Tool loop limit reached - forcing final answer")
		}
		return s.History, nil
	}
}

// pairToolResults fills missing tool_call_ids on the trailing tool results.
// Results come back in the order of the calls of the latest assistant
// message, so they are matched by position.
func pairToolResults(in, history []*schema.Message) {
	start := len(in)
	for start > 0 && in[start-1] != nil && in[start-1].Role == schema.Tool {
		start--
	}
	if start == len(in) {
		return
	}
	var calls []schema.ToolCall
	for i := len(history) - 1; i >= 0; i-- {
		if m := history[i]; m != nil && m.Role == schema.Assistant && len(m.ToolCalls) > 0 {
			calls = m.ToolCalls
			break
		}
	}
	for j, msg := range in[start:] {
		if j < len(calls) && strings.TrimSpace(msg.ToolCallID) == "" {
			msg.ToolCallID = calls[j].ID
		}
	}
}

func modelPostHandler() func(context.Context, *schema.Message, *loopState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, s *loopState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("model returned nil message")
		}
		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				s.IDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", s.IDSeq)
			}
		}
		if s.LimitReached {
			out.ToolCalls = nil
		}
		s.History = append(s.History, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Int("iteration", s.Iterations).Msg("Calling tools")
		} else {
			logx.Debug().Int("iteration", s.Iterations).Msg("AI response ready")
		}
		return out, nil
	}
}

func continueCondition(ctx context.Context, out *schema.Message) (string, error) {
	var limit bool
	_ = compose.ProcessState(ctx, func(_ context.Context, s *loopState) error {
		limit = s.LimitReached
		return nil
	})
	if limit || len(out.ToolCalls) == 0 {
		return compose.END, nil
	}
	return nodeTools, nil
}

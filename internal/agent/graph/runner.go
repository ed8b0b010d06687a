package graph

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"

	"github.com/avaestate/ava-agent/internal/agent/graph/conversations"
	"github.com/avaestate/ava-agent/internal/agent/graph/llm"
	"github.com/avaestate/ava-agent/internal/agent/graph/nodes"
	"github.com/avaestate/ava-agent/internal/agent/graph/observers"
	"github.com/avaestate/ava-agent/internal/agent/graph/toolloop"
	"github.com/avaestate/ava-agent/internal/agent/graph/tools"
	"github.com/avaestate/ava-agent/internal/agent/model"
	errx "github.com/avaestate/ava-agent/internal/core/error"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// Config holds everything needed to compose the turn graph end-to-end.
type Config struct {
	Models       *llm.ChatModels
	Store        model.CheckpointStore
	Memory       model.MemoryManager
	Activity     model.ActivitySource
	Search       model.SearchAPI
	Cards        model.CardSender
	Transcriber  model.Transcriber
	Images       model.ImageAnalyzer
	Synthesizer  model.Synthesizer
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig

	// Callbacks replace the default observers when set.
	Callbacks []einocb.Handler
}

// Runner executes one turn per inbound message.
type Runner struct {
	runnable  compose.Runnable[*model.ConversationState, *model.ConversationState]
	sessions  *conversations.MessagesManager
	callbacks []einocb.Handler
	locks     threadLocks
}

// NewRunner builds the tool loop, compiles the graph and returns a Runner.
func NewRunner(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("checkpoint store is nil")
	}
	if cfg.Models == nil {
		return nil, fmt.Errorf("chat models are nil")
	}

	deps := &nodes.Deps{
		Models:       cfg.Models,
		Memory:       cfg.Memory,
		Activity:     cfg.Activity,
		Search:       cfg.Search,
		Cards:        cfg.Cards,
		Synthesizer:  cfg.Synthesizer,
		Prompt:       cfg.Prompt,
		Conversation: cfg.Conversation,
	}
	if cfg.Conversation.SearchStrategy != model.StrategySingleShot {
		loop, err := toolloop.New(ctx, toolloop.Config{
			Model:         cfg.Models.Response,
			Tools:         tools.GetQueryTools(tools.Deps{Search: cfg.Search, Cards: cfg.Cards}),
			MaxIterations: cfg.Conversation.AgentMaxIterations,
		})
		if err != nil {
			return nil, fmt.Errorf("build tool loop: %w", err)
		}
		deps.Loop = loop
	}

	runnable, err := BuildGraph(ctx, deps)
	if err != nil {
		return nil, err
	}

	handlers := cfg.Callbacks
	if len(handlers) == 0 {
		handlers = []einocb.Handler{observers.NewAllCallbacks()}
	}

	logx.Debug().
		Str("search_strategy", cfg.Conversation.SearchStrategy).
		Msg("Turn graph built successfully")
	return &Runner{
		runnable: runnable,
		sessions: conversations.NewMessagesManager(cfg.Store,
			conversations.WithTranscriber(cfg.Transcriber),
			conversations.WithImageAnalyzer(cfg.Images),
		),
		callbacks: handlers,
	}, nil
}

// ProcessTurn runs one inbound message through the graph. Turns of the same
// thread are serialised. The checkpoint is written only when the whole
// traversal succeeds; on error the previous checkpoint stays untouched.
func (r *Runner) ProcessTurn(ctx context.Context, threadID string, in model.Inbound) (*model.ConversationState, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, errx.New(errx.ErrMissingThreadID, http.StatusBadRequest, errx.InvalidInputMessage)
	}

	unlock := r.locks.lock(threadID)
	defer unlock()

	start := time.Now()
	s, err := r.sessions.Open(ctx, threadID)
	if err != nil {
		return nil, err
	}
	msg, err := r.sessions.UserMessage(ctx, threadID, in)
	if err != nil {
		return nil, err
	}
	s.Apply(model.Update{Append: []model.Message{msg}})

	turn := model.NewTurn(threadID)
	ctx = model.WithTurn(ctx, turn)

	out, err := r.runnable.Invoke(ctx, s, compose.WithCallbacks(r.callbacks...))
	if err != nil {
		logx.Error().Err(err).
			Str("conversation_id", threadID).
			Strs("path", turn.Path()).
			Msg("turn failed")
		return nil, errx.WrapTurn(err)
	}
	if out == nil {
		return nil, errx.WrapTurn(fmt.Errorf("graph returned no state"))
	}
	if err := r.sessions.Commit(ctx, out); err != nil {
		return nil, err
	}

	logx.Info().
		Str("conversation_id", threadID).
		Str("workflow", out.Workflow).
		Strs("path", turn.Path()).
		Int("messages", len(out.Messages)).
		Int("cards", len(out.Cards)).
		Float64("cost_usd", turn.CostUSD()).
		Dur("elapsed", time.Since(start)).
		Msg("turn completed")
	return out, nil
}

// Reset drops the checkpoint of a thread.
func (r *Runner) Reset(ctx context.Context, threadID string) error {
	unlock := r.locks.lock(threadID)
	defer unlock()
	return r.sessions.Reset(ctx, threadID)
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

// threadLocks hands out one mutex per thread id and forgets it when the
// last holder releases it.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

func (l *threadLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*threadLock{}
	}
	tl, ok := l.locks[id]
	if !ok {
		tl = &threadLock{}
		l.locks[id] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

package memory

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/avaestate/ava-agent/internal/agent/graph/llm"
	"github.com/avaestate/ava-agent/internal/agent/graph/parsers"
	"github.com/avaestate/ava-agent/internal/agent/graph/prompts"
	"github.com/avaestate/ava-agent/internal/agent/model"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// Manager implements model.MemoryManager on top of a Store. The analyser
// model decides which user messages carry facts worth keeping.
type Manager struct {
	store    *Store
	analyser einomodel.BaseChatModel
	topK     int
}

var _ model.MemoryManager = (*Manager)(nil)

func NewManager(store *Store, analyser einomodel.BaseChatModel, topK int) *Manager {
	if topK <= 0 {
		topK = 5
	}
	return &Manager{store: store, analyser: analyser, topK: topK}
}

// ExtractAndStore analyses a user chat message and stores the formatted
// fact when the analyser marks it important.
func (m *Manager) ExtractAndStore(ctx context.Context, threadID string, msg model.Message) error {
	if msg.Role != model.RoleUser || msg.Kind != model.KindChat || strings.TrimSpace(msg.Content) == "" {
		return nil
	}

	prompt, err := prompts.RenderMemoryAnalysis(ctx, msg.Content)
	if err != nil {
		return err
	}
	content, err := llm.Text(ctx, "memory", m.analyser, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return err
	}
	analysis, err := parsers.ParseMemoryAnalysis(content)
	if err != nil {
		return fmt.Errorf("memory analysis: %w", err)
	}
	if !analysis.IsImportant {
		return nil
	}

	added, err := m.store.Add(ctx, threadID, analysis.FormattedMemory)
	if err != nil {
		return err
	}
	logx.Debug().
		Str("thread_id", threadID).
		Bool("new", added).
		Str("memory", analysis.FormattedMemory).
		Msg("memory stored")
	return nil
}

// Relevant searches the thread's memories with the terms of contextText and
// falls back to the most recent ones when nothing matches.
func (m *Manager) Relevant(ctx context.Context, threadID, contextText string) ([]string, error) {
	found, err := m.store.Search(ctx, threadID, contextText, m.topK)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		if found, err = m.store.Recent(ctx, threadID, m.topK); err != nil {
			return nil, err
		}
	}
	out := make([]string, 0, len(found))
	for _, mem := range found {
		out = append(out, mem.Content)
	}
	return out, nil
}

// FormatForPrompt renders memories as a bullet list, or "" when there are
// none.
func (m *Manager) FormatForPrompt(memories []string) string {
	var b strings.Builder
	for _, mem := range memories {
		mem = strings.TrimSpace(mem)
		if mem == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(mem)
	}
	return b.String()
}

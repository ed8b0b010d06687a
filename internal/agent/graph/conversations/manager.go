package conversations

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avaestate/ava-agent/internal/agent/model"
	errx "github.com/avaestate/ava-agent/internal/core/error"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// ImagePrompt is sent with every inbound image.
const ImagePrompt = "Please describe what you see in this image in the context of our conversation."

// MessagesManager owns the checkpoint side of a turn: it opens the thread
// state, turns the inbound payload into the user message and commits the
// state once the graph has finished.
type MessagesManager struct {
	store       model.CheckpointStore
	transcriber model.Transcriber
	images      model.ImageAnalyzer
	now         func() time.Time
}

type Option func(*MessagesManager)

func WithTranscriber(t model.Transcriber) Option {
	return func(m *MessagesManager) { m.transcriber = t }
}

func WithImageAnalyzer(a model.ImageAnalyzer) Option {
	return func(m *MessagesManager) { m.images = a }
}

// WithClock overrides time.Now for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(m *MessagesManager) { m.now = now }
}

func NewMessagesManager(store model.CheckpointStore, opts ...Option) *MessagesManager {
	m := &MessagesManager{store: store, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open loads the thread state, or creates it, and clears last turn's
// transient fields.
func (cm *MessagesManager) Open(ctx context.Context, threadID string) (*model.ConversationState, error) {
	s, err := cm.store.Load(ctx, threadID)
	if err != nil {
		return nil, errx.WrapStore(err)
	}
	if s == nil {
		logx.Debug().Str("conversation_id", threadID).Msg("starting new conversation")
		s = model.NewConversationState(threadID)
	}
	s.ThreadID = threadID
	s.BeginTurn()
	return s, nil
}

// UserMessage converts the inbound payload into the text of the user
// message. Audio is transcribed; an image is described and appended to its
// caption. A failed image analysis keeps the caption alone.
func (cm *MessagesManager) UserMessage(ctx context.Context, threadID string, in model.Inbound) (model.Message, error) {
	if in.Empty() {
		return model.Message{}, errx.New(errx.ErrEmptyMessage, http.StatusBadRequest, errx.InvalidInputMessage)
	}

	var content string
	switch {
	case len(in.Audio) > 0:
		if cm.transcriber == nil {
			return model.Message{}, errx.New(fmt.Errorf("audio received but no transcriber configured"), http.StatusBadRequest, errx.InvalidInputMessage)
		}
		text, err := cm.transcriber.Transcribe(ctx, in.Audio, in.AudioMIME)
		if err != nil {
			return model.Message{}, errx.WrapUpstream(fmt.Errorf("transcribe audio: %w", err))
		}
		content = text
	case len(in.Image) > 0:
		content = strings.TrimSpace(in.Caption)
		if content == "" {
			content = strings.TrimSpace(in.Text)
		}
		if cm.images == nil {
			break
		}
		description, err := cm.images.AnalyzeImage(ctx, in.Image, in.ImageMIME, ImagePrompt)
		if err != nil {
			logx.Warn().Err(err).Str("conversation_id", threadID).Msg("image analysis failed")
			break
		}
		content += fmt.Sprintf("\n[Image Analysis: %s]", strings.TrimSpace(description))
	default:
		content = in.Text
		if strings.TrimSpace(content) == "" {
			content = in.Caption
		}
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return model.Message{}, errx.New(errx.ErrEmptyMessage, http.StatusBadRequest, errx.InvalidInputMessage)
	}
	return model.UserMessage(content), nil
}

// Commit stamps and persists the state produced by a successful turn.
func (cm *MessagesManager) Commit(ctx context.Context, s *model.ConversationState) error {
	s.UpdatedAt = cm.now().UTC()
	if err := cm.store.Save(ctx, s); err != nil {
		logx.Error().Err(err).Str("conversation_id", s.ThreadID).Msg("failed to save checkpoint")
		return errx.WrapStore(err)
	}
	return nil
}

// Reset forgets a thread.
func (cm *MessagesManager) Reset(ctx context.Context, threadID string) error {
	return errx.WrapStore(cm.store.Delete(ctx, threadID))
}

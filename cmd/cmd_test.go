package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avaestate/ava-agent/internal/agent/model"
)

type fakeRunner struct {
	inbound []model.Inbound
	resets  int
	err     error
}

func (f *fakeRunner) ProcessTurn(_ context.Context, threadID string, in model.Inbound) (*model.ConversationState, error) {
	f.inbound = append(f.inbound, in)
	if f.err != nil {
		return nil, f.err
	}
	s := model.NewConversationState(threadID)
	s.Workflow = model.WorkflowConversation
	s.Messages = append(s.Messages, model.UserMessage(in.Text), model.AssistantMessage("reply to "+in.Text))
	return s, nil
}

func (f *fakeRunner) Reset(context.Context, string) error {
	f.resets++
	return nil
}

func TestChatLoop(t *testing.T) {
	runner := &fakeRunner{}
	var out bytes.Buffer
	input := strings.NewReader("hello\n\n/help\n/reset\n/bogus\n/quit\nnever sent\n")

	require.NoError(t, chatLoop(context.Background(), runner, "5511", input, &out))

	require.Len(t, runner.inbound, 1)
	assert.Equal(t, "hello", runner.inbound[0].Text)
	assert.Equal(t, 1, runner.resets)
	assert.Contains(t, out.String(), "reply to hello")
	assert.Contains(t, out.String(), "/image <file>")
	assert.Contains(t, out.String(), "conversation cleared")
	assert.Contains(t, out.String(), "unknown command /bogus")
}

func TestChatLoopKeepsGoingAfterTurnError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("turn processing failed")}
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), runner, "5511", strings.NewReader("one\ntwo\n"), &out))
	assert.Len(t, runner.inbound, 2)
	assert.Equal(t, 2, strings.Count(out.String(), "turn processing failed"))
}

func TestParseChatLine(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "plan.png")
	require.NoError(t, os.WriteFile(img, []byte("\x89PNG\r\n\x1a\n"), 0o600))

	in, quit, err := parseChatLine("/image " + img + " is this the 2 bedroom?")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Equal(t, "image/png", in.ImageMIME)
	assert.Equal(t, "is this the 2 bedroom?", in.Caption)

	_, quit, err = parseChatLine("/exit")
	require.NoError(t, err)
	assert.True(t, quit)

	_, _, err = parseChatLine("/audio")
	assert.ErrorContains(t, err, "usage")

	_, _, err = parseChatLine("/audio " + filepath.Join(dir, "missing.ogg"))
	assert.Error(t, err)
}

func TestInboundFromFlags(t *testing.T) {
	dir := t.TempDir()
	note := filepath.Join(dir, "note.ogg")
	require.NoError(t, os.WriteFile(note, []byte("OggS"), 0o600))

	in, err := inboundFromFlags("ignored", note, "")
	require.NoError(t, err)
	assert.Equal(t, []byte("OggS"), in.Audio)
	assert.Equal(t, "audio/ogg", in.AudioMIME)

	in, err = inboundFromFlags("2 bedrooms in Miami", "", "")
	require.NoError(t, err)
	assert.Equal(t, "2 bedrooms in Miami", in.Text)

	_, err = inboundFromFlags("  ", "", "")
	assert.Error(t, err)
}

func TestRenderTurn(t *testing.T) {
	s := model.NewConversationState("5511")
	s.Workflow = model.WorkflowAudio
	s.Messages = append(s.Messages, model.AssistantMessage("Torre Platinum has a 2 bedroom unit."))
	s.Cards = []model.CardReceipt{{Kind: "project", ID: "395", Name: "Torre Platinum"}}
	s.AudioBuffer = make([]byte, 2048)
	s.AudioMIME = "audio/wav"

	out := renderTurn(s, "/tmp/a.wav")
	assert.Contains(t, out, "audio")
	assert.Contains(t, out, "Torre Platinum has a 2 bedroom unit.")
	assert.Contains(t, out, "project card sent: 395 (Torre Platinum)")
	assert.Contains(t, out, "2.0 kB audio/wav")
	assert.Contains(t, out, "/tmp/a.wav")
}

func TestSaveAudio(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "voice")
	s := model.NewConversationState("5511")

	path, err := saveAudio(dir, "5511", s, time.Now())
	require.NoError(t, err)
	assert.Empty(t, path, "no audio, no file")

	s.AudioBuffer, s.AudioMIME = []byte("RIFF"), "audio/wav"
	path, err = saveAudio(dir, "5511", s, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "5511-20260302T100000", strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), data)
}

func TestValidate(t *testing.T) {
	cfg := AppConfig{
		Checkpoint:   model.CheckpointConfig{Backend: model.BackendMemory},
		Conversation: model.DefaultConversationConfig(),
	}
	require.NoError(t, validate(cfg))

	bad := cfg
	bad.Checkpoint.Backend = "postgres"
	assert.ErrorContains(t, validate(bad), "CHECKPOINT_BACKEND")

	bad = cfg
	bad.Conversation.SearchStrategy = "react"
	assert.ErrorContains(t, validate(bad), "SEARCH_STRATEGY")

	bad = cfg
	bad.Conversation.MessagesAfterSummary = bad.Conversation.SummaryTrigger
	assert.ErrorContains(t, validate(bad), "TOTAL_MESSAGES_AFTER_SUMMARY")
}

func TestNewAppReturnsStartupErrors(t *testing.T) {
	base := AppConfig{
		APIKey:       "test-key",
		Small:        model.SmallModelConfig{Model: "gemini-2.5-flash-lite"},
		Response:     model.ResponseModelConfig{Model: "gemini-2.5-flash"},
		Conversation: model.DefaultConversationConfig(),
	}

	cases := map[string]func(*AppConfig){
		"badger without dir": func(c *AppConfig) {
			c.Checkpoint = model.CheckpointConfig{Backend: model.BackendBadger}
		},
		"search api without url": func(c *AppConfig) {
			c.Checkpoint = model.CheckpointConfig{Backend: model.BackendMemory}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			var (
				a   *app
				err error
			)
			require.NotPanics(t, func() {
				a, err = newApp(context.Background(), cfg)
			})
			assert.Error(t, err)
			assert.Nil(t, a)
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("API_URL", "http://backend.local")
	t.Setenv("CHECKPOINT_BACKEND", "badger")
	t.Setenv("SEARCH_STRATEGY", "single_shot")
	t.Setenv("ENVIRONMENT", "prod")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.APIKey)
	assert.Equal(t, "http://backend.local", cfg.SearchAPI.URL)
	assert.Equal(t, model.BackendBadger, cfg.Checkpoint.Backend)
	assert.Equal(t, model.StrategySingleShot, cfg.Conversation.SearchStrategy)
	assert.True(t, cfg.Environment.IsProduction())
	assert.Equal(t, 20, cfg.Conversation.SummaryTrigger)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

// Package speech transcribes voice notes, synthesizes spoken replies and
// describes images with Gemini.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/avaestate/ava-agent/internal/agent/model"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

const transcribePrompt = "Transcribe this voice message exactly as spoken, in its original language. " +
	"Reply with the transcription only."

// generator is the subset of *genai.Models the service needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Service implements model.Transcriber, model.Synthesizer and
// model.ImageAnalyzer.
type Service struct {
	models generator
	cfg    model.SpeechConfig
}

var (
	_ model.Transcriber   = (*Service)(nil)
	_ model.Synthesizer   = (*Service)(nil)
	_ model.ImageAnalyzer = (*Service)(nil)
)

func New(client *genai.Client, cfg model.SpeechConfig) (*Service, error) {
	if client == nil {
		return nil, errors.New("genai client is nil")
	}
	return &Service{models: client.Models, cfg: cfg}, nil
}

// Transcribe turns a voice note into text.
func (s *Service) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("transcribe: empty audio")
	}
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(transcribePrompt),
		genai.NewPartFromBytes(audio, orDefault(mimeType, "audio/ogg")),
	}, genai.RoleUser)}

	resp, err := s.models.GenerateContent(ctx, s.cfg.STTModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("transcribe: empty transcription")
	}
	logx.Debug().Int("audio_bytes", len(audio)).Int("chars", len(text)).Msg("voice note transcribed")
	return text, nil
}

// Synthesize speaks text with the configured prebuilt voice. Raw PCM answers
// are wrapped in a WAV container.
func (s *Service) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", errors.New("synthesize: empty text")
	}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.cfg.TTSVoice},
			},
		},
	}
	resp, err := s.models.GenerateContent(ctx, s.cfg.TTSModel, genai.Text(text), cfg)
	if err != nil {
		return nil, "", fmt.Errorf("synthesize: %w", err)
	}

	var (
		buf  bytes.Buffer
		mime string
	)
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			if mime == "" {
				mime = p.InlineData.MIMEType
			}
			buf.Write(p.InlineData.Data)
		}
	}
	if buf.Len() == 0 {
		return nil, "", errors.New("synthesize: no audio in response")
	}

	audio, mime := buf.Bytes(), orDefault(mime, "audio/L16;rate=24000")
	if rate, ok := pcmRate(mime); ok {
		audio, mime = wrapWAV(audio, rate), "audio/wav"
	}
	return audio, mime, nil
}

// AnalyzeImage describes an image following prompt.
func (s *Service) AnalyzeImage(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	if len(image) == 0 {
		return "", errors.New("analyze image: empty image")
	}
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(image, orDefault(mimeType, "image/jpeg")),
	}, genai.RoleUser)}

	resp, err := s.models.GenerateContent(ctx, s.cfg.VisionModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("analyze image: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

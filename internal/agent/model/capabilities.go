package model

import (
	"context"
)

// MemoryManager extracts durable facts from messages and retrieves them again.
type MemoryManager interface {
	ExtractAndStore(ctx context.Context, threadID string, msg Message) error
	Relevant(ctx context.Context, threadID, contextText string) ([]string, error)
	FormatForPrompt(memories []string) string
}

// ActivitySource describes what the character is notionally doing right now.
type ActivitySource interface {
	CurrentActivity(ctx context.Context) string
}

// SearchAPI queries the external project catalogue.
type SearchAPI interface {
	Search(ctx context.Context, q SearchQuery) (*SearchResult, error)
}

// CardResult is the answer of the card delivery API.
type CardResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CardSender pushes structured cards to a WhatsApp thread.
type CardSender interface {
	SendProjectCard(ctx context.Context, projectID int, threadID string) (*CardResult, error)
	SendUnitCard(ctx context.Context, unitID, threadID string) (*CardResult, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Synthesizer turns reply text into audio. It returns the audio bytes and
// their MIME type.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}

type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
}

// CheckpointStore persists conversation state per thread. Load returns
// (nil, nil) for an unknown thread.
type CheckpointStore interface {
	Load(ctx context.Context, threadID string) (*ConversationState, error)
	Save(ctx context.Context, state *ConversationState) error
	Delete(ctx context.Context, threadID string) error
}

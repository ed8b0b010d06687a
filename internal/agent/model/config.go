package model

import "time"

// ================ Config ================

// SmallModelConfig configures the cheap model used for routing, extraction,
// classification, formatting, summarization and memory analysis.
type SmallModelConfig struct {
	Model       string  `envconfig:"SMALL_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"SMALL_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"SMALL_TEMPERATURE" default:"0.1"`
}

// ResponseModelConfig configures the model that writes user-facing replies.
type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.6"`
}

type SpeechConfig struct {
	TTSModel    string `envconfig:"TTS_MODEL" default:"gemini-2.5-flash-preview-tts"`
	TTSVoice    string `envconfig:"TTS_VOICE" default:"Kore"`
	STTModel    string `envconfig:"STT_MODEL" default:"gemini-2.5-flash"`
	VisionModel string `envconfig:"VISION_MODEL" default:"gemini-2.5-flash"`
}

type PromptConfig struct {
	CharacterName string `envconfig:"CHARACTER_NAME" default:"Ava"`
	BusinessName  string `envconfig:"BUSINESS_NAME" default:"Ava Realty"`
}

// Search strategies.
const (
	StrategyAgent      = "agent"
	StrategySingleShot = "single_shot"
)

// ConversationConfig holds the thresholds that shape a turn.
type ConversationConfig struct {
	SummaryTrigger          int     `envconfig:"TOTAL_MESSAGES_SUMMARY_TRIGGER" default:"20"`
	MessagesAfterSummary    int     `envconfig:"TOTAL_MESSAGES_AFTER_SUMMARY" default:"5"`
	RouterMessagesToAnalyze int     `envconfig:"ROUTER_MESSAGES_TO_ANALYZE" default:"3"`
	MemoryMessagesToAnalyze int     `envconfig:"MEMORY_MESSAGES_TO_ANALYZE" default:"3"`
	SearchMessagesToAnalyze int     `envconfig:"SEARCH_MESSAGES_TO_ANALYZE" default:"3"`
	AgentMaxIterations      int     `envconfig:"AGENT_MAX_ITERATIONS" default:"3"`
	SearchStrategy          string  `envconfig:"SEARCH_STRATEGY" default:"agent"`
	CardConfidenceThreshold float64 `envconfig:"CARD_CONFIDENCE_THRESHOLD" default:"0.8"`
}

// DefaultConversationConfig mirrors the envconfig defaults for callers that
// build a graph without the environment.
func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		SummaryTrigger:          20,
		MessagesAfterSummary:    5,
		RouterMessagesToAnalyze: 3,
		MemoryMessagesToAnalyze: 3,
		SearchMessagesToAnalyze: 3,
		AgentMaxIterations:      3,
		SearchStrategy:          StrategyAgent,
		CardConfidenceThreshold: 0.8,
	}
}

// SearchAPIConfig configures the project search and card delivery client.
type SearchAPIConfig struct {
	URL              string        `envconfig:"API_URL" required:"true"`
	APIKey           string        `envconfig:"API_KEY"`
	Username         string        `envconfig:"MAIN_BACKEND_API_USERNAME"`
	Password         string        `envconfig:"MAIN_BACKEND_API_PASSWORD"`
	RefreshThreshold int           `envconfig:"REFRESH_THRESHOLD" default:"300"`
	SearchTimeout    time.Duration `envconfig:"API_SEARCH_TIMEOUT" default:"15s"`
	CardURL          string        `envconfig:"CARD_API_URL"`
	CardTimeout      time.Duration `envconfig:"API_CARD_TIMEOUT" default:"10s"`
}

// Checkpoint backends.
const (
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

type CheckpointConfig struct {
	Backend   string        `envconfig:"CHECKPOINT_BACKEND" default:"redis"`
	TTL       time.Duration `envconfig:"CONVERSATION_TTL" default:"168h"`
	BadgerDir string        `envconfig:"BADGER_DIR" default:"data/checkpoints"`
}

type MemoryConfig struct {
	DataDir string `envconfig:"MEMORY_DATA_DIR" default:"data/memory"`
	TopK    int    `envconfig:"MEMORY_TOP_K" default:"5"`
}

type ScheduleConfig struct {
	File     string `envconfig:"SCHEDULE_FILE"`
	Timezone string `envconfig:"SCHEDULE_TIMEZONE" default:"America/New_York"`
}

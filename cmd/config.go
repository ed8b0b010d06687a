package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/avaestate/ava-agent/internal/agent/model"
	"github.com/avaestate/ava-agent/internal/core"
	logx "github.com/avaestate/ava-agent/pkg/logger"
	pkgredis "github.com/avaestate/ava-agent/pkg/redis"
)

// AppConfig defines all configurable parameters of the agent, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis      pkgredis.Config
	Checkpoint model.CheckpointConfig
	Memory     model.MemoryConfig

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Small        model.SmallModelConfig
	Response     model.ResponseModelConfig
	Speech       model.SpeechConfig
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
	Schedule     model.ScheduleConfig

	// Backend
	SearchAPI model.SearchAPIConfig
}

// loadConfig reads envFile when it exists and binds the environment.
func loadConfig(envFile string) (AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logx.Warn().Err(err).Str("file", envFile).Msg("Could not load env file")
		}
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("process environment config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func validate(cfg AppConfig) error {
	switch cfg.Checkpoint.Backend {
	case model.BackendRedis, model.BackendBadger, model.BackendMemory:
	default:
		return fmt.Errorf("CHECKPOINT_BACKEND must be %q, %q or %q, got %q",
			model.BackendRedis, model.BackendBadger, model.BackendMemory, cfg.Checkpoint.Backend)
	}
	switch cfg.Conversation.SearchStrategy {
	case model.StrategyAgent, model.StrategySingleShot:
	default:
		return fmt.Errorf("SEARCH_STRATEGY must be %q or %q, got %q",
			model.StrategyAgent, model.StrategySingleShot, cfg.Conversation.SearchStrategy)
	}
	if cfg.Conversation.MessagesAfterSummary >= cfg.Conversation.SummaryTrigger {
		return fmt.Errorf("TOTAL_MESSAGES_AFTER_SUMMARY (%d) must be below TOTAL_MESSAGES_SUMMARY_TRIGGER (%d)",
			cfg.Conversation.MessagesAfterSummary, cfg.Conversation.SummaryTrigger)
	}
	return nil
}

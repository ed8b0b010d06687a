package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	agentmodel "github.com/avaestate/ava-agent/internal/agent/model"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	Client   *genai.Client
	Small    agentmodel.SmallModelConfig
	Response agentmodel.ResponseModelConfig
}

// ChatModels holds one model per role so tests can swap any of them.
type ChatModels struct {
	Router      model.BaseChatModel
	Extractor   model.BaseChatModel
	Formatter   model.BaseChatModel
	CardDecider model.BaseChatModel
	Summarizer  model.BaseChatModel
	Memory      model.BaseChatModel
	Response    model.ToolCallingChatModel
}

// Validate reports the first missing role.
func (cm *ChatModels) Validate() error {
	if cm == nil {
		return fmt.Errorf("chat models are nil")
	}
	for name, m := range map[string]model.BaseChatModel{
		"router":       cm.Router,
		"extractor":    cm.Extractor,
		"formatter":    cm.Formatter,
		"card_decider": cm.CardDecider,
		"summarizer":   cm.Summarizer,
	} {
		if m == nil {
			return fmt.Errorf("%s chat model is not initialized", name)
		}
	}
	if cm.Response == nil {
		return fmt.Errorf("response chat model is not initialized")
	}
	return nil
}

// NewGenAIClient creates the Gemini client shared by chat, speech and vision.
func NewGenAIClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// NewChatModels creates the small and response Gemini models. Every small
// role shares one model instance.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("genai client is nil")
	}

	small, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      config.Client,
		Model:       config.Small.Model,
		Temperature: &config.Small.Temperature,
		MaxTokens:   &config.Small.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating small model")
		return nil, fmt.Errorf("error creating small model: %w", err)
	}

	response, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      config.Client,
		Model:       config.Response.Model,
		Temperature: &config.Response.Temperature,
		MaxTokens:   &config.Response.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(1024)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Response model")
		return nil, fmt.Errorf("error creating Response model: %w", err)
	}

	return &ChatModels{
		Router:      small,
		Extractor:   small,
		Formatter:   small,
		CardDecider: small,
		Summarizer:  small,
		Memory:      small,
		Response:    response,
	}, nil
}

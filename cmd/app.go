package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/avaestate/ava-agent/internal/agent/graph"
	"github.com/avaestate/ava-agent/internal/agent/graph/llm"
	"github.com/avaestate/ava-agent/internal/agent/model"
	"github.com/avaestate/ava-agent/internal/agent/repo"
	"github.com/avaestate/ava-agent/internal/memory"
	"github.com/avaestate/ava-agent/internal/schedule"
	"github.com/avaestate/ava-agent/internal/searchapi"
	"github.com/avaestate/ava-agent/internal/speech"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// app owns the runner and every resource it was built from.
type app struct {
	runner  *graph.Runner
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func newApp(ctx context.Context, cfg AppConfig) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	client, err := llm.NewGenAIClient(ctx, cfg.APIKey, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	models, err := llm.NewChatModels(ctx, llm.ChatModelConfig{
		Client:   client,
		Small:    cfg.Small,
		Response: cfg.Response,
	})
	if err != nil {
		return nil, err
	}

	store, err := a.checkpointStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	memStore, err := memory.Open(cfg.Memory.DataDir)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, memStore.Close)

	activity, err := schedule.Load(cfg.Schedule.File, cfg.Schedule.Timezone)
	if err != nil {
		return nil, err
	}

	backend, err := searchapi.New(cfg.SearchAPI)
	if err != nil {
		return nil, err
	}

	voice, err := speech.New(client, cfg.Speech)
	if err != nil {
		return nil, err
	}

	runner, err := graph.NewRunner(ctx, graph.Config{
		Models:       models,
		Store:        store,
		Memory:       memory.NewManager(memStore, models.Memory, cfg.Memory.TopK),
		Activity:     activity,
		Search:       backend,
		Cards:        backend,
		Transcriber:  voice,
		Images:       voice,
		Synthesizer:  voice,
		Prompt:       cfg.Prompt,
		Conversation: cfg.Conversation,
	})
	if err != nil {
		return nil, err
	}
	a.runner = runner

	logx.Info().
		Str("environment", cfg.Environment.String()).
		Str("checkpoint_backend", cfg.Checkpoint.Backend).
		Str("search_strategy", cfg.Conversation.SearchStrategy).
		Msg("Agent ready")
	return a, nil
}

func (a *app) checkpointStore(ctx context.Context, cfg AppConfig) (model.CheckpointStore, error) {
	switch cfg.Checkpoint.Backend {
	case model.BackendRedis:
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialise redis client: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		logx.Info().Msg("Connected to Redis successfully")
		return repo.NewRedisCheckpointStore(rdb, cfg.Checkpoint.TTL), nil
	case model.BackendBadger:
		store, err := repo.NewBadgerCheckpointStore(repo.BadgerOptions{
			Dir: cfg.Checkpoint.BadgerDir,
			TTL: cfg.Checkpoint.TTL,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return repo.NewMemoryCheckpointStore(), nil
	}
}

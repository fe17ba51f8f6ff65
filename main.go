package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Chative-reservations/server/internal/agent/graph"
	"github.com/Chative-reservations/server/internal/agent/model"
	"github.com/Chative-reservations/server/internal/agent/repo"
	"github.com/Chative-reservations/server/internal/backend"
	"github.com/Chative-reservations/server/internal/core"
	errx "github.com/Chative-reservations/server/internal/core/error"
	logx "github.com/Chative-reservations/server/pkg/logger"
	pkgpostgres "github.com/Chative-reservations/server/pkg/postgres"
	pkgredis "github.com/Chative-reservations/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the reservation assistant,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis    pkgredis.Config
	Postgres pkgpostgres.Config
	Backend  backend.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	ToolModel    model.ToolModelConfig
	ReplyModel   model.ReplyModelConfig
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
}

func loadConfig() (*AppConfig, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Environment})
	return &cfg, nil
}

// openStore builds the StateStore selected by STATE_BACKEND. The returned func releases
// its connections.
func openStore(ctx context.Context, cfg *AppConfig) (model.StateStore, func(), error) {
	ttl := cfg.Conversation.TTL
	switch strings.ToLower(cfg.Conversation.Backend) {
	case "", "memory":
		return repo.NewMemoryStateStore(ttl), func() {}, nil
	case "redis":
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", errx.WrapRedis(err))
		}
		logx.Debug().Msg("Connected to Redis successfully")
		return repo.NewRedisStateStore(rdb, ttl), func() { _ = rdb.Close() }, nil
	case "postgres":
		pool, err := cfg.Postgres.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", errx.WrapPostgres(err))
		}
		store := repo.NewPostgresStateStore(pool, ttl)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logx.Debug().Msg("Connected to Postgres successfully")
		return store, pool.Close, nil
	}
	return nil, nil, errx.InvalidInput("unknown STATE_BACKEND %q (want memory, redis or postgres)", cfg.Conversation.Backend)
}

// buildOrchestrator wires the state store, the backend gateway and the Gemini models.
func buildOrchestrator(ctx context.Context, cfg *AppConfig) (*graph.Orchestrator, func(), error) {
	if cfg.APIKey == "" {
		return nil, nil, errx.InvalidInput("GEMINI_API_KEY is required")
	}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	gw, err := backend.NewGateway(cfg.Backend)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	orch, err := graph.Build(ctx, graph.Config{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		ToolModel:    cfg.ToolModel,
		ReplyModel:   cfg.ReplyModel,
		Prompt:       cfg.Prompt,
		Conversation: cfg.Conversation,
		Store:        store,
		Gateway:      gw,
	})
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("build orchestrator: %w", err)
	}
	return orch, closeStore, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/Chative-reservations/server/internal/agent/model"
	logx "github.com/Chative-reservations/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey      string
	BaseURL     string
	ToolConfig  *model.ToolModelConfig
	ReplyConfig *model.ReplyModelConfig
}

// ChatModels holds the tool-calling model of the first round and the reply model of the second.
// Tool must already have the tool catalog bound; Reply is offered no tools.
type ChatModels struct {
	Tool           einomodel.BaseChatModel
	Reply          einomodel.BaseChatModel
	ToolModelName  string
	ReplyModelName string
}

// NewChatModels creates both Gemini chat models and binds the tool catalog to the first one.
func NewChatModels(ctx context.Context, config ChatModelConfig, catalog []*schema.ToolInfo) (*ChatModels, error) {
	if config.ToolConfig == nil || config.ReplyConfig == nil {
		return nil, fmt.Errorf("chat model config is incomplete")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	toolModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.ToolConfig.Model,
		Temperature: &config.ToolConfig.Temperature,
		MaxTokens:   &config.ToolConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating tool model")
		return nil, fmt.Errorf("error creating tool model: %w", err)
	}
	if err := toolModel.BindTools(catalog); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}
	logx.Debug().Int("tools", len(catalog)).Msg("Successfully bound tools to tool model")

	replyModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.ReplyConfig.Model,
		Temperature: &config.ReplyConfig.Temperature,
		MaxTokens:   &config.ReplyConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating reply model")
		return nil, fmt.Errorf("error creating reply model: %w", err)
	}

	return &ChatModels{
		Tool:           toolModel,
		Reply:          replyModel,
		ToolModelName:  config.ToolConfig.Model,
		ReplyModelName: config.ReplyConfig.Model,
	}, nil
}

package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-reservations/server/internal/agent/graph/conversations"
	"github.com/Chative-reservations/server/internal/agent/graph/nodes"
	"github.com/Chative-reservations/server/internal/agent/model"
	logx "github.com/Chative-reservations/server/pkg/logger"
)

// GraphConfig holds all configuration needed to build the turn graph
type GraphConfig struct {
	ChatModels      *nodes.ChatModels
	MessagesManager *conversations.MessagesManager
	Tools           nodes.ToolRunner
	PromptConfig    *model.PromptConfig
	Now             func() time.Time
}

// GraphBuilder handles the construction of the single-round tool-calling graph:
//
//	START -> InputConverter -> ToolChatModel -(tool calls)-> ToolExecutor -> ReplyChatModel -> END
//	                                         -(no calls)---------------------------------------> END
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.TurnInput, *schema.Message]
}

// BuildGraph constructs and returns the compiled turn graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.TurnInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Tool == nil || config.ChatModels.Reply == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.Tools == nil {
		return nil, fmt.Errorf("tool runner is nil")
	}
	if config.PromptConfig == nil {
		return nil, fmt.Errorf("prompt config is nil")
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.TurnInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}
	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	cms := b.config.ChatModels
	steps := []struct {
		key string
		add func() error
	}{
		{nodes.NodeInputConverter, func() error {
			return b.graph.AddLambdaNode(nodes.NodeInputConverter,
				nodes.NewInputConverterNode(b.config.MessagesManager, b.config.PromptConfig, b.config.Now),
				compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
			)
		}},
		{nodes.NodeToolChatModel, func() error {
			return b.graph.AddChatModelNode(nodes.NodeToolChatModel, cms.Tool,
				compose.WithStatePostHandler(nodes.NewToolChatModelPostHandler(cms.ToolModelName)),
			)
		}},
		{nodes.NodeToolExecutor, func() error {
			return b.graph.AddLambdaNode(nodes.NodeToolExecutor,
				nodes.NewToolExecutorNode(b.config.Tools, b.config.Now),
			)
		}},
		{nodes.NodeReplyChatModel, func() error {
			return b.graph.AddChatModelNode(nodes.NodeReplyChatModel, cms.Reply,
				compose.WithStatePostHandler(nodes.NewReplyChatModelPostHandler(cms.ReplyModelName)),
			)
		}},
	}
	for _, s := range steps {
		if err := s.add(); err != nil {
			logx.Error().Err(err).Str("node", s.key).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", s.key, err)
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeToolChatModel},
		{nodes.NodeToolExecutor, nodes.NodeReplyChatModel},
		{nodes.NodeReplyChatModel, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			compose.END:            true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeToolChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *schema.Message], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithGraphName("ReservationTurn"))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

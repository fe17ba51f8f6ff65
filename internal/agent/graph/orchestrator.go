package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/Chative-reservations/server/internal/agent/graph/conversations"
	"github.com/Chative-reservations/server/internal/agent/graph/nodes"
	"github.com/Chative-reservations/server/internal/agent/graph/observers"
	"github.com/Chative-reservations/server/internal/agent/graph/tools"
	"github.com/Chative-reservations/server/internal/agent/model"
	errx "github.com/Chative-reservations/server/internal/core/error"
	logx "github.com/Chative-reservations/server/pkg/logger"
)

// FallbackReply is the only user-visible text for a failed turn. It is never stored in history.
const FallbackReply = "Lo siento, ha ocurrido un problema al procesar tu mensaje. ¿Puedes intentarlo de nuevo en unos momentos?"

// Config holds everything needed to compose the orchestrator end-to-end.
// This is a convenience layer over GraphConfig that also constructs the Gemini chat models
// and the tool executor.
type Config struct {
	APIKey       string
	BaseURL      string
	ToolModel    model.ToolModelConfig
	ReplyModel   model.ReplyModelConfig
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
	Store        model.StateStore
	Gateway      tools.Gateway
}

// Build creates the chat models, the tool executor and the turn graph, and returns an Orchestrator.
func Build(ctx context.Context, cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("state store is nil")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("backend gateway is nil")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		ToolConfig:  &cfg.ToolModel,
		ReplyConfig: &cfg.ReplyModel,
	}, tools.Catalog())
	if err != nil {
		return nil, err
	}

	executor, err := tools.NewExecutor(cfg.Gateway, cfg.Conversation.RepeatWindow)
	if err != nil {
		return nil, err
	}

	mm := conversations.NewMessagesManager(cfg.Conversation)
	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModels:      cms,
		MessagesManager: mm,
		Tools:           executor,
		PromptConfig:    &cfg.Prompt,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Turn graph built successfully")
	return NewOrchestrator(runnable, cfg.Store, mm), nil
}

// Orchestrator turns one inbound message plus the stored conversation into one reply,
// with at most one round of tool execution.
type Orchestrator struct {
	runnable  compose.Runnable[model.TurnInput, *schema.Message]
	store     model.StateStore
	manager   *conversations.MessagesManager
	locker    *conversations.TurnLocker
	callbacks []einocb.Handler
	now       func() time.Time
}

type OrchestratorOption func(*Orchestrator)

// WithOrchestratorClock replaces the clock used for state timestamps.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithCallbacks replaces the eino callback handlers attached to each run.
func WithCallbacks(handlers ...einocb.Handler) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks = handlers }
}

func NewOrchestrator(
	runnable compose.Runnable[model.TurnInput, *schema.Message],
	store model.StateStore,
	manager *conversations.MessagesManager,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		runnable:  runnable,
		store:     store,
		manager:   manager,
		locker:    conversations.NewTurnLocker(),
		callbacks: []einocb.Handler{observers.NewAllCallbacks()},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleTurn processes one message. Turns for the same conversation are serialized.
// A failed model call still yields a result carrying FallbackReply; the returned error is
// reserved for invalid input, lock cancellation and state store failures. When saving the
// state fails the result is returned together with the error.
func (o *Orchestrator) HandleTurn(ctx context.Context, req model.TurnRequest) (*model.TurnResult, error) {
	id := strings.TrimSpace(req.ConversationID)
	if id == "" {
		return nil, errx.InvalidInput("conversation id is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, errx.InvalidInput("message is empty")
	}

	turnID := uuid.NewString()
	log := logx.With("conversation_id", id, "turn_id", turnID)
	ctx = logx.WithContext(ctx, log)

	unlock, err := o.locker.Lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("wait for conversation %s: %w", id, err)
	}
	defer unlock()

	state, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if state == nil {
		state = o.manager.NewState(id, o.now())
		log.Debug().Msg("new conversation")
	}

	message, inbound := o.manager.PrepareInbound(state, req.Message, req.Profile)
	snapshot := state.Clone()
	model.ApplyPatches(snapshot, inbound, o.now())
	record := &model.TurnRecord{TurnID: turnID, Snapshot: snapshot}

	out, runErr := o.runnable.Invoke(ctx, model.TurnInput{
		ConversationID: id,
		Message:        message,
		Record:         record,
	}, compose.WithCallbacks(o.callbacks...))

	reply := ""
	if runErr == nil && out != nil {
		reply = strings.TrimSpace(out.Content)
	}

	now := o.now()
	switch {
	case runErr != nil && len(record.Outcomes) == 0:
		// Nothing ran: keep the conversation as it was apart from the inbound message.
		log.Error().Err(runErr).Msg("turn failed before any tool ran")
	case runErr != nil:
		// Tools already wrote to the backend, so their effects are kept.
		log.Error().Err(runErr).Int("tool_calls", len(record.Outcomes)).Msg("reply generation failed after tools ran")
		model.ApplyPatches(state, append(inbound, record.Patches()...), now)
	default:
		model.ApplyPatches(state, append(inbound, record.Patches()...), now)
	}

	state.AppendHistory(model.RoleUser, message, now)
	if reply != "" {
		state.AppendHistory(model.RoleAssistant, reply, now)
	} else {
		if runErr == nil {
			log.Warn().Msg("model returned an empty reply")
		}
		reply = FallbackReply
	}

	result := &model.TurnResult{
		ConversationID: id,
		Reply:          reply,
		Action:         tools.DeriveAction(record.Outcomes),
	}

	log.Info().
		Int("tool_calls", len(record.Outcomes)).
		Bool("action", result.Action != nil).
		Float64("model_cost_usd", record.ModelCost).
		Str("intent", string(state.Intent)).
		Msg("turn completed")

	if err := o.store.Save(ctx, state); err != nil {
		log.Error().Err(err).Msg("failed to save conversation state")
		return result, fmt.Errorf("save conversation: %w", err)
	}
	return result, nil
}

// State returns the stored conversation, or nil when there is none.
func (o *Orchestrator) State(ctx context.Context, id string) (*model.ConversationState, error) {
	return o.store.Get(ctx, id)
}

// Reset deletes the stored conversation, waiting for any turn in flight on it.
func (o *Orchestrator) Reset(ctx context.Context, id string) error {
	unlock, err := o.locker.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("wait for conversation %s: %w", id, err)
	}
	defer unlock()

	if err := o.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	logx.Info().Str("conversation_id", id).Msg("conversation cleared")
	return nil
}

package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-reservations/server/internal/agent/graph/conversations"
	"github.com/Chative-reservations/server/internal/agent/graph/prompts"
	"github.com/Chative-reservations/server/internal/agent/model"
	"github.com/Chative-reservations/server/internal/backend"
	logx "github.com/Chative-reservations/server/pkg/logger"
)

// ToolRunner executes one tool call against a conversation snapshot.
type ToolRunner interface {
	Execute(ctx context.Context, snapshot *model.ConversationState, call schema.ToolCall) model.ToolOutcome
}

// NewInputConverterPreHandler binds the turn record to the graph state.
func NewInputConverterPreHandler() func(context.Context, model.TurnInput, *model.AppState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.AppState) (model.TurnInput, error) {
		if in.Record == nil || in.Record.Snapshot == nil {
			return in, fmt.Errorf("turn record is missing")
		}
		s.ConversationID = in.ConversationID
		s.Record = in.Record
		s.ToolCallIDSeq = 0
		return in, nil
	}
}

// NewInputConverterNode renders the system framing and builds the first-round model input:
// system prompt, recent history and the new user message.
func NewInputConverterNode(
	mm *conversations.MessagesManager,
	promptCfg *model.PromptConfig,
	now func() time.Time,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) ([]*schema.Message, error) {
		system, err := prompts.RenderSystem(ctx, *promptCfg, in.Record.Snapshot, now())
		if err != nil {
			return nil, fmt.Errorf("render system prompt: %w", err)
		}
		messages := mm.BuildContext([]*schema.Message{system}, in.Record.Snapshot, in.Message)
		in.Record.Messages = messages
		return messages, nil
	})
}

// NewToolChatModelPostHandler normalises tool call ids and accounts usage cost.
func NewToolChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		normalizeToolCallIDs(out, state)
		accountCost(ctx, modelName, NodeToolChatModel, out, state)
		if out != nil && len(out.ToolCalls) > 0 {
			logx.Ctx(ctx).Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		}
		return out, nil
	}
}

// NewReplyChatModelPostHandler accounts usage cost of the reply round.
func NewReplyChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		accountCost(ctx, modelName, NodeReplyChatModel, out, state)
		return out, nil
	}
}

func accountCost(ctx context.Context, modelName, node string, out *schema.Message, state *model.AppState) {
	cost, ok := model.ComputeCost(modelName, out)
	if !ok {
		return
	}
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["usage_cost"] = map[string]any{
		"currency":   "USD",
		"model":      modelName,
		"total_cost": cost.TotalCost,
	}
	if state.Record != nil {
		state.Record.ModelCost += cost.TotalCost
		out.Extra["usage_cost_total_usd"] = state.Record.ModelCost
	}
	logx.Ctx(ctx).Debug().
		Str("node", node).
		Float64("total_cost_usd", cost.TotalCost).
		Msg("turn cost updated")
}

// NewToolExecutorCondition routes to the tool executor when the model asked for tools.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		if input != nil && len(input.ToolCalls) > 0 {
			logx.Ctx(ctx).Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolExecutor")
			return NodeToolExecutor, nil
		}
		logx.Ctx(ctx).Debug().Msg("No tool calls - continuing to end")
		return compose.END, nil
	}
}

// NewToolExecutorNode runs the requested tools one by one, in the order the model returned
// them. Each outcome's patches are applied to the working snapshot before the next call.
// The node returns the reply-round input: first-round messages, the assistant tool call
// message and one tool message per call.
func NewToolExecutorNode(runner ToolRunner, now func() time.Time) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, assistant *schema.Message) ([]*schema.Message, error) {
		var record *model.TurnRecord
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			record = state.Record
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if record == nil {
			return nil, fmt.Errorf("turn record is missing")
		}

		messages := make([]*schema.Message, 0, len(record.Messages)+1+len(assistant.ToolCalls))
		messages = append(messages, record.Messages...)
		messages = append(messages, assistant)
		for _, call := range assistant.ToolCalls {
			outcome := runner.Execute(ctx, record.Snapshot, call)
			model.ApplyPatches(record.Snapshot, outcome.Patches, now())
			record.Outcomes = append(record.Outcomes, outcome)

			result := outcome.Result
			if result == nil {
				result = backend.Fail("Sin respuesta de la operación.")
			}
			messages = append(messages, toolMessage(outcome, backend.Result(result).JSON()))
		}
		return messages, nil
	})
}

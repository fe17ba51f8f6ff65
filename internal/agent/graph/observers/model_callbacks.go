package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	"github.com/Chative-reservations/server/internal/agent/model"
	"github.com/Chative-reservations/server/internal/backend"
	logx "github.com/Chative-reservations/server/pkg/logger"
)

// newModelHandler logs model calls and their priced token usage.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *einomodel.CallbackInput) context.Context {
			ev := logx.Ctx(ctx).Debug().Str("node", info.Name)
			if input != nil {
				ev = ev.Int("messages", len(input.Messages)).Int("tools", len(input.Tools))
				if um := lastUserContent(input.Messages); um != "" {
					ev = ev.Str("user", backend.MaskPII(um))
				}
			}
			ev.Msg("model start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *einomodel.CallbackOutput) context.Context {
			if output == nil || output.Message == nil {
				return ctx
			}
			ev := logx.Ctx(ctx).Debug().
				Str("node", info.Name).
				Int("tool_calls", len(output.Message.ToolCalls))
			if content := strings.TrimSpace(output.Message.Content); content != "" {
				ev = ev.Str("assistant", backend.MaskPII(content))
			}
			ev.Msg("model end")

			name := ""
			if output.Config != nil {
				name = output.Config.Model
			}
			if cost, ok := model.ComputeCost(name, output.Message); ok {
				logx.Ctx(ctx).Debug().
					Str("node", info.Name).
					Str("model", cost.Model).
					Int("prompt_tokens", cost.PromptTokens).
					Int("completion_tokens", cost.CompletionTokens).
					Int("total_tokens", cost.TotalTokens).
					Float64("input_cost_usd", cost.InputCost).
					Float64("output_cost_usd", cost.OutputCost).
					Float64("total_cost_usd", cost.TotalCost).
					Msg("LLM usage")
			}
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Ctx(ctx).Error().Err(err).Str("node", info.Name).Msg("model call failed")
			return ctx
		},
	}
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

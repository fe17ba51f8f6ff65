package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	"github.com/Chative-reservations/server/internal/backend"
	logx "github.com/Chative-reservations/server/pkg/logger"
)

// newToolHandler logs tool inputs and outputs with personal data masked.
func newToolHandler() *callbackHelper.ToolCallbackHandler {
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			if input != nil {
				logx.Ctx(ctx).Debug().
					Str("tool", info.Name).
					Str("input", backend.MaskPII(input.ArgumentsInJSON)).
					Msg("tool start")
			}
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			if output != nil {
				logx.Ctx(ctx).Debug().
					Str("tool", info.Name).
					Str("output", backend.MaskPII(output.Response)).
					Msg("tool end")
			}
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Ctx(ctx).Error().Err(err).Str("tool", info.Name).Msg("tool failed")
			return ctx
		},
	}
}

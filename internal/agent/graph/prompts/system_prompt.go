package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-reservations/server/internal/agent/graph/tools"
	"github.com/Chative-reservations/server/internal/agent/model"
)

//go:embed template/system_prompt.txt
var systemPrompt string

var weekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

// RenderSystem renders the system framing for one turn from the conversation state.
// It goes through the eino prompt component so prompt callbacks fire.
func RenderSystem(ctx context.Context, config model.PromptConfig, state *model.ConversationState, now time.Time) (*schema.Message, error) {
	if state == nil {
		return nil, fmt.Errorf("system prompt render: state is nil")
	}
	if loc, err := time.LoadLocation(config.Timezone); err == nil {
		now = now.In(loc)
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(systemPrompt),
	)
	vars := map[string]any{
		"RestaurantName":     config.RestaurantName,
		"Today":              now.Format("2006-01-02"),
		"Weekday":            weekdays[now.Weekday()],
		"Now":                now.Format("15:04"),
		"Timezone":           config.Timezone,
		"CheckTool":          tools.CheckAvailability,
		"CreateTool":         tools.CreateReservation,
		"Intent":             string(state.Intent),
		"Filled":             formatFields(state.FilledFields),
		"Missing":            strings.Join(state.MissingFields, ", "),
		"ReadyToCreate":      state.ReadyToCreate,
		"Pending":            formatInline(state.PendingReservation),
		"RepeatedCheck":      state.RepeatedCheckWarning,
		"CurrentReservation": formatInline(state.CurrentReservation),
		"LastCode":           state.LastReservationCode,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return nil, fmt.Errorf("system prompt render: empty result")
	}
	return msgs[0], nil
}

func formatFields(fields map[string]any) []string {
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, 0, len(fields))
	for k, v := range fields {
		out = append(out, fmt.Sprintf("%s: %v", k, v))
	}
	sort.Strings(out)
	return out
}

func formatInline(fields map[string]any) string {
	return strings.Join(formatFields(fields), ", ")
}

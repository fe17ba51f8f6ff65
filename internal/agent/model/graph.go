package model

import (
	"github.com/cloudwego/eino/schema"
)

// CallerProfile is channel-provided identity used to seed a new conversation.
type CallerProfile struct {
	Phone string
	Name  string
}

// TurnRequest is one inbound message handed to the orchestrator.
type TurnRequest struct {
	ConversationID string         `json:"conversation_id"`
	Message        string         `json:"message"`
	Profile        *CallerProfile `json:"-"`
}

// TurnResult is the outcome of one turn.
type TurnResult struct {
	ConversationID string  `json:"conversation_id"`
	Reply          string  `json:"reply"`
	Action         *Action `json:"structured_action,omitempty"`
}

// TurnRecord is owned by the orchestrator for the duration of one turn and shared with
// the graph nodes through AppState. Snapshot is a working copy of the conversation:
// tool patches are applied to it as calls complete so later calls see earlier effects,
// and the same patches are committed to the stored state once the turn finishes.
type TurnRecord struct {
	TurnID    string
	Snapshot  *ConversationState
	Messages  []*schema.Message // first-round model input
	Outcomes  []ToolOutcome
	ModelCost float64
}

// Patches returns the patches of all outcomes in execution order.
func (r *TurnRecord) Patches() []StatePatch {
	var out []StatePatch
	for _, o := range r.Outcomes {
		out = append(out, o.Patches...)
	}
	return out
}

// AppState is the eino graph local state.
// Concurrency model:
//   - Registered via compose.WithGenLocalState; read and written only inside state
//     handlers or compose.ProcessState.
//   - Record points at the orchestrator's TurnRecord so results survive a failed Invoke.
type AppState struct {
	ConversationID string
	Record         *TurnRecord
	ToolCallIDSeq  int
}

// TurnInput is the graph input. Message is the prepared (truncated) inbound text;
// Record.Snapshot already carries this turn's inbound patches.
type TurnInput struct {
	ConversationID string
	Message        string
	Record         *TurnRecord
}

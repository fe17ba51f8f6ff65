package conversations

import (
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-reservations/server/internal/agent/model"
	"github.com/Chative-reservations/server/internal/backend"
)

type MessagesManager struct {
	modelTurns       int
	maxMessageLength int
	historyMax       int
}

func NewMessagesManager(config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		modelTurns:       config.ModelTurns,
		maxMessageLength: config.MaxMessageLength,
		historyMax:       config.HistoryMax,
	}
}

// NewState creates the state for a conversation seen for the first time.
func (cm *MessagesManager) NewState(conversationID string, now time.Time) *model.ConversationState {
	return model.NewConversationState(conversationID, cm.historyMax, now)
}

// =========== Inbound message ===========

// PrepareInbound normalises the inbound text and returns the state patches it implies:
// profile seeding on a new conversation, keyword intent detection while no intent is set,
// and reservation code extraction for modify and cancel.
func (cm *MessagesManager) PrepareInbound(state *model.ConversationState, text string, profile *model.CallerProfile) (string, []model.StatePatch) {
	text = TruncateMessage(text, cm.maxMessageLength)

	var patches []model.StatePatch
	if profile != nil && len(state.History) == 0 {
		seed := map[string]any{}
		if profile.Phone != "" {
			seed[model.FieldPhone] = profile.Phone
		}
		if profile.Name != "" {
			seed[model.FieldName] = profile.Name
		}
		if len(seed) > 0 {
			patches = append(patches, model.MergeFieldsPatch{Fields: seed})
		}
	}

	intent := state.Intent
	if intent == model.IntentNone {
		if detected := DetectIntent(text); detected != model.IntentNone {
			intent = detected
			patches = append(patches, model.SetIntentPatch{Intent: detected})
		}
	}

	if intent == model.IntentModify || intent == model.IntentCancel {
		if code, ok := backend.FindReservationCode(text); ok {
			patches = append(patches, model.MergeFieldsPatch{Fields: map[string]any{model.FieldCode: code.String()}})
		}
	}
	return text, patches
}

// =========== Model context ===========

// BuildContext assembles the first-round model input: the system framing, the most recent
// history turns and the new user message.
func (cm *MessagesManager) BuildContext(system []*schema.Message, state *model.ConversationState, message string) []*schema.Message {
	history := make([]*schema.Message, 0, len(state.History))
	for _, h := range state.History {
		if h.Content == "" {
			continue
		}
		switch h.Role {
		case model.RoleUser:
			history = append(history, schema.UserMessage(h.Content))
		case model.RoleAssistant:
			history = append(history, schema.AssistantMessage(h.Content, nil))
		}
	}

	messages := make([]*schema.Message, 0, len(system)+cm.modelTurns+1)
	messages = append(messages, system...)
	messages = append(messages, trimTail(history, cm.modelTurns)...)
	messages = append(messages, schema.UserMessage(message))
	return messages
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 {
		return nil
	}
	if len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}

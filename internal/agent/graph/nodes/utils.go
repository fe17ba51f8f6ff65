package nodes

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-reservations/server/internal/agent/model"
)

// Graph node keys.
const (
	NodeInputConverter = "InputConverter"
	NodeToolChatModel  = "ToolChatModel"
	NodeToolExecutor   = "ToolExecutor"
	NodeReplyChatModel = "ReplyChatModel"
)

// normalizeToolCallIDs fills missing tool call ids; some providers omit them and the
// reply round needs each tool message tied to its call.
func normalizeToolCallIDs(msg *schema.Message, state *model.AppState) {
	if msg == nil {
		return
	}
	for i := range msg.ToolCalls {
		if strings.TrimSpace(msg.ToolCalls[i].ID) == "" {
			state.ToolCallIDSeq++
			msg.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
		}
	}
}

// toolMessage wraps an outcome as the tool result message of the reply round.
func toolMessage(o model.ToolOutcome, content string) *schema.Message {
	msg := schema.ToolMessage(content, o.CallID)
	msg.ToolName = o.Name
	return msg
}

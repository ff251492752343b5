package tools

import (
	"context"
	"fmt"

	"github.com/janus-run/janus/internal/bus"
)

// MessageTool delivers a message via the bus's outbound queue, adapted
// from the teacher's pkg/tools/message.go callback shape to publish
// through bus.MessageBus directly instead of a free-floating
// SendCallback.
type MessageTool struct {
	msgBus         *bus.MessageBus
	defaultChannel string
	defaultChatID  string
	sentInRound    bool
}

func NewMessageTool(msgBus *bus.MessageBus) *MessageTool {
	return &MessageTool{msgBus: msgBus}
}

func (t *MessageTool) Name() string { return "message" }
func (t *MessageTool) Description() string {
	return "Send a message to the user on a chat channel."
}
func (t *MessageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{"type": "string", "description": "The message content to send"},
			"channel": map[string]interface{}{"type": "string", "description": "Optional: target channel"},
			"chat_id": map[string]interface{}{"type": "string", "description": "Optional: target chat/user ID"},
		},
		"required": []string{"content"},
	}
}

func (t *MessageTool) SetContext(ctx ExecContext) {
	t.defaultChannel = ctx.Channel
	t.defaultChatID = ctx.ChatID
	t.sentInRound = false
}

// HasSentInRound reports whether the tool already delivered a message this
// processing round (used by the agent loop to suppress a duplicate final
// reply when the model used `message` instead of returning content).
func (t *MessageTool) HasSentInRound() bool { return t.sentInRound }

func (t *MessageTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	content, ok := args["content"].(string)
	if !ok || content == "" {
		return ErrorResult("content is required")
	}

	channel, _ := args["channel"].(string)
	chatID, _ := args["chat_id"].(string)
	if channel == "" {
		channel = t.defaultChannel
	}
	if chatID == "" {
		chatID = t.defaultChatID
	}
	if channel == "" || chatID == "" {
		return ErrorResult("no target channel/chat specified")
	}
	if t.msgBus == nil {
		return ErrorResult("message sending not configured")
	}

	if err := t.msgBus.PublishOutbound(ctx, bus.OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: content,
		Type:    "message",
	}); err != nil {
		return &ToolResult{ForLLM: fmt.Sprintf("sending message: %v", err), IsError: true, Err: err}
	}

	t.sentInRound = true
	return SilentResult(fmt.Sprintf("Message sent to %s:%s", channel, chatID))
}

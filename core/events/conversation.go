package events

import (
	"time"

	"github.com/embodiedlab/avatar-core/core/llms"
)

// KindUserMessageSent identifies the user message appended to history.
const KindUserMessageSent Kind = "conversation.user_message_sent"

// UserMessageSent carries the transcribed user message together with the
// time capture began for the turn that produced it.
type UserMessageSent struct {
	Base
	Message   llms.Message
	TurnStart time.Time
}

// NewUserMessageSent creates a user message sent event.
func NewUserMessageSent(message llms.Message, turnStart time.Time) UserMessageSent {
	return UserMessageSent{Base: NewBase(KindUserMessageSent), Message: message, TurnStart: turnStart}
}

// KindAIResponseReceived identifies a parsed assistant reply.
const KindAIResponseReceived Kind = "conversation.ai_response_received"

// AIResponseReceived carries the assistant message appended to history.
type AIResponseReceived struct {
	Base
	Message llms.Message
}

// NewAIResponseReceived creates an AI response received event.
func NewAIResponseReceived(message llms.Message) AIResponseReceived {
	return AIResponseReceived{Base: NewBase(KindAIResponseReceived), Message: message}
}

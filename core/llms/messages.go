package llms

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation history. Messages are immutable
// once created; history hands out copies.
type Message struct {
	Role    Role
	Content string

	// Payload carries optional structured context serialized into the
	// message (gaze data, scene objects). Nil for plain messages.
	Payload map[string]any
}

func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func NewUserMessage(content string, payload map[string]any) Message {
	return Message{Role: RoleUser, Content: content, Payload: payload}
}

func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

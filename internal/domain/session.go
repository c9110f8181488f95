package domain

// ChatRole identifies the speaker of a ChatTurn
type ChatRole string

const (
	ChatRoleHuman     ChatRole = "human"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatTurn is one message in a session log
type ChatTurn struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}

// HumanTurn creates a human ChatTurn
func HumanTurn(text string) ChatTurn {
	return ChatTurn{Role: ChatRoleHuman, Text: text}
}

// AssistantTurn creates an assistant ChatTurn
func AssistantTurn(text string) ChatTurn {
	return ChatTurn{Role: ChatRoleAssistant, Text: text}
}

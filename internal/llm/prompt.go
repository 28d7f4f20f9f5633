package llm

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is the full input to a completion call.
type Prompt struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
}

// NewPrompt builds a single-turn prompt.
func NewPrompt(system, user string) *Prompt {
	return &Prompt{
		SystemPrompt: system,
		Messages:     []Message{{Role: RoleUser, Content: user}},
	}
}

// ChatMessages flattens the prompt into role/content pairs with the system
// message first, the shape chat endpoints expect.
func (p *Prompt) ChatMessages() []Message {
	msgs := make([]Message, 0, len(p.Messages)+1)
	if p.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: p.SystemPrompt})
	}
	return append(msgs, p.Messages...)
}

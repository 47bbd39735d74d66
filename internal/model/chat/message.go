package chat

// Message roles accepted in a recorded conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a multi-turn submission.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

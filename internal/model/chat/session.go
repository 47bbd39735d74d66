package chat

import (
	"strings"
	"time"
)

// Session holds a submitted prompt until it is streamed once.
type Session struct {
	ID         string    `json:"id"`
	Payload    Payload   `json:"payload"`
	CreatedAt  time.Time `json:"createdAt"`
	ConsumedAt time.Time `json:"consumedAt,omitempty"`
}

// Consumed reports whether the session was already handed to a stream.
func (s Session) Consumed() bool {
	return !s.ConsumedAt.IsZero()
}

// Payload is either a single prompt or a recorded multi-turn sequence.
type Payload struct {
	Prompt   string    `json:"prompt,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

// Empty 判断载荷是否没有任何可发送的内容。
func (p Payload) Empty() bool {
	if strings.TrimSpace(p.Prompt) != "" {
		return false
	}
	for _, msg := range p.Messages {
		if strings.TrimSpace(msg.Content) != "" {
			return false
		}
	}
	return true
}

// Query returns the text used for retrieval: the prompt, or the last user turn.
func (p Payload) Query() string {
	if strings.TrimSpace(p.Prompt) != "" {
		return p.Prompt
	}
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == RoleUser && strings.TrimSpace(p.Messages[i].Content) != "" {
			return p.Messages[i].Content
		}
	}
	return ""
}

// Clone returns a copy that does not share the message slice.
func (p Payload) Clone() Payload {
	out := Payload{Prompt: p.Prompt}
	if len(p.Messages) > 0 {
		out.Messages = append([]Message(nil), p.Messages...)
	}
	return out
}

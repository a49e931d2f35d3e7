package llm

import "context"

// Message is one prior exchange entry, role "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Media is an optional payload attached to the latest user message.
type Media struct {
	Bytes    []byte
	MIMEType string
}

// Request carries everything a provider needs for one completion.
type Request struct {
	SystemPrompt string
	Messages     []Message
	Media        *Media
}

// Client generates a single reply for an assembled request.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

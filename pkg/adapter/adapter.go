package adapter

import (
	"context"
	"strings"
)

// Message roles understood by every adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral generation request.
type Request struct {
	Model       string
	Messages    []Message
	MaxOutput   int
	Temperature float64
}

// Adapter defines the interface for model providers.
type Adapter interface {
	// Generate sends the messages to the provider and returns its answer.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name returns the adapter identifier.
	Name() string
}

// Prompt flattens messages into a single string, used for hashing and for
// providers without a structured system channel.
func Prompt(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Role+": "+m.Content)
	}
	return strings.Join(parts, "\n\n")
}

func splitSystem(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

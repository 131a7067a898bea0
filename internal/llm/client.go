package llm

import "context"

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is the minimal surface the rest of the system needs from a
// language model. Implementations must be safe for concurrent use.
type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}

package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// Request carries one completion call. ChannelKey selects the rate window.
type Request struct {
	History      []Message
	SystemPrompt string
	Model        string
	Temperature  float64
	ChannelKey   string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Limiter is satisfied by *ratelimit.Limiter.
type Limiter interface {
	CheckAndRecord(key string) error
}

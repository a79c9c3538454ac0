package llm

import (
	"context"

	"ai-cycle-planner/internal/shared"
)

// Request is a single generation call to a provider.
type Request struct {
	SystemMessage string
	UserMessage   string
	Model         string
	Temperature   float32
	MaxTokens     int
}

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// TextGenerator is an interface for generating text from a request.
type TextGenerator interface {
	GenerateContent(ctx context.Context, req Request) (ContentResponse, error)
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}

package narrative

import "context"

// Prompt is one text generation request.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	// JSON asks backends that support it for a JSON-only response.
	JSON bool
}

// Backend is the request/response contract of a text generation service.
type Backend interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, p Prompt) (string, error)

// Complete implements Backend.
func (f BackendFunc) Complete(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }

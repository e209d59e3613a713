package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/okian/kline/internal/adapters/narrative"
)

// Gemini is a backend on the Google GenAI SDK.
type Gemini struct {
	cfg    Config
	client *genai.Client
}

var _ narrative.Backend = (*Gemini)(nil)

// NewGemini returns a Gemini backend for a resolved cfg. A non-empty
// BaseURL overrides the SDK endpoint.
func NewGemini(cfg Config) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL + "/"}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("%w: create genai client: %w", narrative.ErrTransport, err)
	}
	return &Gemini{cfg: cfg, client: client}, nil
}

// Complete implements narrative.Backend.
func (g *Gemini) Complete(ctx context.Context, p narrative.Prompt) (string, error) {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(p.Temperature)),
	}
	if n := firstPositive(p.MaxTokens, g.cfg.MaxTokens); n > 0 {
		gc.MaxOutputTokens = int32(n)
	}
	if p.JSON {
		gc.ResponseMIMEType = "application/json"
	}
	if p.System != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: p.System}}}
	}

	res, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(p.User), gc)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
			return "", fmt.Errorf("%w: gemini: %w", narrative.ErrAuth, err)
		}
		return "", fmt.Errorf("%w: gemini: %w", narrative.ErrTransport, err)
	}
	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned no text", narrative.ErrParse)
	}
	return text, nil
}

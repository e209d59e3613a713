package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/kline/internal/adapters/narrative"
)

const anthropicVersion = "2023-06-01"

type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Messages is a backend speaking the Anthropic messages protocol.
type Messages struct {
	cfg    Config
	client *http.Client
}

var _ narrative.Backend = (*Messages)(nil)

// NewMessages returns a Messages backend for a resolved cfg.
func NewMessages(cfg Config, client *http.Client) *Messages {
	if client == nil {
		client = &http.Client{}
	}
	return &Messages{cfg: cfg, client: client}
}

// Complete implements narrative.Backend.
func (m *Messages) Complete(ctx context.Context, p narrative.Prompt) (string, error) {
	body := messagesRequest{
		Model:       m.cfg.Model,
		System:      p.System,
		Messages:    []chatMessage{{Role: "user", Content: p.User}},
		MaxTokens:   firstPositive(p.MaxTokens, m.cfg.MaxTokens, 4096),
		Temperature: p.Temperature,
	}
	raw, err := post(ctx, m.client, m.cfg.Provider, m.cfg.BaseURL+"/messages", body, map[string]string{
		"x-api-key":         m.cfg.APIKey,
		"anthropic-version": anthropicVersion,
	})
	if err != nil {
		return "", err
	}
	var resp messagesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: %s response: %w", narrative.ErrTransport, m.cfg.Provider, err)
	}
	var b strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: %s returned no text", narrative.ErrParse, m.cfg.Provider)
	}
	return b.String(), nil
}

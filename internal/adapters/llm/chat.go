package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/kline/internal/adapters/narrative"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat is a backend speaking the OpenAI-compatible chat completions
// protocol (kimi, deepseek and custom endpoints).
type Chat struct {
	cfg    Config
	client *http.Client
}

var _ narrative.Backend = (*Chat)(nil)

// NewChat returns a Chat backend for a resolved cfg.
func NewChat(cfg Config, client *http.Client) *Chat {
	if client == nil {
		client = &http.Client{}
	}
	return &Chat{cfg: cfg, client: client}
}

// Complete implements narrative.Backend.
func (c *Chat) Complete(ctx context.Context, p narrative.Prompt) (string, error) {
	body := chatRequest{
		Model:       c.cfg.Model,
		MaxTokens:   firstPositive(p.MaxTokens, c.cfg.MaxTokens),
		Temperature: p.Temperature,
	}
	if p.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: p.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: p.User})

	raw, err := post(ctx, c.client, c.cfg.Provider, c.cfg.BaseURL+"/chat/completions", body, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	})
	if err != nil {
		return "", err
	}
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: %s response: %w", narrative.ErrTransport, c.cfg.Provider, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: %s returned no content", narrative.ErrParse, c.cfg.Provider)
	}
	return resp.Choices[0].Message.Content, nil
}

// post sends a JSON body and returns the response body of a 2xx reply.
func post(ctx context.Context, client *http.Client, provider, url string, body any, headers map[string]string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %s request: %w", narrative.ErrTransport, provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", narrative.ErrTransport, provider, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s body: %w", narrative.ErrTransport, provider, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, statusError(provider, res.StatusCode, raw)
	}
	return raw, nil
}

func firstPositive(vs ...int) int {
	for _, v := range vs {
		if v > 0 {
			return v
		}
	}
	return 0
}

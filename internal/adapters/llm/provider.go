// Package llm implements narrative.Backend for the supported text
// generation providers and guards them with a circuit breaker and a rate
// limiter.
package llm

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/kline/internal/adapters/narrative"
)

// Supported providers.
const (
	ProviderKimi     = "kimi"
	ProviderDeepSeek = "deepseek"
	ProviderGemini   = "gemini"
	ProviderClaude   = "claude"
	ProviderCustom   = "custom"
)

type protocol int

const (
	protocolChat protocol = iota
	protocolGemini
	protocolMessages
)

type preset struct {
	baseURL  string
	model    string
	protocol protocol
}

var presets = map[string]preset{
	ProviderKimi:     {baseURL: "https://api.moonshot.cn/v1", model: "kimi-k2-0905-preview", protocol: protocolChat},
	ProviderDeepSeek: {baseURL: "https://api.deepseek.com/v1", model: "deepseek-chat", protocol: protocolChat},
	ProviderGemini:   {model: "gemini-3.0-flash", protocol: protocolGemini},
	ProviderClaude:   {baseURL: "https://api.anthropic.com/v1", model: "claude-opus-4-5-20251124", protocol: protocolMessages},
	ProviderCustom:   {protocol: protocolChat},
}

// Providers lists the supported provider names.
func Providers() []string {
	return []string{ProviderKimi, ProviderDeepSeek, ProviderGemini, ProviderClaude, ProviderCustom}
}

// Config selects and tunes a backend.
type Config struct {
	Provider string `koanf:"provider" json:"provider"`
	APIKey   string `koanf:"api_key" json:"-"`
	// BaseURL overrides the provider default. Required for custom.
	BaseURL string `koanf:"base_url" json:"base_url,omitempty"`
	// Model overrides the provider default. Required for custom.
	Model            string        `koanf:"model" json:"model,omitempty"`
	Timeout          time.Duration `koanf:"timeout" json:"timeout"`
	MaxTokens        int           `koanf:"max_tokens" json:"max_tokens"`
	Temperature      float64       `koanf:"temperature" json:"temperature"`
	RateLimit        float64       `koanf:"rate_limit" json:"rate_limit"`
	BreakerThreshold uint32        `koanf:"breaker_threshold" json:"breaker_threshold"`
}

// DefaultConfig returns the shipped backend settings without credentials.
func DefaultConfig() Config {
	return Config{
		Provider:         ProviderDeepSeek,
		Timeout:          3 * time.Minute,
		MaxTokens:        8192,
		Temperature:      0.7,
		RateLimit:        1,
		BreakerThreshold: 3,
	}
}

// Resolve fills provider defaults and checks the result is usable.
// A missing API key is an auth error so that callers fall back.
func (c Config) Resolve() (Config, error) {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	p, ok := presets[c.Provider]
	if !ok {
		return c, fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}
	if c.BaseURL == "" {
		c.BaseURL = p.baseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = p.model
	}
	if c.BaseURL == "" && p.protocol != protocolGemini {
		return c, fmt.Errorf("%w: %s requires a base URL", ErrIncompleteConfig, c.Provider)
	}
	if c.Model == "" {
		return c, fmt.Errorf("%w: %s requires a model", ErrIncompleteConfig, c.Provider)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return c, fmt.Errorf("%w: no API key for %s", narrative.ErrAuth, c.Provider)
	}
	return c, nil
}

// Option configures New.
type Option func(*options)

type options struct {
	httpClient *http.Client
	guard      []GuardOption
}

// WithHTTPClient sets the HTTP client of HTTP-based backends.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithGuardOptions forwards options to the Guard wrapping the backend.
func WithGuardOptions(opts ...GuardOption) Option {
	return func(o *options) { o.guard = append(o.guard, opts...) }
}

// New resolves cfg and returns the guarded backend for its provider.
func New(cfg Config, opts ...Option) (*Guard, error) {
	cfg, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	o := options{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}

	var b narrative.Backend
	switch presets[cfg.Provider].protocol {
	case protocolGemini:
		b, err = NewGemini(cfg)
		if err != nil {
			return nil, err
		}
	case protocolMessages:
		b = NewMessages(cfg, o.httpClient)
	default:
		b = NewChat(cfg, o.httpClient)
	}

	gopts := []GuardOption{
		WithTimeout(cfg.Timeout),
		WithRateLimit(cfg.RateLimit, 1),
		WithBreakerThreshold(cfg.BreakerThreshold),
	}
	return NewGuard(b, cfg.Provider, append(gopts, o.guard...)...), nil
}

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nfscan/nfscan/internal/common"
)

// Gateway dispatches prompts to the configured provider and normalizes every
// response into an Envelope. Provider, model and secret are resolved once at
// construction, not per call.
type Gateway struct {
	provider Provider
	logger   *slog.Logger
}

// NewGateway resolves the provider variant from configuration. Adding a
// provider means adding a case here and a file next to openai.go.
func NewGateway(cfg common.LLMConfig, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var provider Provider
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY", common.ErrMissingCredential)
		}
		provider = newOpenAIProvider(cfg.OpenAIKey, cfg.Model, "", cfg.Timeout, logger)
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY", common.ErrMissingCredential)
		}
		provider = newAnthropicProvider(cfg.AnthropicKey, cfg.Model, "", cfg.Timeout, logger)
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedProvider, cfg.Provider)
	}

	return &Gateway{provider: provider, logger: logger}, nil
}

// NewGatewayWithProvider wires an explicit provider. Tests use this with
// httptest-backed providers.
func NewGatewayWithProvider(p Provider, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{provider: p, logger: logger}
}

// Send submits the prompt and wraps the provider reply in an Envelope. A
// single failed attempt surfaces immediately; retry is the caller's decision.
func (g *Gateway) Send(ctx context.Context, prompt string) (*Envelope, error) {
	content, raw, err := g.provider.Send(ctx, prompt)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("llm reply normalized",
		"provider", g.provider.Name(),
		"model", g.provider.Model(),
		"content_chars", len(content),
		"raw_bytes", len(raw),
	)
	return &Envelope{
		Provider: g.provider.Name(),
		Model:    g.provider.Model(),
		Content:  content,
		Raw:      raw,
	}, nil
}

// LazyGateway defers provider resolution to the first Send. Commands that
// never reach the LLM stage run without a provider credential; a missing
// secret surfaces as ErrMissingCredential from Send itself.
type LazyGateway struct {
	cfg    common.LLMConfig
	logger *slog.Logger

	once sync.Once
	gw   *Gateway
	err  error
}

func NewLazyGateway(cfg common.LLMConfig, logger *slog.Logger) *LazyGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &LazyGateway{cfg: cfg, logger: logger}
}

func (g *LazyGateway) Send(ctx context.Context, prompt string) (*Envelope, error) {
	g.once.Do(func() {
		g.gw, g.err = NewGateway(g.cfg, g.logger)
	})
	if g.err != nil {
		return nil, g.err
	}
	return g.gw.Send(ctx, prompt)
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicDefaultModel   = "claude-3-5-sonnet-latest"
	anthropicVersion        = "2023-06-01"
	anthropicMaxTokens      = 1000

	anthropicSystemPrompt = "Você é um assistente que extrai e valida dados de notas fiscais."
)

// anthropicProvider talks to the messages API and concatenates text-typed
// content blocks.
type anthropicProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

func newAnthropicProvider(apiKey, model, baseURL string, timeout time.Duration, logger *slog.Logger) *anthropicProvider {
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	if model == "" {
		model = anthropicDefaultModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &anthropicProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (p *anthropicProvider) Name() string  { return "anthropic" }
func (p *anthropicProvider) Model() string { return p.model }

func (p *anthropicProvider) Send(ctx context.Context, prompt string) (string, json.RawMessage, error) {
	body := map[string]any{
		"model":      p.model,
		"max_tokens": anthropicMaxTokens,
		"system":     anthropicSystemPrompt,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
	}
	url := strings.TrimRight(p.baseURL, "/") + "/v1/messages"
	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}

	raw, status, err := postJSON(ctx, p.client, url, body, headers, p.logger)
	if err != nil {
		return "", nil, fmt.Errorf("anthropic: %w", err)
	}
	if status/100 != 2 {
		return "", nil, &ProviderError{Provider: "anthropic", Status: status, Body: string(raw)}
	}

	var msg struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", raw, fmt.Errorf("decode anthropic response: %w", err)
	}
	var b strings.Builder
	for _, blk := range msg.Content {
		if blk.Type == "text" {
			b.WriteString(blk.Text)
		}
	}
	return b.String(), raw, nil
}

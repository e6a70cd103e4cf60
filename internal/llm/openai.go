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
	openaiDefaultBaseURL = "https://api.openai.com/v1"
	openaiDefaultModel   = "gpt-4o-mini"

	openaiSystemPrompt = "Você é um assistente que extrai e valida dados de notas fiscais brasileiras. " +
		"Usei OCR (Tesseract com suporte a Português) para extrair os dados de uma nota fiscal, " +
		"você extrai os dados da nota fiscal de forma normalizada em formato json"
)

// openaiProvider talks to the chat-completions API and reads the first
// choice's message content.
type openaiProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

func newOpenAIProvider(apiKey, model, baseURL string, timeout time.Duration, logger *slog.Logger) *openaiProvider {
	if baseURL == "" {
		baseURL = openaiDefaultBaseURL
	}
	if model == "" {
		model = openaiDefaultModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &openaiProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (p *openaiProvider) Name() string  { return "openai" }
func (p *openaiProvider) Model() string { return p.model }

func (p *openaiProvider) Send(ctx context.Context, prompt string) (string, json.RawMessage, error) {
	body := map[string]any{
		"model": p.model,
		"messages": []map[string]any{
			{"role": "system", "content": openaiSystemPrompt},
			{"role": "user", "content": prompt},
		},
	}
	url := strings.TrimRight(p.baseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}

	raw, status, err := postJSON(ctx, p.client, url, body, headers, p.logger)
	if err != nil {
		return "", nil, fmt.Errorf("openai: %w", err)
	}
	if status/100 != 2 {
		return "", nil, &ProviderError{Provider: "openai", Status: status, Body: string(raw)}
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", raw, fmt.Errorf("decode openai response: %w", err)
	}
	var content string
	if len(cc.Choices) > 0 {
		content = cc.Choices[0].Message.Content
	}
	return content, raw, nil
}

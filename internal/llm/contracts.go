package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Envelope is the normalized LLM response, independent of provider shape.
// Content is always a string, even when the provider returned no usable text.
// Raw keeps the provider's untouched response payload for audit/debugging.
type Envelope struct {
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Content  string          `json:"content"`
	Raw      json.RawMessage `json:"raw"`
}

// Provider is the capability each LLM backend implements. The gateway's job
// is solely normalization; callers never see provider-specific shapes.
type Provider interface {
	Name() string
	Model() string
	Send(ctx context.Context, prompt string) (content string, raw json.RawMessage, err error)
}

// ProviderError carries the HTTP status and body of a non-success provider
// response.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Body)
}

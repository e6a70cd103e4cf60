package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nfscan/nfscan/internal/common"
)

func TestNewGatewayUnsupportedProvider(t *testing.T) {
	_, err := NewGateway(common.LLMConfig{Provider: "mistral", OpenAIKey: "k"}, nil)
	if !errors.Is(err, common.ErrUnsupportedProvider) {
		t.Fatalf("err = %v, want ErrUnsupportedProvider", err)
	}
}

func TestNewGatewayMissingCredential(t *testing.T) {
	for _, provider := range []string{"openai", "anthropic"} {
		_, err := NewGateway(common.LLMConfig{Provider: provider}, nil)
		if !errors.Is(err, common.ErrMissingCredential) {
			t.Errorf("provider %s: err = %v, want ErrMissingCredential", provider, err)
		}
	}
}

func TestNewGatewayProviderCaseInsensitive(t *testing.T) {
	g, err := NewGateway(common.LLMConfig{Provider: "OpenAI", OpenAIKey: "k"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if g.provider.Name() != "openai" {
		t.Errorf("provider = %q, want openai", g.provider.Name())
	}
}

func TestOpenAIProviderSend(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"itens\": []}"}}]}`))
	}))
	defer srv.Close()

	p := newOpenAIProvider("sk-test", "", srv.URL, 0, nil)
	content, raw, err := p.Send(context.Background(), "Texto OCR")
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v, want default gpt-4o-mini", gotBody["model"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v, want system + user", gotBody["messages"])
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message = %v, want system role", msgs[0])
	}
	if content != `{"itens": []}` {
		t.Errorf("content = %q", content)
	}
	if !json.Valid(raw) {
		t.Errorf("raw is not valid JSON: %s", raw)
	}
}

func TestOpenAIProviderNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit"}}`))
	}))
	defer srv.Close()

	p := newOpenAIProvider("sk-test", "", srv.URL, 0, nil)
	_, _, err := p.Send(context.Background(), "x")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *ProviderError", err)
	}
	if perr.Status != http.StatusTooManyRequests || perr.Provider != "openai" {
		t.Errorf("got %+v", perr)
	}
	if !strings.Contains(perr.Body, "rate limit") {
		t.Errorf("body = %q, want upstream payload retained", perr.Body)
	}
}

func TestAnthropicProviderSend(t *testing.T) {
	var gotKey, gotVersion, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"itens\": "},{"type":"tool_use","id":"x"},{"type":"text","text":"[]}"}]}`))
	}))
	defer srv.Close()

	p := newAnthropicProvider("ak-test", "", srv.URL, 0, nil)
	content, _, err := p.Send(context.Background(), "Texto OCR")
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/v1/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "ak-test" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotVersion != "2023-06-01" {
		t.Errorf("anthropic-version = %q", gotVersion)
	}
	if gotBody["model"] != "claude-3-5-sonnet-latest" {
		t.Errorf("model = %v", gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(1000) {
		t.Errorf("max_tokens = %v, want 1000", gotBody["max_tokens"])
	}
	if content != `{"itens": []}` {
		t.Errorf("content = %q, want text blocks concatenated", content)
	}
}

func TestAnthropicProviderNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error"}`))
	}))
	defer srv.Close()

	p := newAnthropicProvider("ak-test", "", srv.URL, 0, nil)
	_, _, err := p.Send(context.Background(), "x")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *ProviderError", err)
	}
	if perr.Provider != "anthropic" || perr.Status != http.StatusInternalServerError {
		t.Errorf("got %+v", perr)
	}
}

type staticProvider struct {
	content string
	raw     string
	err     error
}

func (p *staticProvider) Name() string  { return "static" }
func (p *staticProvider) Model() string { return "static-1" }
func (p *staticProvider) Send(context.Context, string) (string, json.RawMessage, error) {
	if p.err != nil {
		return "", nil, p.err
	}
	return p.content, json.RawMessage(p.raw), nil
}

func TestGatewaySendWrapsEnvelope(t *testing.T) {
	g := NewGatewayWithProvider(&staticProvider{content: "oi", raw: `{"ok":true}`}, nil)
	env, err := g.Send(context.Background(), "prompt")
	if err != nil {
		t.Fatal(err)
	}
	if env.Provider != "static" || env.Model != "static-1" || env.Content != "oi" {
		t.Errorf("envelope = %+v", env)
	}
	if string(env.Raw) != `{"ok":true}` {
		t.Errorf("raw = %s", env.Raw)
	}
}

func TestGatewaySendLogsNormalization(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	g := NewGatewayWithProvider(&staticProvider{content: "oi", raw: `{}`}, logger)
	if _, err := g.Send(context.Background(), "prompt"); err != nil {
		t.Fatal(err)
	}
	logged := buf.String()
	if !strings.Contains(logged, "llm reply normalized") || !strings.Contains(logged, "static-1") {
		t.Errorf("missing normalization log, got %q", logged)
	}
}

func TestLazyGatewayDefersCredentialCheck(t *testing.T) {
	// Construction must succeed without a secret; only Send needs one.
	g := NewLazyGateway(common.LLMConfig{Provider: "openai"}, nil)

	_, err := g.Send(context.Background(), "x")
	if !errors.Is(err, common.ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	// Resolution failure is sticky across calls.
	_, err = g.Send(context.Background(), "x")
	if !errors.Is(err, common.ErrMissingCredential) {
		t.Fatalf("second send err = %v, want ErrMissingCredential", err)
	}
}

func TestLazyGatewayUnsupportedProvider(t *testing.T) {
	g := NewLazyGateway(common.LLMConfig{Provider: "mistral"}, nil)
	_, err := g.Send(context.Background(), "x")
	if !errors.Is(err, common.ErrUnsupportedProvider) {
		t.Fatalf("err = %v, want ErrUnsupportedProvider", err)
	}
}

func TestGatewaySendPropagatesError(t *testing.T) {
	wantErr := errors.New("upstream down")
	g := NewGatewayWithProvider(&staticProvider{err: wantErr}, nil)
	env, err := g.Send(context.Background(), "prompt")
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
	if env != nil {
		t.Errorf("envelope = %+v, want nil on failure", env)
	}
}

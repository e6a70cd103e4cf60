package parse

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/nfscan/nfscan/internal/llm"
)

func TestParseContentCodeFence(t *testing.T) {
	got := ParseContent("```json\n{\"itens\": []}\n```")
	items, ok := got["itens"]
	if !ok {
		t.Fatalf("expected itens key, got %v", got)
	}
	if arr, ok := items.([]any); !ok || len(arr) != 0 {
		t.Errorf("itens = %v, want empty array", items)
	}
}

func TestParseContentChatterPrefixes(t *testing.T) {
	cases := []string{
		"Aqui está a extração e normalização dos dados da nota fiscal em formato JSON:\n{\"totais\": {}}",
		"Aqui está o JSON:\n{\"totais\": {}}",
		"Segue o JSON:\n{\"totais\": {}}",
		"JSON: {\"totais\": {}}",
		"resposta: {\"totais\": {}}",
		"Resultado:\n{\"totais\": {}}",
	}
	for _, in := range cases {
		got := ParseContent(in)
		if _, ok := got["totais"]; !ok {
			t.Errorf("ParseContent(%q) = %v, want totais key", in, got)
		}
	}
}

func TestParseContentObservacoesTruncated(t *testing.T) {
	in := "{\"itens\": []}\n\nObservações: o modelo adicionou comentários aqui"
	got := ParseContent(in)
	if _, ok := got["itens"]; !ok {
		t.Fatalf("expected itens key, got %v", got)
	}
	if _, diag := got["error"]; diag {
		t.Errorf("commentary after the JSON must not defeat parsing: %v", got)
	}
}

func TestParseContentEmbeddedInProse(t *testing.T) {
	in := "Claro! Os dados extraídos são {\"nota_fiscal\": {\"numero\": \"42\"}} conforme solicitado."
	got := ParseContent(in)
	nf, ok := got["nota_fiscal"].(map[string]any)
	if !ok {
		t.Fatalf("expected nota_fiscal object, got %v", got)
	}
	if nf["numero"] != "42" {
		t.Errorf("numero = %v, want 42", nf["numero"])
	}
}

func TestParseContentLargestMatchPreference(t *testing.T) {
	// The longer candidate is broken JSON; the shorter valid one must win.
	in := `Primeiro: {"itens": oops, "padding": "aaaaaaaaaaaaaaaaaaaaaaaa"} e depois {"totais": {"valor_total": 10}}`
	got := ParseContent(in)
	tot, ok := got["totais"].(map[string]any)
	if !ok {
		t.Fatalf("expected totais object, got %v", got)
	}
	if tot["valor_total"] != float64(10) {
		t.Errorf("valor_total = %v, want 10", tot["valor_total"])
	}
}

func TestParseContentFallbackTruncation(t *testing.T) {
	in := strings.Repeat("a", 500)
	got := ParseContent(in)
	if got["error"] == nil {
		t.Fatalf("expected diagnostic, got %v", got)
	}
	want := strings.Repeat("a", 200) + "..."
	if got["raw_response"] != want {
		t.Errorf("raw_response = %q, want first 200 chars plus ellipsis", got["raw_response"])
	}
}

func TestParseContentFallbackShortInputNoEllipsis(t *testing.T) {
	got := ParseContent("sem json aqui")
	if got["raw_response"] != "sem json aqui" {
		t.Errorf("raw_response = %q, want original content untruncated", got["raw_response"])
	}
}

func TestParseIsTotal(t *testing.T) {
	inputs := []any{
		nil,
		"",
		"   \n\t ",
		"not json at all",
		`{"foo": 1}`,
		`{"itens": `, // unbalanced
		"{} {} {}",
		`[1, 2, 3]`,
		12345,
		map[string]any{},
		json.RawMessage(`"just a string"`),
		llm.Envelope{},
		&llm.Envelope{Content: "x"},
	}
	for _, in := range inputs {
		got := Parse(in)
		if got == nil {
			t.Errorf("Parse(%v) returned nil", in)
		}
	}
}

func TestParseIdempotent(t *testing.T) {
	inputs := []string{
		"```json\n{\"itens\": [{\"descricao\": \"Café\"}]}\n```",
		"ruído sem estrutura",
		"",
	}
	for _, in := range inputs {
		a := Parse(in)
		b := Parse(in)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("Parse not idempotent for %q: %v != %v", in, a, b)
		}
	}
}

func TestParseEnvelopeChatCompletionsPath(t *testing.T) {
	raw := `{"choices":[{"message":{"content":"{\"itens\": []}"}}]}`
	env := &llm.Envelope{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		Content:  "ignored when raw has the chat path",
		Raw:      json.RawMessage(raw),
	}
	got := Parse(env)
	if _, ok := got["itens"]; !ok {
		t.Errorf("expected itens from raw choices path, got %v", got)
	}
}

func TestParseEnvelopeFlatContent(t *testing.T) {
	env := &llm.Envelope{
		Provider: "anthropic",
		Model:    "claude-3-5-sonnet-latest",
		Content:  `{"totais": {"valor_total": 99.9}}`,
		Raw:      json.RawMessage(`{"content":[{"type":"text"}]}`),
	}
	got := Parse(env)
	if _, ok := got["totais"]; !ok {
		t.Errorf("expected totais from flat content, got %v", got)
	}
}

func TestParseMapAlreadyInvoiceData(t *testing.T) {
	in := map[string]any{"estabelecimento": map[string]any{"nome": "Mercado"}}
	got := Parse(in)
	if !reflect.DeepEqual(got, in) {
		t.Errorf("already-parsed data must pass through unchanged: %v", got)
	}
}

func TestParseStoredEnvelopeBytes(t *testing.T) {
	stored := `{"provider":"openai","model":"gpt-4o-mini","content":"{\"itens\": []}","raw":{}}`
	got := Parse(json.RawMessage(stored))
	if _, ok := got["itens"]; !ok {
		t.Errorf("expected itens from stored envelope, got %v", got)
	}
}

func TestIsDiagnostic(t *testing.T) {
	diag := ParseContent("nada")
	if !IsDiagnostic(diag) {
		t.Errorf("fallback shape not detected: %v", diag)
	}
	ok := ParseContent(`{"itens": []}`)
	if IsDiagnostic(ok) {
		t.Errorf("invoice data misdetected as diagnostic: %v", ok)
	}
}

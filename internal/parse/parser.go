// Package parse recovers structured invoice data from unreliable LLM output.
//
// Models are not guaranteed to honor "return only JSON" instructions, so
// parsing is a multi-stage salvage procedure with a two-outcome contract:
// either an object carrying at least one expected invoice key, or an explicit
// diagnostic. Parse never fails.
package parse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/nfscan/nfscan/internal/llm"
)

// ExpectedKeys are the top-level keys of the NotaFiscal contract. An object
// carrying at least one of them counts as parsed invoice data.
var ExpectedKeys = []string{"estabelecimento", "nota_fiscal", "itens", "totais"}

const (
	diagnosticError = "no valid invoice JSON found"

	// maxRawResponse bounds the diagnostic's echo of the original content.
	maxRawResponse = 200
)

var (
	// chatterPrefixes are stripped once each, in order, case-insensitively.
	chatterPrefixes = []string{
		"Aqui está a extração e normalização dos dados da nota fiscal em formato JSON:",
		"Aqui está o JSON:",
		"Segue o JSON:",
		"JSON:",
		"```json",
		"```",
		"Resposta:",
		"Resultado:",
	}

	// reObservacoes marks trailing commentary some models append after the
	// JSON. Everything from the marker on must not reach the decoder.
	reObservacoes = regexp.MustCompile(`\n\nObservaç(?:ões|ão)?:`)

	// reJSONObject matches brace-delimited candidates with one level of
	// nested braces.
	reJSONObject = regexp.MustCompile(`\{(?:[^{}]|\{[^{}]*\})*\}`)
)

// Parse recovers invoice data from an envelope, a raw provider payload, a
// decoded map, or plain text. Total: always returns a renderable map.
func Parse(v any) map[string]any {
	switch t := v.(type) {
	case nil:
		return diagnostic("")
	case *llm.Envelope:
		if t == nil {
			return diagnostic("")
		}
		return parseEnvelope(t)
	case llm.Envelope:
		return parseEnvelope(&t)
	case map[string]any:
		return parseMap(t)
	case json.RawMessage:
		return parseBytes(t)
	case []byte:
		return parseBytes(t)
	case string:
		return ParseContent(t)
	default:
		return ParseContent(fmt.Sprintf("%v", v))
	}
}

func parseEnvelope(env *llm.Envelope) map[string]any {
	if content, ok := chatCompletionContent(env.Raw); ok {
		return ParseContent(content)
	}
	return ParseContent(env.Content)
}

func parseBytes(b []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err == nil {
		return parseMap(m)
	}
	return ParseContent(string(b))
}

func parseMap(m map[string]any) map[string]any {
	// A stored envelope: prefer the provider-native chat-completions path in
	// raw, then the flat content field.
	if raw, ok := m["raw"].(map[string]any); ok {
		if content, ok := chatCompletionContentFromMap(raw); ok {
			return ParseContent(content)
		}
	}
	if content, ok := m["content"].(string); ok {
		return ParseContent(content)
	}
	// Anything else — including already-parsed invoice data — passes
	// through unchanged.
	return m
}

// chatCompletionContent digs choices[0].message.content out of a raw provider
// payload.
func chatCompletionContent(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", false
	}
	return chatCompletionContentFromMap(m)
}

func chatCompletionContentFromMap(m map[string]any) (string, bool) {
	choices, ok := m["choices"].([]any)
	if !ok || len(choices) == 0 {
		return "", false
	}
	first, ok := choices[0].(map[string]any)
	if !ok {
		return "", false
	}
	message, ok := first["message"].(map[string]any)
	if !ok {
		return "", false
	}
	content, ok := message["content"].(string)
	return content, ok
}

// ParseContent salvages invoice JSON out of free-form model text.
func ParseContent(content string) map[string]any {
	cleaned := strings.TrimSpace(content)

	for _, prefix := range chatterPrefixes {
		if len(cleaned) >= len(prefix) && strings.EqualFold(cleaned[:len(prefix)], prefix) {
			cleaned = strings.TrimSpace(cleaned[len(prefix):])
		}
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, "```"))
	}
	if loc := reObservacoes.FindStringIndex(cleaned); loc != nil {
		cleaned = cleaned[:loc[0]]
	}

	// Direct decode first: the cooperative-model fast path.
	var direct map[string]any
	if err := json.Unmarshal([]byte(cleaned), &direct); err == nil && hasExpectedKey(direct) {
		return direct
	}

	// Scan for brace-delimited candidates. The longest is the most likely
	// complete object; when it fails to decode, correctness beats size and
	// the remaining matches get their turn in order.
	matches := reJSONObject.FindAllString(cleaned, -1)
	for _, candidate := range orderCandidates(matches) {
		var m map[string]any
		if err := json.Unmarshal([]byte(candidate), &m); err == nil && hasExpectedKey(m) {
			return m
		}
	}

	return diagnostic(content)
}

// orderCandidates puts the longest match first, then the rest in their
// original order.
func orderCandidates(matches []string) []string {
	if len(matches) < 2 {
		return matches
	}
	longest := 0
	for i, m := range matches {
		if len(m) > len(matches[longest]) {
			longest = i
		}
	}
	out := make([]string, 0, len(matches))
	out = append(out, matches[longest])
	for i, m := range matches {
		if i != longest {
			out = append(out, m)
		}
	}
	return out
}

func hasExpectedKey(m map[string]any) bool {
	for _, k := range ExpectedKeys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// IsDiagnostic reports whether m is the parser's fallback shape rather than
// invoice data.
func IsDiagnostic(m map[string]any) bool {
	if hasExpectedKey(m) {
		return false
	}
	_, hasErr := m["error"]
	_, hasRaw := m["raw_response"]
	return hasErr && hasRaw
}

func diagnostic(content string) map[string]any {
	raw := content
	if runes := []rune(content); len(runes) > maxRawResponse {
		raw = string(runes[:maxRawResponse]) + "..."
	}
	return map[string]any{
		"error":        diagnosticError,
		"raw_response": raw,
	}
}

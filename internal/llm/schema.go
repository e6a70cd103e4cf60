package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildInvoiceJSONSchema returns the NotaFiscal JSON Schema (draft 2020-12)
// as a generic map. Defined once: the prompt embeds it and the pipeline
// validates recovered invoice data against it.
func BuildInvoiceJSONSchema() map[string]any {
	endereco := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"logradouro": map[string]any{"type": []any{"string", "null"}},
			"bairro":     map[string]any{"type": []any{"string", "null"}},
			"cidade":     map[string]any{"type": []any{"string", "null"}},
			"estado":     map[string]any{"type": []any{"string", "null"}},
		},
		"required": []any{"logradouro", "bairro", "cidade", "estado"},
	}

	estabelecimento := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"nome":               map[string]any{"type": []any{"string", "null"}},
			"cnpj":               map[string]any{"type": []any{"string", "null"}},
			"telefone":           map[string]any{"type": []any{"string", "null"}},
			"inscricao_estadual": map[string]any{"type": []any{"string", "null"}},
			"endereco":           endereco,
		},
		"required": []any{"nome", "cnpj", "telefone", "inscricao_estadual", "endereco"},
	}

	notaFiscal := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tipo":                  map[string]any{"type": []any{"string", "null"}},
			"numero":                map[string]any{"type": []any{"string", "null"}},
			"serie":                 map[string]any{"type": []any{"string", "null"}},
			"data_emissao":          map[string]any{"type": []any{"string", "null"}},
			"chave_acesso":          map[string]any{"type": []any{"string", "null"}},
			"protocolo_autorizacao": map[string]any{"type": []any{"string", "null"}},
			"consumidor":            map[string]any{"type": []any{"string", "null"}},
		},
		"required": []any{"tipo", "numero", "serie", "data_emissao", "chave_acesso", "protocolo_autorizacao", "consumidor"},
	}

	itens := map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"codigo":         map[string]any{"type": []any{"string", "null"}},
				"descricao":      map[string]any{"type": []any{"string", "null"}},
				"quantidade":     map[string]any{"type": []any{"number", "null"}},
				"valor_unitario": map[string]any{"type": []any{"number", "null"}},
				"valor_total":    map[string]any{"type": []any{"number", "null"}},
			},
			"required": []any{"descricao", "quantidade", "valor_unitario", "valor_total"},
		},
	}

	totais := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"valor_total":     map[string]any{"type": []any{"number", "null"}},
			"forma_pagamento": map[string]any{"type": []any{"string", "null"}},
			"valor_pago":      map[string]any{"type": []any{"number", "null"}},
		},
		"required": []any{"valor_total", "forma_pagamento", "valor_pago"},
	}

	return map[string]any{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"title":   "NotaFiscalSchema",
		"type":    "object",
		"properties": map[string]any{
			"estabelecimento": estabelecimento,
			"nota_fiscal":     notaFiscal,
			"itens":           itens,
			"totais":          totais,
		},
		"required": []any{"estabelecimento", "nota_fiscal", "itens", "totais"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

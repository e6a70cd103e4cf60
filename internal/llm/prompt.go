package llm

import (
	"encoding/json"
	"strings"
)

// promptInstructions precede the schema in every extraction prompt. The
// repeated only-JSON demand is deliberate: models honor it more often, and
// the parser still salvages when they do not.
const promptInstructions = "Segue o texto OCR de uma nota fiscal emitida no Brasil de acordo com as regras vigentes. " +
	"Extraia os principais campos (emitente, CNPJ/CPF, data, itens, valores, impostos) e retorne em JSON " +
	"bem estruturado de acordo com o schema abaixo, com campos ausentes como null. " +
	"Para campos de endereço, caso a informação não esteja presente no texto OCR ou seja incompleta ou seja inválida, retorne null. " +
	"O seu retorno deve ser apenas o JSON, sem nenhum outro texto adicional. " +
	"É extremamente importante que você retorne APENAS o JSON, sem nenhum outro texto adicional. " +
	"Use exatamente o formato definido no schema abaixo:"

// BuildExtractionPrompt renders the single versioned prompt template: fixed
// instructions, the NotaFiscal schema, then the transcript.
func BuildExtractionPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString(promptInstructions)
	b.WriteString("\n\nJSON Schema:\n")
	b.WriteString(mustJSON(BuildInvoiceJSONSchema()))
	b.WriteString("\n\nTexto OCR:\n")
	b.WriteString(transcript)
	return b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

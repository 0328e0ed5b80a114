package llm

import (
	"fmt"
	"strings"

	"github.com/maepena22/receipt/internal/entity"
)

// SystemPrompt pins the model into JSON-only output mode.
const SystemPrompt = "You are a JSON generator. Output ONLY valid JSON without any explanation or markdown."

// BuildPrompt composes the single extraction instruction: it embeds the raw
// OCR text, enumerates every candidate schema (id, name, field names), and
// demands one flat JSON object carrying receipt_type_id plus field values.
// Pure function so prompt construction is unit-testable without a network.
func BuildPrompt(text string, types []entity.ReceiptType) string {
	var b strings.Builder

	b.WriteString("Analyze this receipt text and respond with ONLY a JSON object in this exact format:\n")
	b.WriteString("{\n")
	b.WriteString("    \"receipt_type_id\": (number matching one of the IDs below),\n")
	b.WriteString("    \"field1\": \"value1\",\n")
	b.WriteString("    \"field2\": \"value2\"\n")
	b.WriteString("}\n\n")
	b.WriteString("Never invent values: include only fields whose value is visible in the text. ")
	b.WriteString("Omit any field you are not confident about.\n\n")

	b.WriteString("Receipt Text:\n")
	b.WriteString(text)
	b.WriteString("\n\nAvailable Types and Fields:\n")

	for _, t := range types {
		fmt.Fprintf(&b, "Type %d: %s\n", t.ID, t.Name)
		names := make([]string, 0, len(t.Fields))
		for _, f := range t.Fields {
			names = append(names, f.Name)
		}
		fmt.Fprintf(&b, "Fields: %s\n", strings.Join(names, ", "))
	}

	return b.String()
}

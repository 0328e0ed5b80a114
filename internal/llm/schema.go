package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/maepena22/receipt/internal/entity"
)

// scalarTypes is the set of JSON types a field value may carry in a raw
// model response. Numbers and booleans are coerced to strings later;
// arrays and objects have no string rendition and are rejected.
var scalarTypes = []any{"string", "number", "boolean", "null"}

// BuildFieldSchema returns a JSON-Schema (draft 2020-12 subset) describing
// the raw field mapping expected from the model for one receipt type:
// every declared field is an optional scalar. The schema is advisory about
// coverage — extra fields are allowed (additionalProperties stays open for
// forward compatibility) and required flags are deliberately NOT enforced
// here; the pipeline records missing required fields as empty values
// instead of rejecting the record. Shape is enforced: a field bound to an
// array or object fails validation.
func BuildFieldSchema(t entity.ReceiptType) map[string]any {
	props := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		p := map[string]any{"type": scalarTypes}
		if f.Description != "" {
			p["description"] = f.Description
		}
		props[f.Name] = p
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": map[string]any{"type": scalarTypes},
		"properties":           props,
	}
}

// ValidateAgainstSchema validates a decoded JSON value (as produced by
// encoding/json into interface types) against schemaMap.
func ValidateAgainstSchema(schemaMap map[string]any, v any) error {
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
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

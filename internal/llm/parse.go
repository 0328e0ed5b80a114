package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/maepena22/receipt/internal/common"
	"github.com/maepena22/receipt/internal/entity"
)

const typeIDKey = "receipt_type_id"

// ParseResponse recovers a CandidateRecord from a raw model response.
//
// Models wrap JSON in conversational prose despite instructions, so only
// the substring between the first '{' and the last '}' is parsed. A
// response that yields no valid JSON or no recognizable receipt_type_id is
// an extraction failure (ErrUpstream); a receipt_type_id that is not among
// the supplied candidates, or a field mapping that fails the chosen
// type's schema, is ErrValidation.
//
// Pure function: no network, no logging.
func ParseResponse(raw []byte, types []entity.ReceiptType) (CandidateRecord, error) {
	s := string(raw)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return CandidateRecord{}, common.NewAppError("LLM_MALFORMED",
			"response contains no JSON object", common.ErrUpstream)
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &m); err != nil {
		return CandidateRecord{}, common.NewAppError("LLM_MALFORMED",
			"response is not valid JSON", fmt.Errorf("%w: %w", common.ErrUpstream, err))
	}

	// Some models nest the mapping under a "fields" object; flatten it.
	if nested, ok := m["fields"].(map[string]any); ok {
		delete(m, "fields")
		for k, v := range nested {
			if _, exists := m[k]; !exists {
				m[k] = v
			}
		}
	}

	typeID, ok := coerceID(m[typeIDKey])
	if !ok {
		return CandidateRecord{}, common.NewAppError("LLM_MALFORMED",
			"response lacks a receipt_type_id", common.ErrUpstream)
	}
	delete(m, typeIDKey)

	var chosen *entity.ReceiptType
	for i := range types {
		if types[i].ID == typeID {
			chosen = &types[i]
			break
		}
	}
	if chosen == nil {
		return CandidateRecord{}, common.NewAppError("LLM_UNKNOWN_TYPE",
			fmt.Sprintf("receipt_type_id %d is not among the candidates", typeID),
			common.ErrValidation)
	}

	// The raw mapping is checked before string coercion: this is the one
	// point where non-scalar values (arrays, objects) are still visible.
	if err := ValidateAgainstSchema(BuildFieldSchema(*chosen), m); err != nil {
		return CandidateRecord{}, common.NewAppError("LLM_SCHEMA",
			fmt.Sprintf("field values do not match type %d", typeID),
			fmt.Errorf("%w: %w", common.ErrValidation, err))
	}

	values := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := coerceValue(v); ok {
			values[k] = s
		}
	}

	return CandidateRecord{ReceiptTypeID: typeID, FieldValues: values}, nil
}

// coerceID accepts integral ids only; a fractional id could alias onto a
// valid candidate and is treated as malformed instead.
func coerceID(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int64(t), true
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return id, err == nil
	case json.Number:
		id, err := t.Int64()
		return id, err == nil
	default:
		return 0, false
	}
}

// coerceValue flattens schema-checked scalars to strings; nulls are
// dropped.
func coerceValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

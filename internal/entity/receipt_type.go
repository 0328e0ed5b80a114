package entity

import "time"

// Field is one named, optionally-required datum within a ReceiptType.
type Field struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsRequired  bool   `json:"is_required"`
}

// ReceiptType is a user-defined schema: a named, ordered set of fields
// expected on one category of receipt. Read-only to the pipeline.
type ReceiptType struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Fields      []Field   `json:"fields"`
	CreatedAt   time.Time `json:"created_at"`
}

// FieldByName returns the named field and whether it exists.
func (t ReceiptType) FieldByName(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

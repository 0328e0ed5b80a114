package entity

import "time"

// Receipt is a persisted, normalized record extracted from one image.
// Immutable after creation; EmployeeID is nil when the uploader was deleted.
type Receipt struct {
	ID            int64             `json:"id"`
	ImagePath     string            `json:"image_path"`
	ReceiptTypeID int64             `json:"receipt_type_id"`
	EmployeeID    *int64            `json:"employee_id,omitempty"`
	FieldValues   map[string]string `json:"field_values"`
	CreatedAt     time.Time         `json:"created_at"`
}

package entity

import "time"

// Employee represents an uploader for data transfer between layers.
type Employee struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

package entity

import (
	"github.com/google/uuid"

	"github.com/maepena22/receipt/constants"
)

// UploadedFile exists only for the duration of one pipeline invocation.
type UploadedFile struct {
	OriginalName string
	MIMEType     string
	Content      []byte
}

// Batch is one upload invocation: one or more images processed under a
// single employee / candidate-schema context.
type Batch struct {
	EmployeeID int64
	// ReceiptTypeIDs selects the candidate schemas; empty means all
	// active receipt types.
	ReceiptTypeIDs []int64
	Files          []UploadedFile
}

// FileResult is the per-file outcome of a batch.
type FileResult struct {
	OriginalName string
	StoredName   string
	State        constants.FileState
	ReceiptID    int64
	Err          string
}

// BatchResult summarizes one pipeline invocation.
type BatchResult struct {
	BatchID   uuid.UUID
	Persisted int
	Results   []FileResult
}

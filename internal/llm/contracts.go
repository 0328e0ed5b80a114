package llm

import (
	"context"

	"github.com/maepena22/receipt/internal/entity"
)

// CandidateRecord is the transient extractor output before validation:
// the chosen receipt type and a flat field-name -> value mapping.
type CandidateRecord struct {
	ReceiptTypeID int64
	FieldValues   map[string]string
}

// Extractor is the interface the pipeline depends on: extracted text plus
// the candidate schemas in, a best-effort structured record out. The raw
// model content is returned alongside for logging and diagnostics.
type Extractor interface {
	Extract(ctx context.Context, text string, types []entity.ReceiptType) (CandidateRecord, []byte, error)
}

package constants

// FileState is the canonical per-file state inside one ingestion batch.
type FileState string

// Stable values (these exact strings appear in batch results and logs).
const (
	StateReceived      FileState = "RECEIVED"
	StateTextExtracted FileState = "TEXT_EXTRACTED"
	StateStructured    FileState = "STRUCTURED"
	StateValidated     FileState = "VALIDATED"
	StatePersisted     FileState = "PERSISTED"
	StateFailed        FileState = "FAILED"
)

// FailureReason classifies why a single file failed.
type FailureReason string

const (
	ReasonStorage    FailureReason = "storage_error"
	ReasonOCR        FailureReason = "ocr_error"
	ReasonExtraction FailureReason = "extraction_error"
	ReasonValidation FailureReason = "validation_error"
)

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maepena22/receipt/constants"
	"github.com/maepena22/receipt/internal/common"
	"github.com/maepena22/receipt/internal/entity"
	"github.com/maepena22/receipt/internal/llm"
)

// OCRClient is the text-detection boundary (stage 1: image bytes -> text).
type OCRClient interface {
	DetectText(ctx context.Context, image []byte) (string, error)
}

// SchemaStore resolves candidate receipt types. Unknown ids are silently
// omitted from the result.
type SchemaStore interface {
	ListReceiptTypes(ctx context.Context, ids []int64) ([]entity.ReceiptType, error)
}

// EmployeeStore validates the batch's employee reference.
type EmployeeStore interface {
	GetEmployee(ctx context.Context, id int64) (*entity.Employee, error)
}

// RecordStore persists validated receipts. SaveReceipts must insert all
// records in one transaction: all rows commit or none do.
type RecordStore interface {
	SaveReceipts(ctx context.Context, receipts []entity.Receipt) ([]int64, error)
}

// UploadStore writes original image bytes and returns the stored name used
// as the receipt's image path.
type UploadStore interface {
	SaveUpload(file entity.UploadedFile) (string, error)
}

// Pipeline orchestrates one upload batch: OCR, schema-guided extraction,
// normalization, and transactional persistence. Files are processed
// strictly sequentially; a per-file failure never blocks sibling files.
type Pipeline struct {
	logger    *slog.Logger
	ocr       OCRClient
	extractor llm.Extractor
	schemas   SchemaStore
	employees EmployeeStore
	records   RecordStore
	uploads   UploadStore
	now       func() time.Time
}

func New(
	logger *slog.Logger,
	ocr OCRClient,
	extractor llm.Extractor,
	schemas SchemaStore,
	employees EmployeeStore,
	records RecordStore,
	uploads UploadStore,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:    logger,
		ocr:       ocr,
		extractor: extractor,
		schemas:   schemas,
		employees: employees,
		records:   records,
		uploads:   uploads,
		now:       time.Now,
	}
}

// Run processes one batch. Batch-level precondition and persistence
// failures return an error for the whole invocation; per-file OCR,
// extraction and validation failures are recorded in the result and the
// remaining files are still attempted.
func (p *Pipeline) Run(ctx context.Context, batch entity.Batch) (entity.BatchResult, error) {
	batchID := uuid.New()
	res := entity.BatchResult{BatchID: batchID}

	// Batch preconditions run before any file work: zero upstream calls
	// and zero store writes when they fail.
	emp, err := p.employees.GetEmployee(ctx, batch.EmployeeID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return res, common.NewAppError("BATCH_EMPLOYEE",
				fmt.Sprintf("employee %d not found", batch.EmployeeID), common.ErrPrecondition)
		}
		return res, common.NewAppError("BATCH_EMPLOYEE", "load employee",
			fmt.Errorf("%w: %w", common.ErrPersistence, err))
	}

	types, err := p.schemas.ListReceiptTypes(ctx, batch.ReceiptTypeIDs)
	if err != nil {
		return res, common.NewAppError("BATCH_TYPES", "load receipt types",
			fmt.Errorf("%w: %w", common.ErrPersistence, err))
	}
	if len(types) == 0 {
		return res, common.NewAppError("BATCH_TYPES",
			"no valid receipt types in candidate set", common.ErrPrecondition)
	}
	typeByID := make(map[int64]entity.ReceiptType, len(types))
	for _, t := range types {
		typeByID[t.ID] = t
	}

	p.logger.Info("pipeline.batch.start",
		"batch_id", batchID,
		"employee_id", emp.ID,
		"files", len(batch.Files),
		"candidates", len(types),
	)

	res.Results = make([]entity.FileResult, 0, len(batch.Files))
	pending := make([]entity.Receipt, 0, len(batch.Files))
	pendingIdx := make([]int, 0, len(batch.Files))

	for _, file := range batch.Files {
		fr, validated := p.processFile(ctx, batchID, file, types, typeByID)
		res.Results = append(res.Results, fr)
		if validated != nil {
			pending = append(pending, entity.Receipt{
				ImagePath:     fr.StoredName,
				ReceiptTypeID: validated.typeID,
				EmployeeID:    &emp.ID,
				FieldValues:   validated.values,
				CreatedAt:     p.now().UTC(),
			})
			pendingIdx = append(pendingIdx, len(res.Results)-1)
		}
	}

	// One transaction for the whole batch: either every validated record
	// commits or, on a store failure, they all roll back together.
	if len(pending) > 0 {
		ids, err := p.records.SaveReceipts(ctx, pending)
		if err != nil {
			p.logger.Error("pipeline.persist.failed", "batch_id", batchID, "error", err)
			return res, common.NewAppError("BATCH_PERSIST", "save receipts",
				fmt.Errorf("%w: %w", common.ErrPersistence, err))
		}
		for i, idx := range pendingIdx {
			res.Results[idx].State = constants.StatePersisted
			res.Results[idx].ReceiptID = ids[i]
		}
		res.Persisted = len(ids)
	}

	p.logger.Info("pipeline.batch.done",
		"batch_id", batchID,
		"persisted", res.Persisted,
		"failed", len(res.Results)-res.Persisted,
	)
	return res, nil
}

// validatedRecord carries a file's normalized extraction until the
// batch-level persistence step.
type validatedRecord struct {
	typeID int64
	values map[string]string
}

func (p *Pipeline) processFile(
	ctx context.Context,
	batchID uuid.UUID,
	file entity.UploadedFile,
	types []entity.ReceiptType,
	typeByID map[int64]entity.ReceiptType,
) (entity.FileResult, *validatedRecord) {
	fr := entity.FileResult{OriginalName: file.OriginalName, State: constants.StateReceived}

	stored, err := p.uploads.SaveUpload(file)
	if err != nil {
		p.logger.Error("pipeline.store.failed",
			"batch_id", batchID, "file", file.OriginalName, "error", err)
		return fail(fr, constants.ReasonStorage, err), nil
	}
	fr.StoredName = stored

	text, err := p.ocr.DetectText(ctx, file.Content)
	if err != nil {
		p.logger.Error("pipeline.ocr.failed",
			"batch_id", batchID, "file", file.OriginalName, "error", err)
		return fail(fr, constants.ReasonOCR, err), nil
	}
	fr.State = constants.StateTextExtracted

	rec, raw, err := p.extractor.Extract(ctx, text, types)
	if err != nil {
		p.logger.Error("pipeline.extract.failed",
			"batch_id", batchID, "file", file.OriginalName,
			"raw_bytes", len(raw), "error", err)
		if errors.Is(err, common.ErrValidation) {
			return fail(fr, constants.ReasonValidation, err), nil
		}
		return fail(fr, constants.ReasonExtraction, err), nil
	}
	fr.State = constants.StateStructured

	values, err := p.normalize(rec, typeByID)
	if err != nil {
		p.logger.Error("pipeline.validate.failed",
			"batch_id", batchID, "file", file.OriginalName, "error", err)
		return fail(fr, constants.ReasonValidation, err), nil
	}
	fr.State = constants.StateValidated

	p.logger.Info("pipeline.file.validated",
		"batch_id", batchID,
		"file", file.OriginalName,
		"receipt_type_id", rec.ReceiptTypeID,
		"fields", len(values),
	)
	return fr, &validatedRecord{typeID: rec.ReceiptTypeID, values: values}
}

// normalize checks the chosen type against the candidate set and applies
// the lenient required-field policy: fields flagged required but absent
// are recorded as empty values, never rejected. Extra fields the schema
// does not declare are preserved as-is. Shape validation already happened
// on the raw model output in the extract stage.
func (p *Pipeline) normalize(rec llm.CandidateRecord, typeByID map[int64]entity.ReceiptType) (map[string]string, error) {
	t, ok := typeByID[rec.ReceiptTypeID]
	if !ok {
		return nil, common.NewAppError("PIPELINE_UNKNOWN_TYPE",
			fmt.Sprintf("receipt_type_id %d is not among the candidates", rec.ReceiptTypeID),
			common.ErrValidation)
	}

	values := make(map[string]string, len(rec.FieldValues)+len(t.Fields))
	for k, v := range rec.FieldValues {
		values[k] = v
	}
	for _, f := range t.Fields {
		if _, present := values[f.Name]; !present && f.IsRequired {
			p.logger.Warn("pipeline.validate.missing_required",
				"receipt_type_id", t.ID, "field", f.Name)
			values[f.Name] = ""
		}
	}
	return values, nil
}

func fail(fr entity.FileResult, reason constants.FailureReason, err error) entity.FileResult {
	fr.State = constants.StateFailed
	fr.Err = fmt.Sprintf("%s: %v", reason, err)
	return fr
}

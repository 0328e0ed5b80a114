package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maepena22/receipt/constants"
	"github.com/maepena22/receipt/internal/common"
	"github.com/maepena22/receipt/internal/entity"
	"github.com/maepena22/receipt/internal/llm"
)

type fakeOCR struct {
	calls int
	fn    func(image []byte) (string, error)
}

func (f *fakeOCR) DetectText(_ context.Context, image []byte) (string, error) {
	f.calls++
	if f.fn != nil {
		return f.fn(image)
	}
	return "some receipt text", nil
}

type fakeExtractor struct {
	calls int
	fn    func(text string) (llm.CandidateRecord, error)
}

func (f *fakeExtractor) Extract(_ context.Context, text string, _ []entity.ReceiptType) (llm.CandidateRecord, []byte, error) {
	f.calls++
	if f.fn != nil {
		rec, err := f.fn(text)
		return rec, []byte("{}"), err
	}
	return llm.CandidateRecord{
		ReceiptTypeID: 1,
		FieldValues:   map[string]string{"vendor": "Acme", "total": "42.00"},
	}, []byte("{}"), nil
}

type fakeSchemas struct {
	calls int
	types []entity.ReceiptType
	err   error
}

func (f *fakeSchemas) ListReceiptTypes(context.Context, []int64) ([]entity.ReceiptType, error) {
	f.calls++
	return f.types, f.err
}

type fakeEmployees struct {
	emp *entity.Employee
	err error
}

func (f *fakeEmployees) GetEmployee(context.Context, int64) (*entity.Employee, error) {
	return f.emp, f.err
}

type fakeRecords struct {
	calls int
	saved []entity.Receipt
	err   error
}

func (f *fakeRecords) SaveReceipts(_ context.Context, receipts []entity.Receipt) ([]int64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.saved = receipts
	ids := make([]int64, len(receipts))
	for i := range ids {
		ids[i] = int64(100 + i)
	}
	return ids, nil
}

type fakeUploads struct {
	calls int
	fn    func(file entity.UploadedFile) (string, error)
}

func (f *fakeUploads) SaveUpload(file entity.UploadedFile) (string, error) {
	f.calls++
	if f.fn != nil {
		return f.fn(file)
	}
	return "1700000000-" + file.OriginalName, nil
}

var taxiType = entity.ReceiptType{
	ID:   1,
	Name: "Taxi Receipt",
	Fields: []entity.Field{
		{Name: "vendor", IsRequired: true},
		{Name: "total", IsRequired: true},
		{Name: "date"},
	},
}

type deps struct {
	ocr       *fakeOCR
	extractor *fakeExtractor
	schemas   *fakeSchemas
	employees *fakeEmployees
	records   *fakeRecords
	uploads   *fakeUploads
}

func newTestPipeline() (*Pipeline, *deps) {
	d := &deps{
		ocr:       &fakeOCR{},
		extractor: &fakeExtractor{},
		schemas:   &fakeSchemas{types: []entity.ReceiptType{taxiType}},
		employees: &fakeEmployees{emp: &entity.Employee{ID: 5, Name: "Alice"}},
		records:   &fakeRecords{},
		uploads:   &fakeUploads{},
	}
	p := New(nil, d.ocr, d.extractor, d.schemas, d.employees, d.records, d.uploads)
	return p, d
}

func batchOf(names ...string) entity.Batch {
	files := make([]entity.UploadedFile, len(names))
	for i, n := range names {
		files[i] = entity.UploadedFile{OriginalName: n, MIMEType: "image/png", Content: []byte(n)}
	}
	return entity.Batch{EmployeeID: 5, ReceiptTypeIDs: []int64{1}, Files: files}
}

func TestRun_UnknownEmployeeAbortsBeforeAnyWork(t *testing.T) {
	p, d := newTestPipeline()
	d.employees.emp = nil
	d.employees.err = common.NewAppError("EMPLOYEE_NOT_FOUND", "employee 5", common.ErrNotFound)

	_, err := p.Run(context.Background(), batchOf("a.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPrecondition)
	assert.Zero(t, d.uploads.calls)
	assert.Zero(t, d.ocr.calls)
	assert.Zero(t, d.extractor.calls)
	assert.Zero(t, d.records.calls)
}

func TestRun_EmptyCandidateSetAbortsBeforeAnyWork(t *testing.T) {
	p, d := newTestPipeline()
	d.schemas.types = nil

	_, err := p.Run(context.Background(), batchOf("a.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPrecondition)
	assert.Zero(t, d.uploads.calls)
	assert.Zero(t, d.ocr.calls)
	assert.Zero(t, d.records.calls)
}

func TestRun_HappyPath(t *testing.T) {
	p, d := newTestPipeline()
	d.extractor.fn = func(string) (llm.CandidateRecord, error) {
		return llm.CandidateRecord{
			ReceiptTypeID: 1,
			FieldValues:   map[string]string{"vendor": "Tokyo Taxi", "total": "2300", "date": "2024-05-01"},
		}, nil
	}

	res, err := p.Run(context.Background(), batchOf("a.png", "b.png"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Persisted)
	require.Len(t, res.Results, 2)

	for i, fr := range res.Results {
		assert.Equal(t, constants.StatePersisted, fr.State)
		assert.Equal(t, int64(100+i), fr.ReceiptID)
		assert.NotEmpty(t, fr.StoredName)
		assert.Empty(t, fr.Err)
	}

	require.Equal(t, 1, d.records.calls, "one transaction per batch")
	require.Len(t, d.records.saved, 2)
	rec := d.records.saved[0]
	assert.Equal(t, int64(1), rec.ReceiptTypeID)
	require.NotNil(t, rec.EmployeeID)
	assert.Equal(t, int64(5), *rec.EmployeeID)
	assert.Equal(t, "Tokyo Taxi", rec.FieldValues["vendor"])
	assert.Equal(t, res.Results[0].StoredName, rec.ImagePath)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestRun_OCRFailureDoesNotBlockSiblings(t *testing.T) {
	p, d := newTestPipeline()
	d.ocr.fn = func(image []byte) (string, error) {
		if string(image) == "b.png" {
			return "", common.NewAppError("OCR_STATUS", "vision status 500", common.ErrUpstream)
		}
		return "text", nil
	}

	res, err := p.Run(context.Background(), batchOf("a.png", "b.png", "c.png"))
	require.NoError(t, err, "per-file failures never fail the batch call")
	assert.Equal(t, 2, res.Persisted)

	failed := res.Results[1]
	assert.Equal(t, constants.StateFailed, failed.State)
	assert.True(t, strings.HasPrefix(failed.Err, string(constants.ReasonOCR)), failed.Err)
	assert.Zero(t, failed.ReceiptID)

	assert.Equal(t, constants.StatePersisted, res.Results[0].State)
	assert.Equal(t, constants.StatePersisted, res.Results[2].State)
	assert.Equal(t, 2, d.extractor.calls, "failed file is not extracted")
}

func TestRun_StorageFailureIsNotAnOCRFailure(t *testing.T) {
	p, d := newTestPipeline()
	d.uploads.fn = func(file entity.UploadedFile) (string, error) {
		if file.OriginalName == "b.png" {
			return "", errors.New("disk full")
		}
		return "1700000000-" + file.OriginalName, nil
	}

	res, err := p.Run(context.Background(), batchOf("a.png", "b.png"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Persisted)

	failed := res.Results[1]
	assert.Equal(t, constants.StateFailed, failed.State)
	assert.True(t, strings.HasPrefix(failed.Err, string(constants.ReasonStorage)), failed.Err)
	assert.Equal(t, 1, d.ocr.calls, "a file that never stored is not sent to OCR")
}

func TestRun_UnknownTypeIsValidationFailure(t *testing.T) {
	p, d := newTestPipeline()
	d.extractor.fn = func(string) (llm.CandidateRecord, error) {
		return llm.CandidateRecord{ReceiptTypeID: 99, FieldValues: map[string]string{"vendor": "x"}}, nil
	}

	res, err := p.Run(context.Background(), batchOf("a.png"))
	require.NoError(t, err)
	assert.Zero(t, res.Persisted)
	fr := res.Results[0]
	assert.Equal(t, constants.StateFailed, fr.State)
	assert.True(t, strings.HasPrefix(fr.Err, string(constants.ReasonValidation)), fr.Err)
}

func TestRun_ExtractorValidationErrorKeepsReason(t *testing.T) {
	p, d := newTestPipeline()
	d.extractor.fn = func(string) (llm.CandidateRecord, error) {
		return llm.CandidateRecord{}, common.NewAppError("LLM_UNKNOWN_TYPE", "type 42", common.ErrValidation)
	}

	res, err := p.Run(context.Background(), batchOf("a.png"))
	require.NoError(t, err)
	fr := res.Results[0]
	assert.Equal(t, constants.StateFailed, fr.State)
	assert.True(t, strings.HasPrefix(fr.Err, string(constants.ReasonValidation)), fr.Err)
}

func TestRun_ExtractorUpstreamErrorIsExtractionFailure(t *testing.T) {
	p, d := newTestPipeline()
	d.extractor.fn = func(string) (llm.CandidateRecord, error) {
		return llm.CandidateRecord{}, common.NewAppError("LLM_MALFORMED", "no JSON", common.ErrUpstream)
	}

	res, err := p.Run(context.Background(), batchOf("a.png"))
	require.NoError(t, err)
	fr := res.Results[0]
	assert.Equal(t, constants.StateFailed, fr.State)
	assert.True(t, strings.HasPrefix(fr.Err, string(constants.ReasonExtraction)), fr.Err)
}

func TestRun_MissingRequiredFieldRecordedEmpty(t *testing.T) {
	p, d := newTestPipeline()
	d.extractor.fn = func(string) (llm.CandidateRecord, error) {
		return llm.CandidateRecord{
			ReceiptTypeID: 1,
			FieldValues:   map[string]string{"vendor": "Acme"},
		}, nil
	}

	res, err := p.Run(context.Background(), batchOf("a.png"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Persisted)

	require.Len(t, d.records.saved, 1)
	values := d.records.saved[0].FieldValues
	assert.Equal(t, "Acme", values["vendor"])
	total, present := values["total"]
	assert.True(t, present, "missing required field is recorded, not rejected")
	assert.Empty(t, total)
	_, hasDate := values["date"]
	assert.False(t, hasDate, "missing optional fields stay absent")
}

func TestRun_PersistFailureFailsWholeBatch(t *testing.T) {
	p, d := newTestPipeline()
	d.records.err = errors.New("disk full")

	res, err := p.Run(context.Background(), batchOf("a.png", "b.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPersistence)
	assert.Zero(t, res.Persisted)
	for _, fr := range res.Results {
		assert.NotEqual(t, constants.StatePersisted, fr.State)
	}
}

package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/maepena22/receipt/internal/repository"
)

// Service produces XLSX bytes for exports: one sheet per receipt type,
// headed by the type's declared field names.
type Service struct {
	types    repository.ReceiptTypeRepository
	receipts repository.ReceiptRepository
	logger   *slog.Logger
}

func NewService(types repository.ReceiptTypeRepository, receipts repository.ReceiptRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{types: types, receipts: receipts, logger: logger}
}

// ExportReceiptsXLSX returns a workbook with every receipt of the given
// type. Columns are Image and Uploader followed by the type's fields in
// declaration order; values the extractor never produced stay empty.
func (s *Service) ExportReceiptsXLSX(ctx context.Context, receiptTypeID int64) ([]byte, error) {
	start := time.Now()

	t, err := s.types.GetReceiptType(ctx, receiptTypeID)
	if err != nil {
		return nil, fmt.Errorf("load receipt type: %w", err)
	}
	recs, err := s.receipts.ListReceipts(ctx, receiptTypeID)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}

	f := excelize.NewFile()
	sheet := t.Name
	if sheet == "" {
		sheet = "Receipts"
	}
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"Image", "Uploader"}
	for _, field := range t.Fields {
		headers = append(headers, field.Name)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for rowIdx, rec := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, rowIdx+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, rec.ImagePath)
		write(2, rec.EmployeeName)
		for i, field := range t.Fields {
			write(i+3, rec.FieldValues[field.Name])
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 40)
	_ = f.SetColWidth(sheet, "B", "B", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"receipt_type_id", receiptTypeID,
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

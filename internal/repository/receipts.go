package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/maepena22/receipt/internal/entity"
)

// ReceiptRow is a receipt joined with its uploader's name, for listing
// and export.
type ReceiptRow struct {
	entity.Receipt
	EmployeeName string
}

// ReceiptRepository is the Record Store. SaveReceipts is the pipeline's
// persistence step: every record of one batch inserts inside a single
// transaction, all-or-nothing.
type ReceiptRepository interface {
	SaveReceipts(ctx context.Context, receipts []entity.Receipt) ([]int64, error)
	GetReceipt(ctx context.Context, id int64) (*entity.Receipt, error)
	ListReceipts(ctx context.Context, receiptTypeID int64) ([]ReceiptRow, error)
}

type receiptRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewReceiptRepository(db *sql.DB, logger *slog.Logger) ReceiptRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &receiptRepository{db: db, logger: logger}
}

// SaveReceipts inserts one row per receipt inside a single transaction.
// Any failure rolls the whole batch back; partial persistence of a batch
// is worse than full-batch failure.
func (r *receiptRepository) SaveReceipts(ctx context.Context, receipts []entity.Receipt) ([]int64, error) {
	if len(receipts) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, 0, len(receipts))
	for _, rec := range receipts {
		data, err := json.Marshal(rec.FieldValues)
		if err != nil {
			return nil, fmt.Errorf("encode field values: %w", err)
		}
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		var id int64
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO receipts (image_path, receipt_type_id, data, employee_id, created_at)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			rec.ImagePath, rec.ReceiptTypeID, string(data), rec.EmployeeID, createdAt,
		).Scan(&id); err != nil {
			r.logger.Error("receipt insert failed, rolling back batch",
				"image_path", rec.ImagePath, "error", err)
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	r.logger.Info("receipts saved", "count", len(ids))
	return ids, nil
}

func (r *receiptRepository) GetReceipt(ctx context.Context, id int64) (*entity.Receipt, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, image_path, receipt_type_id, data, employee_id, created_at
		 FROM receipts WHERE id = $1`, id)
	rec, err := scanReceipt(row.Scan)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListReceipts returns all receipts of one type, newest first, with the
// uploader's name resolved (empty when the employee was deleted).
func (r *receiptRepository) ListReceipts(ctx context.Context, receiptTypeID int64) ([]ReceiptRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, r.image_path, r.receipt_type_id, r.data, r.employee_id, r.created_at,
		        COALESCE(e.name, '')
		 FROM receipts r
		 LEFT JOIN employees e ON e.id = r.employee_id
		 WHERE r.receipt_type_id = $1
		 ORDER BY r.created_at DESC, r.id DESC`, receiptTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReceiptRow
	for rows.Next() {
		var row ReceiptRow
		var data sql.NullString
		var empID sql.NullInt64
		if err := rows.Scan(&row.ID, &row.ImagePath, &row.ReceiptTypeID, &data,
			&empID, &row.CreatedAt, &row.EmployeeName); err != nil {
			return nil, err
		}
		if empID.Valid {
			row.EmployeeID = &empID.Int64
		}
		if row.FieldValues, err = decodeFieldValues(data); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanReceipt(scan func(...any) error) (*entity.Receipt, error) {
	var rec entity.Receipt
	var data sql.NullString
	var empID sql.NullInt64
	if err := scan(&rec.ID, &rec.ImagePath, &rec.ReceiptTypeID, &data, &empID, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if empID.Valid {
		rec.EmployeeID = &empID.Int64
	}
	var err error
	if rec.FieldValues, err = decodeFieldValues(data); err != nil {
		return nil, err
	}
	return &rec, nil
}

func decodeFieldValues(data sql.NullString) (map[string]string, error) {
	if !data.Valid || data.String == "" {
		return map[string]string{}, nil
	}
	values := make(map[string]string)
	if err := json.Unmarshal([]byte(data.String), &values); err != nil {
		return nil, fmt.Errorf("decode field values: %w", err)
	}
	return values, nil
}

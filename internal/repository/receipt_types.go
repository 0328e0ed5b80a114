package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maepena22/receipt/internal/common"
	"github.com/maepena22/receipt/internal/entity"
)

// ReceiptTypeRepository is the Schema Store: named receipt-type
// definitions with their ordered field lists. Read-only to the pipeline;
// managed through the CRUD operations here.
type ReceiptTypeRepository interface {
	ListReceiptTypes(ctx context.Context, ids []int64) ([]entity.ReceiptType, error)
	GetReceiptType(ctx context.Context, id int64) (*entity.ReceiptType, error)
	CreateReceiptType(ctx context.Context, name, description string, fields []entity.Field) (int64, error)
	UpdateReceiptType(ctx context.Context, id int64, name, description string, fields []entity.Field) error
	DeleteReceiptType(ctx context.Context, id int64) error
}

type receiptTypeRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewReceiptTypeRepository(db *sql.DB, logger *slog.Logger) ReceiptTypeRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &receiptTypeRepository{db: db, logger: logger}
}

// ListReceiptTypes returns the candidate set for a batch: all types when
// ids is empty, otherwise only the requested ones. Unknown ids are
// silently omitted; the caller decides whether an empty result is fatal.
func (r *receiptTypeRepository) ListReceiptTypes(ctx context.Context, ids []int64) ([]entity.ReceiptType, error) {
	query := `SELECT id, name, description, created_at FROM receipt_types ORDER BY name`
	args := make([]any, 0, len(ids))
	if len(ids) > 0 {
		ph := make([]string, len(ids))
		for i, id := range ids {
			ph[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, id)
		}
		query = fmt.Sprintf(
			`SELECT id, name, description, created_at FROM receipt_types WHERE id IN (%s) ORDER BY name`,
			strings.Join(ph, ", "))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list receipt types", "error", err)
		return nil, err
	}
	defer rows.Close()

	var types []entity.ReceiptType
	for rows.Next() {
		var t entity.ReceiptType
		var desc sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &desc, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Description = desc.String
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range types {
		fields, err := r.listFields(ctx, types[i].ID)
		if err != nil {
			return nil, err
		}
		types[i].Fields = fields
	}
	return types, nil
}

func (r *receiptTypeRepository) GetReceiptType(ctx context.Context, id int64) (*entity.ReceiptType, error) {
	types, err := r.ListReceiptTypes(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, common.NewAppError("TYPE_NOT_FOUND",
			fmt.Sprintf("receipt type %d", id), common.ErrNotFound)
	}
	return &types[0], nil
}

func (r *receiptTypeRepository) listFields(ctx context.Context, typeID int64) ([]entity.Field, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT field_name, field_description, is_required
		 FROM receipt_fields WHERE receipt_type_id = $1 ORDER BY id`, typeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []entity.Field
	for rows.Next() {
		var f entity.Field
		var desc sql.NullString
		if err := rows.Scan(&f.Name, &desc, &f.IsRequired); err != nil {
			return nil, err
		}
		f.Description = desc.String
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// CreateReceiptType inserts the type and its fields in one transaction.
func (r *receiptTypeRepository) CreateReceiptType(ctx context.Context, name, description string, fields []entity.Field) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, common.NewAppError("TYPE_NAME", "receipt type name is required", common.ErrValidation)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO receipt_types (name, description) VALUES ($1, $2) RETURNING id`,
		name, description).Scan(&id); err != nil {
		return 0, err
	}
	if err := insertFields(ctx, tx, id, fields); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	r.logger.Info("receipt type created", "id", id, "name", name, "fields", len(fields))
	return id, nil
}

// UpdateReceiptType replaces the type's name, description and full field
// list in one transaction.
func (r *receiptTypeRepository) UpdateReceiptType(ctx context.Context, id int64, name, description string, fields []entity.Field) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE receipt_types SET name = $1, description = $2 WHERE id = $3`,
		name, description, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.NewAppError("TYPE_NOT_FOUND", fmt.Sprintf("receipt type %d", id), common.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM receipt_fields WHERE receipt_type_id = $1`, id); err != nil {
		return err
	}
	if err := insertFields(ctx, tx, id, fields); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteReceiptType removes the fields first, then the type, in one
// transaction. Receipts referencing the type keep it from being deleted
// (foreign key), matching the create-before-use lifecycle.
func (r *receiptTypeRepository) DeleteReceiptType(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM receipt_fields WHERE receipt_type_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM receipt_types WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func insertFields(ctx context.Context, tx *sql.Tx, typeID int64, fields []entity.Field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return common.NewAppError("FIELD_NAME", "field name is required", common.ErrValidation)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO receipt_fields (receipt_type_id, field_name, field_description, is_required)
			 VALUES ($1, $2, $3, $4)`,
			typeID, f.Name, f.Description, f.IsRequired); err != nil {
			return err
		}
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maepena22/receipt/internal/common"
	"github.com/maepena22/receipt/internal/entity"
)

// EmployeeRepository manages uploaders. GetEmployee backs the pipeline's
// batch precondition check.
type EmployeeRepository interface {
	GetEmployee(ctx context.Context, id int64) (*entity.Employee, error)
	ListEmployees(ctx context.Context) ([]entity.Employee, error)
	CreateEmployee(ctx context.Context, name string) (int64, error)
	DeleteEmployee(ctx context.Context, id int64) error
}

type employeeRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewEmployeeRepository(db *sql.DB, logger *slog.Logger) EmployeeRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &employeeRepository{db: db, logger: logger}
}

func (r *employeeRepository) GetEmployee(ctx context.Context, id int64) (*entity.Employee, error) {
	var e entity.Employee
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM employees WHERE id = $1`, id).
		Scan(&e.ID, &e.Name, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("EMPLOYEE_NOT_FOUND",
			fmt.Sprintf("employee %d", id), common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get employee", "id", id, "error", err)
		return nil, err
	}
	return &e, nil
}

func (r *employeeRepository) ListEmployees(ctx context.Context) ([]entity.Employee, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM employees ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []entity.Employee
	for rows.Next() {
		var e entity.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.CreatedAt); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func (r *employeeRepository) CreateEmployee(ctx context.Context, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, common.NewAppError("EMPLOYEE_NAME", "employee name is required", common.ErrValidation)
	}
	var id int64
	if err := r.db.QueryRowContext(ctx,
		`INSERT INTO employees (name) VALUES ($1) RETURNING id`, name).Scan(&id); err != nil {
		r.logger.Error("failed to create employee", "name", name, "error", err)
		return 0, err
	}
	return id, nil
}

// DeleteEmployee detaches the employee's receipts (employee_id set NULL)
// and removes the row, in one transaction.
func (r *employeeRepository) DeleteEmployee(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE receipts SET employee_id = NULL WHERE employee_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM employees WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

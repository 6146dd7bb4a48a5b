package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/casetrack/casetrack/internal/domain"
)

// CaseScope limits a listing to the cases an actor may see. With All unset,
// a case matches when created by OwnerID or assigned to AssigneeID; empty
// ids are skipped.
type CaseScope struct {
	All        bool
	OwnerID    string
	AssigneeID string
}

// Empty reports whether the scope can never match a case.
func (s CaseScope) Empty() bool {
	return !s.All && s.OwnerID == "" && s.AssigneeID == ""
}

// CaseFilter captures list parameters.
type CaseFilter struct {
	Scope           CaseScope
	Status          *domain.CaseStatus
	Priority        *domain.CasePriority
	Search          string
	AssignedTo      *string
	CreatedBy       *string
	Active          *bool
	IncludeInactive bool
	Limit           int
	Offset          int
}

// CaseRepository encapsulates case persistence.
type CaseRepository interface {
	Create(ctx context.Context, c *domain.Case) error
	Update(ctx context.Context, c *domain.Case) error
	SoftDelete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Case, error)
	List(ctx context.Context, filter CaseFilter) ([]domain.Case, int, error)
	Count(ctx context.Context) (int, error)
}

type caseRepository struct {
	db DBTX
}

// NewCaseRepository returns a Postgres-backed implementation.
func NewCaseRepository(db DBTX) CaseRepository {
	return &caseRepository{db: db}
}

const caseColumns = `id, title, description, status, priority, due_date, created_by, assigned_to,
               is_active, created_at, updated_at`

func (r *caseRepository) Create(ctx context.Context, c *domain.Case) error {
	const query = `
        INSERT INTO cases (title, description, status, priority, due_date, created_by, assigned_to)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, is_active, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		c.Title,
		c.Description,
		c.Status,
		c.Priority,
		c.DueDate,
		c.CreatedBy,
		c.AssignedTo,
	).Scan(&c.ID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
}

func (r *caseRepository) Update(ctx context.Context, c *domain.Case) error {
	const query = `
        UPDATE cases SET title=$1, description=$2, status=$3, priority=$4, due_date=$5,
            assigned_to=$6, updated_at=NOW()
        WHERE id=$7 AND is_active
        RETURNING updated_at`
	err := r.db.QueryRow(ctx, query,
		c.Title,
		c.Description,
		c.Status,
		c.Priority,
		c.DueDate,
		c.AssignedTo,
		c.ID,
	).Scan(&c.UpdatedAt)
	return err
}

func (r *caseRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE cases SET is_active=FALSE, updated_at=NOW() WHERE id=$1 AND is_active`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *caseRepository) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id=$1`
	return scanCase(r.db.QueryRow(ctx, query, id))
}

func (r *caseRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id=$1 FOR UPDATE`
	return scanCase(r.db.QueryRow(ctx, query, id))
}

func (r *caseRepository) List(ctx context.Context, filter CaseFilter) ([]domain.Case, int, error) {
	if filter.Scope.Empty() {
		return []domain.Case{}, 0, nil
	}

	where, args := caseFilterClauses(filter)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM cases WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset, 10)
	query := fmt.Sprintf(`SELECT %s FROM cases WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		caseColumns, where, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items, err := scanCases(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *caseRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM cases`).Scan(&n)
	return n, err
}

func caseFilterClauses(filter CaseFilter) (string, []any) {
	clauses := []string{}
	args := []any{}

	switch {
	case filter.Active != nil:
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("is_active=$%d", len(args)))
	case !filter.IncludeInactive:
		clauses = append(clauses, "is_active = TRUE")
	}

	if !filter.Scope.All {
		var scoped []string
		if filter.Scope.OwnerID != "" {
			args = append(args, filter.Scope.OwnerID)
			scoped = append(scoped, fmt.Sprintf("created_by=$%d", len(args)))
		}
		if filter.Scope.AssigneeID != "" {
			args = append(args, filter.Scope.AssigneeID)
			scoped = append(scoped, fmt.Sprintf("assigned_to=$%d", len(args)))
		}
		clauses = append(clauses, "("+strings.Join(scoped, " OR ")+")")
	}

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, string(*filter.Priority))
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		args = append(args, containsPattern(strings.ToLower(term)))
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(`(LOWER(title) LIKE %s ESCAPE '\' OR LOWER(description) LIKE %s ESCAPE '\')`, placeholder, placeholder))
	}

	if len(clauses) == 0 {
		return "1=1", args
	}
	return strings.Join(clauses, " AND "), args
}

func scanCase(row pgx.Row) (*domain.Case, error) {
	var c domain.Case
	if err := row.Scan(
		&c.ID,
		&c.Title,
		&c.Description,
		&c.Status,
		&c.Priority,
		&c.DueDate,
		&c.CreatedBy,
		&c.AssignedTo,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCases(rows pgx.Rows) ([]domain.Case, error) {
	result := []domain.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

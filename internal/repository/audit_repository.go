package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/casetrack/casetrack/internal/domain"
)

// AuditFilter narrows audit log queries.
type AuditFilter struct {
	UserID *string
	Action string
	Result *domain.AuditResult
	Limit  int
	Offset int
}

// AuditRepository stores the append-only audit trail.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]domain.AuditEntry, int, error)
}

type auditRepository struct {
	db DBTX
}

// NewAuditRepository returns a Postgres-backed implementation.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *domain.AuditEntry) error {
	const query = `
        INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, result, details,
            ip_address, user_agent, timestamp)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		entry.Result,
		entry.Details,
		entry.IPAddress,
		entry.UserAgent,
		entry.Timestamp,
	)
	return err
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]domain.AuditEntry, int, error) {
	where, args := auditFilterClauses(filter)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset, 50)
	query := fmt.Sprintf(`
        SELECT id, user_id, action, resource_type, resource_id, result, details, ip_address, user_agent, timestamp
        FROM audit_logs WHERE %s ORDER BY timestamp DESC, id DESC LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries, err := scanAuditEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func scanAuditEntries(rows pgx.Rows) ([]domain.AuditEntry, error) {
	result := []domain.AuditEntry{}
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.Action,
			&e.ResourceType,
			&e.ResourceID,
			&e.Result,
			&e.Details,
			&e.IPAddress,
			&e.UserAgent,
			&e.Timestamp,
		); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// auditFilterClauses builds the WHERE clause shared by the count and page
// queries. The action match is a case-insensitive substring.
func auditFilterClauses(filter AuditFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		args = append(args, containsPattern(action))
		clauses = append(clauses, fmt.Sprintf(`action ILIKE $%d ESCAPE '\'`, len(args)))
	}
	if filter.Result != nil {
		args = append(args, string(*filter.Result))
		clauses = append(clauses, fmt.Sprintf("result=$%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

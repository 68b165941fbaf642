package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"privaudit/internal/domain"
	"privaudit/pkg/errors"
)

// AuditRepository implements audit log persistence.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a new audit log entry.
func (r *AuditRepository) Create(ctx context.Context, log *domain.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, actor, action, entity_type, entity_id,
			request_id, status_code, error_message, created_at
		) VALUES (
			:id, :actor, :action, :entity_type, :entity_id,
			:request_id, :status_code, :error_message, :created_at
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, log)
	if err != nil {
		return errors.Wrap(err, "failed to create audit log")
	}

	return nil
}

// FindAll returns audit logs with pagination, newest first.
func (r *AuditRepository) FindAll(ctx context.Context, limit, offset int) ([]*domain.AuditLog, error) {
	var logs []*domain.AuditLog
	query := `
		SELECT id, actor, action, entity_type, entity_id,
		       request_id, status_code, error_message, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	err := r.db.SelectContext(ctx, &logs, query, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audit logs")
	}
	return logs, nil
}

// CountAll returns the total number of audit log entries.
func (r *AuditRepository) CountAll(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM audit_logs`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count audit logs")
	}
	return count, nil
}

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"privaudit/internal/domain"
	"privaudit/pkg/errors"
)

// DisclosureRepository implements disclosure persistence.
type DisclosureRepository struct {
	db *sqlx.DB
}

// NewDisclosureRepository creates a new DisclosureRepository.
func NewDisclosureRepository(db *sqlx.DB) *DisclosureRepository {
	return &DisclosureRepository{db: db}
}

// Create inserts a new disclosure.
func (r *DisclosureRepository) Create(ctx context.Context, d *domain.Disclosure) error {
	query := `
		INSERT INTO disclosures (
			id, transaction_id, auditor_id, role, viewing_key_hash,
			disclosed_fields, encrypted_payload, expires_at, created_at, revoked_at
		) VALUES (
			:id, :transaction_id, :auditor_id, :role, :viewing_key_hash,
			:disclosed_fields, :encrypted_payload, :expires_at, :created_at, :revoked_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, d)
	if err != nil {
		return errors.Wrap(err, "failed to create disclosure")
	}
	return nil
}

// GetByID returns a disclosure by id.
func (r *DisclosureRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Disclosure, error) {
	var d domain.Disclosure
	query := `
		SELECT id, transaction_id, auditor_id, role, viewing_key_hash,
		       disclosed_fields, encrypted_payload, expires_at, created_at, revoked_at
		FROM disclosures
		WHERE id = $1
	`
	err := r.db.GetContext(ctx, &d, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrDisclosureNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get disclosure")
	}
	return &d, nil
}

// ListByAuditor returns disclosures issued to an auditor, newest first.
func (r *DisclosureRepository) ListByAuditor(ctx context.Context, auditorID string, includeRevoked bool) ([]*domain.Disclosure, error) {
	var out []*domain.Disclosure
	query := `
		SELECT id, transaction_id, auditor_id, role, viewing_key_hash,
		       disclosed_fields, encrypted_payload, expires_at, created_at, revoked_at
		FROM disclosures
		WHERE auditor_id = $1
		  AND ($2 OR revoked_at IS NULL)
		ORDER BY created_at DESC
	`
	err := r.db.SelectContext(ctx, &out, query, auditorID, includeRevoked)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list disclosures")
	}
	return out, nil
}

// ListByRoleInRange returns all disclosures of a role created inside the
// range, revoked ones included, for reporting.
func (r *DisclosureRepository) ListByRoleInRange(ctx context.Context, role domain.Role, from, to time.Time) ([]*domain.Disclosure, error) {
	var out []*domain.Disclosure
	query := `
		SELECT id, transaction_id, auditor_id, role, viewing_key_hash,
		       disclosed_fields, encrypted_payload, expires_at, created_at, revoked_at
		FROM disclosures
		WHERE role = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC
	`
	err := r.db.SelectContext(ctx, &out, query, role, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list disclosures by role")
	}
	return out, nil
}

// Revoke sets revoked_at once; the first revocation time wins.
func (r *DisclosureRepository) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE disclosures
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return errors.Wrap(err, "failed to revoke disclosure")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Either unknown or already revoked; distinguish for the caller.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

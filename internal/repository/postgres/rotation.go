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

// RotationRepository implements key rotation history persistence.
type RotationRepository struct {
	db *sqlx.DB
}

// NewRotationRepository creates a new RotationRepository.
func NewRotationRepository(db *sqlx.DB) *RotationRepository {
	return &RotationRepository{db: db}
}

// Create inserts a rotation event.
func (r *RotationRepository) Create(ctx context.Context, ev *domain.RotationEvent) error {
	query := `
		INSERT INTO key_rotation_history (
			id, old_key_id, new_key_id, reason, revoke_at, executed_at, created_at
		) VALUES (
			:id, :old_key_id, :new_key_id, :reason, :revoke_at, :executed_at, :created_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, ev)
	if err != nil {
		return errors.Wrap(err, "failed to create rotation event")
	}
	return nil
}

// Due returns unexecuted rotation events whose revocation time has
// arrived.
func (r *RotationRepository) Due(ctx context.Context, now time.Time) ([]*domain.RotationEvent, error) {
	var out []*domain.RotationEvent
	query := `
		SELECT id, old_key_id, new_key_id, reason, revoke_at, executed_at, created_at
		FROM key_rotation_history
		WHERE executed_at IS NULL AND revoke_at <= $1
		ORDER BY revoke_at ASC
	`
	err := r.db.SelectContext(ctx, &out, query, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due rotations")
	}
	return out, nil
}

// MarkExecuted records that a scheduled revocation has fired.
func (r *RotationRepository) MarkExecuted(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE key_rotation_history
		SET executed_at = $2
		WHERE id = $1 AND executed_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return errors.Wrap(err, "failed to mark rotation executed")
	}
	return nil
}

// PendingForKey returns the rotation event that supersedes the given key,
// if one exists. Rotated keys keep decrypting through the grace period
// but must not derive new children.
func (r *RotationRepository) PendingForKey(ctx context.Context, oldKeyID uuid.UUID) (*domain.RotationEvent, error) {
	var ev domain.RotationEvent
	query := `
		SELECT id, old_key_id, new_key_id, reason, revoke_at, executed_at, created_at
		FROM key_rotation_history
		WHERE old_key_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &ev, query, oldKeyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rotation for key")
	}
	return &ev, nil
}

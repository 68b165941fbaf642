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

// ViewingKeyRepository implements viewing key persistence. The table is
// append-only except for the revoked_at column.
type ViewingKeyRepository struct {
	db *sqlx.DB
}

// NewViewingKeyRepository creates a new ViewingKeyRepository.
func NewViewingKeyRepository(db *sqlx.DB) *ViewingKeyRepository {
	return &ViewingKeyRepository{db: db}
}

// Create inserts a new viewing key.
func (r *ViewingKeyRepository) Create(ctx context.Context, key *domain.ViewingKey) error {
	query := `
		INSERT INTO viewing_keys (
			id, key_hash, path, parent_hash, role,
			encrypted_key_material, expires_at, revoked_at, created_at
		) VALUES (
			:id, :key_hash, :path, :parent_hash, :role,
			:encrypted_key_material, :expires_at, :revoked_at, :created_at
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, key)
	if err != nil {
		return errors.Wrap(err, "failed to create viewing key")
	}

	return nil
}

// GetByID returns a viewing key by its id.
func (r *ViewingKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ViewingKey, error) {
	var key domain.ViewingKey
	query := `
		SELECT id, key_hash, path, parent_hash, role,
		       encrypted_key_material, expires_at, revoked_at, created_at
		FROM viewing_keys
		WHERE id = $1
	`
	err := r.db.GetContext(ctx, &key, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get viewing key")
	}
	return &key, nil
}

// GetByHash returns a viewing key by its public key hash.
func (r *ViewingKeyRepository) GetByHash(ctx context.Context, keyHash string) (*domain.ViewingKey, error) {
	var key domain.ViewingKey
	query := `
		SELECT id, key_hash, path, parent_hash, role,
		       encrypted_key_material, expires_at, revoked_at, created_at
		FROM viewing_keys
		WHERE key_hash = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &key, query, keyHash)
	if err == sql.ErrNoRows {
		return nil, errors.ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get viewing key by hash")
	}
	return &key, nil
}

// LatestActiveByRole returns the most recent non-revoked, non-expired key
// for a role.
func (r *ViewingKeyRepository) LatestActiveByRole(ctx context.Context, role domain.Role, now time.Time) (*domain.ViewingKey, error) {
	var key domain.ViewingKey
	query := `
		SELECT id, key_hash, path, parent_hash, role,
		       encrypted_key_material, expires_at, revoked_at, created_at
		FROM viewing_keys
		WHERE role = $1
		  AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &key, query, role, now)
	if err == sql.ErrNoRows {
		return nil, errors.ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get viewing key by role")
	}
	return &key, nil
}

// Revoke sets revoked_at once. Already-revoked keys are left untouched so
// the original revocation time is preserved.
func (r *ViewingKeyRepository) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE viewing_keys
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return errors.Wrap(err, "failed to revoke viewing key")
	}
	return nil
}

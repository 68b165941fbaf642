package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"privaudit/internal/domain"
	"privaudit/pkg/errors"
)

// CommitmentRepository implements commitment persistence. Rows are
// immutable once written.
type CommitmentRepository struct {
	db *sqlx.DB
}

// NewCommitmentRepository creates a new CommitmentRepository.
func NewCommitmentRepository(db *sqlx.DB) *CommitmentRepository {
	return &CommitmentRepository{db: db}
}

const insertCommitmentQuery = `
	INSERT INTO commitments (
		id, commitment_point, encrypted_blinding_factor, created_at
	) VALUES (
		:id, :commitment_point, :encrypted_blinding_factor, :created_at
	)
`

// Create inserts a single commitment.
func (r *CommitmentRepository) Create(ctx context.Context, c *domain.Commitment) error {
	_, err := r.db.NamedExecContext(ctx, insertCommitmentQuery, c)
	if err != nil {
		return errors.Wrap(err, "failed to create commitment")
	}
	return nil
}

// CreateBatch inserts all commitments in one transaction. A failure on
// any row rolls back every row; downstream homomorphic sums must never
// see a partial batch.
func (r *CommitmentRepository) CreateBatch(ctx context.Context, commitments []*domain.Commitment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin batch transaction")
	}

	for _, c := range commitments {
		if _, err := tx.NamedExecContext(ctx, insertCommitmentQuery, c); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(errors.ErrBatchPartialFailure, err.Error())
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrBatchPartialFailure, err.Error())
	}
	return nil
}

// GetByID returns a commitment by id.
func (r *CommitmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Commitment, error) {
	var c domain.Commitment
	query := `
		SELECT id, commitment_point, encrypted_blinding_factor, created_at
		FROM commitments
		WHERE id = $1
	`
	err := r.db.GetContext(ctx, &c, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrCommitmentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get commitment")
	}
	return &c, nil
}

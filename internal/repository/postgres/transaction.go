package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"privaudit/internal/domain"
	"privaudit/pkg/errors"
)

// TransactionRepository reads shielded transaction records produced by
// the transfer protocol. This service only ever reads them; Create exists
// for seeding and tests.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// GetByID returns a transaction record by id.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error) {
	var tx domain.TransactionRecord
	query := `
		SELECT id, sender, stealth_recipient, encrypted_amount, amount,
		       signature, memo, created_at
		FROM shielded_transactions
		WHERE id = $1
	`
	err := r.db.GetContext(ctx, &tx, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	return &tx, nil
}

// Create inserts a transaction record.
func (r *TransactionRepository) Create(ctx context.Context, tx *domain.TransactionRecord) error {
	query := `
		INSERT INTO shielded_transactions (
			id, sender, stealth_recipient, encrypted_amount, amount,
			signature, memo, created_at
		) VALUES (
			:id, :sender, :stealth_recipient, :encrypted_amount, :amount,
			:signature, :memo, :created_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, tx)
	if err != nil {
		return errors.Wrap(err, "failed to create transaction")
	}
	return nil
}

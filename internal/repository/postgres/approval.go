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

// ApprovalRepository implements approval request, signature, and signer
// registry persistence.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// RegisterSigner stores or replaces a signer's public key.
func (r *ApprovalRepository) RegisterSigner(ctx context.Context, signer, publicKeyHex string) error {
	query := `
		INSERT INTO approval_signers (signer, public_key, registered_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (signer) DO UPDATE SET public_key = EXCLUDED.public_key
	`
	_, err := r.db.ExecContext(ctx, query, signer, publicKeyHex, time.Now())
	if err != nil {
		return errors.Wrap(err, "failed to register signer")
	}
	return nil
}

// GetSignerKey returns a signer's registered public key.
func (r *ApprovalRepository) GetSignerKey(ctx context.Context, signer string) (string, error) {
	var publicKey string
	query := `SELECT public_key FROM approval_signers WHERE signer = $1`
	err := r.db.GetContext(ctx, &publicKey, query, signer)
	if err == sql.ErrNoRows {
		return "", errors.ErrSignerNotRegistered
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to get signer key")
	}
	return publicKey, nil
}

// CreateRequest inserts a new approval request.
func (r *ApprovalRepository) CreateRequest(ctx context.Context, req *domain.ApprovalRequest) error {
	query := `
		INSERT INTO approval_requests (
			request_id, requester, threshold, status, created_at, approved_at, expires_at
		) VALUES (
			:request_id, :requester, :threshold, :status, :created_at, :approved_at, :expires_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, req)
	if err != nil {
		return errors.Wrap(err, "failed to create approval request")
	}
	return nil
}

// GetRequest returns an approval request by id.
func (r *ApprovalRepository) GetRequest(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequest, error) {
	var req domain.ApprovalRequest
	query := `
		SELECT request_id, requester, threshold, status, created_at, approved_at, expires_at
		FROM approval_requests
		WHERE request_id = $1
	`
	err := r.db.GetContext(ctx, &req, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrRequestNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get approval request")
	}
	return &req, nil
}

// InsertSignatureIfAbsent atomically records a signature unless the
// signer already signed this request. The unique index on
// (request_id, signer) is the sole source of truth under concurrent
// submission; there is no read-then-increment anywhere.
func (r *ApprovalRepository) InsertSignatureIfAbsent(ctx context.Context, sig *domain.ApprovalSignature) (bool, error) {
	query := `
		INSERT INTO approval_signatures (request_id, signer, signature, signed_at)
		VALUES (:request_id, :signer, :signature, :signed_at)
		ON CONFLICT (request_id, signer) DO NOTHING
	`
	res, err := r.db.NamedExecContext(ctx, query, sig)
	if err != nil {
		return false, errors.Wrap(err, "failed to insert signature")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read insert result")
	}
	return n == 1, nil
}

// CountSignatures returns the number of distinct signers on a request.
func (r *ApprovalRepository) CountSignatures(ctx context.Context, requestID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM approval_signatures WHERE request_id = $1`
	err := r.db.GetContext(ctx, &count, query, requestID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count signatures")
	}
	return count, nil
}

// MarkApproved transitions pending -> approved exactly once. Returns
// false when the request was already approved or expired.
func (r *ApprovalRepository) MarkApproved(ctx context.Context, requestID uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE approval_requests
		SET status = $2, approved_at = $3
		WHERE request_id = $1 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, requestID, domain.ApprovalStatusApproved, at, domain.ApprovalStatusPending)
	if err != nil {
		return false, errors.Wrap(err, "failed to mark request approved")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read update result")
	}
	return n == 1, nil
}

// ExpirePending marks all pending requests past their deadline expired
// and returns how many were affected.
func (r *ApprovalRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE approval_requests
		SET status = $1
		WHERE status = $2 AND expires_at <= $3
	`
	res, err := r.db.ExecContext(ctx, query, domain.ApprovalStatusExpired, domain.ApprovalStatusPending, now)
	if err != nil {
		return 0, errors.Wrap(err, "failed to expire approval requests")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

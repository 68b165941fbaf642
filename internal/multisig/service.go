// Package multisig gates master-key operations behind an M-of-N
// Ed25519 signature threshold. Every signature is verified against a
// registered public key before it counts; duplicate submissions by the
// same signer never raise the count.
package multisig

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"privaudit/internal/crypto"
	"privaudit/internal/domain"
	"privaudit/pkg/errors"
	"privaudit/pkg/logger"
)

// MinThreshold is the smallest signature threshold an approval request
// may carry. Master-key operations are never one- or two-person
// decisions.
const MinThreshold = 3

// DefaultRequestTTL bounds how long a pending request stays signable
// unless configured otherwise.
const DefaultRequestTTL = 24 * time.Hour

// Repository persists approval requests, signatures, and the signer
// public key registry.
type Repository interface {
	RegisterSigner(ctx context.Context, signer, publicKeyHex string) error
	GetSignerKey(ctx context.Context, signer string) (string, error)
	CreateRequest(ctx context.Context, req *domain.ApprovalRequest) error
	GetRequest(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequest, error)
	InsertSignatureIfAbsent(ctx context.Context, sig *domain.ApprovalSignature) (bool, error)
	CountSignatures(ctx context.Context, requestID uuid.UUID) (int, error)
	MarkApproved(ctx context.Context, requestID uuid.UUID, at time.Time) (bool, error)
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

// Service implements threshold approval for master-key operations.
type Service struct {
	repo      Repository
	threshold int
	ttl       time.Duration
	logger    logger.Logger
	now       func() time.Time
}

// NewService creates a multisig service with the configured threshold
// and request TTL. A zero ttl falls back to DefaultRequestTTL.
func NewService(repo Repository, threshold int, ttl time.Duration, log logger.Logger) (*Service, error) {
	if threshold < MinThreshold {
		return nil, errors.Wrap(errors.ErrThresholdNotMet,
			fmt.Sprintf("threshold %d is below the minimum of %d", threshold, MinThreshold))
	}
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	return &Service{
		repo:      repo,
		threshold: threshold,
		ttl:       ttl,
		logger:    log,
		now:       time.Now,
	}, nil
}

// WithClock overrides the service clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RegisterSigner stores a signer's Ed25519 public key. Re-registering
// replaces the key; signatures already recorded stay counted.
func (s *Service) RegisterSigner(ctx context.Context, signer, publicKeyHex string) error {
	if err := s.repo.RegisterSigner(ctx, signer, publicKeyHex); err != nil {
		return err
	}
	s.logger.Info("Approval signer registered", map[string]interface{}{
		"signer": signer,
	})
	return nil
}

// CreateRequest opens a new approval request for a master-key operation.
// The request expires 24 hours after creation if the threshold is not
// reached.
func (s *Service) CreateRequest(ctx context.Context, requester string) (*domain.ApprovalRequest, error) {
	now := s.now().UTC()
	req := &domain.ApprovalRequest{
		RequestID: uuid.New(),
		Requester: requester,
		Threshold: s.threshold,
		Status:    domain.ApprovalStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	s.logger.Info("Approval request created", map[string]interface{}{
		"request_id": req.RequestID,
		"requester":  requester,
		"threshold":  s.threshold,
		"expires_at": req.ExpiresAt,
	})
	return req, nil
}

// SigningMessage is the canonical byte string a signer must sign to
// approve a request. Both sides derive it independently; it is never
// sent over the wire.
func SigningMessage(requestID uuid.UUID, signer string) []byte {
	return []byte(fmt.Sprintf("approve:%s:%s", requestID, signer))
}

// AddSignature verifies and records one signer's approval. The
// signature must verify against the signer's registered key over the
// canonical signing message. A duplicate submission by the same signer
// is a no-op and reports the current state unchanged. Reaching the
// threshold transitions the request to approved exactly once, even
// under concurrent submission.
func (s *Service) AddSignature(ctx context.Context, requestID uuid.UUID, signer, signatureHex string) (*domain.ApprovalRequest, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	switch {
	case req.Status == domain.ApprovalStatusExpired:
		return nil, errors.ErrRequestExpired
	case req.Status == domain.ApprovalStatusPending && now.After(req.ExpiresAt):
		return nil, errors.ErrRequestExpired
	case req.Status == domain.ApprovalStatusApproved:
		return req, nil
	}

	publicKey, err := s.repo.GetSignerKey(ctx, signer)
	if err != nil {
		return nil, err
	}
	if !crypto.VerifySignature(SigningMessage(requestID, signer), signatureHex, publicKey) {
		s.logger.Warn("Approval signature rejected", map[string]interface{}{
			"request_id": requestID,
			"signer":     signer,
		})
		return nil, errors.ErrSignatureInvalid
	}

	inserted, err := s.repo.InsertSignatureIfAbsent(ctx, &domain.ApprovalSignature{
		RequestID: requestID,
		Signer:    signer,
		Signature: signatureHex,
		SignedAt:  now,
	})
	if err != nil {
		return nil, err
	}
	if inserted {
		s.logger.Info("Approval signature recorded", map[string]interface{}{
			"request_id": requestID,
			"signer":     signer,
		})
	}

	count, err := s.repo.CountSignatures(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if count >= req.Threshold {
		// The conditional update makes the pending -> approved
		// transition single-winner under concurrency.
		transitioned, err := s.repo.MarkApproved(ctx, requestID, now)
		if err != nil {
			return nil, err
		}
		if transitioned {
			s.logger.Info("Approval threshold reached", map[string]interface{}{
				"request_id": requestID,
				"signatures": count,
				"threshold":  req.Threshold,
			})
		}
	}

	return s.repo.GetRequest(ctx, requestID)
}

// IsApproved reports whether a request has reached its threshold and is
// still inside its validity window. This is the check the viewing key
// service consults before any master-scoped operation.
func (s *Service) IsApproved(ctx context.Context, requestID uuid.UUID) (bool, error) {
	if requestID == uuid.Nil {
		return false, nil
	}
	req, err := s.repo.GetRequest(ctx, requestID)
	if errors.Is(err, errors.ErrRequestNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return req.Status == domain.ApprovalStatusApproved, nil
}

// GetRequest returns an approval request with its current signature
// count.
func (s *Service) GetRequest(ctx context.Context, requestID uuid.UUID) (*domain.ApprovalRequest, int, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.CountSignatures(ctx, requestID)
	if err != nil {
		return nil, 0, err
	}
	return req, count, nil
}

// ExpireStale marks all pending requests past their deadline expired.
// Run periodically by the scheduler.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpirePending(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Stale approval requests expired", map[string]interface{}{
			"count": n,
		})
	}
	return n, nil
}

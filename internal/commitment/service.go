// Package commitment manages Pedersen commitments: creation,
// verification, and homomorphic combination. Blinding factors exist in
// plaintext only inside this package and are encrypted before storage.
package commitment

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"privaudit/internal/crypto"
	"privaudit/internal/domain"
	"privaudit/pkg/errors"
	"privaudit/pkg/logger"
)

// Repository persists commitments. CreateBatch must be all-or-nothing.
type Repository interface {
	Create(ctx context.Context, c *domain.Commitment) error
	CreateBatch(ctx context.Context, commitments []*domain.Commitment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Commitment, error)
}

// Service implements the commitment manager.
type Service struct {
	repo       Repository
	storageKey []byte
	logger     logger.Logger
}

// NewService constructs the manager. The storage key encrypting blinding
// factors at rest is derived from the protocol root secret.
func NewService(repo Repository, rootSecret []byte, log logger.Logger) (*Service, error) {
	storageKey, err := crypto.StorageKey(rootSecret)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive storage key")
	}
	return &Service{repo: repo, storageKey: storageKey, logger: log}, nil
}

func (s *Service) seal(value uint64) (*domain.Commitment, error) {
	blinding, err := crypto.NewBlindingFactor()
	if err != nil {
		return nil, errors.Wrap(err, "failed to sample blinding factor")
	}

	point := crypto.Commit(value, blinding)
	encryptedBlinding, err := crypto.EncryptAEAD(blinding.Bytes(), s.storageKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt blinding factor")
	}

	return &domain.Commitment{
		ID:                      uuid.New(),
		CommitmentPoint:         crypto.EncodePoint(point),
		EncryptedBlindingFactor: encryptedBlinding,
		CreatedAt:               time.Now(),
	}, nil
}

// Create commits to a value under a fresh blinding factor and persists
// the result. Neither the value nor the plaintext blinding factor leaves
// the service.
func (s *Service) Create(ctx context.Context, value uint64) (*domain.Commitment, error) {
	c, err := s.seal(value)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// BatchCreate commits to every value or to none: a failure preparing any
// commitment aborts before anything is persisted, and the repository
// boundary rolls back partial inserts.
func (s *Service) BatchCreate(ctx context.Context, values []uint64) ([]*domain.Commitment, error) {
	commitments := make([]*domain.Commitment, 0, len(values))
	for _, v := range values {
		c, err := s.seal(v)
		if err != nil {
			return nil, errors.Wrap(errors.ErrBatchPartialFailure, err.Error())
		}
		commitments = append(commitments, c)
	}
	if err := s.repo.CreateBatch(ctx, commitments); err != nil {
		return nil, err
	}
	return commitments, nil
}

// Verify checks a claimed (value, blindingFactor) opening against the
// stored point. Any decode failure verifies as false.
func (s *Service) Verify(ctx context.Context, id uuid.UUID, value uint64, blindingHex string) (bool, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	point, err := crypto.DecodePoint(c.CommitmentPoint)
	if err != nil {
		return false, nil
	}
	blinding, err := hex.DecodeString(blindingHex)
	if err != nil {
		return false, nil
	}
	return crypto.VerifyCommitment(point, value, blinding), nil
}

// Add combines two commitments homomorphically. The new record commits
// to the sum of the two hidden values under the sum of their blinding
// factors; the summed value itself is never materialized.
func (s *Service) Add(ctx context.Context, idA, idB uuid.UUID) (*domain.Commitment, error) {
	a, err := s.repo.GetByID(ctx, idA)
	if err != nil {
		return nil, err
	}
	b, err := s.repo.GetByID(ctx, idB)
	if err != nil {
		return nil, err
	}

	pointA, err := crypto.DecodePoint(a.CommitmentPoint)
	if err != nil {
		return nil, err
	}
	pointB, err := crypto.DecodePoint(b.CommitmentPoint)
	if err != nil {
		return nil, err
	}
	sumPoint, err := crypto.AddCommitments(pointA, pointB)
	if err != nil {
		return nil, err
	}

	blindingA, err := crypto.DecryptAEAD(a.EncryptedBlindingFactor, s.storageKey)
	if err != nil {
		return nil, err
	}
	blindingB, err := crypto.DecryptAEAD(b.EncryptedBlindingFactor, s.storageKey)
	if err != nil {
		return nil, err
	}
	sumBlinding, err := crypto.AddBlindingFactors(blindingA, blindingB)
	if err != nil {
		return nil, err
	}

	encryptedBlinding, err := crypto.EncryptAEAD(sumBlinding, s.storageKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt blinding factor")
	}

	sum := &domain.Commitment{
		ID:                      uuid.New(),
		CommitmentPoint:         crypto.EncodePoint(sumPoint),
		EncryptedBlindingFactor: encryptedBlinding,
		CreatedAt:               time.Now(),
	}
	if err := s.repo.Create(ctx, sum); err != nil {
		return nil, err
	}

	s.logger.Debug("Commitments combined", map[string]interface{}{
		"left":   idA.String(),
		"right":  idB.String(),
		"result": sum.ID.String(),
	})
	return sum, nil
}

// BlindingFactor decrypts a commitment's blinding factor, hex-encoded.
// Protocol-boundary use only: handlers never expose it to auditors.
func (s *Service) BlindingFactor(ctx context.Context, id uuid.UUID) (string, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	blinding, err := crypto.DecryptAEAD(c.EncryptedBlindingFactor, s.storageKey)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(blinding), nil
}

// GetByID returns a commitment by id.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*domain.Commitment, error) {
	return s.repo.GetByID(ctx, id)
}

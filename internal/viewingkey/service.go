// Package viewingkey manages the hierarchical viewing key tree: master
// generation, BIP32-style derivation, ancestry verification, rotation,
// and revocation.
package viewingkey

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

// MasterPath is the canonical root of the hierarchy.
const MasterPath = "m/0"

// Repository persists viewing keys.
type Repository interface {
	Create(ctx context.Context, key *domain.ViewingKey) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ViewingKey, error)
	GetByHash(ctx context.Context, keyHash string) (*domain.ViewingKey, error)
	LatestActiveByRole(ctx context.Context, role domain.Role, now time.Time) (*domain.ViewingKey, error)
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
}

// RotationRepository persists the rotation history.
type RotationRepository interface {
	Create(ctx context.Context, ev *domain.RotationEvent) error
	Due(ctx context.Context, now time.Time) ([]*domain.RotationEvent, error)
	MarkExecuted(ctx context.Context, id uuid.UUID, at time.Time) error
	PendingForKey(ctx context.Context, oldKeyID uuid.UUID) (*domain.RotationEvent, error)
}

// ApprovalChecker answers whether a multi-sig request has been approved.
// Master-scoped operations consult it before touching the root of the
// tree.
type ApprovalChecker interface {
	IsApproved(ctx context.Context, requestID uuid.UUID) (bool, error)
}

// Service implements the viewing key manager.
type Service struct {
	repo       Repository
	rotations  RotationRepository
	approvals  ApprovalChecker
	rootSecret []byte
	storageKey []byte
	logger     logger.Logger
	now        func() time.Time
}

// NewService constructs the manager. The root secret must already have
// passed config validation; the storage key for key material at rest is
// derived from it here.
func NewService(repo Repository, rotations RotationRepository, approvals ApprovalChecker, rootSecret []byte, log logger.Logger) (*Service, error) {
	storageKey, err := crypto.StorageKey(rootSecret)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive storage key")
	}
	return &Service{
		repo:       repo,
		rotations:  rotations,
		approvals:  approvals,
		rootSecret: rootSecret,
		storageKey: storageKey,
		logger:     log,
		now:        time.Now,
	}, nil
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) requireApproval(ctx context.Context, approvalID uuid.UUID) error {
	if approvalID == uuid.Nil {
		return errors.ErrApprovalRequired
	}
	approved, err := s.approvals.IsApproved(ctx, approvalID)
	if err != nil {
		return err
	}
	if !approved {
		return errors.ErrApprovalRequired
	}
	return nil
}

// GenerateMaster creates the root viewing key at m/0. The operation is
// master-scoped and therefore gated on an approved multi-sig request.
func (s *Service) GenerateMaster(ctx context.Context, approvalID uuid.UUID) (*domain.ViewingKey, error) {
	if err := s.requireApproval(ctx, approvalID); err != nil {
		return nil, err
	}

	material := crypto.DeriveChild(s.rootSecret, MasterPath)
	key, err := s.buildKey(material, MasterPath, nil)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, key); err != nil {
		return nil, err
	}

	s.logger.Info("Master viewing key generated", map[string]interface{}{
		"key_id":   key.ID.String(),
		"key_hash": key.KeyHash,
	})
	return key, nil
}

// Derive creates a child key one level below the parent. The parent must
// be active and not superseded by a pending rotation.
func (s *Service) Derive(ctx context.Context, parentID uuid.UUID, segment string) (*domain.ViewingKey, error) {
	parent, err := s.repo.GetByID(ctx, parentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if parent.IsRevoked() {
		return nil, errors.ErrKeyRevoked
	}
	if parent.IsExpired(now) {
		return nil, errors.ErrKeyExpired
	}
	if ev, err := s.rotations.PendingForKey(ctx, parent.ID); err != nil {
		return nil, err
	} else if ev != nil {
		// A rotated key keeps decrypting through its grace period but
		// must not extend the tree.
		return nil, errors.ErrKeyRotated
	}
	if parent.Depth()+1 > domain.MaxDerivationDepth {
		return nil, errors.ErrMaxDepthExceeded
	}

	parentMaterial, err := s.Material(parent)
	if err != nil {
		return nil, err
	}

	childMaterial := crypto.DeriveChild(parentMaterial, segment)
	key, err := s.buildKey(childMaterial, parent.Path+"/"+segment, parent)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, key); err != nil {
		return nil, err
	}

	s.logger.Info("Viewing key derived", map[string]interface{}{
		"key_id": key.ID.String(),
		"path":   key.Path,
		"role":   string(key.Role),
	})
	return key, nil
}

// buildKey assembles a ViewingKey record from raw material. Expiry is the
// role window clamped to the parent's own expiry, so a child never
// outlives its parent.
func (s *Service) buildKey(material []byte, path string, parent *domain.ViewingKey) (*domain.ViewingKey, error) {
	depth := domain.PathDepth(path)
	role, err := domain.RoleForDepth(depth)
	if err != nil {
		return nil, err
	}

	encrypted, err := crypto.EncryptAEAD(material, s.storageKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt key material")
	}

	now := s.now()
	key := &domain.ViewingKey{
		ID:                   uuid.New(),
		KeyHash:              crypto.KeyHash(material),
		Path:                 path,
		Role:                 role,
		EncryptedKeyMaterial: encrypted,
		CreatedAt:            now,
	}

	if window := role.ValidityWindow(); window > 0 {
		expires := now.Add(window)
		if parent != nil && parent.ExpiresAt != nil && parent.ExpiresAt.Before(expires) {
			expires = *parent.ExpiresAt
		}
		key.ExpiresAt = &expires
	}
	if parent != nil {
		parentHash := parent.KeyHash
		key.ParentHash = &parentHash
	}
	return key, nil
}

// Material decrypts a key's material with the storage key.
func (s *Service) Material(key *domain.ViewingKey) ([]byte, error) {
	material, err := crypto.DecryptAEAD(key.EncryptedKeyMaterial, s.storageKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt key material")
	}
	return material, nil
}

// VerifyHierarchy proves cryptographic ancestry: it rederives the child
// from the parent's material and the child's recorded path suffix and
// compares key hashes. A stored parent_hash pointer alone proves nothing.
func (s *Service) VerifyHierarchy(ctx context.Context, parentID, childID uuid.UUID) (bool, error) {
	parent, err := s.repo.GetByID(ctx, parentID)
	if err != nil {
		return false, err
	}
	child, err := s.repo.GetByID(ctx, childID)
	if err != nil {
		return false, err
	}

	if child.ParentHash == nil || child.Path != parent.Path+"/"+child.LastSegment() {
		return false, nil
	}

	parentMaterial, err := s.Material(parent)
	if err != nil {
		return false, err
	}

	derived := crypto.DeriveChild(parentMaterial, child.LastSegment())
	if crypto.KeyHash(derived) != child.KeyHash {
		// Recorded hash disagrees with rederivation: either the claimed
		// parent is wrong or the stored record was tampered with.
		s.logger.Error("Viewing key hierarchy mismatch", map[string]interface{}{
			"parent_id": parentID.String(),
			"child_id":  childID.String(),
			"path":      child.Path,
		})
		return false, nil
	}
	if *child.ParentHash != parent.KeyHash {
		s.logger.Error("Viewing key parent hash mismatch", map[string]interface{}{
			"parent_id": parentID.String(),
			"child_id":  childID.String(),
		})
		return false, nil
	}
	return true, nil
}

// GetByRole returns the most recent active key of a role.
func (s *Service) GetByRole(ctx context.Context, role domain.Role) (*domain.ViewingKey, error) {
	return s.repo.LatestActiveByRole(ctx, role, s.now())
}

// GetByID returns a key by id.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*domain.ViewingKey, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByHash returns a key by its public hash.
func (s *Service) GetByHash(ctx context.Context, keyHash string) (*domain.ViewingKey, error) {
	return s.repo.GetByHash(ctx, keyHash)
}

// Rotate derives a replacement key at the same path and schedules the old
// key's revocation after the grace period. Reason "compromise" revokes
// immediately. Rotating the master key is master-scoped and requires an
// approved request.
func (s *Service) Rotate(ctx context.Context, keyID uuid.UUID, reason string, gracePeriodDays int, approvalID uuid.UUID) (*domain.ViewingKey, error) {
	old, err := s.repo.GetByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if old.IsRevoked() {
		return nil, errors.ErrKeyRevoked
	}
	if old.Role == domain.RoleMaster {
		if err := s.requireApproval(ctx, approvalID); err != nil {
			return nil, err
		}
	}
	if ev, err := s.rotations.PendingForKey(ctx, old.ID); err != nil {
		return nil, err
	} else if ev != nil {
		return nil, errors.ErrKeyRotated
	}

	oldMaterial, err := s.Material(old)
	if err != nil {
		return nil, err
	}

	// The replacement inherits the parent so its expiry window is clamped
	// the same way a freshly derived key's would be.
	var parent *domain.ViewingKey
	if old.ParentHash != nil {
		parent, err = s.repo.GetByHash(ctx, *old.ParentHash)
		if err != nil {
			return nil, err
		}
	}

	replacement, err := s.buildKey(
		crypto.DeriveChild(oldMaterial, fmt.Sprintf("rotation:%s", uuid.NewString())),
		old.Path,
		parent,
	)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, replacement); err != nil {
		return nil, err
	}

	now := s.now()
	revokeAt := now.AddDate(0, 0, gracePeriodDays)
	if reason == domain.RotationReasonCompromise {
		revokeAt = now
	}

	ev := &domain.RotationEvent{
		ID:        uuid.New(),
		OldKeyID:  old.ID,
		NewKeyID:  replacement.ID,
		Reason:    reason,
		RevokeAt:  revokeAt,
		CreatedAt: now,
	}
	if err := s.rotations.Create(ctx, ev); err != nil {
		return nil, err
	}

	if reason == domain.RotationReasonCompromise {
		if err := s.repo.Revoke(ctx, old.ID, now); err != nil {
			return nil, err
		}
		if err := s.rotations.MarkExecuted(ctx, ev.ID, now); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Viewing key rotated", map[string]interface{}{
		"old_key_id": old.ID.String(),
		"new_key_id": replacement.ID.String(),
		"reason":     reason,
		"revoke_at":  revokeAt.Format(time.RFC3339),
	})
	return replacement, nil
}

// Revoke marks a key revoked. Irreversible. Revoking the master key is
// master-scoped and requires an approved request.
func (s *Service) Revoke(ctx context.Context, keyID uuid.UUID, approvalID uuid.UUID) error {
	key, err := s.repo.GetByID(ctx, keyID)
	if err != nil {
		return err
	}
	if key.Role == domain.RoleMaster {
		if err := s.requireApproval(ctx, approvalID); err != nil {
			return err
		}
	}
	return s.repo.Revoke(ctx, keyID, s.now())
}

// ExecuteDueRotations revokes old keys whose rotation grace period has
// elapsed. Called by the background sweeper.
func (s *Service) ExecuteDueRotations(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.rotations.Due(ctx, now)
	if err != nil {
		return 0, err
	}

	executed := 0
	for _, ev := range due {
		if err := s.repo.Revoke(ctx, ev.OldKeyID, now); err != nil {
			s.logger.Error("Failed to revoke rotated key", map[string]interface{}{
				"rotation_id": ev.ID.String(),
				"old_key_id":  ev.OldKeyID.String(),
				"error":       err.Error(),
			})
			continue
		}
		if err := s.rotations.MarkExecuted(ctx, ev.ID, now); err != nil {
			s.logger.Error("Failed to mark rotation executed", map[string]interface{}{
				"rotation_id": ev.ID.String(),
				"error":       err.Error(),
			})
			continue
		}
		executed++
	}
	return executed, nil
}

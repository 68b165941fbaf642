// Package disclosure issues and opens role-scoped, time-bounded,
// revocable views of shielded transactions. The disclosed field set is a
// pure function of the viewing key's role; the payload is encrypted under
// a key derived from the viewing key's material, so possession of the
// viewing key is what grants read access, not possession of the record.
package disclosure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"privaudit/internal/crypto"
	"privaudit/internal/domain"
	"privaudit/pkg/errors"
	"privaudit/pkg/logger"
)

// defaultTTL bounds disclosures issued under keys with no expiry of
// their own (master-issued views).
const defaultTTL = 30 * 24 * time.Hour

// Repository persists disclosure records.
type Repository interface {
	Create(ctx context.Context, d *domain.Disclosure) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Disclosure, error)
	ListByAuditor(ctx context.Context, auditorID string, includeRevoked bool) ([]*domain.Disclosure, error)
	ListByRoleInRange(ctx context.Context, role domain.Role, from, to time.Time) ([]*domain.Disclosure, error)
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Keychain resolves a viewing key record to its decrypted key material.
// Implemented by the viewing key service.
type Keychain interface {
	Material(key *domain.ViewingKey) ([]byte, error)
}

// Service implements the disclosure lifecycle.
type Service struct {
	repo   Repository
	keys   Keychain
	logger logger.Logger
	now    func() time.Time
}

// NewService creates a disclosure service.
func NewService(repo Repository, keys Keychain, log logger.Logger) *Service {
	return &Service{
		repo:   repo,
		keys:   keys,
		logger: log,
		now:    time.Now,
	}
}

// WithClock overrides the service clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Encrypt issues a disclosure of tx to auditorID under the given viewing
// key. The field set comes from the key's role and nothing else; callers
// cannot widen or narrow it. The disclosure never outlives the key.
func (s *Service) Encrypt(ctx context.Context, tx *domain.TransactionRecord, key *domain.ViewingKey, auditorID string) (*domain.Disclosure, error) {
	now := s.now().UTC()
	if key.IsRevoked() {
		return nil, errors.ErrKeyRevoked
	}
	if key.IsExpired(now) {
		return nil, errors.ErrKeyExpired
	}

	fields := key.Role.DisclosedFields()
	payload, err := json.Marshal(fieldView(tx, fields))
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal disclosure payload")
	}

	material, err := s.keys.Material(key)
	if err != nil {
		return nil, err
	}
	payloadKey, err := crypto.PayloadKey(material)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive payload key")
	}
	ciphertext, err := crypto.EncryptAEAD(payload, payloadKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt disclosure payload")
	}

	expiresAt := now.Add(defaultTTL)
	if key.ExpiresAt != nil && key.ExpiresAt.Before(expiresAt) {
		expiresAt = key.ExpiresAt.UTC()
	}

	d := &domain.Disclosure{
		ID:               uuid.New(),
		TransactionID:    tx.ID,
		AuditorID:        auditorID,
		Role:             key.Role,
		ViewingKeyHash:   key.KeyHash,
		DisclosedFields:  domain.StringList(fields),
		EncryptedPayload: ciphertext,
		ExpiresAt:        expiresAt,
		CreatedAt:        now,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}

	s.logger.Info("Disclosure issued", map[string]interface{}{
		"disclosure_id":  d.ID,
		"transaction_id": tx.ID,
		"auditor_id":     auditorID,
		"role":           key.Role,
		"fields":         fields,
		"expires_at":     expiresAt,
	})
	return d, nil
}

// Decrypt opens a disclosure with the presented viewing key. Lifecycle
// checks run before any cryptography, disclosure state first, then key
// state; a revoked disclosure stays closed even to a valid key. The
// returned errors carry the precise cause for internal logging; the HTTP
// layer collapses them to a generic access denial for auditors.
func (s *Service) Decrypt(ctx context.Context, disclosureID uuid.UUID, key *domain.ViewingKey) (map[string]interface{}, error) {
	d, err := s.repo.GetByID(ctx, disclosureID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if d.IsRevoked() {
		s.denied(disclosureID, key.KeyHash, "disclosure revoked")
		return nil, errors.ErrDisclosureRevoked
	}
	if d.IsExpired(now) {
		s.denied(disclosureID, key.KeyHash, "disclosure expired")
		return nil, errors.ErrDisclosureExpired
	}
	if key.IsRevoked() {
		s.denied(disclosureID, key.KeyHash, "viewing key revoked")
		return nil, errors.ErrKeyRevoked
	}
	if key.IsExpired(now) {
		s.denied(disclosureID, key.KeyHash, "viewing key expired")
		return nil, errors.ErrKeyExpired
	}
	if d.ViewingKeyHash != key.KeyHash {
		s.denied(disclosureID, key.KeyHash, "viewing key does not match disclosure")
		return nil, errors.ErrAccessDenied
	}

	material, err := s.keys.Material(key)
	if err != nil {
		return nil, err
	}
	payloadKey, err := crypto.PayloadKey(material)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive payload key")
	}
	plaintext, err := crypto.DecryptAEAD(d.EncryptedPayload, payloadKey)
	if err != nil {
		s.denied(disclosureID, key.KeyHash, "payload authentication failed")
		return nil, err
	}

	var view map[string]interface{}
	if err := json.Unmarshal(plaintext, &view); err != nil {
		return nil, errors.Wrap(err, "failed to decode disclosure payload")
	}
	return view, nil
}

// List returns the disclosures issued to an auditor.
func (s *Service) List(ctx context.Context, auditorID string, includeRevoked bool) ([]*domain.Disclosure, error) {
	return s.repo.ListByAuditor(ctx, auditorID, includeRevoked)
}

// ListByRoleInRange returns all disclosures of a role created inside the
// half-open range [from, to), revoked ones included. Used for reporting.
func (s *Service) ListByRoleInRange(ctx context.Context, role domain.Role, from, to time.Time) ([]*domain.Disclosure, error) {
	return s.repo.ListByRoleInRange(ctx, role, from, to)
}

// Revoke closes a disclosure immediately and permanently. Revoking an
// already revoked disclosure is a no-op; the first revocation time wins.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Revoke(ctx, id, s.now().UTC()); err != nil {
		return err
	}
	s.logger.Info("Disclosure revoked", map[string]interface{}{
		"disclosure_id": id,
	})
	return nil
}

// ValidateExpiration reports whether a disclosure is still readable at
// the given instant. Pure; no repository access.
func (s *Service) ValidateExpiration(d *domain.Disclosure, now time.Time) bool {
	return !d.IsRevoked() && !d.IsExpired(now)
}

func (s *Service) denied(disclosureID uuid.UUID, keyHash, reason string) {
	s.logger.Warn("Disclosure access denied", map[string]interface{}{
		"disclosure_id": disclosureID,
		"key_hash":      keyHash,
		"reason":        reason,
	})
}

// fieldView projects the transaction onto the disclosed field set.
// Unknown field names are skipped rather than guessed at.
func fieldView(tx *domain.TransactionRecord, fields []string) map[string]interface{} {
	view := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		switch f {
		case domain.FieldSender:
			view[f] = tx.Sender
		case domain.FieldRecipient:
			view[f] = tx.StealthRecipient
		case domain.FieldAmount:
			view[f] = tx.Amount.String()
		case domain.FieldTimestamp:
			view[f] = tx.CreatedAt.UTC().Format(time.RFC3339)
		case domain.FieldSignature:
			view[f] = tx.Signature
		case domain.FieldMemo:
			view[f] = tx.Memo
		}
	}
	return view
}

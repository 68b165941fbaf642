// Package memory provides in-memory repository implementations with the
// same semantics as the postgres package. They back service tests and the
// verify_workflow tool; production wiring uses postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"privaudit/internal/domain"
	"privaudit/pkg/errors"
)

// ViewingKeyStore is an in-memory ViewingKeyRepository.
type ViewingKeyStore struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]*domain.ViewingKey
}

func NewViewingKeyStore() *ViewingKeyStore {
	return &ViewingKeyStore{keys: make(map[uuid.UUID]*domain.ViewingKey)}
}

func (s *ViewingKeyStore) Create(ctx context.Context, key *domain.ViewingKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *key
	s.keys[key.ID] = &cp
	return nil
}

func (s *ViewingKeyStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ViewingKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[id]
	if !ok {
		return nil, errors.ErrKeyNotFound
	}
	cp := *key
	return &cp, nil
}

func (s *ViewingKeyStore) GetByHash(ctx context.Context, keyHash string) (*domain.ViewingKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.ViewingKey
	for _, key := range s.keys {
		if key.KeyHash != keyHash {
			continue
		}
		if latest == nil || key.CreatedAt.After(latest.CreatedAt) {
			latest = key
		}
	}
	if latest == nil {
		return nil, errors.ErrKeyNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *ViewingKeyStore) LatestActiveByRole(ctx context.Context, role domain.Role, now time.Time) (*domain.ViewingKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.ViewingKey
	for _, key := range s.keys {
		if key.Role != role || !key.Active(now) {
			continue
		}
		if latest == nil || key.CreatedAt.After(latest.CreatedAt) {
			latest = key
		}
	}
	if latest == nil {
		return nil, errors.ErrKeyNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *ViewingKeyStore) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[id]
	if !ok {
		return errors.ErrKeyNotFound
	}
	if key.RevokedAt == nil {
		t := at
		key.RevokedAt = &t
	}
	return nil
}

// CommitmentStore is an in-memory CommitmentRepository.
type CommitmentStore struct {
	mu          sync.RWMutex
	commitments map[uuid.UUID]*domain.Commitment
}

func NewCommitmentStore() *CommitmentStore {
	return &CommitmentStore{commitments: make(map[uuid.UUID]*domain.Commitment)}
}

func (s *CommitmentStore) Create(ctx context.Context, c *domain.Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.commitments[c.ID] = &cp
	return nil
}

// CreateBatch mirrors the postgres all-or-nothing boundary: the map is
// only touched after every row has been staged.
func (s *CommitmentStore) CreateBatch(ctx context.Context, commitments []*domain.Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := make([]*domain.Commitment, 0, len(commitments))
	for _, c := range commitments {
		if c == nil || c.CommitmentPoint == "" {
			return errors.ErrBatchPartialFailure
		}
		cp := *c
		staged = append(staged, &cp)
	}
	for _, c := range staged {
		s.commitments[c.ID] = c
	}
	return nil
}

func (s *CommitmentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.commitments[id]
	if !ok {
		return nil, errors.ErrCommitmentNotFound
	}
	cp := *c
	return &cp, nil
}

// Count reports how many commitments are stored. Test helper.
func (s *CommitmentStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.commitments)
}

// DisclosureStore is an in-memory DisclosureRepository.
type DisclosureStore struct {
	mu          sync.RWMutex
	disclosures map[uuid.UUID]*domain.Disclosure
}

func NewDisclosureStore() *DisclosureStore {
	return &DisclosureStore{disclosures: make(map[uuid.UUID]*domain.Disclosure)}
}

func (s *DisclosureStore) Create(ctx context.Context, d *domain.Disclosure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.disclosures[d.ID] = &cp
	return nil
}

func (s *DisclosureStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Disclosure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.disclosures[id]
	if !ok {
		return nil, errors.ErrDisclosureNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *DisclosureStore) ListByAuditor(ctx context.Context, auditorID string, includeRevoked bool) ([]*domain.Disclosure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Disclosure
	for _, d := range s.disclosures {
		if d.AuditorID != auditorID {
			continue
		}
		if d.IsRevoked() && !includeRevoked {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *DisclosureStore) ListByRoleInRange(ctx context.Context, role domain.Role, from, to time.Time) ([]*domain.Disclosure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Disclosure
	for _, d := range s.disclosures {
		if d.Role != role || d.CreatedAt.Before(from) || !d.CreatedAt.Before(to) {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *DisclosureStore) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disclosures[id]
	if !ok {
		return errors.ErrDisclosureNotFound
	}
	if d.RevokedAt == nil {
		t := at
		d.RevokedAt = &t
	}
	return nil
}

// RotationStore is an in-memory RotationRepository.
type RotationStore struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*domain.RotationEvent
}

func NewRotationStore() *RotationStore {
	return &RotationStore{events: make(map[uuid.UUID]*domain.RotationEvent)}
}

func (s *RotationStore) Create(ctx context.Context, ev *domain.RotationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ev
	s.events[ev.ID] = &cp
	return nil
}

func (s *RotationStore) Due(ctx context.Context, now time.Time) ([]*domain.RotationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.RotationEvent
	for _, ev := range s.events {
		if ev.ExecutedAt == nil && !ev.RevokeAt.After(now) {
			cp := *ev
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RevokeAt.Before(out[j].RevokeAt) })
	return out, nil
}

func (s *RotationStore) MarkExecuted(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return errors.New("rotation event not found")
	}
	if ev.ExecutedAt == nil {
		t := at
		ev.ExecutedAt = &t
	}
	return nil
}

func (s *RotationStore) PendingForKey(ctx context.Context, oldKeyID uuid.UUID) (*domain.RotationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.RotationEvent
	for _, ev := range s.events {
		if ev.OldKeyID != oldKeyID {
			continue
		}
		if latest == nil || ev.CreatedAt.After(latest.CreatedAt) {
			latest = ev
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// ApprovalStore is an in-memory ApprovalRepository.
type ApprovalStore struct {
	mu         sync.Mutex
	requests   map[uuid.UUID]*domain.ApprovalRequest
	signatures map[uuid.UUID]map[string]*domain.ApprovalSignature
	signers    map[string]string
}

func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{
		requests:   make(map[uuid.UUID]*domain.ApprovalRequest),
		signatures: make(map[uuid.UUID]map[string]*domain.ApprovalSignature),
		signers:    make(map[string]string),
	}
}

func (s *ApprovalStore) RegisterSigner(ctx context.Context, signer, publicKeyHex string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signers[signer] = publicKeyHex
	return nil
}

func (s *ApprovalStore) GetSignerKey(ctx context.Context, signer string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.signers[signer]
	if !ok {
		return "", errors.ErrSignerNotRegistered
	}
	return key, nil
}

func (s *ApprovalStore) CreateRequest(ctx context.Context, req *domain.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.requests[req.RequestID] = &cp
	return nil
}

func (s *ApprovalStore) GetRequest(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, errors.ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *ApprovalStore) InsertSignatureIfAbsent(ctx context.Context, sig *domain.ApprovalSignature) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.signatures[sig.RequestID]
	if !ok {
		set = make(map[string]*domain.ApprovalSignature)
		s.signatures[sig.RequestID] = set
	}
	if _, exists := set[sig.Signer]; exists {
		return false, nil
	}
	cp := *sig
	set[sig.Signer] = &cp
	return true, nil
}

func (s *ApprovalStore) CountSignatures(ctx context.Context, requestID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signatures[requestID]), nil
}

func (s *ApprovalStore) MarkApproved(ctx context.Context, requestID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return false, errors.ErrRequestNotFound
	}
	if req.Status != domain.ApprovalStatusPending {
		return false, nil
	}
	req.Status = domain.ApprovalStatusApproved
	t := at
	req.ApprovedAt = &t
	return true, nil
}

func (s *ApprovalStore) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, req := range s.requests {
		if req.Status == domain.ApprovalStatusPending && !req.ExpiresAt.After(now) {
			req.Status = domain.ApprovalStatusExpired
			n++
		}
	}
	return n, nil
}

// TransactionStore is an in-memory TransactionRepository.
type TransactionStore struct {
	mu  sync.RWMutex
	txs map[uuid.UUID]*domain.TransactionRecord
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{txs: make(map[uuid.UUID]*domain.TransactionRecord)}
}

func (s *TransactionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *TransactionStore) Create(ctx context.Context, tx *domain.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tx
	s.txs[tx.ID] = &cp
	return nil
}

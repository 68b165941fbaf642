// Package domain defines the persisted data model for the privacy
// compliance engine: viewing keys, commitments, disclosures, approval
// requests, and the opaque shielded transaction records they reference.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StringList is a JSON-encoded string slice for JSONB columns.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			b = []byte(s)
		} else {
			return errors.New("unsupported type for StringList")
		}
	}
	return json.Unmarshal(b, l)
}

// ViewingKey is one node in the BIP32-style viewing key hierarchy.
// Records are append-only: the only mutation ever applied is setting
// RevokedAt.
type ViewingKey struct {
	ID                   uuid.UUID  `json:"id" db:"id"`
	KeyHash              string     `json:"key_hash" db:"key_hash"`
	Path                 string     `json:"path" db:"path"`
	ParentHash           *string    `json:"parent_hash,omitempty" db:"parent_hash"`
	Role                 Role       `json:"role" db:"role"`
	EncryptedKeyMaterial string     `json:"-" db:"encrypted_key_material"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	RevokedAt            *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
}

// Depth returns the derivation depth of the key's path. "m/0" is depth 0,
// each further slash-delimited segment adds one.
func (k *ViewingKey) Depth() int {
	return PathDepth(k.Path)
}

// LastSegment returns the final path segment, i.e. the segment that was
// appended when this key was derived from its parent.
func (k *ViewingKey) LastSegment() string {
	idx := strings.LastIndex(k.Path, "/")
	if idx < 0 {
		return k.Path
	}
	return k.Path[idx+1:]
}

// IsRevoked reports whether the key has been explicitly revoked.
func (k *ViewingKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// IsExpired reports whether the key's validity window has passed.
func (k *ViewingKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// Active reports whether the key may still be used for derivation and
// decryption. Revocation and expiry are both terminal.
func (k *ViewingKey) Active(now time.Time) bool {
	return !k.IsRevoked() && !k.IsExpired(now)
}

// PathDepth computes the derivation depth of a slash-delimited path.
// "m/0" -> 0, "m/0/org" -> 1, "m/0/org/2026/Q1" -> 3.
func PathDepth(path string) int {
	return strings.Count(path, "/") - 1
}

// Commitment is a Pedersen commitment C = v*G + r*H. The committed value
// is never stored; the blinding factor is stored only encrypted.
type Commitment struct {
	ID                      uuid.UUID `json:"id" db:"id"`
	CommitmentPoint         string    `json:"commitment_point" db:"commitment_point"`
	EncryptedBlindingFactor string    `json:"-" db:"encrypted_blinding_factor"`
	CreatedAt               time.Time `json:"created_at" db:"created_at"`
}

// Disclosure is a role-scoped, time-bounded, revocable view of one
// transaction, issued to one auditor.
type Disclosure struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	TransactionID    uuid.UUID  `json:"transaction_id" db:"transaction_id"`
	AuditorID        string     `json:"auditor_id" db:"auditor_id"`
	Role             Role       `json:"role" db:"role"`
	ViewingKeyHash   string     `json:"viewing_key_hash" db:"viewing_key_hash"`
	DisclosedFields  StringList `json:"disclosed_fields" db:"disclosed_fields"`
	EncryptedPayload string     `json:"-" db:"encrypted_payload"`
	ExpiresAt        time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

// IsRevoked reports whether the disclosure has been revoked.
func (d *Disclosure) IsRevoked() bool {
	return d.RevokedAt != nil
}

// IsExpired reports whether the disclosure's own window has passed.
func (d *Disclosure) IsExpired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}

// ApprovalStatus is the lifecycle state of an approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusExpired  ApprovalStatus = "expired"
)

// ApprovalRequest gates master-key operations behind an M-of-N signature
// threshold. The transition pending -> approved happens exactly once.
type ApprovalRequest struct {
	RequestID  uuid.UUID      `json:"request_id" db:"request_id"`
	Requester  string         `json:"requester" db:"requester"`
	Threshold  int            `json:"threshold" db:"threshold"`
	Status     ApprovalStatus `json:"status" db:"status"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	ApprovedAt *time.Time     `json:"approved_at,omitempty" db:"approved_at"`
	ExpiresAt  time.Time      `json:"expires_at" db:"expires_at"`
}

// ApprovalSignature is one signer's verified signature on a request.
// (request_id, signer) is unique; resubmission never adds a row.
type ApprovalSignature struct {
	RequestID uuid.UUID `json:"request_id" db:"request_id"`
	Signer    string    `json:"signer" db:"signer"`
	Signature string    `json:"signature" db:"signature"`
	SignedAt  time.Time `json:"signed_at" db:"signed_at"`
}

// RotationEvent links an old viewing key to its replacement and schedules
// the old key's revocation at the end of the grace period.
type RotationEvent struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	OldKeyID   uuid.UUID  `json:"old_key_id" db:"old_key_id"`
	NewKeyID   uuid.UUID  `json:"new_key_id" db:"new_key_id"`
	Reason     string     `json:"reason" db:"reason"`
	RevokeAt   time.Time  `json:"revoke_at" db:"revoke_at"`
	ExecutedAt *time.Time `json:"executed_at,omitempty" db:"executed_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// RotationReasonCompromise triggers immediate revocation instead of a
// grace period.
const RotationReasonCompromise = "compromise"

// TransactionRecord is the opaque shielded transaction consumed from the
// transfer protocol. The plaintext amount is protocol-side only and never
// serialized to auditors directly; disclosure goes through the role field
// tables.
type TransactionRecord struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	Sender           string          `json:"sender" db:"sender"`
	StealthRecipient string          `json:"stealth_recipient" db:"stealth_recipient"`
	EncryptedAmount  string          `json:"encrypted_amount" db:"encrypted_amount"`
	Amount           decimal.Decimal `json:"-" db:"amount"`
	Signature        string          `json:"signature" db:"signature"`
	Memo             string          `json:"memo" db:"memo"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// AuditLog records one compliance API action, append-only.
type AuditLog struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Actor        string    `json:"actor" db:"actor"`
	Action       string    `json:"action" db:"action"`
	EntityType   string    `json:"entity_type" db:"entity_type"`
	EntityID     string    `json:"entity_id" db:"entity_id"`
	RequestID    string    `json:"request_id" db:"request_id"`
	StatusCode   int       `json:"status_code" db:"status_code"`
	ErrorMessage *string   `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

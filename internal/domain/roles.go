package domain

import (
	"fmt"
	"time"
)

// Role identifies a tier in the viewing key hierarchy. The set is closed:
// role is a pure function of derivation path depth.
type Role string

const (
	RoleMaster    Role = "master"
	RoleRegulator Role = "regulator"
	RoleExternal  Role = "external"
	RoleInternal  Role = "internal"
)

// MaxDerivationDepth bounds the key tree. Depth 3 (internal) is the
// deepest tier; there is nothing below per-period internal keys.
const MaxDerivationDepth = 3

// ParseRole validates a role string from an API request.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleMaster, RoleRegulator, RoleExternal, RoleInternal:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// RoleForDepth maps derivation path depth to a role.
// m/0 is depth 0, m/0/org depth 1, and so on.
func RoleForDepth(depth int) (Role, error) {
	switch depth {
	case 0:
		return RoleMaster, nil
	case 1:
		return RoleRegulator, nil
	case 2:
		return RoleExternal, nil
	case 3:
		return RoleInternal, nil
	}
	return "", fmt.Errorf("no role for derivation depth %d", depth)
}

// ValidityWindow returns how long a newly derived key of this role stays
// valid. Master keys do not expire; deeper tiers get strictly shorter
// windows.
func (r Role) ValidityWindow() time.Duration {
	switch r {
	case RoleMaster:
		return 0
	case RoleRegulator:
		return 365 * 24 * time.Hour
	case RoleExternal:
		return 90 * 24 * time.Hour
	case RoleInternal:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Transaction field names used by the disclosure tables below.
const (
	FieldSender    = "sender"
	FieldRecipient = "recipient"
	FieldAmount    = "amount"
	FieldTimestamp = "timestamp"
	FieldSignature = "signature"
	FieldMemo      = "memo"
)

// HiddenFields are never disclosed to any role. The disclosure layer
// treats this list as an absolute deny list.
var HiddenFields = []string{"spendingKey", "viewingKey", "blindingFactor"}

// allTransactionFields is the full disclosable field set; roleFields
// entries are subsets of it.
var allTransactionFields = []string{
	FieldSender, FieldRecipient, FieldAmount, FieldTimestamp, FieldSignature, FieldMemo,
}

// roleFields is the closed role -> disclosed fields table. Adding a role
// without a row here is a compile error at the exhaustive switch in
// DisclosedFields, not a silent over-disclosure.
var roleFields = map[Role][]string{
	RoleMaster:    {FieldSender, FieldRecipient, FieldAmount, FieldTimestamp, FieldSignature, FieldMemo},
	RoleRegulator: {FieldSender, FieldRecipient, FieldAmount, FieldTimestamp},
	RoleExternal:  {FieldRecipient, FieldAmount, FieldTimestamp},
	RoleInternal:  {FieldAmount, FieldTimestamp},
}

// DisclosedFields returns the fields an auditor holding a key of this role
// may see. The returned slice is a copy.
func (r Role) DisclosedFields() []string {
	var fields []string
	switch r {
	case RoleMaster, RoleRegulator, RoleExternal, RoleInternal:
		fields = roleFields[r]
	default:
		return nil
	}
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// UndisclosedFields returns everything a key of this role cannot see:
// the absolute deny list plus the transaction fields outside the role's
// table entry. Used by compliance report lines.
func (r Role) UndisclosedFields() []string {
	disclosed := make(map[string]bool)
	for _, f := range r.DisclosedFields() {
		disclosed[f] = true
	}
	out := make([]string, 0, len(HiddenFields)+len(allTransactionFields))
	out = append(out, HiddenFields...)
	for _, f := range allTransactionFields {
		if !disclosed[f] {
			out = append(out, f)
		}
	}
	return out
}

func init() {
	// Field confinement: no role table entry may name a hidden field.
	hidden := make(map[string]bool, len(HiddenFields))
	for _, f := range HiddenFields {
		hidden[f] = true
	}
	for role, fields := range roleFields {
		for _, f := range fields {
			if hidden[f] {
				panic(fmt.Sprintf("role %s discloses hidden field %s", role, f))
			}
		}
	}
}

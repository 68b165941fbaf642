package viewingkey

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privaudit/internal/domain"
	"privaudit/internal/repository/memory"
	"privaudit/pkg/errors"
	"privaudit/pkg/logger"
)

type approvalStub struct {
	approved map[uuid.UUID]bool
}

func (a *approvalStub) IsApproved(ctx context.Context, requestID uuid.UUID) (bool, error) {
	return a.approved[requestID], nil
}

func newTestService(t *testing.T) (*Service, uuid.UUID) {
	t.Helper()
	approvalID := uuid.New()
	approvals := &approvalStub{approved: map[uuid.UUID]bool{approvalID: true}}

	svc, err := NewService(
		memory.NewViewingKeyStore(),
		memory.NewRotationStore(),
		approvals,
		bytes.Repeat([]byte{0x5A}, 32),
		logger.NewNop(),
	)
	require.NoError(t, err)
	return svc, approvalID
}

func TestGenerateMasterRequiresApproval(t *testing.T) {
	svc, approvalID := newTestService(t)
	ctx := context.Background()

	_, err := svc.GenerateMaster(ctx, uuid.Nil)
	assert.ErrorIs(t, err, errors.ErrApprovalRequired)

	_, err = svc.GenerateMaster(ctx, uuid.New()) // unknown request
	assert.ErrorIs(t, err, errors.ErrApprovalRequired)

	master, err := svc.GenerateMaster(ctx, approvalID)
	require.NoError(t, err)
	assert.Equal(t, MasterPath, master.Path)
	assert.Equal(t, domain.RoleMaster, master.Role)
	assert.Nil(t, master.ExpiresAt)
	assert.Nil(t, master.ParentHash)
}

func TestHierarchyDepthsRolesAndWindows(t *testing.T) {
	svc, approvalID := newTestService(t)
	ctx := context.Background()

	master, err := svc.GenerateMaster(ctx, approvalID)
	require.NoError(t, err)

	regulator, err := svc.Derive(ctx, master.ID, "org")
	require.NoError(t, err)
	external, err := svc.Derive(ctx, regulator.ID, "2026")
	require.NoError(t, err)
	internal, err := svc.Derive(ctx, external.ID, "Q1")
	require.NoError(t, err)

	assert.Equal(t, "m/0/org", regulator.Path)
	assert.Equal(t, "m/0/org/2026", external.Path)
	assert.Equal(t, "m/0/org/2026/Q1", internal.Path)

	assert.Equal(t, domain.RoleRegulator, regulator.Role)
	assert.Equal(t, domain.RoleExternal, external.Role)
	assert.Equal(t, domain.RoleInternal, internal.Role)

	now := time.Now()
	require.NotNil(t, regulator.ExpiresAt)
	require.NotNil(t, external.ExpiresAt)
	require.NotNil(t, internal.ExpiresAt)
	assert.WithinDuration(t, now.Add(365*24*time.Hour), *regulator.ExpiresAt, time.Minute)
	assert.WithinDuration(t, now.Add(90*24*time.Hour), *external.ExpiresAt, time.Minute)
	assert.WithinDuration(t, now.Add(30*24*time.Hour), *internal.ExpiresAt, time.Minute)

	// Derivation below the internal tier is refused.
	_, err = svc.Derive(ctx, internal.ID, "too-deep")
	assert.ErrorIs(t, err, errors.ErrMaxDepthExceeded)
}

func TestVerifyHierarchySoundness(t *testing.T) {
	svc, approvalID := newTestService(t)
	ctx := context.Background()

	master, err := svc.GenerateMaster(ctx, approvalID)
	require.NoError(t, err)
	child, err := svc.Derive(ctx, master.ID, "org")
	require.NoError(t, err)
	grandchild, err := svc.Derive(ctx, child.ID, "2026")
	require.NoError(t, err)

	ok, err := svc.VerifyHierarchy(ctx, master.ID, child.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.VerifyHierarchy(ctx, child.ID, grandchild.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Unrelated pairs do not verify.
	ok, err = svc.VerifyHierarchy(ctx, master.ID, grandchild.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.VerifyHierarchy(ctx, child.ID, child.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeriveRefusesRevokedAndExpiredParents(t *testing.T) {
	svc, approvalID := newTestService(t)
	ctx := context.Background()

	master, err := svc.GenerateMaster(ctx, approvalID)
	require.NoError(t, err)
	regulator, err := svc.Derive(ctx, master.ID, "org")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, regulator.ID, uuid.Nil))
	_, err = svc.Derive(ctx, regulator.ID, "2026")
	assert.ErrorIs(t, err, errors.ErrKeyRevoked)

	other, err := svc.Derive(ctx, master.ID, "org2")
	require.NoError(t, err)

	// Jump past the regulator's one-year window.
	svc.WithClock(func() time.Time { return time.Now().Add(366 * 24 * time.Hour) })
	_, err = svc.Derive(ctx, other.ID, "2027")
	assert.ErrorIs(t, err, errors.ErrKeyExpired)
}

func TestChildExpiryClampedToParent(t *testing.T) {
	svc, approvalID := newTestService(t)
	ctx := context.Background()

	master, err := svc.GenerateMaster(ctx, approvalID)
	require.NoError(t, err)
	regulator, err := svc.Derive(ctx, master.ID, "org")
	require.NoError(t, err)

	// Derive the external key late enough that its 90-day window would
	// cross the regulator's expiry.
	svc.WithClock(func() time.Time { return time.Now().Add(300 * 24 * time.Hour) })
	external, err := svc.Derive(ctx, regulator.ID, "2026")
	require.NoError(t, err)

	require.NotNil(t, external.ExpiresAt)
	assert.False(t, external.ExpiresAt.After(*regulator.ExpiresAt))
}

func TestGetByRoleReturnsLatestActive(t *testing.T) {
	svc, approvalID := newTestService(t)
	ctx := context.Background()

	master, err := svc.GenerateMaster(ctx, approvalID)
	require.NoError(t, err)

	_, err = svc.GetByRole(ctx, domain.RoleRegulator)
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)

	first, err := svc.Derive(ctx, master.ID, "org")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, first.ID, uuid.Nil))

	second, err := svc.Derive(ctx, master.ID, "org-b")
	require.NoError(t, err)

	got, err := svc.GetByRole(ctx, domain.RoleRegulator)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestRotateSchedulesGraceRevocation(t *testing.T) {
	svc, approvalID := newTestService(t)
	ctx := context.Background()

	master, err := svc.GenerateMaster(ctx, approvalID)
	require.NoError(t, err)
	regulator, err := svc.Derive(ctx, master.ID, "org")
	require.NoError(t, err)

	replacement, err := svc.Rotate(ctx, regulator.ID, "scheduled", 7, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, regulator.Path, replacement.Path)
	assert.Equal(t, regulator.Role, replacement.Role)
	assert.NotEqual(t, regulator.KeyHash, replacement.KeyHash)

	// Old key remains unrevoked through the grace period.
	old, err := svc.GetByID(ctx, regulator.ID)
	require.NoError(t, err)
	assert.False(t, old.IsRevoked())

	// But it can no longer derive children.
	_, err = svc.Derive(ctx, regulator.ID, "2026")
	assert.ErrorIs(t, err, errors.ErrKeyRotated)

	// Sweeping before the grace period does nothing.
	n, err := svc.ExecuteDueRotations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// After the grace period the revocation fires.
	svc.WithClock(func() time.Time { return time.Now().AddDate(0, 0, 8) })
	n, err = svc.ExecuteDueRotations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	old, err = svc.GetByID(ctx, regulator.ID)
	require.NoError(t, err)
	assert.True(t, old.IsRevoked())
}

func TestRotateReplacementClampedToParentExpiry(t *testing.T) {
	svc, approvalID := newTestService(t)
	ctx := context.Background()

	master, err := svc.GenerateMaster(ctx, approvalID)
	require.NoError(t, err)
	regulator, err := svc.Derive(ctx, master.ID, "org")
	require.NoError(t, err)
	external, err := svc.Derive(ctx, regulator.ID, "2026")
	require.NoError(t, err)

	// Derive and rotate the internal key 10 days before the external
	// parent expires; the fresh 30-day window must still be clamped.
	svc.WithClock(func() time.Time { return time.Now().AddDate(0, 0, 80) })
	internal, err := svc.Derive(ctx, external.ID, "Q1")
	require.NoError(t, err)

	replacement, err := svc.Rotate(ctx, internal.ID, "scheduled", 7, uuid.Nil)
	require.NoError(t, err)

	require.NotNil(t, replacement.ExpiresAt)
	require.NotNil(t, external.ExpiresAt)
	assert.False(t, replacement.ExpiresAt.After(*external.ExpiresAt))
	assert.Equal(t, external.KeyHash, *replacement.ParentHash)
}

func TestRotateCompromiseRevokesImmediately(t *testing.T) {
	svc, approvalID := newTestService(t)
	ctx := context.Background()

	master, err := svc.GenerateMaster(ctx, approvalID)
	require.NoError(t, err)
	regulator, err := svc.Derive(ctx, master.ID, "org")
	require.NoError(t, err)

	_, err = svc.Rotate(ctx, regulator.ID, domain.RotationReasonCompromise, 7, uuid.Nil)
	require.NoError(t, err)

	old, err := svc.GetByID(ctx, regulator.ID)
	require.NoError(t, err)
	assert.True(t, old.IsRevoked())
}

func TestRotateMasterRequiresApproval(t *testing.T) {
	svc, approvalID := newTestService(t)
	ctx := context.Background()

	master, err := svc.GenerateMaster(ctx, approvalID)
	require.NoError(t, err)

	_, err = svc.Rotate(ctx, master.ID, "scheduled", 7, uuid.Nil)
	assert.ErrorIs(t, err, errors.ErrApprovalRequired)

	_, err = svc.Rotate(ctx, master.ID, "scheduled", 7, approvalID)
	require.NoError(t, err)
}

func TestRevokeIsTerminalAndIdempotent(t *testing.T) {
	svc, approvalID := newTestService(t)
	ctx := context.Background()

	master, err := svc.GenerateMaster(ctx, approvalID)
	require.NoError(t, err)
	regulator, err := svc.Derive(ctx, master.ID, "org")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, regulator.ID, uuid.Nil))
	key, err := svc.GetByID(ctx, regulator.ID)
	require.NoError(t, err)
	require.NotNil(t, key.RevokedAt)
	first := *key.RevokedAt

	// A second revoke keeps the original timestamp.
	require.NoError(t, svc.Revoke(ctx, regulator.ID, uuid.Nil))
	key, err = svc.GetByID(ctx, regulator.ID)
	require.NoError(t, err)
	assert.Equal(t, first, *key.RevokedAt)

	// Rotation of a revoked key is refused.
	_, err = svc.Rotate(ctx, regulator.ID, "scheduled", 7, uuid.Nil)
	assert.ErrorIs(t, err, errors.ErrKeyRevoked)
}

func TestDeriveDeterministicAcrossServices(t *testing.T) {
	// Two managers over the same root secret derive identical key hashes
	// for the same path.
	ctx := context.Background()
	approvalID := uuid.New()
	approvals := &approvalStub{approved: map[uuid.UUID]bool{approvalID: true}}
	secret := bytes.Repeat([]byte{0x5A}, 32)

	build := func() (*domain.ViewingKey, *domain.ViewingKey) {
		svc, err := NewService(memory.NewViewingKeyStore(), memory.NewRotationStore(), approvals, secret, logger.NewNop())
		require.NoError(t, err)
		master, err := svc.GenerateMaster(ctx, approvalID)
		require.NoError(t, err)
		child, err := svc.Derive(ctx, master.ID, "org")
		require.NoError(t, err)
		return master, child
	}

	m1, c1 := build()
	m2, c2 := build()
	assert.Equal(t, m1.KeyHash, m2.KeyHash)
	assert.Equal(t, c1.KeyHash, c2.KeyHash)
}

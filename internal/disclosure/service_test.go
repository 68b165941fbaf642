package disclosure

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privaudit/internal/domain"
	"privaudit/internal/repository/memory"
	"privaudit/internal/viewingkey"
	"privaudit/pkg/errors"
	"privaudit/pkg/logger"
)

type approvalStub struct {
	approved map[uuid.UUID]bool
}

func (a *approvalStub) IsApproved(ctx context.Context, requestID uuid.UUID) (bool, error) {
	return a.approved[requestID], nil
}

type fixture struct {
	svc       *Service
	keys      *viewingkey.Service
	store     *memory.DisclosureStore
	master    *domain.ViewingKey
	regulator *domain.ViewingKey
	external  *domain.ViewingKey
	internal  *domain.ViewingKey
	clock     *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	approvalID := uuid.New()
	approvals := &approvalStub{approved: map[uuid.UUID]bool{approvalID: true}}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now

	keys, err := viewingkey.NewService(
		memory.NewViewingKeyStore(),
		memory.NewRotationStore(),
		approvals,
		bytes.Repeat([]byte{0x3C}, 32),
		logger.NewNop(),
	)
	require.NoError(t, err)
	keys.WithClock(func() time.Time { return *clock })

	master, err := keys.GenerateMaster(ctx, approvalID)
	require.NoError(t, err)
	regulator, err := keys.Derive(ctx, master.ID, "org")
	require.NoError(t, err)
	external, err := keys.Derive(ctx, regulator.ID, "2026")
	require.NoError(t, err)
	internal, err := keys.Derive(ctx, external.ID, "Q1")
	require.NoError(t, err)

	store := memory.NewDisclosureStore()
	svc := NewService(store, keys, logger.NewNop()).
		WithClock(func() time.Time { return *clock })

	return &fixture{
		svc:       svc,
		keys:      keys,
		store:     store,
		master:    master,
		regulator: regulator,
		external:  external,
		internal:  internal,
		clock:     clock,
	}
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func sampleTx() *domain.TransactionRecord {
	return &domain.TransactionRecord{
		ID:               uuid.New(),
		Sender:           "acct_sender_7f21",
		StealthRecipient: "stealth_9f3ac1",
		EncryptedAmount:  "b64:opaque",
		Amount:           decimal.RequireFromString("1250.50"),
		Signature:        "sig_a1b2c3",
		Memo:             "invoice 4471",
		CreatedAt:        time.Date(2026, 2, 27, 9, 30, 0, 0, time.UTC),
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := sampleTx()

	d, err := f.svc.Encrypt(ctx, tx, f.regulator, "auditor-fca")
	require.NoError(t, err)
	assert.Equal(t, f.regulator.KeyHash, d.ViewingKeyHash)
	assert.Equal(t, domain.RoleRegulator, d.Role)
	assert.NotContains(t, d.EncryptedPayload, tx.Sender)

	view, err := f.svc.Decrypt(ctx, d.ID, f.regulator)
	require.NoError(t, err)
	assert.Equal(t, tx.Sender, view[domain.FieldSender])
	assert.Equal(t, tx.StealthRecipient, view[domain.FieldRecipient])
	assert.Equal(t, tx.Amount.String(), view[domain.FieldAmount])
	assert.Equal(t, tx.CreatedAt.UTC().Format(time.RFC3339), view[domain.FieldTimestamp])
	assert.NotContains(t, view, domain.FieldSignature)
	assert.NotContains(t, view, domain.FieldMemo)
}

func TestFieldSetFollowsRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := sampleTx()

	cases := []struct {
		key    *domain.ViewingKey
		fields []string
	}{
		{f.master, []string{domain.FieldSender, domain.FieldRecipient, domain.FieldAmount, domain.FieldTimestamp, domain.FieldSignature, domain.FieldMemo}},
		{f.regulator, []string{domain.FieldSender, domain.FieldRecipient, domain.FieldAmount, domain.FieldTimestamp}},
		{f.external, []string{domain.FieldRecipient, domain.FieldAmount, domain.FieldTimestamp}},
		{f.internal, []string{domain.FieldAmount, domain.FieldTimestamp}},
	}
	for _, tc := range cases {
		d, err := f.svc.Encrypt(ctx, tx, tc.key, "auditor-x")
		require.NoError(t, err)
		assert.ElementsMatch(t, tc.fields, []string(d.DisclosedFields))

		view, err := f.svc.Decrypt(ctx, d.ID, tc.key)
		require.NoError(t, err)
		assert.Len(t, view, len(tc.fields))
		for _, field := range tc.fields {
			assert.Contains(t, view, field)
		}
	}
}

func TestDecryptChecksDisclosureStateBeforeKeyState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Encrypt(ctx, sampleTx(), f.regulator, "auditor-fca")
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(ctx, d.ID))
	_, err = f.svc.Decrypt(ctx, d.ID, f.regulator)
	assert.ErrorIs(t, err, errors.ErrDisclosureRevoked)

	d2, err := f.svc.Encrypt(ctx, sampleTx(), f.regulator, "auditor-fca")
	require.NoError(t, err)
	f.advance(31 * 24 * time.Hour)
	_, err = f.svc.Decrypt(ctx, d2.ID, f.regulator)
	assert.ErrorIs(t, err, errors.ErrDisclosureExpired)
}

func TestDecryptRefusesDeadKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Encrypt(ctx, sampleTx(), f.regulator, "auditor-fca")
	require.NoError(t, err)

	// Key expiry is checked even while the disclosure itself is alive.
	expired := *f.regulator
	past := f.clock.Add(-time.Hour)
	expired.ExpiresAt = &past
	_, err = f.svc.Decrypt(ctx, d.ID, &expired)
	assert.ErrorIs(t, err, errors.ErrKeyExpired)

	revoked := *f.regulator
	revoked.RevokedAt = &past
	_, err = f.svc.Decrypt(ctx, d.ID, &revoked)
	assert.ErrorIs(t, err, errors.ErrKeyRevoked)
}

func TestDecryptRejectsForeignKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Encrypt(ctx, sampleTx(), f.regulator, "auditor-fca")
	require.NoError(t, err)

	other, err := f.keys.Derive(ctx, f.master.ID, "other-org")
	require.NoError(t, err)
	_, err = f.svc.Decrypt(ctx, d.ID, other)
	assert.ErrorIs(t, err, errors.ErrAccessDenied)
}

func TestEncryptRefusesDeadKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := f.clock.Add(-time.Minute)

	revoked := *f.regulator
	revoked.RevokedAt = &past
	_, err := f.svc.Encrypt(ctx, sampleTx(), &revoked, "auditor-fca")
	assert.ErrorIs(t, err, errors.ErrKeyRevoked)

	expired := *f.regulator
	expired.ExpiresAt = &past
	_, err = f.svc.Encrypt(ctx, sampleTx(), &expired, "auditor-fca")
	assert.ErrorIs(t, err, errors.ErrKeyExpired)
}

func TestDisclosureNeverOutlivesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Internal keys live 30 days; the disclosure window is clamped to
	// whichever ends first.
	d, err := f.svc.Encrypt(ctx, sampleTx(), f.internal, "auditor-int")
	require.NoError(t, err)
	require.NotNil(t, f.internal.ExpiresAt)
	assert.False(t, d.ExpiresAt.After(*f.internal.ExpiresAt))
	assert.False(t, d.ExpiresAt.After(f.clock.Add(defaultTTL)))
}

func TestRevokeIdempotentAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d1, err := f.svc.Encrypt(ctx, sampleTx(), f.regulator, "auditor-fca")
	require.NoError(t, err)
	d2, err := f.svc.Encrypt(ctx, sampleTx(), f.regulator, "auditor-fca")
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(ctx, d1.ID))
	require.NoError(t, f.svc.Revoke(ctx, d1.ID))

	active, err := f.svc.List(ctx, "auditor-fca", false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, d2.ID, active[0].ID)

	all, err := f.svc.List(ctx, "auditor-fca", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestValidateExpiration(t *testing.T) {
	f := newFixture(t)
	now := *f.clock

	d := &domain.Disclosure{ExpiresAt: now.Add(time.Hour)}
	assert.True(t, f.svc.ValidateExpiration(d, now))
	assert.False(t, f.svc.ValidateExpiration(d, now.Add(2*time.Hour)))

	revokedAt := now
	d.RevokedAt = &revokedAt
	assert.False(t, f.svc.ValidateExpiration(d, now))
}

package compliance

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privaudit/internal/aml"
	"privaudit/internal/disclosure"
	"privaudit/internal/domain"
	"privaudit/internal/repository/memory"
	"privaudit/internal/viewingkey"
	"privaudit/pkg/logger"
)

type approvalStub struct {
	approved map[uuid.UUID]bool
}

func (a *approvalStub) IsApproved(ctx context.Context, requestID uuid.UUID) (bool, error) {
	return a.approved[requestID], nil
}

type fixture struct {
	svc        *Service
	keys       *viewingkey.Service
	txStore    *memory.TransactionStore
	approvalID uuid.UUID
	clock      *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	approvalID := uuid.New()
	approvals := &approvalStub{approved: map[uuid.UUID]bool{approvalID: true}}

	now := time.Date(2026, 5, 15, 10, 0, 0, 0, time.UTC)
	clock := &now
	tick := func() time.Time { return *clock }

	keys, err := viewingkey.NewService(
		memory.NewViewingKeyStore(),
		memory.NewRotationStore(),
		approvals,
		bytes.Repeat([]byte{0x77}, 32),
		logger.NewNop(),
	)
	require.NoError(t, err)
	keys.WithClock(tick)

	disclosures := disclosure.NewService(memory.NewDisclosureStore(), keys, logger.NewNop()).WithClock(tick)
	txStore := memory.NewTransactionStore()
	checker := aml.NewHeuristicChecker(decimal.NewFromInt(10000), []string{"acct_sanctioned"}, logger.NewNop())

	svc := NewService(keys, disclosures, txStore, checker, logger.NewNop()).WithClock(tick)
	return &fixture{svc: svc, keys: keys, txStore: txStore, approvalID: approvalID, clock: clock}
}

func (f *fixture) addTx(t *testing.T, sender, amount string, at time.Time) *domain.TransactionRecord {
	t.Helper()
	tx := &domain.TransactionRecord{
		ID:               uuid.New(),
		Sender:           sender,
		StealthRecipient: "stealth_" + sender,
		EncryptedAmount:  "b64:opaque",
		Amount:           decimal.RequireFromString(amount),
		Signature:        "sig_" + sender,
		CreatedAt:        at,
	}
	require.NoError(t, f.txStore.Create(context.Background(), tx))
	return tx
}

func TestSetupHierarchyTiersFollowClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.svc.SetupHierarchy(ctx, f.approvalID)
	require.NoError(t, err)

	assert.Equal(t, "m/0", h.Master.Path)
	assert.Equal(t, "m/0/org", h.Regulator.Path)
	assert.Equal(t, "m/0/org/2026", h.External.Path)
	assert.Equal(t, "m/0/org/2026/Q2", h.Internal.Path)

	assert.Equal(t, domain.RoleMaster, h.Master.Role)
	assert.Equal(t, domain.RoleRegulator, h.Regulator.Role)
	assert.Equal(t, domain.RoleExternal, h.External.Role)
	assert.Equal(t, domain.RoleInternal, h.Internal.Role)
}

func TestSetupHierarchyRequiresApproval(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SetupHierarchy(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestDiscloseAttachesVerdictWithoutChangingFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.svc.SetupHierarchy(ctx, f.approvalID)
	require.NoError(t, err)

	clean := f.addTx(t, "acct_clean", "150.00", *f.clock)
	flagged := f.addTx(t, "acct_sanctioned", "25000", *f.clock)

	cleanRes, err := f.svc.DiscloseToAuditor(ctx, clean.ID, "auditor-fca", domain.RoleRegulator)
	require.NoError(t, err)
	flaggedRes, err := f.svc.DiscloseToAuditor(ctx, flagged.ID, "auditor-fca", domain.RoleRegulator)
	require.NoError(t, err)

	assert.Equal(t, aml.StatusPassed, cleanRes.AML.Status)
	assert.Equal(t, aml.StatusFailed, flaggedRes.AML.Status)

	// Same role, same field set, whatever the verdict says.
	assert.ElementsMatch(t, cleanRes.Disclosure.DisclosedFields, flaggedRes.Disclosure.DisclosedFields)
	assert.ElementsMatch(t, domain.RoleRegulator.DisclosedFields(), []string(flaggedRes.Disclosure.DisclosedFields))

	view, err := f.svc.VerifyCompliance(ctx, flaggedRes.Disclosure.ID, h.Regulator)
	require.NoError(t, err)
	assert.Equal(t, flagged.Sender, view[domain.FieldSender])
	assert.NotContains(t, view, domain.FieldMemo)
}

func TestGenerateReportAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetupHierarchy(ctx, f.approvalID)
	require.NoError(t, err)

	from := *f.clock
	a := f.addTx(t, "acct_a", "100.25", *f.clock)
	b := f.addTx(t, "acct_b", "250.75", *f.clock)
	c := f.addTx(t, "acct_c", "9", *f.clock)

	ra, err := f.svc.DiscloseToAuditor(ctx, a.ID, "auditor-fca", domain.RoleRegulator)
	require.NoError(t, err)
	_, err = f.svc.DiscloseToAuditor(ctx, b.ID, "auditor-fca", domain.RoleRegulator)
	require.NoError(t, err)
	// A different role stays out of the regulator report.
	_, err = f.svc.DiscloseToAuditor(ctx, c.ID, "auditor-int", domain.RoleInternal)
	require.NoError(t, err)

	// One regulator disclosure revoked before the report runs.
	require.NoError(t, f.svc.disclosures.Revoke(ctx, ra.Disclosure.ID))

	report, err := f.svc.GenerateReport(ctx, from, f.clock.Add(time.Hour), domain.RoleRegulator)
	require.NoError(t, err)

	assert.Equal(t, domain.RoleRegulator, report.Role)
	assert.Equal(t, 2, report.TotalDisclosures)
	assert.Equal(t, 1, report.ActiveDisclosures)
	assert.Equal(t, 1, report.RevokedDisclosures)
	assert.True(t, report.TotalAmount.Equal(decimal.RequireFromString("351.00")),
		"got total %s", report.TotalAmount)

	require.Len(t, report.Lines, 2)
	for _, line := range report.Lines {
		assert.ElementsMatch(t, domain.RoleRegulator.DisclosedFields(), line.DisclosedFields)
		for _, hf := range domain.HiddenFields {
			assert.Contains(t, line.HiddenFields, hf)
		}
		assert.Contains(t, line.HiddenFields, domain.FieldSignature)
		assert.Contains(t, line.HiddenFields, domain.FieldMemo)
		assert.NotContains(t, line.HiddenFields, domain.FieldAmount)
	}
}

func TestReportRangeIsHalfOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetupHierarchy(ctx, f.approvalID)
	require.NoError(t, err)

	from := *f.clock
	tx := f.addTx(t, "acct_a", "10", *f.clock)
	_, err = f.svc.DiscloseToAuditor(ctx, tx.ID, "auditor-fca", domain.RoleRegulator)
	require.NoError(t, err)

	report, err := f.svc.GenerateReport(ctx, from.Add(time.Minute), from.Add(time.Hour), domain.RoleRegulator)
	require.NoError(t, err)
	assert.Zero(t, report.TotalDisclosures)
	assert.True(t, report.TotalAmount.IsZero())
}

package aml

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privaudit/internal/domain"
	"privaudit/pkg/logger"
)

func newChecker(watchlist ...string) *HeuristicChecker {
	return NewHeuristicChecker(decimal.NewFromInt(10000), watchlist, logger.NewNop())
}

func tx(sender, amount string) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		ID:     uuid.New(),
		Sender: sender,
		Amount: decimal.RequireFromString(amount),
	}
}

func TestSmallCleanTransactionPasses(t *testing.T) {
	res, err := newChecker().Check(context.Background(), tx("acct_clean", "150.00"))
	require.NoError(t, err)
	assert.Equal(t, RiskLow, res.RiskLevel)
	assert.Equal(t, StatusPassed, res.Status)
	assert.Empty(t, res.Flags)
}

func TestThresholdCrossingFlagsReview(t *testing.T) {
	res, err := newChecker().Check(context.Background(), tx("acct_clean", "10000"))
	require.NoError(t, err)
	assert.Equal(t, RiskMedium, res.RiskLevel)
	assert.Equal(t, StatusManualReview, res.Status)
	assert.Contains(t, res.Flags, "threshold_exceeded")
}

func TestNearThresholdStructuringSignal(t *testing.T) {
	res, err := newChecker().Check(context.Background(), tx("acct_clean", "9500"))
	require.NoError(t, err)
	assert.Equal(t, RiskMedium, res.RiskLevel)
	assert.Contains(t, res.Flags, "near_threshold")
}

func TestWatchlistedSenderFails(t *testing.T) {
	res, err := newChecker("acct_sanctioned").Check(context.Background(), tx("acct_sanctioned", "50"))
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, res.RiskLevel)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Flags, "watchlist_match")
}

func TestScoreCapped(t *testing.T) {
	res, err := newChecker("acct_sanctioned").Check(context.Background(), tx("acct_sanctioned", "25000"))
	require.NoError(t, err)
	assert.LessOrEqual(t, res.RiskScore, 100.0)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestDeterministic(t *testing.T) {
	c := newChecker()
	record := tx("acct_clean", "10000")
	a, err := c.Check(context.Background(), record)
	require.NoError(t, err)
	b, err := c.Check(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, a.RiskScore, b.RiskScore)
	assert.Equal(t, a.Status, b.Status)
	assert.Equal(t, a.Flags, b.Flags)
}

// Package aml screens shielded transactions against anti-money-
// laundering heuristics. The verdict travels with compliance reports
// and disclosure metadata only; it never changes which fields a role
// may see.
package aml

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"privaudit/internal/domain"
	"privaudit/pkg/logger"
)

// Risk levels and statuses carried on a screening result.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"

	StatusPassed       = "passed"
	StatusManualReview = "manual_review"
	StatusFailed       = "failed"
)

// Result is the outcome of screening one transaction.
type Result struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	RiskScore     float64   `json:"risk_score"` // 0-100
	RiskLevel     string    `json:"risk_level"`
	Status        string    `json:"status"`
	Flags         []string  `json:"flags"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Checker screens a transaction and returns a verdict.
type Checker interface {
	Check(ctx context.Context, tx *domain.TransactionRecord) (*Result, error)
}

// HeuristicChecker is a deterministic rule-based Checker: a reporting
// threshold on the amount plus a sender watchlist. Deterministic on
// purpose, the same transaction always screens the same way.
type HeuristicChecker struct {
	threshold decimal.Decimal
	watchlist map[string]bool
	logger    logger.Logger
	now       func() time.Time
}

// NewHeuristicChecker creates a checker with the given reporting
// threshold and sender watchlist.
func NewHeuristicChecker(threshold decimal.Decimal, watchlist []string, log logger.Logger) *HeuristicChecker {
	wl := make(map[string]bool, len(watchlist))
	for _, s := range watchlist {
		wl[s] = true
	}
	return &HeuristicChecker{
		threshold: threshold,
		watchlist: wl,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock overrides the checker clock. Used by tests.
func (c *HeuristicChecker) WithClock(now func() time.Time) *HeuristicChecker {
	c.now = now
	return c
}

// Check scores the transaction: crossing the reporting threshold adds
// 40 points, a watchlisted sender adds 50 and a flag, an amount just
// under the threshold adds 20 as a structuring signal.
func (c *HeuristicChecker) Check(ctx context.Context, tx *domain.TransactionRecord) (*Result, error) {
	score := 10.0
	var flags []string

	if tx.Amount.GreaterThanOrEqual(c.threshold) {
		score += 40
		flags = append(flags, "threshold_exceeded")
	} else if tx.Amount.GreaterThanOrEqual(c.threshold.Mul(decimal.NewFromFloat(0.9))) {
		score += 20
		flags = append(flags, "near_threshold")
	}
	if c.watchlist[tx.Sender] {
		score += 50
		flags = append(flags, "watchlist_match")
	}
	if score > 100 {
		score = 100
	}

	level := RiskLow
	switch {
	case score > 50:
		level = RiskHigh
	case score > 20:
		level = RiskMedium
	}

	status := StatusPassed
	switch level {
	case RiskHigh:
		status = StatusFailed
	case RiskMedium:
		status = StatusManualReview
	}

	result := &Result{
		TransactionID: tx.ID,
		RiskScore:     score,
		RiskLevel:     level,
		Status:        status,
		Flags:         flags,
		CheckedAt:     c.now().UTC(),
	}
	c.logger.Info("AML check completed", map[string]interface{}{
		"transaction_id": tx.ID,
		"risk_score":     result.RiskScore,
		"risk_level":     result.RiskLevel,
		"status":         result.Status,
		"flags":          result.Flags,
	})
	return result, nil
}

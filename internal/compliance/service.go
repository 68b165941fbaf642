// Package compliance orchestrates the audit workflow: standing up the
// viewing key hierarchy, disclosing transactions to auditors with an
// AML verdict attached, verifying disclosures, and generating period
// reports.
package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"privaudit/internal/aml"
	"privaudit/internal/disclosure"
	"privaudit/internal/domain"
	"privaudit/internal/viewingkey"
	"privaudit/pkg/logger"
)

// TransactionRepository resolves shielded transaction records.
type TransactionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error)
}

// Service wires the key, disclosure, transaction, and AML layers.
type Service struct {
	keys        *viewingkey.Service
	disclosures *disclosure.Service
	txRepo      TransactionRepository
	checker     aml.Checker
	logger      logger.Logger
	now         func() time.Time
}

// NewService creates a compliance service.
func NewService(
	keys *viewingkey.Service,
	disclosures *disclosure.Service,
	txRepo TransactionRepository,
	checker aml.Checker,
	log logger.Logger,
) *Service {
	return &Service{
		keys:        keys,
		disclosures: disclosures,
		txRepo:      txRepo,
		checker:     checker,
		logger:      log,
		now:         time.Now,
	}
}

// WithClock overrides the service clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Hierarchy is the standard four-tier key tree created at onboarding.
type Hierarchy struct {
	Master    *domain.ViewingKey `json:"master"`
	Regulator *domain.ViewingKey `json:"regulator"`
	External  *domain.ViewingKey `json:"external"`
	Internal  *domain.ViewingKey `json:"internal"`
}

// SetupHierarchy generates the master key and derives one key per audit
// tier: organization, current year, current quarter. Master generation
// is gated on an approved multisig request.
func (s *Service) SetupHierarchy(ctx context.Context, approvalID uuid.UUID) (*Hierarchy, error) {
	master, err := s.keys.GenerateMaster(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	regulator, err := s.keys.Derive(ctx, master.ID, "org")
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	external, err := s.keys.Derive(ctx, regulator.ID, fmt.Sprintf("%d", now.Year()))
	if err != nil {
		return nil, err
	}
	internal, err := s.keys.Derive(ctx, external.ID, fmt.Sprintf("Q%d", (int(now.Month())-1)/3+1))
	if err != nil {
		return nil, err
	}

	s.logger.Info("Viewing key hierarchy created", map[string]interface{}{
		"master_path":   master.Path,
		"internal_path": internal.Path,
	})
	return &Hierarchy{
		Master:    master,
		Regulator: regulator,
		External:  external,
		Internal:  internal,
	}, nil
}

// Result pairs a disclosure with the AML verdict screened at issue
// time. The verdict is advisory metadata; it never changes the
// disclosed field set.
type Result struct {
	Disclosure *domain.Disclosure `json:"disclosure"`
	AML        *aml.Result        `json:"aml"`
}

// DiscloseToAuditor discloses a transaction to an auditor at the given
// role, using the latest active key of that role.
func (s *Service) DiscloseToAuditor(ctx context.Context, txID uuid.UUID, auditorID string, role domain.Role) (*Result, error) {
	tx, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	key, err := s.keys.GetByRole(ctx, role)
	if err != nil {
		return nil, err
	}

	verdict, err := s.checker.Check(ctx, tx)
	if err != nil {
		return nil, err
	}

	d, err := s.disclosures.Encrypt(ctx, tx, key, auditorID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Transaction disclosed to auditor", map[string]interface{}{
		"transaction_id": txID,
		"auditor_id":     auditorID,
		"role":           role,
		"aml_status":     verdict.Status,
	})
	return &Result{Disclosure: d, AML: verdict}, nil
}

// VerifyCompliance opens a disclosure with the presented key and
// returns the disclosed field view.
func (s *Service) VerifyCompliance(ctx context.Context, disclosureID uuid.UUID, key *domain.ViewingKey) (map[string]interface{}, error) {
	return s.disclosures.Decrypt(ctx, disclosureID, key)
}

// Report summarizes disclosure activity for one role over a period.
type Report struct {
	ID                 uuid.UUID       `json:"id"`
	Role               domain.Role     `json:"role"`
	PeriodStart        time.Time       `json:"period_start"`
	PeriodEnd          time.Time       `json:"period_end"`
	GeneratedAt        time.Time       `json:"generated_at"`
	TotalDisclosures   int             `json:"total_disclosures"`
	ActiveDisclosures  int             `json:"active_disclosures"`
	RevokedDisclosures int             `json:"revoked_disclosures"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	Lines              []ReportLine    `json:"lines"`
}

// ReportLine is one disclosure in a report. HiddenFields lists what the
// role could not see, the absolute deny list included, so the report is
// explicit about what was withheld.
type ReportLine struct {
	DisclosureID    uuid.UUID       `json:"disclosure_id"`
	TransactionID   uuid.UUID       `json:"transaction_id"`
	AuditorID       string          `json:"auditor_id"`
	CreatedAt       time.Time       `json:"created_at"`
	Revoked         bool            `json:"revoked"`
	DisclosedFields []string        `json:"disclosed_fields"`
	HiddenFields    []string        `json:"hidden_fields"`
	Amount          decimal.Decimal `json:"amount"`
}

// GenerateReport aggregates all disclosures of a role created inside
// [from, to), revoked ones included. Amounts are summed with exact
// decimal arithmetic from the protocol-side records.
func (s *Service) GenerateReport(ctx context.Context, from, to time.Time, role domain.Role) (*Report, error) {
	list, err := s.disclosures.ListByRoleInRange(ctx, role, from, to)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	report := &Report{
		ID:          uuid.New(),
		Role:        role,
		PeriodStart: from,
		PeriodEnd:   to,
		GeneratedAt: now,
		TotalAmount: decimal.Zero,
		Lines:       make([]ReportLine, 0, len(list)),
	}
	hidden := role.UndisclosedFields()

	for _, d := range list {
		tx, err := s.txRepo.GetByID(ctx, d.TransactionID)
		if err != nil {
			return nil, err
		}

		report.TotalDisclosures++
		if d.IsRevoked() {
			report.RevokedDisclosures++
		} else if !d.IsExpired(now) {
			report.ActiveDisclosures++
		}
		report.TotalAmount = report.TotalAmount.Add(tx.Amount)

		report.Lines = append(report.Lines, ReportLine{
			DisclosureID:    d.ID,
			TransactionID:   d.TransactionID,
			AuditorID:       d.AuditorID,
			CreatedAt:       d.CreatedAt,
			Revoked:         d.IsRevoked(),
			DisclosedFields: []string(d.DisclosedFields),
			HiddenFields:    hidden,
			Amount:          tx.Amount,
		})
	}

	s.logger.Info("Compliance report generated", map[string]interface{}{
		"report_id":    report.ID,
		"role":         role,
		"period_start": from,
		"period_end":   to,
		"disclosures":  report.TotalDisclosures,
	})
	return report, nil
}

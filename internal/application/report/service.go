// Package report builds read-side financial summaries from the ledger.
package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/infrastructure/telemetry"
)

// Service answers the financial report and balance read queries
type Service struct {
	store ledger.Store
}

// NewService creates a report service
func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

// SourceTotalDTO is one source/type bucket of posted amounts
type SourceTotalDTO struct {
	Source      string `json:"source"`
	Type        string `json:"type"`
	AmountMinor int64  `json:"amount_minor"`
	EntryCount  int64  `json:"entry_count"`
}

// FinancialReport aggregates posted amounts for a management, optionally
// narrowed to one unit
type FinancialReport struct {
	TotalsBySource     []SourceTotalDTO `json:"totals_by_source"`
	TotalDuesMinor     int64            `json:"total_dues_minor"`
	TotalPaymentsMinor int64            `json:"total_payments_minor"`
	TotalExpensesMinor int64            `json:"total_expenses_minor"`
	TotalSettledMinor  int64            `json:"total_settled_minor"`
	CollectionRate     string           `json:"collection_rate"` // percent, 2 decimal places
}

// GetFinancialReport aggregates posted entries by source and derives the
// collection rate: payments received as a share of dues billed.
func (s *Service) GetFinancialReport(ctx context.Context, tenantID uuid.UUID, unitID *uuid.UUID) (*FinancialReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "report", "get_financial_report")
	defer span.End()

	totals, err := s.store.Entries().TotalsBySource(ctx, tenantID, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate totals: %w", err)
	}

	report := &FinancialReport{TotalsBySource: make([]SourceTotalDTO, 0, len(totals))}
	for _, t := range totals {
		report.TotalsBySource = append(report.TotalsBySource, SourceTotalDTO{
			Source:      string(t.Source),
			Type:        string(t.Type),
			AmountMinor: t.AmountMinor,
			EntryCount:  t.EntryCount,
		})
		switch {
		case t.Source == ledger.SourceDues && t.Type == ledger.EntryTypeDebit:
			report.TotalDuesMinor += t.AmountMinor
		case t.Source == ledger.SourceAutoSettlement && t.Type == ledger.EntryTypeCredit:
			report.TotalSettledMinor += t.AmountMinor
		case t.Source.IsPaymentMethod() && t.Type == ledger.EntryTypeCredit:
			report.TotalPaymentsMinor += t.AmountMinor
		case t.Type == ledger.EntryTypeDebit:
			report.TotalExpensesMinor += t.AmountMinor
		}
	}
	report.CollectionRate = collectionRate(report.TotalPaymentsMinor, report.TotalDuesMinor)
	return report, nil
}

// collectionRate returns payments/dues as a percentage with two decimal
// places; "0.00" when nothing was billed
func collectionRate(paymentsMinor, duesMinor int64) string {
	if duesMinor <= 0 {
		return "0.00"
	}
	rate := decimal.NewFromInt(paymentsMinor).
		Div(decimal.NewFromInt(duesMinor)).
		Mul(decimal.NewFromInt(100))
	return rate.StringFixed(2)
}

// UnitBalanceDTO is the cached balance read by the UI
type UnitBalanceDTO struct {
	UnitID            uuid.UUID `json:"unit_id"`
	BalanceMinor      int64     `json:"balance_minor"`
	PostedDebitMinor  int64     `json:"posted_debit_minor"`
	PostedCreditMinor int64     `json:"posted_credit_minor"`
	AppliedCount      int64     `json:"applied_count"`
}

// GetUnitBalance returns the cached balance for a unit. A unit with no
// applied entries yet reads as all zeros.
func (s *Service) GetUnitBalance(ctx context.Context, tenantID, unitID uuid.UUID) (*UnitBalanceDTO, error) {
	balance, err := s.store.Balances().FindForUnit(ctx, tenantID, unitID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return &UnitBalanceDTO{UnitID: unitID}, nil
		}
		return nil, fmt.Errorf("failed to load unit balance: %w", err)
	}
	return &UnitBalanceDTO{
		UnitID:            balance.UnitID,
		BalanceMinor:      balance.BalanceMinor,
		PostedDebitMinor:  balance.PostedDebitMinor,
		PostedCreditMinor: balance.PostedCreditMinor,
		AppliedCount:      balance.AppliedCount,
	}, nil
}

// ListUnitEntries returns a unit's ledger entries with pagination
func (s *Service) ListUnitEntries(ctx context.Context, tenantID, unitID uuid.UUID, filter shared.Filter) ([]ledger.LedgerEntry, error) {
	return s.store.Entries().FindForUnit(ctx, tenantID, unitID, filter)
}

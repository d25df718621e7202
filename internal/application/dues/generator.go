// Package dues generates the recurring monthly due entries.
package dues

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/shared/valueobject"
	"github.com/strata/backend/internal/domain/tenancy"
	"github.com/strata/backend/internal/infrastructure/telemetry"
)

// unitPageSize bounds one unit page so a single run stays within the
// store's batch limits
const unitPageSize = 50

// Generator produces one DEBIT due per active, non-exempt unit per period.
// A per-unit-per-period registry record makes generation idempotent: the
// scheduled run and a manual backfill can overlap without double-billing.
type Generator struct {
	store       ledger.Store
	managements tenancy.ManagementRepository
	units       tenancy.UnitRepository
	logger      *zap.Logger
}

// NewGenerator creates a dues generator
func NewGenerator(
	store ledger.Store,
	managements tenancy.ManagementRepository,
	units tenancy.UnitRepository,
	logger *zap.Logger,
) *Generator {
	return &Generator{store: store, managements: managements, units: units, logger: logger}
}

// RunRequest scopes one generation run to a tenant and period. DryRun
// walks the units and reports what would happen without writing.
type RunRequest struct {
	TenantID uuid.UUID
	Period   valueobject.Period
	DryRun   bool
	ActorID  *uuid.UUID
}

// RunResult summarizes a generation run
type RunResult struct {
	Processed int `json:"processed"`
	Exempted  int `json:"exempted"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// RunMonthlyDues generates the period's dues for every active unit of the
// tenant. Exempt units and units with no dues amount are passed over;
// a unit whose registry record already exists is silently skipped.
func (g *Generator) RunMonthlyDues(ctx context.Context, req RunRequest) (*RunResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "dues", "run_monthly_dues")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPeriod, req.Period.String())

	if req.Period.IsZero() {
		return nil, shared.NewDomainError("INVALID_YEAR_MONTH", "Generation period is required")
	}

	management, err := g.managements.FindByID(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load management: %w", err)
	}
	if management == nil || !management.Active {
		return nil, shared.ErrNotFound
	}

	result := &RunResult{}
	filter := shared.DefaultFilter()
	filter.PageSize = unitPageSize
	for {
		page, err := g.units.FindActiveByTenant(ctx, req.TenantID, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list units: %w", err)
		}
		for _, unit := range page.Items {
			g.generateForUnit(ctx, management, unit, req, result)
		}
		if len(page.Items) < filter.PageSize {
			break
		}
		filter.Page++
	}

	g.logger.Info("dues generation finished",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("period", req.Period.String()),
		zap.Bool("dry_run", req.DryRun),
		zap.Int("processed", result.Processed),
		zap.Int("exempted", result.Exempted),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (g *Generator) generateForUnit(ctx context.Context, management *tenancy.Management, unit *tenancy.Unit, req RunRequest, result *RunResult) {
	if unit.ExemptFromDues {
		result.Exempted++
		return
	}
	amountMinor := unit.DuesAmount(management.DefaultDuesMinor)
	if amountMinor <= 0 {
		result.Skipped++
		return
	}

	if req.DryRun {
		exists, err := g.store.Entries().FindByEntryNumber(ctx, req.TenantID, ledger.DueEntryNumber(unit.Code, req.Period.String()))
		if err == nil && exists != nil {
			result.Skipped++
			return
		}
		result.Processed++
		return
	}

	err := g.store.InTransaction(ctx, func(tx ledger.Tx) error {
		exists, err := tx.DueSchedules().Exists(ctx, req.TenantID, unit.ID, req.Period)
		if err != nil {
			return fmt.Errorf("failed to check due registry: %w", err)
		}
		if exists {
			return shared.ErrAlreadyExists
		}

		amount, err := valueobject.NewMoney(amountMinor, management.Currency)
		if err != nil {
			return err
		}
		unitID := unit.ID
		entry, err := ledger.NewExpenseEntry(
			req.TenantID, &unitID, amount, ledger.SourceDues,
			ledger.DueEntryNumber(unit.Code, req.Period.String()),
			fmt.Sprintf("monthly dues %s", req.Period), req.Period,
		)
		if err != nil {
			return err
		}
		if req.ActorID != nil {
			entry.SetCreatedBy(*req.ActorID)
		}

		if err := tx.Entries().Save(ctx, entry); err != nil {
			return err
		}
		if err := tx.DueSchedules().Save(ctx, ledger.NewDueScheduleRecord(req.TenantID, unit.ID, req.Period, entry.ID)); err != nil {
			return err
		}
		if err := tx.SaveEvents(ctx, entry.GetDomainEvents()...); err != nil {
			return fmt.Errorf("failed to save due events: %w", err)
		}
		entry.ClearDomainEvents()
		return nil
	})
	switch {
	case err == nil:
		result.Processed++
	case errors.Is(err, shared.ErrAlreadyExists):
		// Another run already generated this unit's due for the period
		result.Skipped++
	default:
		result.Failed++
		g.logger.Error("failed to generate due",
			zap.String("unit_id", unit.ID.String()),
			zap.String("period", req.Period.String()),
			zap.Error(err),
		)
	}
}

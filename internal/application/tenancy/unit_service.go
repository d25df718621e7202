package tenancy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/tenancy"
	"github.com/strata/backend/internal/infrastructure/telemetry"
)

// UnitService drives unit lifecycle under a management
type UnitService struct {
	units tenancy.UnitRepository
}

// NewUnitService creates a unit service
func NewUnitService(units tenancy.UnitRepository) *UnitService {
	return &UnitService{units: units}
}

// CreateUnitRequest registers a unit under a management
type CreateUnitRequest struct {
	TenantID         uuid.UUID
	Code             string
	Floor            string
	MonthlyDuesMinor int64
	ExemptFromDues   bool
}

// UpdateUnitRequest carries partial unit updates; nil fields stay untouched
type UpdateUnitRequest struct {
	Floor            *string
	MonthlyDuesMinor *int64
	ExemptFromDues   *bool
}

// UnitDTO is the unit representation returned over the API
type UnitDTO struct {
	ID               uuid.UUID  `json:"id"`
	Code             string     `json:"code"`
	Floor            string     `json:"floor,omitempty"`
	Active           bool       `json:"active"`
	ExemptFromDues   bool       `json:"exempt_from_dues"`
	MonthlyDuesMinor int64      `json:"monthly_dues_minor"`
	ResidentUID      *uuid.UUID `json:"resident_uid,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func unitDTO(u *tenancy.Unit) *UnitDTO {
	return &UnitDTO{
		ID:               u.ID,
		Code:             u.Code,
		Floor:            u.Floor,
		Active:           u.Active,
		ExemptFromDues:   u.ExemptFromDues,
		MonthlyDuesMinor: u.MonthlyDuesMinor,
		ResidentUID:      u.ResidentUID,
		CreatedAt:        u.CreatedAt,
	}
}

// CreateUnit registers a new unit. Codes are unique per management; the
// persistence layer surfaces duplicates as shared.ErrAlreadyExists.
func (s *UnitService) CreateUnit(ctx context.Context, req CreateUnitRequest) (*UnitDTO, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tenancy", "create_unit")
	defer span.End()

	unit, err := tenancy.NewUnit(req.TenantID, req.Code)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	unit.Floor = req.Floor
	if req.MonthlyDuesMinor > 0 {
		if err := unit.SetMonthlyDues(req.MonthlyDuesMinor); err != nil {
			return nil, err
		}
	}
	if req.ExemptFromDues {
		unit.SetExempt(true)
	}
	if err := s.units.Save(ctx, unit); err != nil {
		return nil, fmt.Errorf("failed to save unit: %w", err)
	}
	return unitDTO(unit), nil
}

// GetUnit returns one unit
func (s *UnitService) GetUnit(ctx context.Context, tenantID, unitID uuid.UUID) (*UnitDTO, error) {
	unit, err := s.units.FindByIDForTenant(ctx, tenantID, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unit: %w", err)
	}
	if unit == nil {
		return nil, shared.ErrNotFound
	}
	return unitDTO(unit), nil
}

// ListUnits returns the tenant's active units, paginated
func (s *UnitService) ListUnits(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*UnitDTO], error) {
	page, err := s.units.FindActiveByTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	dtos := make([]*UnitDTO, len(page.Items))
	for i, u := range page.Items {
		dtos[i] = unitDTO(u)
	}
	result := shared.NewPaginated(dtos, page.Total, page.Page, page.PageSize)
	return &result, nil
}

// UpdateUnit applies a partial update
func (s *UnitService) UpdateUnit(ctx context.Context, tenantID, unitID uuid.UUID, req UpdateUnitRequest) (*UnitDTO, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tenancy", "update_unit")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrUnitID, unitID.String())

	unit, err := s.units.FindByIDForTenant(ctx, tenantID, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unit: %w", err)
	}
	if unit == nil {
		return nil, shared.ErrNotFound
	}

	if req.Floor != nil {
		unit.Floor = *req.Floor
	}
	if req.MonthlyDuesMinor != nil {
		if err := unit.SetMonthlyDues(*req.MonthlyDuesMinor); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}
	if req.ExemptFromDues != nil {
		unit.SetExempt(*req.ExemptFromDues)
	}

	if err := s.units.Save(ctx, unit); err != nil {
		return nil, fmt.Errorf("failed to save unit: %w", err)
	}
	return unitDTO(unit), nil
}

// DeactivateUnit retires a unit from dues generation and invites
func (s *UnitService) DeactivateUnit(ctx context.Context, tenantID, unitID uuid.UUID) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "tenancy", "deactivate_unit")
	defer span.End()

	unit, err := s.units.FindByIDForTenant(ctx, tenantID, unitID)
	if err != nil {
		return fmt.Errorf("failed to load unit: %w", err)
	}
	if unit == nil {
		return shared.ErrNotFound
	}
	unit.Deactivate()
	return s.units.Save(ctx, unit)
}

package tenancy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/shared/valueobject"
	"github.com/strata/backend/internal/domain/tenancy"
	"github.com/strata/backend/internal/infrastructure/telemetry"
)

// ManagementService drives management (tenant) account lifecycle
type ManagementService struct {
	managements tenancy.ManagementRepository
}

// NewManagementService creates a management service
func NewManagementService(managements tenancy.ManagementRepository) *ManagementService {
	return &ManagementService{managements: managements}
}

// CreateManagementRequest opens a new management account
type CreateManagementRequest struct {
	Name             string
	OwnerUID         uuid.UUID
	Currency         valueobject.Currency
	DefaultDuesMinor int64
}

// ManagementDTO is the management representation returned over the API
type ManagementDTO struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Currency         string    `json:"currency"`
	DefaultDuesMinor int64     `json:"default_dues_minor"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

func managementDTO(m *tenancy.Management) *ManagementDTO {
	return &ManagementDTO{
		ID:               m.ID,
		Name:             m.Name,
		Currency:         string(m.Currency),
		DefaultDuesMinor: m.DefaultDuesMinor,
		Active:           m.Active,
		CreatedAt:        m.CreatedAt,
	}
}

// CreateManagement opens a management account owned by the caller. The
// owner's role stays implicit on the management record.
func (s *ManagementService) CreateManagement(ctx context.Context, req CreateManagementRequest) (*ManagementDTO, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tenancy", "create_management")
	defer span.End()

	management, err := tenancy.NewManagement(req.Name, req.OwnerUID, req.Currency)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if req.DefaultDuesMinor > 0 {
		if err := management.SetDefaultDues(req.DefaultDuesMinor); err != nil {
			return nil, err
		}
	}
	if err := s.managements.Save(ctx, management); err != nil {
		return nil, fmt.Errorf("failed to save management: %w", err)
	}
	return managementDTO(management), nil
}

// GetManagement returns one management account
func (s *ManagementService) GetManagement(ctx context.Context, tenantID uuid.UUID) (*ManagementDTO, error) {
	management, err := s.managements.FindByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load management: %w", err)
	}
	if management == nil {
		return nil, shared.ErrNotFound
	}
	return managementDTO(management), nil
}

// ListOwned returns every management the identity owns
func (s *ManagementService) ListOwned(ctx context.Context, ownerUID uuid.UUID) ([]*ManagementDTO, error) {
	managements, err := s.managements.FindByOwner(ctx, ownerUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list managements: %w", err)
	}
	dtos := make([]*ManagementDTO, len(managements))
	for i, m := range managements {
		dtos[i] = managementDTO(m)
	}
	return dtos, nil
}

// UpdateDefaultDues changes the fallback monthly dues amount
func (s *ManagementService) UpdateDefaultDues(ctx context.Context, tenantID uuid.UUID, amountMinor int64) (*ManagementDTO, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tenancy", "update_default_dues")
	defer span.End()

	management, err := s.managements.FindByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load management: %w", err)
	}
	if management == nil {
		return nil, shared.ErrNotFound
	}
	if err := management.SetDefaultDues(amountMinor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.managements.Save(ctx, management); err != nil {
		return nil, fmt.Errorf("failed to save management: %w", err)
	}
	return managementDTO(management), nil
}

// DeactivateManagement suspends the account; schedulers stop fanning out
// to it and role resolution starts failing closed
func (s *ManagementService) DeactivateManagement(ctx context.Context, tenantID uuid.UUID) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "tenancy", "deactivate_management")
	defer span.End()

	management, err := s.managements.FindByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load management: %w", err)
	}
	if management == nil {
		return shared.ErrNotFound
	}
	management.Deactivate()
	return s.managements.Save(ctx, management)
}

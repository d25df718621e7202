package tenancy

import (
	"time"

	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/shared/valueobject"
)

// Management is the tenant: one building/site account under which every
// other record is scoped
type Management struct {
	shared.BaseAggregateRoot
	Name             string
	OwnerUID         uuid.UUID
	Currency         valueobject.Currency
	DefaultDuesMinor int64 // fallback monthly dues when a unit has no own amount
	Active           bool
}

// NewManagement creates a management account owned by the given identity
func NewManagement(name string, ownerUID uuid.UUID, currency valueobject.Currency) (*Management, error) {
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Management name cannot be empty")
	}
	if ownerUID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_OWNER", "Management owner cannot be empty")
	}
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	return &Management{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		OwnerUID:          ownerUID,
		Currency:          currency,
		Active:            true,
	}, nil
}

// SetDefaultDues sets the fallback monthly dues amount
func (m *Management) SetDefaultDues(amountMinor int64) error {
	if amountMinor < 0 {
		return shared.NewDomainError("INVALID_AMOUNT", "Default dues cannot be negative")
	}
	m.DefaultDuesMinor = amountMinor
	m.UpdatedAt = time.Now()
	m.IncrementVersion()
	return nil
}

// Deactivate suspends the management account
func (m *Management) Deactivate() {
	m.Active = false
	m.UpdatedAt = time.Now()
	m.IncrementVersion()
}

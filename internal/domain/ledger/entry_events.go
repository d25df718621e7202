package ledger

import (
	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/shared"
)

// Event type constants for ledger entries
const (
	EventTypeEntryPosted        = "ledger.entry.posted"
	EventTypeEntryStatusChanged = "ledger.entry.status_changed"
)

// AggregateTypeLedgerEntry is the aggregate type name used in events and the outbox
const AggregateTypeLedgerEntry = "LedgerEntry"

// EntryPostedEvent is emitted when a new ledger entry is posted. The balance
// projector consumes it to apply the entry's delta to the unit balance cache.
type EntryPostedEvent struct {
	shared.BaseDomainEvent
	EntryNumber    string     `json:"entry_number"`
	UnitID         *uuid.UUID `json:"unit_id,omitempty"`
	EntryType      EntryType  `json:"entry_type"`
	AmountMinor    int64      `json:"amount_minor"`
	Source         string     `json:"source"`
	AffectsBalance bool       `json:"affects_balance"`
}

// NewEntryPostedEvent creates an EntryPostedEvent from the entry
func NewEntryPostedEvent(e *LedgerEntry) *EntryPostedEvent {
	return &EntryPostedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEntryPosted, AggregateTypeLedgerEntry, e.ID, e.TenantID),
		EntryNumber:     e.EntryNumber,
		UnitID:          e.UnitID,
		EntryType:       e.Type,
		AmountMinor:     e.AmountMinor,
		Source:          string(e.Source),
		AffectsBalance:  e.AffectsBalance,
	}
}

// EntryStatusChangedEvent is emitted when a posted entry transitions to a
// terminal status. The balance projector consumes it to revert the entry's
// previously applied delta.
type EntryStatusChangedEvent struct {
	shared.BaseDomainEvent
	EntryNumber    string      `json:"entry_number"`
	UnitID         *uuid.UUID  `json:"unit_id,omitempty"`
	EntryType      EntryType   `json:"entry_type"`
	AmountMinor    int64       `json:"amount_minor"`
	AffectsBalance bool        `json:"affects_balance"`
	FromStatus     EntryStatus `json:"from_status"`
	ToStatus       EntryStatus `json:"to_status"`
}

// NewEntryStatusChangedEvent creates an EntryStatusChangedEvent from the entry
func NewEntryStatusChangedEvent(e *LedgerEntry, from EntryStatus) *EntryStatusChangedEvent {
	return &EntryStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEntryStatusChanged, AggregateTypeLedgerEntry, e.ID, e.TenantID),
		EntryNumber:     e.EntryNumber,
		UnitID:          e.UnitID,
		EntryType:       e.Type,
		AmountMinor:     e.AmountMinor,
		AffectsBalance:  e.AffectsBalance,
		FromStatus:      from,
		ToStatus:        e.Status,
	}
}

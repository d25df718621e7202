package event

import (
	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/tenancy"
)

// RegisterAllEvents registers all domain event types with the serializer.
// This is required for the OutboxProcessor to deserialize events from the
// outbox table.
func RegisterAllEvents(serializer *EventSerializer) {
	// Ledger events drive the unit balance projector
	serializer.Register(ledger.EventTypeEntryPosted, &ledger.EntryPostedEvent{})
	serializer.Register(ledger.EventTypeEntryStatusChanged, &ledger.EntryStatusChangedEvent{})

	// Tenancy events
	serializer.Register(tenancy.EventTypeInviteConsumed, &tenancy.InviteConsumedEvent{})
	serializer.Register(tenancy.EventTypeMemberJoined, &tenancy.MemberJoinedEvent{})
}

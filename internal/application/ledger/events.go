package ledger

import (
	"context"

	"github.com/strata/backend/internal/domain/shared"
)

// saveAggregateEvents drains pending domain events from the aggregates into
// the transactional outbox and clears them
func saveAggregateEvents(ctx context.Context, saver interface {
	SaveEvents(ctx context.Context, events ...shared.DomainEvent) error
}, aggregates ...shared.AggregateRoot) error {
	var events []shared.DomainEvent
	for _, agg := range aggregates {
		events = append(events, agg.GetDomainEvents()...)
	}
	if len(events) == 0 {
		return nil
	}
	if err := saver.SaveEvents(ctx, events...); err != nil {
		return err
	}
	for _, agg := range aggregates {
		agg.ClearDomainEvents()
	}
	return nil
}

package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/strata/backend/internal/domain/shared"
)

type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string, tenantID uuid.UUID) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New(), tenantID),
		Data:            "test data",
	}
}

// testHandler records every event it receives and can be primed to fail.
type testHandler struct {
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	mu         sync.Mutex
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

func (h *testHandler) EventTypes() []string { return h.eventTypes }

func (h *testHandler) setError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

// subscribeHandler wires a fresh recording handler for the given types
// into the bus.
func subscribeHandler(bus *InMemoryEventBus, eventTypes ...string) *testHandler {
	handler := newTestHandler(eventTypes...)
	bus.Subscribe(handler, eventTypes...)
	return handler
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := subscribeHandler(bus, "ledger.entry.posted")

	event := newTestEvent("ledger.entry.posted", uuid.New())
	err := bus.Publish(context.Background(), event)

	require.NoError(t, err)
	require.Len(t, handler.getHandled(), 1)
	assert.Equal(t, event, handler.getHandled()[0])
}

func TestInMemoryEventBus_Publish_MultipleEvents(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := subscribeHandler(bus, "ledger.entry.posted")

	err := bus.Publish(context.Background(),
		newTestEvent("ledger.entry.posted", uuid.New()),
		newTestEvent("ledger.entry.posted", uuid.New()),
	)

	require.NoError(t, err)
	assert.Len(t, handler.getHandled(), 2)
}

func TestInMemoryEventBus_Publish_FansOutToAllSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	balanceProjector := subscribeHandler(bus, "ledger.payment.recorded")
	auditWriter := subscribeHandler(bus, "ledger.payment.recorded")

	err := bus.Publish(context.Background(), newTestEvent("ledger.payment.recorded", uuid.New()))

	require.NoError(t, err)
	assert.Len(t, balanceProjector.getHandled(), 1)
	assert.Len(t, auditWriter.getHandled(), 1)
}

func TestInMemoryEventBus_Publish_WildcardHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	// no event types means subscribe to everything
	wildcard := subscribeHandler(bus)

	err := bus.Publish(context.Background(), newTestEvent("dues.schedule.created", uuid.New()))

	require.NoError(t, err)
	assert.Len(t, wildcard.getHandled(), 1)
}

func TestInMemoryEventBus_Publish_FailingHandlerDoesNotBlockOthers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	failing := subscribeHandler(bus, "ledger.entry.voided")
	failing.setError(errors.New("projection conflict"))
	healthy := subscribeHandler(bus, "ledger.entry.voided")

	err := bus.Publish(context.Background(), newTestEvent("ledger.entry.voided", uuid.New()))

	require.NoError(t, err)
	assert.Len(t, failing.getHandled(), 1)
	assert.Len(t, healthy.getHandled(), 1)
}

func TestInMemoryEventBus_Publish_NoMatchingHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := subscribeHandler(bus, "ledger.entry.posted")

	err := bus.Publish(context.Background(), newTestEvent("invite.accepted", uuid.New()))

	require.NoError(t, err)
	assert.Empty(t, handler.getHandled())
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := subscribeHandler(bus, "ledger.entry.posted")

	_ = bus.Publish(context.Background(), newTestEvent("ledger.entry.posted", uuid.New()))
	require.Len(t, handler.getHandled(), 1)

	bus.Unsubscribe(handler)

	_ = bus.Publish(context.Background(), newTestEvent("ledger.entry.posted", uuid.New()))
	assert.Len(t, handler.getHandled(), 1, "no delivery after unsubscribe")
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	require.NoError(t, bus.Start(context.Background()))

	handler := subscribeHandler(bus, "ledger.entry.posted")
	err := bus.Publish(context.Background(), newTestEvent("ledger.entry.posted", uuid.New()))
	require.NoError(t, err)
	assert.Len(t, handler.getHandled(), 1)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(stopCtx))
}

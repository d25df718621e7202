package event

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/strata/backend/internal/domain/shared"
)

// IdempotentHandler wraps an EventHandler so that redelivered events are
// acknowledged without running the inner handler again. The balance
// projector sits behind one of these: the outbox processor retries on
// publish hiccups, and applying the same posted-entry event twice would
// double-count the unit's balance.
type IdempotentHandler struct {
	handler shared.EventHandler
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
	metrics *IdempotencyMetrics
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)

// IdempotentHandlerOption configures an IdempotentHandler.
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig overrides the default idempotency configuration.
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.config = config }
}

// WithIdempotencyMetrics points the handler at a shared metrics collector.
func WithIdempotencyMetrics(metrics *IdempotencyMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.metrics = metrics }
}

// NewIdempotentHandler wraps handler with idempotency checking backed by
// the given store.
func NewIdempotentHandler(
	handler shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		handler: handler,
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger,
		metrics: &IdempotencyMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes delegates to the wrapped handler's subscriptions.
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Handle runs the wrapped handler unless the event was already processed.
// A failing idempotency store degrades to at-least-once delivery: dropping
// an event on a store outage would be worse than a duplicate, since every
// wrapped handler here tolerates replays at the projection level too.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, event)
	}

	eventID := event.EventID().String()
	if h.claimEvent(ctx, eventID, event.EventType()) == claimDuplicate {
		h.metrics.EventsDuplicate.Add(1)
		return nil
	}

	if err := h.handler.Handle(ctx, event); err != nil {
		h.metrics.EventsFailed.Add(1)
		h.logger.Error("event handler failed",
			zap.String("event_id", eventID),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
		// The claim stays in the store until its TTL lapses, which
		// spaces out retries of a failing event.
		return err
	}

	h.metrics.EventsProcessed.Add(1)
	h.logger.Debug("event processed",
		zap.String("event_id", eventID),
		zap.String("event_type", event.EventType()),
	)
	return nil
}

type claimResult int

const (
	claimNew claimResult = iota
	claimDuplicate
)

// claimEvent atomically marks the event as processed. Store errors count
// as a fresh claim so the event is not dropped.
func (h *IdempotentHandler) claimEvent(ctx context.Context, eventID, eventType string) claimResult {
	isNew, err := h.store.MarkProcessed(ctx, eventID, h.config.TTL)
	if err != nil {
		h.logger.Warn("failed to check idempotency, processing anyway",
			zap.String("event_id", eventID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return claimNew
	}
	if !isNew {
		h.logger.Debug("duplicate event detected, skipping",
			zap.String("event_id", eventID),
			zap.String("event_type", eventType),
		)
		return claimDuplicate
	}
	return claimNew
}

// GetMetrics returns the handler's metrics collector.
func (h *IdempotentHandler) GetMetrics() *IdempotencyMetrics {
	return h.metrics
}

// GetWrappedHandler returns the inner handler.
func (h *IdempotentHandler) GetWrappedHandler() shared.EventHandler {
	return h.handler
}

// WrapHandlersWithIdempotency wraps a batch of handlers in one call,
// sharing the store and options.
func WrapHandlersWithIdempotency(
	handlers []shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) []shared.EventHandler {
	wrapped := make([]shared.EventHandler, len(handlers))
	for i, h := range handlers {
		wrapped[i] = NewIdempotentHandler(h, store, logger, opts...)
	}
	return wrapped
}

// IdempotencyMetrics counts processed, duplicate, and failed events.
// All counters are safe for concurrent use.
type IdempotencyMetrics struct {
	EventsProcessed atomic.Int64
	EventsDuplicate atomic.Int64
	EventsFailed    atomic.Int64
}

// Stats returns a point-in-time snapshot of the counters.
func (m *IdempotencyMetrics) Stats() IdempotencyStats {
	return IdempotencyStats{
		EventsProcessed: m.EventsProcessed.Load(),
		EventsDuplicate: m.EventsDuplicate.Load(),
		EventsFailed:    m.EventsFailed.Load(),
	}
}

// IdempotencyStats is a snapshot of IdempotencyMetrics.
type IdempotencyStats struct {
	EventsProcessed int64 `json:"events_processed"`
	EventsDuplicate int64 `json:"events_duplicate"`
	EventsFailed    int64 `json:"events_failed"`
}

// GlobalIdempotencyMetrics aggregates counts across handlers that opt in
// via WithIdempotencyMetrics. Deployments running more than one process
// should inject their own instance instead.
var GlobalIdempotencyMetrics = &IdempotencyMetrics{}

package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/strata/backend/internal/domain/shared"
)

// EventSerializer turns domain events into outbox payloads and back.
// Deserialization needs a concrete Go type per event name, so every
// event the outbox can carry is registered up front via
// RegisterAllEvents; an unregistered type is a wiring bug, not data
// corruption, and surfaces as an error on the dead-letter path.
type EventSerializer struct {
	mu       sync.RWMutex
	registry map[string]reflect.Type
}

// NewEventSerializer creates an empty serializer.
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{
		registry: make(map[string]reflect.Type),
	}
}

// structType resolves the concrete struct type behind an event value,
// unwrapping the pointer events are registered as.
func structType(event shared.DomainEvent) reflect.Type {
	t := reflect.TypeOf(event)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// Register maps an event name to the concrete type it deserializes
// into. eventType must match the event's EventType().
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[eventType] = structType(eventInstance)
}

// IsRegistered reports whether eventType can be deserialized.
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}

// RegisteredTypes returns the names of every registered event type.
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.registry))
	for t := range s.registry {
		types = append(types, t)
	}
	return types
}

// Serialize renders the event as the JSON payload stored in the outbox.
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	return json.Marshal(event)
}

// Deserialize rebuilds a typed event from a stored payload.
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	t, ok := s.registry[eventType]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	eventPtr := reflect.New(t).Interface()
	if err := json.Unmarshal(data, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("deserialized object does not implement DomainEvent")
	}

	return event, nil
}

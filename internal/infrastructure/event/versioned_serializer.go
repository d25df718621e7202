package event

import (
	"encoding/json"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/strata/backend/internal/domain/shared"
)

// VersionedSerializer decodes domain events stored as JSON, upgrading
// payloads written under older schema versions on the way in. Writers
// always emit the current version; readers accept any version the
// registry has an upgrade chain for.
type VersionedSerializer struct {
	versionRegistry *VersionRegistry
	logger          *zap.Logger
}

// NewVersionedSerializer creates a versioned event serializer.
func NewVersionedSerializer(logger *zap.Logger) *VersionedSerializer {
	return &VersionedSerializer{
		versionRegistry: NewVersionRegistry(),
		logger:          logger,
	}
}

// Register registers a version-1 event type. Mirrors the plain
// EventSerializer interface so callers can switch without changes.
func (s *VersionedSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.versionRegistry.RegisterSimpleEvent(eventType, eventInstance)
}

// RegisterVersioned registers an event type together with its upgrade
// chain and a prototype struct per supported version.
func (s *VersionedSerializer) RegisterVersioned(
	eventType string,
	currentVersion int,
	versions map[int]shared.DomainEvent,
	upgraders ...EventUpgrader,
) error {
	return s.versionRegistry.RegisterVersionedEvent(eventType, currentVersion, versions, upgraders...)
}

// Serialize encodes a domain event to JSON. BaseDomainEvent carries the
// schema_version field, so the version travels with the payload.
func (s *VersionedSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	return json.Marshal(event)
}

// SerializeWithVersion is an alias of Serialize kept for callers that
// want the intent spelled out.
func (s *VersionedSerializer) SerializeWithVersion(event shared.DomainEvent) ([]byte, error) {
	return json.Marshal(event)
}

// Deserialize decodes JSON into the current version of the event type,
// running the payload up the upgrade chain first when it is older.
func (s *VersionedSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	config, ok := s.versionRegistry.GetConfig(eventType)
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	payload := data
	if version := ExtractVersion(data); version < config.CurrentVersion {
		s.logVersionUpgrade(eventType, version, config.CurrentVersion)
		upgraded, _, err := s.versionRegistry.UpgradePayload(eventType, data, version)
		if err != nil {
			return nil, fmt.Errorf("failed to upgrade event: %w", err)
		}
		payload = upgraded
	}

	return s.instantiate(config, config.CurrentVersion, payload)
}

// DeserializeToVersion decodes JSON into a specific historic version of
// the event type, upgrading the payload only as far as targetVersion.
// Downgrading is not supported.
func (s *VersionedSerializer) DeserializeToVersion(eventType string, data []byte, targetVersion int) (shared.DomainEvent, error) {
	config, ok := s.versionRegistry.GetConfig(eventType)
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	version := ExtractVersion(data)
	if version > targetVersion {
		return nil, fmt.Errorf("cannot downgrade event from version %d to %d", version, targetVersion)
	}

	payload := data
	for v := version; v < targetVersion; v++ {
		upgrader, ok := config.Upgraders[v]
		if !ok {
			return nil, fmt.Errorf("missing upgrader for version %d -> %d", v, v+1)
		}
		upgraded, err := upgrader.Upgrade(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to upgrade from v%d to v%d: %w", v, v+1, err)
		}
		payload = upgraded
	}

	return s.instantiate(config, targetVersion, payload)
}

// instantiate unmarshals a payload into a fresh instance of the
// registered prototype for the given version.
func (s *VersionedSerializer) instantiate(config *VersionedEventConfig, version int, payload []byte) (shared.DomainEvent, error) {
	prototype, ok := config.Versions[version]
	if !ok {
		return nil, fmt.Errorf("no event type registered for version %d of %s", version, config.EventType)
	}

	t := reflect.TypeOf(prototype)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	eventPtr := reflect.New(t).Interface()

	if err := json.Unmarshal(payload, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("deserialized object does not implement DomainEvent")
	}
	return event, nil
}

// IsRegistered reports whether an event type is registered.
func (s *VersionedSerializer) IsRegistered(eventType string) bool {
	return s.versionRegistry.IsRegistered(eventType)
}

// RegisteredTypes returns all registered event type names.
func (s *VersionedSerializer) RegisteredTypes() []string {
	return s.versionRegistry.RegisteredTypes()
}

// GetCurrentVersion returns the current version for an event type.
func (s *VersionedSerializer) GetCurrentVersion(eventType string) (int, bool) {
	return s.versionRegistry.GetCurrentVersion(eventType)
}

// GetVersionRegistry exposes the underlying registry for callers that
// need direct access to version chains, such as the migrator.
func (s *VersionedSerializer) GetVersionRegistry() *VersionRegistry {
	return s.versionRegistry
}

func (s *VersionedSerializer) logVersionUpgrade(eventType string, from, to int) {
	if s.logger == nil {
		return
	}
	s.logger.Debug("upgrading event version",
		zap.String("event_type", eventType),
		zap.Int("from_version", from),
		zap.Int("to_version", to),
	)
}

// UpgradePayloadOnly upgrades a payload to the current version without
// decoding it into a struct. Batch migrations use this path.
func (s *VersionedSerializer) UpgradePayloadOnly(eventType string, data []byte) ([]byte, int, error) {
	return s.versionRegistry.UpgradePayload(eventType, data, ExtractVersion(data))
}

// GetEventVersion reads the schema version out of a raw payload.
func (s *VersionedSerializer) GetEventVersion(data []byte) int {
	return ExtractVersion(data)
}

package event

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/strata/backend/internal/domain/shared"
)

// EventUpgrader rewrites an event payload from one schema version to the
// next. Upgraders are strictly sequential; a v1 payload reaches v3 by
// running the 1->2 and 2->3 upgraders in order.
type EventUpgrader interface {
	SourceVersion() int
	TargetVersion() int
	// Upgrade takes the raw JSON payload at SourceVersion and returns it
	// at TargetVersion.
	Upgrade(payload []byte) ([]byte, error)
}

// VersionedEventConfig describes the version chain for one event type.
type VersionedEventConfig struct {
	EventType      string
	CurrentVersion int
	Upgraders      map[int]EventUpgrader      // keyed by source version
	Versions       map[int]shared.DomainEvent // prototype per version
}

// VersionRegistry tracks the schema version chain of every registered
// event type. Old payloads sitting in the outbox or audit log keep
// deserializing after the schema moves on.
type VersionRegistry struct {
	mu      sync.RWMutex
	configs map[string]*VersionedEventConfig
}

// NewVersionRegistry creates an empty version registry.
func NewVersionRegistry() *VersionRegistry {
	return &VersionRegistry{configs: make(map[string]*VersionedEventConfig)}
}

// RegisterVersionedEvent registers an event type whose schema has evolved.
// The versions map holds a prototype struct per schema version, and the
// upgraders must form an unbroken chain from version 1 up to
// currentVersion.
func (r *VersionRegistry) RegisterVersionedEvent(
	eventType string,
	currentVersion int,
	versions map[int]shared.DomainEvent,
	upgraders ...EventUpgrader,
) error {
	cfg := &VersionedEventConfig{
		EventType:      eventType,
		CurrentVersion: currentVersion,
		Upgraders:      make(map[int]EventUpgrader, len(upgraders)),
		Versions:       versions,
	}

	for _, u := range upgraders {
		if u.TargetVersion() != u.SourceVersion()+1 {
			return fmt.Errorf("upgrader must be sequential: got %d -> %d", u.SourceVersion(), u.TargetVersion())
		}
		cfg.Upgraders[u.SourceVersion()] = u
	}
	if err := cfg.validateChain(); err != nil {
		return err
	}

	r.mu.Lock()
	r.configs[eventType] = cfg
	r.mu.Unlock()
	return nil
}

// validateChain checks that every version from 1 to current has a path
// forward and that a current-version prototype exists.
func (c *VersionedEventConfig) validateChain() error {
	for v := 1; v < c.CurrentVersion; v++ {
		if _, ok := c.Upgraders[v]; !ok {
			return fmt.Errorf("missing upgrader for version %d -> %d for event type %s", v, v+1, c.EventType)
		}
	}
	if _, ok := c.Versions[c.CurrentVersion]; !ok {
		return fmt.Errorf("versions map must include current version %d for event type %s", c.CurrentVersion, c.EventType)
	}
	return nil
}

// RegisterSimpleEvent registers an event type that is still on version 1.
func (r *VersionRegistry) RegisterSimpleEvent(eventType string, eventInstance shared.DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[eventType] = &VersionedEventConfig{
		EventType:      eventType,
		CurrentVersion: 1,
		Upgraders:      make(map[int]EventUpgrader),
		Versions:       map[int]shared.DomainEvent{1: eventInstance},
	}
}

// GetConfig returns the versioning config for an event type.
func (r *VersionRegistry) GetConfig(eventType string) (*VersionedEventConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[eventType]
	return cfg, ok
}

// GetCurrentVersion returns the latest schema version for an event type.
func (r *VersionRegistry) GetCurrentVersion(eventType string) (int, bool) {
	cfg, ok := r.GetConfig(eventType)
	if !ok {
		return 0, false
	}
	return cfg.CurrentVersion, true
}

// IsRegistered reports whether an event type is known to the registry.
func (r *VersionRegistry) IsRegistered(eventType string) bool {
	_, ok := r.GetConfig(eventType)
	return ok
}

// RegisteredTypes returns the names of all registered event types.
func (r *VersionRegistry) RegisteredTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.configs))
	for t := range r.configs {
		types = append(types, t)
	}
	return types
}

// UpgradePayload walks a payload up the upgrader chain from fromVersion
// to the event type's current version. Payloads already at or past the
// current version pass through untouched.
func (r *VersionRegistry) UpgradePayload(eventType string, payload []byte, fromVersion int) ([]byte, int, error) {
	cfg, ok := r.GetConfig(eventType)
	if !ok {
		return nil, 0, fmt.Errorf("unknown event type: %s", eventType)
	}

	if fromVersion >= cfg.CurrentVersion {
		return payload, cfg.CurrentVersion, nil
	}

	for v := fromVersion; v < cfg.CurrentVersion; v++ {
		upgrader, ok := cfg.Upgraders[v]
		if !ok {
			return nil, 0, fmt.Errorf("missing upgrader for version %d -> %d for event type %s", v, v+1, eventType)
		}
		upgraded, err := upgrader.Upgrade(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to upgrade from v%d to v%d: %w", v, v+1, err)
		}
		payload = upgraded
	}

	return payload, cfg.CurrentVersion, nil
}

// EventVersionInfo is the minimal envelope used to sniff a payload's
// schema version.
type EventVersionInfo struct {
	SchemaVersion int `json:"schema_version"`
}

// ExtractVersion reads the schema_version field from raw event JSON.
// Payloads that predate versioning carry no field and count as version 1.
func ExtractVersion(payload []byte) int {
	var info EventVersionInfo
	if err := json.Unmarshal(payload, &info); err != nil || info.SchemaVersion == 0 {
		return 1
	}
	return info.SchemaVersion
}

// BaseEventUpgrader implements EventUpgrader on top of a map transform:
// the payload is decoded into a map, handed to the transform, stamped
// with the target schema version, and re-encoded.
type BaseEventUpgrader struct {
	sourceVersion int
	targetVersion int
	transformFunc func(data map[string]any) (map[string]any, error)
}

var _ EventUpgrader = (*BaseEventUpgrader)(nil)

// NewBaseEventUpgrader creates an upgrader from source to target built
// around the given transform.
func NewBaseEventUpgrader(source, target int, transform func(data map[string]any) (map[string]any, error)) *BaseEventUpgrader {
	return &BaseEventUpgrader{
		sourceVersion: source,
		targetVersion: target,
		transformFunc: transform,
	}
}

func (u *BaseEventUpgrader) SourceVersion() int { return u.sourceVersion }

func (u *BaseEventUpgrader) TargetVersion() int { return u.targetVersion }

// Upgrade applies the transform and stamps the target schema version.
func (u *BaseEventUpgrader) Upgrade(payload []byte) ([]byte, error) {
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	transformed, err := u.transformFunc(data)
	if err != nil {
		return nil, fmt.Errorf("transform failed: %w", err)
	}
	transformed["schema_version"] = u.targetVersion

	result, err := json.Marshal(transformed)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transformed payload: %w", err)
	}
	return result, nil
}

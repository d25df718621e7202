package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventMigrator upgrades stored event payloads to their current schema
// version. It operates on raw payloads so callers can batch-process events
// straight out of the outbox table or an archive without deserializing
// them into domain types first.
type EventMigrator struct {
	serializer *VersionedSerializer
	logger     *zap.Logger
}

// NewEventMigrator creates an EventMigrator backed by the given serializer.
func NewEventMigrator(serializer *VersionedSerializer, logger *zap.Logger) *EventMigrator {
	return &EventMigrator{serializer: serializer, logger: logger}
}

// MigrationResult summarizes one batch run of MigratePayloads.
type MigrationResult struct {
	EventType      string
	TotalProcessed int
	Upgraded       int
	AlreadyCurrent int
	Failed         int
	FailedPayloads []FailedMigration
	StartedAt      time.Time
	CompletedAt    time.Time
	FromVersion    int
	ToVersion      int
}

// FailedMigration records a payload that could not be upgraded.
type FailedMigration struct {
	Payload []byte
	Error   string
	Version int
}

// Duration reports how long the batch took.
func (r *MigrationResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// MigratePayloads upgrades every payload in the batch to the current
// version of eventType. Payloads that fail to upgrade are collected in
// the result rather than aborting the batch. Cancelling the context
// stops the run and returns the partial result with ctx.Err().
func (m *EventMigrator) MigratePayloads(ctx context.Context, eventType string, payloads [][]byte) (*MigrationResult, error) {
	currentVersion, ok := m.serializer.GetCurrentVersion(eventType)
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	result := &MigrationResult{
		EventType:      eventType,
		ToVersion:      currentVersion,
		StartedAt:      time.Now(),
		FailedPayloads: make([]FailedMigration, 0),
	}

	for _, payload := range payloads {
		if err := ctx.Err(); err != nil {
			result.CompletedAt = time.Now()
			return result, err
		}

		result.TotalProcessed++
		version := ExtractVersion(payload)
		if result.FromVersion == 0 || version < result.FromVersion {
			result.FromVersion = version
		}

		if version >= currentVersion {
			result.AlreadyCurrent++
			continue
		}

		if _, _, err := m.serializer.UpgradePayloadOnly(eventType, payload); err != nil {
			result.Failed++
			result.FailedPayloads = append(result.FailedPayloads, FailedMigration{
				Payload: payload,
				Error:   err.Error(),
				Version: version,
			})
			continue
		}
		result.Upgraded++
	}

	result.CompletedAt = time.Now()
	return result, nil
}

// ValidateUpgradeChain checks that an upgrader is registered for every
// version step below the current one, so no stored payload can get stuck.
func (m *EventMigrator) ValidateUpgradeChain(eventType string) error {
	config, ok := m.serializer.GetVersionRegistry().GetConfig(eventType)
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	for v := 1; v < config.CurrentVersion; v++ {
		if _, ok := config.Upgraders[v]; !ok {
			return fmt.Errorf("missing upgrader for version %d -> %d", v, v+1)
		}
	}
	return nil
}

// EventVersionAnalysis describes the version spread of a payload set,
// used to size a migration before running it.
type EventVersionAnalysis struct {
	EventType      string
	CurrentVersion int
	VersionCounts  map[int]int
	OldestVersion  int
	NewestVersion  int
	TotalEvents    int
	NeedsMigration int
	UpToDate       int
}

// AnalyzePayloads inspects a batch of payloads without upgrading them.
func (m *EventMigrator) AnalyzePayloads(eventType string, payloads [][]byte) (*EventVersionAnalysis, error) {
	currentVersion, ok := m.serializer.GetCurrentVersion(eventType)
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	analysis := &EventVersionAnalysis{
		EventType:      eventType,
		CurrentVersion: currentVersion,
		VersionCounts:  make(map[int]int),
		OldestVersion:  -1,
		NewestVersion:  -1,
		TotalEvents:    len(payloads),
	}

	for _, payload := range payloads {
		version := ExtractVersion(payload)
		analysis.VersionCounts[version]++

		if analysis.OldestVersion == -1 || version < analysis.OldestVersion {
			analysis.OldestVersion = version
		}
		if version > analysis.NewestVersion {
			analysis.NewestVersion = version
		}

		if version < currentVersion {
			analysis.NeedsMigration++
		} else {
			analysis.UpToDate++
		}
	}

	return analysis, nil
}

// MigrationPlan lists the upgrade steps needed to bring an event type
// from one version to the current one.
type MigrationPlan struct {
	EventType        string
	FromVersion      int
	ToVersion        int
	UpgradeSteps     []UpgradeStep
	EstimatedPayload int
}

// UpgradeStep is one hop in a migration plan.
type UpgradeStep struct {
	FromVersion int
	ToVersion   int
	HasUpgrader bool
}

// IsValid reports whether every step in the plan has a registered upgrader.
func (p *MigrationPlan) IsValid() bool {
	for _, step := range p.UpgradeSteps {
		if !step.HasUpgrader {
			return false
		}
	}
	return true
}

// CreateMigrationPlan builds a plan from fromVersion to the current
// version. A fromVersion at or above current yields an empty plan.
func (m *EventMigrator) CreateMigrationPlan(eventType string, fromVersion int) (*MigrationPlan, error) {
	config, ok := m.serializer.GetVersionRegistry().GetConfig(eventType)
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	plan := &MigrationPlan{
		EventType:    eventType,
		FromVersion:  fromVersion,
		ToVersion:    config.CurrentVersion,
		UpgradeSteps: []UpgradeStep{},
	}
	for v := fromVersion; v < config.CurrentVersion; v++ {
		_, hasUpgrader := config.Upgraders[v]
		plan.UpgradeSteps = append(plan.UpgradeSteps, UpgradeStep{
			FromVersion: v,
			ToVersion:   v + 1,
			HasUpgrader: hasUpgrader,
		})
	}
	return plan, nil
}

// CommonUpgraders builds upgraders for the schema changes that come up
// again and again: adding, dropping, renaming, or reshaping a field.
type CommonUpgraders struct{}

// AddField adds a field with a default value.
func (CommonUpgraders) AddField(sourceVersion int, fieldName string, defaultValue any) *BaseEventUpgrader {
	return NewBaseEventUpgrader(sourceVersion, sourceVersion+1, func(data map[string]any) (map[string]any, error) {
		data[fieldName] = defaultValue
		return data, nil
	})
}

// RemoveField drops a field.
func (CommonUpgraders) RemoveField(sourceVersion int, fieldName string) *BaseEventUpgrader {
	return NewBaseEventUpgrader(sourceVersion, sourceVersion+1, func(data map[string]any) (map[string]any, error) {
		delete(data, fieldName)
		return data, nil
	})
}

// RenameField moves a value from oldName to newName.
func (CommonUpgraders) RenameField(sourceVersion int, oldName, newName string) *BaseEventUpgrader {
	return NewBaseEventUpgrader(sourceVersion, sourceVersion+1, func(data map[string]any) (map[string]any, error) {
		if val, ok := data[oldName]; ok {
			data[newName] = val
			delete(data, oldName)
		}
		return data, nil
	})
}

// TransformField rewrites a field value in place.
func (CommonUpgraders) TransformField(sourceVersion int, fieldName string, transform func(any) any) *BaseEventUpgrader {
	return NewBaseEventUpgrader(sourceVersion, sourceVersion+1, func(data map[string]any) (map[string]any, error) {
		if val, ok := data[fieldName]; ok {
			data[fieldName] = transform(val)
		}
		return data, nil
	})
}

// WrapInObject nests a field value under wrapperKey.
func (CommonUpgraders) WrapInObject(sourceVersion int, fieldName, wrapperKey string) *BaseEventUpgrader {
	return NewBaseEventUpgrader(sourceVersion, sourceVersion+1, func(data map[string]any) (map[string]any, error) {
		if val, ok := data[fieldName]; ok {
			data[fieldName] = map[string]any{wrapperKey: val}
		}
		return data, nil
	})
}

// UnwrapFromObject is the inverse of WrapInObject.
func (CommonUpgraders) UnwrapFromObject(sourceVersion int, fieldName, wrapperKey string) *BaseEventUpgrader {
	return NewBaseEventUpgrader(sourceVersion, sourceVersion+1, func(data map[string]any) (map[string]any, error) {
		if obj, ok := data[fieldName].(map[string]any); ok {
			if unwrapped, ok := obj[wrapperKey]; ok {
				data[fieldName] = unwrapped
			}
		}
		return data, nil
	})
}

// CopyPayload deep-copies a JSON payload by round-tripping it.
func CopyPayload(payload []byte) ([]byte, error) {
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}
	return json.Marshal(data)
}

// MigrationStats tracks upgrade throughput per event type. Safe for
// concurrent use.
type MigrationStats struct {
	mu    sync.RWMutex
	stats map[string]*EventMigrationStats
}

// EventMigrationStats holds counters for one event type.
type EventMigrationStats struct {
	EventType           string
	TotalMigrated       int64
	TotalFailed         int64
	LastMigratedAt      time.Time
	AverageDurationMs   float64
	MigrationsByVersion map[string]int64 // "v1->v2" => count
}

// NewMigrationStats creates an empty stats tracker.
func NewMigrationStats() *MigrationStats {
	return &MigrationStats{stats: make(map[string]*EventMigrationStats)}
}

// RecordMigration records one upgrade attempt.
func (s *MigrationStats) RecordMigration(eventType string, fromVersion, toVersion int, durationMs float64, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.stats[eventType]
	if !ok {
		stats = &EventMigrationStats{
			EventType:           eventType,
			MigrationsByVersion: make(map[string]int64),
		}
		s.stats[eventType] = stats
	}

	if success {
		stats.TotalMigrated++
		stats.LastMigratedAt = time.Now()
		n := float64(stats.TotalMigrated)
		stats.AverageDurationMs = stats.AverageDurationMs*(n-1)/n + durationMs/n
	} else {
		stats.TotalFailed++
	}

	stats.MigrationsByVersion[fmt.Sprintf("v%d->v%d", fromVersion, toVersion)]++
}

// GetStats returns a copy of the counters for an event type.
func (s *MigrationStats) GetStats(eventType string) (*EventMigrationStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.stats[eventType]
	if !ok {
		return nil, false
	}

	statsCopy := *stats
	statsCopy.MigrationsByVersion = make(map[string]int64, len(stats.MigrationsByVersion))
	for k, v := range stats.MigrationsByVersion {
		statsCopy.MigrationsByVersion[k] = v
	}
	return &statsCopy, true
}

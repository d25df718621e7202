package event

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/strata/backend/internal/domain/shared"
)

// EntryPostedV1..V3 model three schema generations of a posted-entry event.
type EntryPostedV1 struct {
	shared.BaseDomainEvent
	Reference string `json:"reference"`
}

// EntryPostedV2 adds the billing period.
type EntryPostedV2 struct {
	shared.BaseDomainEvent
	Reference string `json:"reference"`
	Period    string `json:"period"`
}

// EntryPostedV3 renames period to billing_period and adds the amount.
type EntryPostedV3 struct {
	shared.BaseDomainEvent
	Reference     string `json:"reference"`
	BillingPeriod string `json:"billing_period"`
	AmountMinor   int    `json:"amount_minor"`
}

func entryPostedEvent(version int) shared.BaseDomainEvent {
	return shared.NewVersionedBaseDomainEvent("LedgerEntryPosted", "LedgerEntry", uuid.New(), uuid.New(), version)
}

func newEntryPostedV1() *EntryPostedV1 {
	return &EntryPostedV1{BaseDomainEvent: entryPostedEvent(1), Reference: "dues 2026-09"}
}

func newEntryPostedV2() *EntryPostedV2 {
	return &EntryPostedV2{BaseDomainEvent: entryPostedEvent(2), Reference: "dues 2026-09", Period: "2026-09"}
}

func newEntryPostedV3() *EntryPostedV3 {
	return &EntryPostedV3{
		BaseDomainEvent: entryPostedEvent(3),
		Reference:       "dues 2026-09",
		BillingPeriod:   "2026-09",
		AmountMinor:     125000,
	}
}

// entryPostedV1ToV2 backfills the period with the epoch sentinel.
func entryPostedV1ToV2() EventUpgrader {
	return NewBaseEventUpgrader(1, 2, func(data map[string]any) (map[string]any, error) {
		data["period"] = "1970-01"
		return data, nil
	})
}

// entryPostedV2ToV3 renames period and backfills the amount with zero.
func entryPostedV2ToV3() EventUpgrader {
	return NewBaseEventUpgrader(2, 3, func(data map[string]any) (map[string]any, error) {
		if period, ok := data["period"]; ok {
			data["billing_period"] = period
			delete(data, "period")
		}
		data["amount_minor"] = 0
		return data, nil
	})
}

func entryPostedVersions(upTo int) map[int]shared.DomainEvent {
	all := map[int]shared.DomainEvent{1: &EntryPostedV1{}, 2: &EntryPostedV2{}, 3: &EntryPostedV3{}}
	versions := make(map[int]shared.DomainEvent, upTo)
	for v := 1; v <= upTo; v++ {
		versions[v] = all[v]
	}
	return versions
}

// registerEntryPostedChain wires the v1->v2->v3 chain, trimmed to
// currentVersion, into the registry under test.
func registerEntryPostedChain(t *testing.T, registry *VersionRegistry, currentVersion int) {
	t.Helper()
	upgraders := []EventUpgrader{entryPostedV1ToV2(), entryPostedV2ToV3()}
	err := registry.RegisterVersionedEvent("LedgerEntryPosted", currentVersion,
		entryPostedVersions(currentVersion), upgraders[:currentVersion-1]...)
	require.NoError(t, err)
}

func newEntrySerializer(t *testing.T, currentVersion int) *VersionedSerializer {
	t.Helper()
	serializer := NewVersionedSerializer(zap.NewNop())
	upgraders := []EventUpgrader{entryPostedV1ToV2(), entryPostedV2ToV3()}
	err := serializer.RegisterVersioned("LedgerEntryPosted", currentVersion,
		entryPostedVersions(currentVersion), upgraders[:currentVersion-1]...)
	require.NoError(t, err)
	return serializer
}

func TestVersionRegistry_RegisterSimpleEvent(t *testing.T) {
	registry := NewVersionRegistry()

	registry.RegisterSimpleEvent("LedgerEntryPosted", &EntryPostedV1{})

	assert.True(t, registry.IsRegistered("LedgerEntryPosted"))
	config, ok := registry.GetConfig("LedgerEntryPosted")
	require.True(t, ok)
	assert.Equal(t, 1, config.CurrentVersion)
	assert.Empty(t, config.Upgraders)
}

func TestVersionRegistry_RegisterVersionedEvent(t *testing.T) {
	registry := NewVersionRegistry()

	registerEntryPostedChain(t, registry, 3)

	assert.True(t, registry.IsRegistered("LedgerEntryPosted"))
	version, ok := registry.GetCurrentVersion("LedgerEntryPosted")
	require.True(t, ok)
	assert.Equal(t, 3, version)
}

func TestVersionRegistry_RegisterVersionedEvent_BrokenChains(t *testing.T) {
	skipsVersion := NewBaseEventUpgrader(1, 3, func(data map[string]any) (map[string]any, error) {
		return data, nil
	})

	tests := []struct {
		name      string
		upgraders []EventUpgrader
		wantErr   string
	}{
		{"gap in chain", []EventUpgrader{entryPostedV1ToV2()}, "missing upgrader for version 2 -> 3"},
		{"non-sequential upgrader", []EventUpgrader{skipsVersion}, "upgrader must be sequential"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewVersionRegistry()
			err := registry.RegisterVersionedEvent("LedgerEntryPosted", 3, entryPostedVersions(3), tt.upgraders...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestVersionRegistry_UpgradePayload(t *testing.T) {
	registry := NewVersionRegistry()
	registerEntryPostedChain(t, registry, 3)

	v1Data, err := NewEventSerializer().Serialize(newEntryPostedV1())
	require.NoError(t, err)

	upgraded, version, err := registry.UpgradePayload("LedgerEntryPosted", v1Data, 1)

	require.NoError(t, err)
	assert.Equal(t, 3, version)
	assert.Contains(t, string(upgraded), "billing_period")
	assert.Contains(t, string(upgraded), "amount_minor")
	assert.NotContains(t, string(upgraded), `"period":`)
}

func TestVersionRegistry_UpgradePayload_AlreadyCurrent(t *testing.T) {
	registry := NewVersionRegistry()
	registry.RegisterSimpleEvent("LedgerEntryPosted", &EntryPostedV1{})

	payload := []byte(`{"schema_version": 1, "reference": "dues"}`)
	upgraded, version, err := registry.UpgradePayload("LedgerEntryPosted", payload, 1)

	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, payload, upgraded)
}

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected int
	}{
		{"with version", `{"schema_version": 2, "reference": "dues"}`, 2},
		{"without version", `{"reference": "dues"}`, 1},
		{"version zero", `{"schema_version": 0, "reference": "dues"}`, 1},
		{"invalid json", `invalid`, 1},
		{"empty", `{}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractVersion([]byte(tt.payload)))
		})
	}
}

func TestBaseEventUpgrader(t *testing.T) {
	upgrader := NewBaseEventUpgrader(1, 2, func(data map[string]any) (map[string]any, error) {
		data["new_field"] = "added"
		return data, nil
	})

	assert.Equal(t, 1, upgrader.SourceVersion())
	assert.Equal(t, 2, upgrader.TargetVersion())

	output, err := upgrader.Upgrade([]byte(`{"schema_version": 1, "existing": "value"}`))
	require.NoError(t, err)
	assert.Contains(t, string(output), `"new_field":"added"`)
	assert.Contains(t, string(output), `"schema_version":2`)
}

func TestVersionedSerializer_Register_Backward_Compatible(t *testing.T) {
	serializer := NewVersionedSerializer(zap.NewNop())

	serializer.Register("LedgerEntryPosted", &EntryPostedV1{})

	assert.True(t, serializer.IsRegistered("LedgerEntryPosted"))
	version, ok := serializer.GetCurrentVersion("LedgerEntryPosted")
	require.True(t, ok)
	assert.Equal(t, 1, version)
}

func TestVersionedSerializer_Serialize(t *testing.T) {
	serializer := NewVersionedSerializer(zap.NewNop())

	data, err := serializer.Serialize(newEntryPostedV3())

	require.NoError(t, err)
	assert.Contains(t, string(data), `"schema_version":3`)
	assert.Contains(t, string(data), `"reference":"dues 2026-09"`)
}

func TestVersionedSerializer_Deserialize_CurrentVersion(t *testing.T) {
	serializer := newEntrySerializer(t, 3)

	original := newEntryPostedV3()
	data, err := serializer.Serialize(original)
	require.NoError(t, err)

	deserialized, err := serializer.Deserialize("LedgerEntryPosted", data)
	require.NoError(t, err)

	event, ok := deserialized.(*EntryPostedV3)
	require.True(t, ok)
	assert.Equal(t, original.Reference, event.Reference)
	assert.Equal(t, original.BillingPeriod, event.BillingPeriod)
	assert.Equal(t, original.AmountMinor, event.AmountMinor)
}

func TestVersionedSerializer_Deserialize_FromV2ToLatest(t *testing.T) {
	serializer := newEntrySerializer(t, 3)

	v2Event := newEntryPostedV2()
	data, err := serializer.Serialize(v2Event)
	require.NoError(t, err)

	deserialized, err := serializer.Deserialize("LedgerEntryPosted", data)
	require.NoError(t, err)

	event, ok := deserialized.(*EntryPostedV3)
	require.True(t, ok)
	assert.Equal(t, v2Event.Reference, event.Reference)
	assert.Equal(t, v2Event.Period, event.BillingPeriod)
	assert.Equal(t, 0, event.AmountMinor)
}

// storedEntryPayload fakes a payload written before versioning moved on.
func storedEntryPayload(schemaVersion int, reference string) []byte {
	payload := `{
		"id": "00000000-0000-0000-0000-000000000001",
		"type": "LedgerEntryPosted",
		"timestamp": "2024-01-01T00:00:00Z",
		"aggregate_id": "00000000-0000-0000-0000-000000000002",
		"aggregate_type": "LedgerEntry",
		"tenant_id": "00000000-0000-0000-0000-000000000003",`
	if schemaVersion > 0 {
		payload += fmt.Sprintf(`
		"schema_version": %d,`, schemaVersion)
	}
	return []byte(payload + `
		"reference": "` + reference + `"
	}`)
}

func TestVersionedSerializer_Deserialize_WithUpgrade(t *testing.T) {
	serializer := newEntrySerializer(t, 3)

	deserialized, err := serializer.Deserialize("LedgerEntryPosted", storedEntryPayload(1, "imported opening balance"))
	require.NoError(t, err)

	event, ok := deserialized.(*EntryPostedV3)
	require.True(t, ok)
	assert.Equal(t, "imported opening balance", event.Reference)
	assert.Equal(t, "1970-01", event.BillingPeriod)
	assert.Equal(t, 0, event.AmountMinor)
}

func TestVersionedSerializer_Deserialize_NoVersionField(t *testing.T) {
	serializer := newEntrySerializer(t, 2)

	// no schema_version field, treated as v1
	deserialized, err := serializer.Deserialize("LedgerEntryPosted", storedEntryPayload(0, "pre-versioning entry"))
	require.NoError(t, err)

	event, ok := deserialized.(*EntryPostedV2)
	require.True(t, ok)
	assert.Equal(t, "pre-versioning entry", event.Reference)
	assert.Equal(t, "1970-01", event.Period)
}

func TestVersionedSerializer_Deserialize_UnknownType(t *testing.T) {
	serializer := NewVersionedSerializer(zap.NewNop())

	_, err := serializer.Deserialize("UnknownEvent", []byte(`{}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestVersionedSerializer_DeserializeToVersion(t *testing.T) {
	serializer := newEntrySerializer(t, 3)

	deserialized, err := serializer.DeserializeToVersion("LedgerEntryPosted", storedEntryPayload(1, "carried entry"), 2)
	require.NoError(t, err)

	event, ok := deserialized.(*EntryPostedV2)
	require.True(t, ok)
	assert.Equal(t, "carried entry", event.Reference)
	assert.Equal(t, "1970-01", event.Period)
}

func TestVersionedSerializer_DeserializeToVersion_CannotDowngrade(t *testing.T) {
	serializer := newEntrySerializer(t, 3)

	v3Payload := []byte(`{"schema_version": 3, "reference": "carried entry"}`)
	_, err := serializer.DeserializeToVersion("LedgerEntryPosted", v3Payload, 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot downgrade")
}

func TestVersionedSerializer_DeserializeToVersion_UnknownType(t *testing.T) {
	serializer := NewVersionedSerializer(zap.NewNop())

	_, err := serializer.DeserializeToVersion("UnknownEvent", []byte(`{}`), 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestVersionedSerializer_RegisteredTypes(t *testing.T) {
	serializer := NewVersionedSerializer(zap.NewNop())

	serializer.Register("PaymentRecorded", &EntryPostedV1{})
	serializer.Register("EntryVoided", &EntryPostedV1{})

	types := serializer.RegisteredTypes()
	assert.Len(t, types, 2)
	assert.Contains(t, types, "PaymentRecorded")
	assert.Contains(t, types, "EntryVoided")
}

func TestCommonUpgraders(t *testing.T) {
	cu := CommonUpgraders{}

	tests := []struct {
		name        string
		upgrader    *BaseEventUpgrader
		input       string
		contains    []string
		notContains []string
	}{
		{
			name:     "AddField",
			upgrader: cu.AddField(1, "new_field", "default_value"),
			input:    `{"schema_version": 1, "existing": "value"}`,
			contains: []string{`"new_field":"default_value"`},
		},
		{
			name:        "RemoveField",
			upgrader:    cu.RemoveField(1, "old_field"),
			input:       `{"schema_version": 1, "old_field": "remove_me", "keep": "value"}`,
			contains:    []string{`"keep":"value"`},
			notContains: []string{"old_field"},
		},
		{
			name:        "RenameField",
			upgrader:    cu.RenameField(1, "old_name", "new_name"),
			input:       `{"schema_version": 1, "old_name": "value"}`,
			contains:    []string{`"new_name":"value"`},
			notContains: []string{"old_name"},
		},
		{
			name: "TransformField",
			upgrader: cu.TransformField(1, "amount", func(v any) any {
				if num, ok := v.(float64); ok {
					return num * 100
				}
				return v
			}),
			input:    `{"schema_version": 1, "amount": 10.5}`,
			contains: []string{`"amount":1050`},
		},
		{
			name:     "WrapInObject",
			upgrader: cu.WrapInObject(1, "value", "amount"),
			input:    `{"schema_version": 1, "value": 100}`,
			contains: []string{`"value":{"amount":100}`},
		},
		{
			name:     "UnwrapFromObject",
			upgrader: cu.UnwrapFromObject(1, "value", "amount"),
			input:    `{"schema_version": 1, "value": {"amount": 100, "other": "x"}}`,
			contains: []string{`"value":100`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := tt.upgrader.Upgrade([]byte(tt.input))
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, string(output), want)
			}
			for _, absent := range tt.notContains {
				assert.NotContains(t, string(output), absent)
			}
		})
	}
}

func TestEventMigrator_MigratePayloads(t *testing.T) {
	serializer := newEntrySerializer(t, 2)
	migrator := NewEventMigrator(serializer, zap.NewNop())

	payloads := [][]byte{
		[]byte(`{"schema_version": 1, "reference": "dues 2026-07"}`),
		[]byte(`{"schema_version": 1, "reference": "dues 2026-08"}`),
		[]byte(`{"schema_version": 2, "reference": "dues 2026-09", "period": "2026-09"}`),
	}

	result, err := migrator.MigratePayloads(context.Background(), "LedgerEntryPosted", payloads)

	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalProcessed)
	assert.Equal(t, 2, result.Upgraded)
	assert.Equal(t, 1, result.AlreadyCurrent)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 2, result.ToVersion)
}

func TestEventMigrator_MigratePayloads_WithCancellation(t *testing.T) {
	serializer := NewVersionedSerializer(zap.NewNop())
	serializer.Register("LedgerEntryPosted", &EntryPostedV1{})
	migrator := NewEventMigrator(serializer, zap.NewNop())

	payloads := make([][]byte, 100)
	for i := range payloads {
		payloads[i] = []byte(`{"schema_version": 1, "reference": "dues"}`)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := migrator.MigratePayloads(ctx, "LedgerEntryPosted", payloads)

	assert.Error(t, err)
	assert.Less(t, result.TotalProcessed, 100)
}

func TestEventMigrator_AnalyzePayloads(t *testing.T) {
	serializer := newEntrySerializer(t, 3)
	migrator := NewEventMigrator(serializer, zap.NewNop())

	payloads := [][]byte{
		[]byte(`{"schema_version": 1}`),
		[]byte(`{"schema_version": 1}`),
		[]byte(`{"schema_version": 2}`),
		[]byte(`{"schema_version": 3}`),
	}

	analysis, err := migrator.AnalyzePayloads("LedgerEntryPosted", payloads)

	require.NoError(t, err)
	assert.Equal(t, "LedgerEntryPosted", analysis.EventType)
	assert.Equal(t, 3, analysis.CurrentVersion)
	assert.Equal(t, 4, analysis.TotalEvents)
	assert.Equal(t, 3, analysis.NeedsMigration)
	assert.Equal(t, 1, analysis.UpToDate)
	assert.Equal(t, 1, analysis.OldestVersion)
	assert.Equal(t, 3, analysis.NewestVersion)
	assert.Equal(t, map[int]int{1: 2, 2: 1, 3: 1}, analysis.VersionCounts)
}

func TestEventMigrator_ValidateUpgradeChain(t *testing.T) {
	serializer := newEntrySerializer(t, 3)
	migrator := NewEventMigrator(serializer, zap.NewNop())

	assert.NoError(t, migrator.ValidateUpgradeChain("LedgerEntryPosted"))
	assert.Error(t, migrator.ValidateUpgradeChain("UnknownEvent"))
}

func TestEventMigrator_CreateMigrationPlan(t *testing.T) {
	serializer := newEntrySerializer(t, 3)
	migrator := NewEventMigrator(serializer, zap.NewNop())

	plan, err := migrator.CreateMigrationPlan("LedgerEntryPosted", 1)
	require.NoError(t, err)
	assert.Equal(t, "LedgerEntryPosted", plan.EventType)
	assert.Equal(t, 1, plan.FromVersion)
	assert.Equal(t, 3, plan.ToVersion)
	assert.Len(t, plan.UpgradeSteps, 2)
	assert.True(t, plan.IsValid())

	plan, err = migrator.CreateMigrationPlan("LedgerEntryPosted", 3)
	require.NoError(t, err)
	assert.Empty(t, plan.UpgradeSteps)
}

func TestMigrationStats(t *testing.T) {
	stats := NewMigrationStats()

	stats.RecordMigration("LedgerEntryPosted", 1, 2, 10.5, true)
	stats.RecordMigration("LedgerEntryPosted", 1, 2, 5.5, true)
	stats.RecordMigration("LedgerEntryPosted", 2, 3, 3.0, true)
	stats.RecordMigration("LedgerEntryPosted", 1, 2, 0, false)

	eventStats, ok := stats.GetStats("LedgerEntryPosted")
	require.True(t, ok)
	assert.Equal(t, "LedgerEntryPosted", eventStats.EventType)
	assert.Equal(t, int64(3), eventStats.TotalMigrated)
	assert.Equal(t, int64(1), eventStats.TotalFailed)
	assert.Greater(t, eventStats.AverageDurationMs, float64(0))
	assert.Equal(t, int64(3), eventStats.MigrationsByVersion["v1->v2"])
	assert.Equal(t, int64(1), eventStats.MigrationsByVersion["v2->v3"])

	_, ok = stats.GetStats("UnknownEvent")
	assert.False(t, ok)
}

func TestMigrationResult_Duration(t *testing.T) {
	result := &MigrationResult{
		StartedAt:   time.Now().Add(-5 * time.Second),
		CompletedAt: time.Now(),
	}

	duration := result.Duration()
	assert.GreaterOrEqual(t, duration, 4*time.Second)
	assert.LessOrEqual(t, duration, 6*time.Second)
}

func TestCopyPayload(t *testing.T) {
	original := []byte(`{"key": "value", "nested": {"a": 1}}`)

	copied, err := CopyPayload(original)
	require.NoError(t, err)
	assert.Contains(t, string(copied), `"key":"value"`)
	assert.Contains(t, string(copied), `"nested"`)

	original[0] = 'X'
	assert.NotEqual(t, original[0], copied[0], "copy must not alias the original")
}

func TestBaseDomainEvent_SchemaVersion(t *testing.T) {
	base := shared.NewBaseDomainEvent("PaymentRecorded", "Payment", uuid.New(), uuid.New())
	assert.Equal(t, 1, base.SchemaVersion())

	base = shared.NewVersionedBaseDomainEvent("PaymentRecorded", "Payment", uuid.New(), uuid.New(), 3)
	assert.Equal(t, 3, base.SchemaVersion())

	// zero and negative versions normalize to 1
	for _, v := range []int{0, -5} {
		base = shared.NewVersionedBaseDomainEvent("PaymentRecorded", "Payment", uuid.New(), uuid.New(), v)
		assert.Equal(t, 1, base.SchemaVersion())
	}
	base = shared.BaseDomainEvent{Version: 0}
	assert.Equal(t, 1, base.SchemaVersion())
}

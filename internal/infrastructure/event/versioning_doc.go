package event

/*
Event Schema Versioning
=======================

Ledger events outlive the code that wrote them: posted-entry and payment
events sit in the outbox table and the audit log, and reconciliation
replays them long after the structs have evolved. The versioning layer
lets readers accept any historical payload while writers only ever emit
the current shape.

How a payload moves through the system
--------------------------------------

1. Every event embeds shared.BaseDomainEvent, which serializes a
   schema_version field. Payloads without the field predate versioning
   and count as version 1.
2. An EventUpgrader rewrites a payload from version N to N+1. Upgraders
   are registered as a chain; the VersionRegistry refuses gaps and
   non-sequential steps at registration time, not at read time.
3. VersionedSerializer.Deserialize sniffs the payload's version, walks
   it up the chain, and unmarshals into the current struct. Handlers
   never see an old shape.

Evolving a ledger event
-----------------------

Say EntryPostedEvent gains a billing period in v2:

	type EntryPostedEventV2 struct {
	    shared.BaseDomainEvent
	    EntryID uuid.UUID `json:"entry_id"`
	    UnitID  uuid.UUID `json:"unit_id"`
	    Period  string    `json:"period"`
	}

	v1ToV2 := NewBaseEventUpgrader(1, 2, func(data map[string]any) (map[string]any, error) {
	    data["period"] = ""
	    return data, nil
	})

	err := serializer.RegisterVersioned(
	    ledger.EventTypeEntryPosted,
	    2,
	    map[int]shared.DomainEvent{
	        1: &ledger.EntryPostedEvent{},
	        2: &ledger.EntryPostedEventV2{},
	    },
	    v1ToV2,
	)

For mechanical changes, CommonUpgraders covers the usual moves without a
hand-written transform: AddField, RemoveField, RenameField,
TransformField (e.g. major units to minor units), WrapInObject,
UnwrapFromObject.

Rules that keep the chain sound
-------------------------------

  - One upgrader per version step, deterministic, tolerant of missing
    fields.
  - Bump the version for any rename, removal, type change, or new
    required field. Additive optional fields with defaults may ride on
    the current version.
  - Event type names are routing keys; they never change. A renamed
    concept is a new event type.
  - Ship the upgrader before any producer emits the new version, then
    batch-migrate stored payloads.

Batch migration of stored payloads
----------------------------------

EventMigrator (migration.go) upgrades outbox and audit rows in place:

	migrator := NewEventMigrator(serializer, logger)
	analysis, _ := migrator.AnalyzePayloads(eventType, payloads)   // version census
	result, _ := migrator.MigratePayloads(ctx, eventType, payloads)

AnalyzePayloads reports the version distribution and how many rows need
work; MigratePayloads honors context cancellation and reports upgraded,
already-current, and failed counts. MigrationStats aggregates per-type
counts and durations for monitoring a rollout.

Failure behavior
----------------

Unknown event types and upgrader gaps surface as errors with the exact
version step named. A failed upgrade leaves the original payload
untouched. Unparseable JSON is treated as version 1, which matches the
oldest payloads in production.
*/

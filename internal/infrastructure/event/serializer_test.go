package event

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata/backend/internal/domain/shared"
)

// paymentWireEvent mirrors the shape of a payment event on the wire so
// round trips exercise both the embedded envelope and custom fields.
type paymentWireEvent struct {
	shared.BaseDomainEvent
	EntryNumber string `json:"entry_number"`
	AmountMinor int64  `json:"amount_minor"`
}

func newPaymentWireEvent() *paymentWireEvent {
	return &paymentWireEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("ledger.payment.recorded", "LedgerEntry", uuid.New(), uuid.New()),
		EntryNumber:     "PAY-2026-000017",
		AmountMinor:     2500,
	}
}

func newWireSerializer() *EventSerializer {
	s := NewEventSerializer()
	s.Register("ledger.payment.recorded", &paymentWireEvent{})
	return s
}

func TestEventSerializer_Register(t *testing.T) {
	serializer := newWireSerializer()

	assert.True(t, serializer.IsRegistered("ledger.payment.recorded"))
	assert.False(t, serializer.IsRegistered("ledger.entry.voided"))
}

func TestEventSerializer_RegisteredTypes(t *testing.T) {
	serializer := newWireSerializer()
	serializer.Register("ledger.entry.posted", &paymentWireEvent{})

	types := serializer.RegisteredTypes()
	assert.Len(t, types, 2)
	assert.Contains(t, types, "ledger.payment.recorded")
	assert.Contains(t, types, "ledger.entry.posted")
}

func TestEventSerializer_Serialize(t *testing.T) {
	data, err := newWireSerializer().Serialize(newPaymentWireEvent())

	require.NoError(t, err)
	assert.Contains(t, string(data), `"entry_number":"PAY-2026-000017"`)
	assert.Contains(t, string(data), `"amount_minor":2500`)
}

func TestEventSerializer_Deserialize(t *testing.T) {
	serializer := newWireSerializer()
	original := newPaymentWireEvent()

	data, err := serializer.Serialize(original)
	require.NoError(t, err)

	deserialized, err := serializer.Deserialize("ledger.payment.recorded", data)
	require.NoError(t, err)

	event, ok := deserialized.(*paymentWireEvent)
	require.True(t, ok)
	assert.Equal(t, original.EventType(), event.EventType())
	assert.Equal(t, original.EntryNumber, event.EntryNumber)
	assert.Equal(t, original.AmountMinor, event.AmountMinor)
}

func TestEventSerializer_Deserialize_UnknownType(t *testing.T) {
	_, err := NewEventSerializer().Deserialize("ledger.entry.voided", []byte(`{}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestEventSerializer_Deserialize_InvalidJSON(t *testing.T) {
	_, err := newWireSerializer().Deserialize("ledger.payment.recorded", []byte(`not json`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal")
}

func TestEventSerializer_RoundTrip_PreservesEnvelope(t *testing.T) {
	serializer := newWireSerializer()

	original := &paymentWireEvent{
		BaseDomainEvent: shared.BaseDomainEvent{
			ID:            uuid.New(),
			Type:          "ledger.payment.recorded",
			Timestamp:     time.Now().Truncate(time.Second),
			AggID:         uuid.New(),
			AggType:       "LedgerEntry",
			TenantIDValue: uuid.New(),
		},
		EntryNumber: "PAY-2026-000042",
		AmountMinor: 120000,
	}

	data, err := serializer.Serialize(original)
	require.NoError(t, err)

	deserialized, err := serializer.Deserialize("ledger.payment.recorded", data)
	require.NoError(t, err)

	event := deserialized.(*paymentWireEvent)
	assert.Equal(t, original.EventID(), event.EventID())
	assert.Equal(t, original.AggregateID(), event.AggregateID())
	assert.Equal(t, original.AggregateType(), event.AggregateType())
	assert.Equal(t, original.TenantID(), event.TenantID())
	assert.Equal(t, original.EntryNumber, event.EntryNumber)
	assert.Equal(t, original.AmountMinor, event.AmountMinor)
}

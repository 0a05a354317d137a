package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "schemabridge/contexts/replication/event-processor/domain/errors"
	"schemabridge/internal/shared/events"
)

const invoiceMessage = `{
	"event_id": "7",
	"aggregate_id": "414",
	"aggregate_type": "Invoice",
	"event_type": "Created",
	"payload": "{\"InvoiceId\":414,\"CustomerId\":\"60\",\"TotalAmount\":12.5}",
	"unique_identifier": "6f1c2a8e-1b1f-4a44-9a57-1f1f3b0d8c11",
	"created_at": "2024-03-01T10:00:00Z",
	"__op": "c",
	"__table": "invoice_outbox"
}`

func TestDecodeChangeEnvelope(t *testing.T) {
	result, err := Decode([]byte(invoiceMessage), events.OldToNew, "")
	require.NoError(t, err)
	require.False(t, result.Ignored)

	env := result.Envelope
	assert.Equal(t, "414", env.AggregateID)
	assert.Equal(t, events.AggregateInvoice, env.AggregateType)
	assert.Equal(t, events.EventCreated, env.EventType)
	assert.Equal(t, events.OldToNew, env.Direction)
	assert.Equal(t, "invoice_outbox", env.Table)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), env.CreatedAt)
	assert.JSONEq(t, `{"InvoiceId":414,"CustomerId":"60","TotalAmount":12.5}`, string(env.Payload))
}

func TestDecodeToleratesLooseProducers(t *testing.T) {
	raw := `{"aggregate_id": 60, "aggregate_type": "CUSTOMER", "event_type": "u",
		"payload": {"CustomerId": 60}, "unique_identifier": "u-1", "created_at": 1709287200000000}`

	result, err := Decode([]byte(raw), events.OldToNew, "customer_outbox")
	require.NoError(t, err)
	assert.Equal(t, "60", result.Envelope.AggregateID)
	assert.Equal(t, events.EventUpdated, result.Envelope.EventType)
	assert.Equal(t, "customer_outbox", result.Envelope.Table)
	assert.Equal(t, int64(1709287200), result.Envelope.CreatedAt.Unix())
}

func TestDecodeSnapshotEnvelopesAreIgnored(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":      ``,
		"tombstone":  `null`,
		"ddl":        `{"__ddl": "CREATE TABLE customer_outbox (...)"}`,
		"no payload": `{"__snapshot": "true", "__table": "customer_outbox"}`,
	} {
		t.Run(name, func(t *testing.T) {
			result, err := Decode([]byte(raw), events.OldToNew, "")
			require.NoError(t, err)
			assert.True(t, result.Ignored)
		})
	}
}

func TestDecodeMalformedEnvelopes(t *testing.T) {
	for name, raw := range map[string]string{
		"garbage":        `{not json`,
		"unknown type":   `{"aggregate_id":"1","aggregate_type":"Order","event_type":"Created","payload":"{}","unique_identifier":"x"}`,
		"unknown event":  `{"aggregate_id":"1","aggregate_type":"Customer","event_type":"Merged","payload":"{}","unique_identifier":"x"}`,
		"no identifier":  `{"aggregate_id":"1","aggregate_type":"Customer","event_type":"Created","payload":"{}"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw), events.OldToNew, "")
			assert.ErrorIs(t, err, domainerrors.ErrParse)
		})
	}
}

func TestExtractorsReturnEmptyOnGarbage(t *testing.T) {
	assert.Equal(t, "Invoice", ExtractAggregateType([]byte(invoiceMessage)))
	assert.Equal(t, "414", ExtractAggregateID([]byte(invoiceMessage)))
	assert.Equal(t, "Created", ExtractEventType([]byte(invoiceMessage)))

	assert.Empty(t, ExtractAggregateType([]byte(`{oops`)))
	assert.Empty(t, ExtractAggregateID(nil))
	assert.Empty(t, ExtractEventType([]byte(`[]`)))
}

func TestExtractDependencyID(t *testing.T) {
	assert.Equal(t, "60", ExtractDependencyID([]byte(invoiceMessage), "CustomerId"))
	assert.Equal(t, "60", ExtractDependencyID([]byte(invoiceMessage), "customerid"))
	assert.Empty(t, ExtractDependencyID([]byte(invoiceMessage), "AddressId"))
	assert.Empty(t, ExtractDependencyID([]byte(`garbage`), "CustomerId"))
}

func TestExtractFieldFallsBackToOwnIdentity(t *testing.T) {
	env := events.ChangeEnvelope{
		AggregateID:   "60",
		AggregateType: events.AggregateCustomer,
		Payload:       []byte(`{"FirstName":"Ada"}`),
	}
	assert.Equal(t, "60", ExtractField(env, "CustomerId"))
	assert.Empty(t, ExtractField(env, "AddressId"))

	env.Payload = []byte(`not a document`)
	assert.Equal(t, "60", ExtractField(env, "CustomerId"))
	assert.Empty(t, ExtractField(env, "InvoiceId"))
}

func TestEncodeEmbedsPayloadAsString(t *testing.T) {
	env := events.ChangeEnvelope{
		EventID:          "1",
		AggregateID:      "60",
		AggregateType:    events.AggregateCustomer,
		EventType:        events.EventDeleted,
		Payload:          []byte(`{"CustomerId":60}`),
		UniqueIdentifier: "u-9",
		CreatedAt:        time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Table:            "customer_outbox",
	}
	raw, err := Encode(env)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"payload":"{\"CustomerId\":60}"`)
	assert.Contains(t, string(raw), `"__op":"d"`)

	decoded, err := Decode(raw, events.NewToOld, "")
	require.NoError(t, err)
	assert.Equal(t, env.UniqueIdentifier, decoded.Envelope.UniqueIdentifier)
	assert.Equal(t, env.CreatedAt, decoded.Envelope.CreatedAt)
}

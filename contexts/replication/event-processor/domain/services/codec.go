package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	domainerrors "schemabridge/contexts/replication/event-processor/domain/errors"
	contractsv1 "schemabridge/contracts/gen/events/v1"
	"schemabridge/internal/shared/events"
)

// DecodeResult is either a change envelope or an ignorable snapshot/tombstone.
type DecodeResult struct {
	Envelope events.ChangeEnvelope
	Ignored  bool
}

// wireEnvelope shadows the contract fields that connectors are loose about:
// aggregate_id and created_at may arrive as numbers and payload as a nested
// object.
type wireEnvelope struct {
	contractsv1.ChangeEnvelope
	AggregateID json.RawMessage `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   json.RawMessage `json:"created_at"`
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Decode parses one raw broker message. Snapshot and schema-change messages
// decode to an ignorable result; only envelopes that claim to be business
// changes but cannot be read fail with ErrParse.
func Decode(raw []byte, direction events.Direction, table string) (DecodeResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return DecodeResult{Ignored: true}, nil
	}

	var wire wireEnvelope
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return DecodeResult{}, fmt.Errorf("%w: %v", domainerrors.ErrParse, err)
	}

	aggregateID := rawString(wire.AggregateID)
	payload := embeddedDocument(wire.Payload)
	if aggregateID == "" && len(payload) == 0 {
		return DecodeResult{Ignored: true}, nil
	}

	aggregateType, ok := events.ParseAggregateType(wire.AggregateType)
	if !ok {
		return DecodeResult{}, fmt.Errorf("%w: unknown aggregate_type %q", domainerrors.ErrParse, wire.AggregateType)
	}
	eventType, ok := events.ParseEventType(wire.EventType)
	if !ok {
		return DecodeResult{}, fmt.Errorf("%w: unknown event_type %q", domainerrors.ErrParse, wire.EventType)
	}
	if strings.TrimSpace(wire.UniqueIdentifier) == "" {
		return DecodeResult{}, fmt.Errorf("%w: missing unique_identifier", domainerrors.ErrParse)
	}
	if table == "" {
		table = wire.Table
	}

	return DecodeResult{
		Envelope: events.ChangeEnvelope{
			EventID:          wire.EventID,
			AggregateID:      aggregateID,
			AggregateType:    aggregateType,
			EventType:        eventType,
			Payload:          payload,
			UniqueIdentifier: strings.TrimSpace(wire.UniqueIdentifier),
			CreatedAt:        parseCreatedAt(rawString(wire.CreatedAt)),
			Direction:        direction,
			Table:            table,
		},
	}, nil
}

// Encode renders an envelope in wire form, embedding the payload as a string.
func Encode(envelope events.ChangeEnvelope) ([]byte, error) {
	wire := contractsv1.ChangeEnvelope{
		EventID:          envelope.EventID,
		AggregateID:      envelope.AggregateID,
		AggregateType:    string(envelope.AggregateType),
		EventType:        string(envelope.EventType),
		Payload:          string(envelope.Payload),
		UniqueIdentifier: envelope.UniqueIdentifier,
		Table:            envelope.Table,
		Op:               envelope.EventType.OperationLetter(),
	}
	if !envelope.CreatedAt.IsZero() {
		wire.CreatedAt = envelope.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(wire)
}

// ExtractAggregateType reads aggregate_type from a raw message, "" on any failure.
func ExtractAggregateType(raw []byte) string {
	return extractOuter(raw, "aggregate_type")
}

// ExtractAggregateID reads aggregate_id from a raw message, "" on any failure.
func ExtractAggregateID(raw []byte) string {
	return extractOuter(raw, "aggregate_id")
}

// ExtractEventType reads event_type from a raw message, "" on any failure.
func ExtractEventType(raw []byte) string {
	return extractOuter(raw, "event_type")
}

// ExtractField reads a field from the envelope's embedded document. When the
// field is missing and it is the aggregate's own identity field, the outer
// aggregate id is returned; any other missing field yields "".
func ExtractField(envelope events.ChangeEnvelope, field string) string {
	if value := documentField(envelope.Payload, field); value != "" {
		return value
	}
	if strings.EqualFold(field, envelope.AggregateType.IdentityField()) {
		return strings.TrimSpace(envelope.AggregateID)
	}
	return ""
}

// ExtractDependencyID reads a dependency id out of a raw wire message.
func ExtractDependencyID(raw []byte, field string) string {
	result, err := Decode(raw, "", "")
	if err != nil || result.Ignored {
		return ""
	}
	return ExtractField(result.Envelope, field)
}

func extractOuter(raw []byte, key string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(raw), &fields); err != nil {
		return ""
	}
	return rawString(fields[key])
}

func documentField(document []byte, field string) string {
	if len(document) == 0 || field == "" {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(document, &fields); err != nil {
		return ""
	}
	if value, ok := fields[field]; ok {
		return rawString(value)
	}
	for key, value := range fields {
		if strings.EqualFold(key, field) {
			return rawString(value)
		}
	}
	return ""
}

// embeddedDocument unwraps a payload carried either as a JSON string holding
// a document or, from looser producers, as the document itself.
func embeddedDocument(raw json.RawMessage) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			return nil
		}
		return []byte(inner)
	}
	return append([]byte(nil), trimmed...)
}

// rawString renders a scalar JSON value as text. Objects, arrays and null
// yield "".
func rawString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return ""
		}
		return strings.TrimSpace(value)
	case '{', '[', 'n':
		return ""
	case 't', 'f':
		return string(trimmed)
	default:
		var number json.Number
		if err := json.Unmarshal(trimmed, &number); err != nil {
			return ""
		}
		return number.String()
	}
}

func parseCreatedAt(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range createdAtLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC()
		}
	}
	// Connectors configured with time.precision.mode=connect emit epoch micros.
	if micros, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMicro(micros).UTC()
	}
	return time.Time{}
}

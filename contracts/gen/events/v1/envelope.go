package v1

// ChangeEnvelope is the canonical wire shape of one captured row change as it
// leaves an outbox table through the CDC connector.
// This package is contract-only and must stay backward compatible.
//
// Payload is a JSON-encoded string, not a nested object: the connector
// re-serializes the inner row before publishing.
type ChangeEnvelope struct {
	EventID          string `json:"event_id"`
	AggregateID      string `json:"aggregate_id"`
	AggregateType    string `json:"aggregate_type"`
	EventType        string `json:"event_type"`
	Payload          string `json:"payload"`
	UniqueIdentifier string `json:"unique_identifier"`
	CreatedAt        string `json:"created_at"`

	// Connector-owned fields. Informational only.
	Op          string `json:"__op,omitempty"`
	Table       string `json:"__table,omitempty"`
	SourceTsMs  int64  `json:"__source_ts_ms,omitempty"`
	Deleted     string `json:"__deleted,omitempty"`
	SchemaDDL   string `json:"__ddl,omitempty"`
	SnapshotTag string `json:"__snapshot,omitempty"`
}

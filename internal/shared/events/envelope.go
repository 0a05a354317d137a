package events

import (
	"strings"
	"time"
)

// AggregateType names the business entity an envelope concerns.
type AggregateType string

const (
	AggregateCustomer    AggregateType = "CUSTOMER"
	AggregateInvoice     AggregateType = "INVOICE"
	AggregateInvoiceLine AggregateType = "INVOICE_LINE"
	AggregateAddress     AggregateType = "ADDRESS"
)

// AllAggregateTypes lists every replicated aggregate in dependency order.
func AllAggregateTypes() []AggregateType {
	return []AggregateType{
		AggregateAddress,
		AggregateCustomer,
		AggregateInvoice,
		AggregateInvoiceLine,
	}
}

// ParseAggregateType accepts the spellings emitted by both outbox triggers
// ("Customer", "CUSTOMER", "invoice_line", "InvoiceLine").
func ParseAggregateType(raw string) (AggregateType, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("_", "", "-", "", " ", "").Replace(normalized)
	switch normalized {
	case "CUSTOMER":
		return AggregateCustomer, true
	case "INVOICE":
		return AggregateInvoice, true
	case "INVOICELINE":
		return AggregateInvoiceLine, true
	case "ADDRESS":
		return AggregateAddress, true
	default:
		return "", false
	}
}

// IdentityField is the payload field carrying the aggregate's own key.
func (t AggregateType) IdentityField() string {
	switch t {
	case AggregateCustomer:
		return "CustomerId"
	case AggregateInvoice:
		return "InvoiceId"
	case AggregateInvoiceLine:
		return "InvoiceLineId"
	case AggregateAddress:
		return "AddressId"
	default:
		return ""
	}
}

type EventType string

const (
	EventCreated EventType = "Created"
	EventUpdated EventType = "Updated"
	EventDeleted EventType = "Deleted"
)

func ParseEventType(raw string) (EventType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "created", "create", "insert", "c":
		return EventCreated, true
	case "updated", "update", "u":
		return EventUpdated, true
	case "deleted", "delete", "d":
		return EventDeleted, true
	default:
		return "", false
	}
}

// OperationLetter is the single-letter operation code used in dispatch keys.
func (e EventType) OperationLetter() string {
	switch e {
	case EventCreated:
		return "c"
	case EventUpdated:
		return "u"
	case EventDeleted:
		return "d"
	default:
		return ""
	}
}

// Direction is the flow an envelope travels: which schema produced it.
type Direction string

const (
	OldToNew Direction = "old_to_new"
	NewToOld Direction = "new_to_old"
)

func (d Direction) Valid() bool {
	return d == OldToNew || d == NewToOld
}

// ChangeEnvelope is one decoded change captured from an outbox table.
// Payload holds the inner row document exactly as it was embedded.
type ChangeEnvelope struct {
	EventID          string
	AggregateID      string
	AggregateType    AggregateType
	EventType        EventType
	Payload          []byte
	UniqueIdentifier string
	CreatedAt        time.Time
	Direction        Direction
	// Table is the outbox table the envelope was captured from.
	Table string
}

// DependencyKey renders the cache key for a dependency fact, e.g. "CUSTOMER:60".
func DependencyKey(aggregate AggregateType, id string) string {
	return string(aggregate) + ":" + strings.TrimSpace(id)
}

// Key is the dependency key identifying the aggregate this envelope changes.
func (e ChangeEnvelope) Key() string {
	return DependencyKey(e.AggregateType, e.AggregateID)
}

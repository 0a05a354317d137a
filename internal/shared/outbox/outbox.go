package outbox

import (
	"strings"

	"schemabridge/internal/shared/events"
)

// Table is the name of a source-side outbox table populated by row triggers.
// The CDC connector publishes each table to its own topic.
type Table string

const (
	CustomerTable    Table = "customer_outbox"
	InvoiceTable     Table = "invoice_outbox"
	InvoiceLineTable Table = "invoice_line_outbox"
	AddressTable     Table = "address_outbox"
)

// TableFromTopic extracts the table from a "<server>.<schema>.<table>" topic.
func TableFromTopic(topic string) Table {
	topic = strings.TrimSpace(topic)
	if idx := strings.LastIndex(topic, "."); idx >= 0 {
		topic = topic[idx+1:]
	}
	return Table(strings.ToLower(topic))
}

// TableFor returns the outbox table that carries changes of an aggregate.
func TableFor(aggregate events.AggregateType) Table {
	switch aggregate {
	case events.AggregateCustomer:
		return CustomerTable
	case events.AggregateInvoice:
		return InvoiceTable
	case events.AggregateInvoiceLine:
		return InvoiceLineTable
	case events.AggregateAddress:
		return AddressTable
	default:
		return ""
	}
}

// Tables lists the outbox tables each side exposes. The legacy schema keeps
// addresses denormalized on the customer row, so it has no address outbox.
func Tables(direction events.Direction) []Table {
	tables := []Table{CustomerTable, InvoiceTable, InvoiceLineTable}
	if direction == events.NewToOld {
		tables = append(tables, AddressTable)
	}
	return tables
}

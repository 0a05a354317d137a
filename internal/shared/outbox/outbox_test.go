package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"schemabridge/internal/shared/events"
)

func TestTableFromTopic(t *testing.T) {
	assert.Equal(t, CustomerTable, TableFromTopic("legacy.public.customer_outbox"))
	assert.Equal(t, InvoiceLineTable, TableFromTopic(" modern.public.Invoice_Line_Outbox "))
	assert.Equal(t, AddressTable, TableFromTopic("address_outbox"))
	assert.Equal(t, Table(""), TableFromTopic(""))
}

func TestTableFor(t *testing.T) {
	for _, aggregate := range events.AllAggregateTypes() {
		assert.NotEmpty(t, TableFor(aggregate), aggregate)
	}
	assert.Equal(t, Table(""), TableFor("ORDER"))
}

func TestLegacySideHasNoAddressOutbox(t *testing.T) {
	assert.NotContains(t, Tables(events.OldToNew), AddressTable)
	assert.Contains(t, Tables(events.NewToOld), AddressTable)
	assert.Len(t, Tables(events.NewToOld), 4)
}

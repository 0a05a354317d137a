package postgresadapter

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemabridge/contexts/replication/entity-sync/domain/entities"
	"schemabridge/internal/shared/events"
)

func TestMappingTablePerAggregate(t *testing.T) {
	for aggregate, want := range map[events.AggregateType]string{
		events.AggregateCustomer:    "customer_mappings",
		events.AggregateInvoice:     "invoice_mappings",
		events.AggregateInvoiceLine: "invoice_line_mappings",
	} {
		table, ok := mappingTable(aggregate)
		require.True(t, ok)
		assert.Equal(t, want, table)
	}
	_, ok := mappingTable(events.AggregateAddress)
	assert.False(t, ok)
}

func TestAddressMappingRowIsNormalized(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	id := uuid.New()
	row := addressMappingFromEntity(entities.AddressMapping{
		Key:   entities.AddressKey{Street: " 1 Main ", City: "Oslo "},
		NewID: id,
	}, at)

	assert.Equal(t, "1 Main", row.Street)
	assert.Equal(t, "Oslo", row.City)
	assert.Equal(t, at, row.MappingTimestamp)
	assert.Equal(t, entities.AddressKey{Street: "1 Main", City: "Oslo"}, row.toEntity().Key)
}

func TestAddressContentIndexAllowsAliases(t *testing.T) {
	model := reflect.TypeOf(addressMappingModel{})
	for _, name := range []string{"Street", "City", "State", "Country", "PostalCode"} {
		field, ok := model.FieldByName(name)
		require.True(t, ok, name)
		tag := field.Tag.Get("gorm")
		assert.Contains(t, tag, "index:idx_address_mappings_content", name)
		assert.False(t, strings.Contains(tag, "uniqueIndex"), name)
	}
	id, _ := model.FieldByName("NewID")
	assert.Contains(t, id.Tag.Get("gorm"), "primaryKey")
}

func TestCustomerRowLeavesBlankAddressNull(t *testing.T) {
	row := customerModelFromEntity(entities.Customer{CustomerID: uuid.New(), FirstName: "Ada"})
	assert.Nil(t, row.AddressID)

	addressID := uuid.New()
	row = customerModelFromEntity(entities.Customer{CustomerID: uuid.New(), AddressID: addressID})
	require.NotNil(t, row.AddressID)
	assert.Equal(t, addressID, *row.AddressID)
}

func TestInvoiceRowLeavesZeroDateNull(t *testing.T) {
	row := invoiceModelFromEntity(entities.Invoice{InvoiceID: uuid.New()})
	assert.Nil(t, row.InvoiceDate)

	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	row = invoiceModelFromEntity(entities.Invoice{InvoiceID: uuid.New(), InvoiceDate: date})
	require.NotNil(t, row.InvoiceDate)
	assert.Equal(t, date, *row.InvoiceDate)
}

package postgresadapter

import (
	"time"

	"github.com/google/uuid"

	"schemabridge/contexts/replication/entity-sync/domain/entities"
	"schemabridge/internal/shared/events"
)

// mappingColumns is the shape shared by the three per-aggregate mapping
// tables. Reads and writes address the table by name.
type mappingColumns struct {
	OldID            int64     `gorm:"column:old_id;primaryKey;autoIncrement:false"`
	NewID            uuid.UUID `gorm:"column:new_id;type:uuid;not null;uniqueIndex"`
	MappingTimestamp time.Time `gorm:"column:mapping_timestamp;not null"`
}

func (m mappingColumns) toEntity(aggregate events.AggregateType) entities.EntityMapping {
	return entities.EntityMapping{
		AggregateType:    aggregate,
		OldID:            m.OldID,
		NewID:            m.NewID,
		MappingTimestamp: m.MappingTimestamp.UTC(),
	}
}

type customerMappingModel struct{ mappingColumns }

func (customerMappingModel) TableName() string { return "customer_mappings" }

type invoiceMappingModel struct{ mappingColumns }

func (invoiceMappingModel) TableName() string { return "invoice_mappings" }

type invoiceLineMappingModel struct{ mappingColumns }

func (invoiceLineMappingModel) TableName() string { return "invoice_line_mappings" }

func mappingTable(aggregate events.AggregateType) (string, bool) {
	switch aggregate {
	case events.AggregateCustomer:
		return customerMappingModel{}.TableName(), true
	case events.AggregateInvoice:
		return invoiceMappingModel{}.TableName(), true
	case events.AggregateInvoiceLine:
		return invoiceLineMappingModel{}.TableName(), true
	default:
		return "", false
	}
}

type addressMappingModel struct {
	NewID            uuid.UUID `gorm:"column:new_id;type:uuid;primaryKey"`
	Street           string    `gorm:"column:street;not null;index:idx_address_mappings_content,priority:1"`
	City             string    `gorm:"column:city;not null;index:idx_address_mappings_content,priority:2"`
	State            string    `gorm:"column:state;not null;index:idx_address_mappings_content,priority:3"`
	Country          string    `gorm:"column:country;not null;index:idx_address_mappings_content,priority:4"`
	PostalCode       string    `gorm:"column:postal_code;not null;index:idx_address_mappings_content,priority:5"`
	MappingTimestamp time.Time `gorm:"column:mapping_timestamp;not null"`
}

func (addressMappingModel) TableName() string { return "address_mappings" }

func addressMappingFromEntity(mapping entities.AddressMapping, at time.Time) addressMappingModel {
	key := mapping.Key.Normalize()
	stamp := mapping.MappingTimestamp
	if stamp.IsZero() {
		stamp = at
	}
	return addressMappingModel{
		NewID:            mapping.NewID,
		Street:           key.Street,
		City:             key.City,
		State:            key.State,
		Country:          key.Country,
		PostalCode:       key.PostalCode,
		MappingTimestamp: stamp.UTC(),
	}
}

func (m addressMappingModel) toEntity() entities.AddressMapping {
	return entities.AddressMapping{
		Key: entities.AddressKey{
			Street:     m.Street,
			City:       m.City,
			State:      m.State,
			Country:    m.Country,
			PostalCode: m.PostalCode,
		},
		NewID:            m.NewID,
		MappingTimestamp: m.MappingTimestamp.UTC(),
	}
}

type processedModel struct {
	UniqueIdentifier string    `gorm:"column:unique_identifier;primaryKey"`
	ProcessedAt      time.Time `gorm:"column:processed_at;not null"`
}

func (processedModel) TableName() string { return "processed_identifiers" }

// Business tables of the redesigned schema. Their DDL is owned by the
// application that uses the schema.

type addressModel struct {
	AddressID  uuid.UUID `gorm:"column:address_id;type:uuid;primaryKey"`
	Street     string    `gorm:"column:street"`
	City       string    `gorm:"column:city"`
	State      string    `gorm:"column:state"`
	Country    string    `gorm:"column:country"`
	PostalCode string    `gorm:"column:postal_code"`
}

func (addressModel) TableName() string { return "addresses" }

type customerModel struct {
	CustomerID uuid.UUID  `gorm:"column:customer_id;type:uuid;primaryKey"`
	FirstName  string     `gorm:"column:first_name"`
	LastName   string     `gorm:"column:last_name"`
	Email      string     `gorm:"column:email"`
	Phone      string     `gorm:"column:phone"`
	AddressID  *uuid.UUID `gorm:"column:address_id;type:uuid"`
}

func (customerModel) TableName() string { return "customers" }

func customerModelFromEntity(customer entities.Customer) customerModel {
	row := customerModel{
		CustomerID: customer.CustomerID,
		FirstName:  customer.FirstName,
		LastName:   customer.LastName,
		Email:      customer.Email,
		Phone:      customer.Phone,
	}
	if customer.AddressID != uuid.Nil {
		addressID := customer.AddressID
		row.AddressID = &addressID
	}
	return row
}

type invoiceModel struct {
	InvoiceID   uuid.UUID  `gorm:"column:invoice_id;type:uuid;primaryKey"`
	CustomerID  uuid.UUID  `gorm:"column:customer_id;type:uuid"`
	InvoiceDate *time.Time `gorm:"column:invoice_date"`
	TotalAmount float64    `gorm:"column:total_amount"`
	Status      string     `gorm:"column:status"`
}

func (invoiceModel) TableName() string { return "invoices" }

func invoiceModelFromEntity(invoice entities.Invoice) invoiceModel {
	row := invoiceModel{
		InvoiceID:   invoice.InvoiceID,
		CustomerID:  invoice.CustomerID,
		TotalAmount: invoice.TotalAmount,
		Status:      invoice.Status,
	}
	if !invoice.InvoiceDate.IsZero() {
		date := invoice.InvoiceDate.UTC()
		row.InvoiceDate = &date
	}
	return row
}

type invoiceLineModel struct {
	InvoiceLineID uuid.UUID `gorm:"column:invoice_line_id;type:uuid;primaryKey"`
	InvoiceID     uuid.UUID `gorm:"column:invoice_id;type:uuid"`
	Description   string    `gorm:"column:description"`
	Quantity      float64   `gorm:"column:quantity"`
	UnitPrice     float64   `gorm:"column:unit_price"`
	LineTotal     float64   `gorm:"column:line_total"`
}

func (invoiceLineModel) TableName() string { return "invoice_lines" }

func invoiceLineModelFromEntity(line entities.InvoiceLine) invoiceLineModel {
	return invoiceLineModel{
		InvoiceLineID: line.InvoiceLineID,
		InvoiceID:     line.InvoiceID,
		Description:   line.Description,
		Quantity:      line.Quantity,
		UnitPrice:     line.UnitPrice,
		LineTotal:     line.LineTotal,
	}
}

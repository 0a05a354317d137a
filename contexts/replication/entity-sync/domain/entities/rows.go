package entities

import (
	"time"

	"github.com/google/uuid"
)

// Legacy schema rows.

type LegacyCustomer struct {
	CustomerID int64
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Address    AddressKey
}

type LegacyInvoice struct {
	InvoiceID   int64
	CustomerID  int64
	InvoiceDate time.Time
	TotalAmount float64
	Status      string
}

type LegacyInvoiceLine struct {
	InvoiceLineID int64
	InvoiceID     int64
	Description   string
	Quantity      float64
	UnitPrice     float64
}

// LegacyWrite reports what a legacy write touched. Cascade ids are filled by
// deletes that removed dependent rows.
type LegacyWrite struct {
	ID                    int64
	CascadeInvoiceIDs     []int64
	CascadeInvoiceLineIDs []int64
}

// New schema rows.

type Address struct {
	AddressID uuid.UUID
	AddressKey
}

type Customer struct {
	CustomerID uuid.UUID
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	AddressID  uuid.UUID
}

type Invoice struct {
	InvoiceID   uuid.UUID
	CustomerID  uuid.UUID
	InvoiceDate time.Time
	TotalAmount float64
	Status      string
}

type InvoiceLine struct {
	InvoiceLineID uuid.UUID
	InvoiceID     uuid.UUID
	Description   string
	Quantity      float64
	UnitPrice     float64
	LineTotal     float64
}

// ComputeLineTotal fills LineTotal from quantity and unit price.
func (l InvoiceLine) ComputeLineTotal() InvoiceLine {
	l.LineTotal = l.Quantity * l.UnitPrice
	return l
}

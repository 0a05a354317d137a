package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"schemabridge/contexts/replication/entity-sync/domain/entities"
	domainerrors "schemabridge/contexts/replication/entity-sync/domain/errors"
)

// document is a row captured by an outbox trigger. Field lookups are
// case-insensitive and accept numbers or strings interchangeably.
type document map[string]json.RawMessage

func parseDocument(payload []byte) (document, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return document{}, nil
	}
	var doc document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidPayload, err)
	}
	return doc, nil
}

func (d document) raw(field string) (json.RawMessage, bool) {
	if value, ok := d[field]; ok {
		return value, true
	}
	for key, value := range d {
		if strings.EqualFold(key, field) {
			return value, true
		}
	}
	return nil, false
}

func (d document) text(field string) string {
	value, ok := d.raw(field)
	if !ok {
		return ""
	}
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(trimmed)
}

func (d document) int64(field, fallback string) (int64, error) {
	raw := d.text(field)
	if raw == "" {
		raw = strings.TrimSpace(fallback)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer key", domainerrors.ErrInvalidPayload, field, raw)
	}
	return value, nil
}

func (d document) uuid(field, fallback string) (uuid.UUID, error) {
	raw := d.text(field)
	if raw == "" {
		raw = strings.TrimSpace(fallback)
	}
	value, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s %q is not a uuid", domainerrors.ErrInvalidPayload, field, raw)
	}
	return value, nil
}

// optionalUUID treats a missing or blank field as uuid.Nil.
func (d document) optionalUUID(field string) (uuid.UUID, error) {
	if d.text(field) == "" {
		return uuid.Nil, nil
	}
	return d.uuid(field, "")
}

func (d document) float(field string) (float64, error) {
	raw := d.text(field)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not numeric", domainerrors.ErrInvalidPayload, field, raw)
	}
	return value, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (d document) time(field string) (time.Time, error) {
	raw := d.text(field)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	// Debezium renders DATE columns as days since the epoch.
	if days, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(days*86400, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %s %q is not a timestamp", domainerrors.ErrInvalidPayload, field, raw)
}

func (d document) address() entities.AddressKey {
	return entities.AddressKey{
		Street:     d.text("Street"),
		City:       d.text("City"),
		State:      d.text("State"),
		Country:    d.text("Country"),
		PostalCode: d.text("PostalCode"),
	}.Normalize()
}

// DecodeLegacyCustomer reads a legacy customer row. aggregateID is the
// envelope's outer id, used when the row omits its own key.
func DecodeLegacyCustomer(payload []byte, aggregateID string) (entities.LegacyCustomer, error) {
	doc, err := parseDocument(payload)
	if err != nil {
		return entities.LegacyCustomer{}, err
	}
	id, err := doc.int64("CustomerId", aggregateID)
	if err != nil {
		return entities.LegacyCustomer{}, err
	}
	return entities.LegacyCustomer{
		CustomerID: id,
		FirstName:  doc.text("FirstName"),
		LastName:   doc.text("LastName"),
		Email:      doc.text("Email"),
		Phone:      doc.text("Phone"),
		Address:    doc.address(),
	}, nil
}

func DecodeLegacyInvoice(payload []byte, aggregateID string) (entities.LegacyInvoice, error) {
	doc, err := parseDocument(payload)
	if err != nil {
		return entities.LegacyInvoice{}, err
	}
	id, err := doc.int64("InvoiceId", aggregateID)
	if err != nil {
		return entities.LegacyInvoice{}, err
	}
	customerID, err := doc.int64("CustomerId", "")
	if err != nil {
		return entities.LegacyInvoice{}, err
	}
	date, err := doc.time("InvoiceDate")
	if err != nil {
		return entities.LegacyInvoice{}, err
	}
	total, err := doc.float("TotalAmount")
	if err != nil {
		return entities.LegacyInvoice{}, err
	}
	return entities.LegacyInvoice{
		InvoiceID:   id,
		CustomerID:  customerID,
		InvoiceDate: date,
		TotalAmount: total,
		Status:      doc.text("Status"),
	}, nil
}

func DecodeLegacyInvoiceLine(payload []byte, aggregateID string) (entities.LegacyInvoiceLine, error) {
	doc, err := parseDocument(payload)
	if err != nil {
		return entities.LegacyInvoiceLine{}, err
	}
	id, err := doc.int64("InvoiceLineId", aggregateID)
	if err != nil {
		return entities.LegacyInvoiceLine{}, err
	}
	invoiceID, err := doc.int64("InvoiceId", "")
	if err != nil {
		return entities.LegacyInvoiceLine{}, err
	}
	quantity, err := doc.float("Quantity")
	if err != nil {
		return entities.LegacyInvoiceLine{}, err
	}
	price, err := doc.float("UnitPrice")
	if err != nil {
		return entities.LegacyInvoiceLine{}, err
	}
	return entities.LegacyInvoiceLine{
		InvoiceLineID: id,
		InvoiceID:     invoiceID,
		Description:   doc.text("Description"),
		Quantity:      quantity,
		UnitPrice:     price,
	}, nil
}

func DecodeAddress(payload []byte, aggregateID string) (entities.Address, error) {
	doc, err := parseDocument(payload)
	if err != nil {
		return entities.Address{}, err
	}
	id, err := doc.uuid("AddressId", aggregateID)
	if err != nil {
		return entities.Address{}, err
	}
	return entities.Address{AddressID: id, AddressKey: doc.address()}, nil
}

func DecodeCustomer(payload []byte, aggregateID string) (entities.Customer, error) {
	doc, err := parseDocument(payload)
	if err != nil {
		return entities.Customer{}, err
	}
	id, err := doc.uuid("CustomerId", aggregateID)
	if err != nil {
		return entities.Customer{}, err
	}
	addressID, err := doc.optionalUUID("AddressId")
	if err != nil {
		return entities.Customer{}, err
	}
	return entities.Customer{
		CustomerID: id,
		FirstName:  doc.text("FirstName"),
		LastName:   doc.text("LastName"),
		Email:      doc.text("Email"),
		Phone:      doc.text("Phone"),
		AddressID:  addressID,
	}, nil
}

func DecodeInvoice(payload []byte, aggregateID string) (entities.Invoice, error) {
	doc, err := parseDocument(payload)
	if err != nil {
		return entities.Invoice{}, err
	}
	id, err := doc.uuid("InvoiceId", aggregateID)
	if err != nil {
		return entities.Invoice{}, err
	}
	customerID, err := doc.uuid("CustomerId", "")
	if err != nil {
		return entities.Invoice{}, err
	}
	date, err := doc.time("InvoiceDate")
	if err != nil {
		return entities.Invoice{}, err
	}
	total, err := doc.float("TotalAmount")
	if err != nil {
		return entities.Invoice{}, err
	}
	return entities.Invoice{
		InvoiceID:   id,
		CustomerID:  customerID,
		InvoiceDate: date,
		TotalAmount: total,
		Status:      doc.text("Status"),
	}, nil
}

func DecodeInvoiceLine(payload []byte, aggregateID string) (entities.InvoiceLine, error) {
	doc, err := parseDocument(payload)
	if err != nil {
		return entities.InvoiceLine{}, err
	}
	id, err := doc.uuid("InvoiceLineId", aggregateID)
	if err != nil {
		return entities.InvoiceLine{}, err
	}
	invoiceID, err := doc.uuid("InvoiceId", "")
	if err != nil {
		return entities.InvoiceLine{}, err
	}
	quantity, err := doc.float("Quantity")
	if err != nil {
		return entities.InvoiceLine{}, err
	}
	price, err := doc.float("UnitPrice")
	if err != nil {
		return entities.InvoiceLine{}, err
	}
	total, err := doc.float("LineTotal")
	if err != nil {
		return entities.InvoiceLine{}, err
	}
	line := entities.InvoiceLine{
		InvoiceLineID: id,
		InvoiceID:     invoiceID,
		Description:   doc.text("Description"),
		Quantity:      quantity,
		UnitPrice:     price,
		LineTotal:     total,
	}
	if doc.text("LineTotal") == "" {
		line = line.ComputeLineTotal()
	}
	return line, nil
}

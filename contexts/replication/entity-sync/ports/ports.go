package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"schemabridge/contexts/replication/entity-sync/domain/entities"
	"schemabridge/internal/shared/events"
)

// MappingStore reads the persistent key translation tables.
type MappingStore interface {
	FindByOldID(ctx context.Context, aggregate events.AggregateType, oldID int64) (entities.EntityMapping, bool, error)
	FindByNewID(ctx context.Context, aggregate events.AggregateType, newID uuid.UUID) (entities.EntityMapping, bool, error)
	FindAddressByKey(ctx context.Context, key entities.AddressKey) (entities.AddressMapping, bool, error)
	FindAddressByNewID(ctx context.Context, newID uuid.UUID) (entities.AddressMapping, bool, error)
}

// Ledger is the set of applied envelope identifiers.
type Ledger interface {
	IsProcessed(ctx context.Context, uniqueIdentifier string) (bool, error)
	// MarkProcessed inserts the identifier; false means it was already there.
	MarkProcessed(ctx context.Context, uniqueIdentifier string) (bool, error)
}

// Bookkeeper commits a Commit on its own. Returns ErrDuplicateApply, with
// nothing written, when the ledger already holds the identifier.
type Bookkeeper interface {
	Record(ctx context.Context, commit entities.Commit) error
}

// NewSchemaRepository writes the redesigned schema. Every write applies the
// commit in the same transaction and fails with ErrDuplicateApply when the
// ledger already holds its identifier.
type NewSchemaRepository interface {
	// SaveCustomer upserts the customer; a non-nil address is inserted first.
	SaveCustomer(ctx context.Context, customer entities.Customer, address *entities.Address, commit entities.Commit) error
	// DeleteCustomer removes the customer's invoice lines and invoices first,
	// dropping their mappings with it.
	DeleteCustomer(ctx context.Context, customerID uuid.UUID, commit entities.Commit) error
	SaveInvoice(ctx context.Context, invoice entities.Invoice, commit entities.Commit) error
	DeleteInvoice(ctx context.Context, invoiceID uuid.UUID, commit entities.Commit) error
	SaveInvoiceLine(ctx context.Context, line entities.InvoiceLine, commit entities.Commit) error
	DeleteInvoiceLine(ctx context.Context, lineID uuid.UUID, commit entities.Commit) error
}

// Finalizer runs inside a legacy transaction after the row write and before
// its commit. An error rolls the legacy write back.
type Finalizer func(ctx context.Context, written entities.LegacyWrite) error

// LegacyRepository writes the legacy schema. Inserts report the generated
// key through the finalizer.
type LegacyRepository interface {
	InsertCustomer(ctx context.Context, customer entities.LegacyCustomer, finalize Finalizer) error
	UpdateCustomer(ctx context.Context, customer entities.LegacyCustomer, finalize Finalizer) error
	DeleteCustomer(ctx context.Context, customerID int64, finalize Finalizer) error
	// UpdateAddressFields rewrites the inline address of every customer
	// currently holding from.
	UpdateAddressFields(ctx context.Context, from entities.AddressKey, to entities.AddressKey, finalize Finalizer) error
	InsertInvoice(ctx context.Context, invoice entities.LegacyInvoice, finalize Finalizer) error
	UpdateInvoice(ctx context.Context, invoice entities.LegacyInvoice, finalize Finalizer) error
	DeleteInvoice(ctx context.Context, invoiceID int64, finalize Finalizer) error
	InsertInvoiceLine(ctx context.Context, line entities.LegacyInvoiceLine, finalize Finalizer) error
	UpdateInvoiceLine(ctx context.Context, line entities.LegacyInvoiceLine, finalize Finalizer) error
	DeleteInvoiceLine(ctx context.Context, lineID int64, finalize Finalizer) error
}

type Clock interface {
	Now() time.Time
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"schemabridge/contexts/replication/entity-sync/domain/entities"
	domainerrors "schemabridge/contexts/replication/entity-sync/domain/errors"
	"schemabridge/internal/shared/events"
)

// Store is the in-memory new schema together with its bookkeeping tables.
type Store struct {
	mu sync.Mutex

	mappings  map[events.AggregateType]map[int64]entities.EntityMapping
	addresses map[uuid.UUID]entities.AddressMapping
	ledger    map[string]time.Time

	newAddresses map[uuid.UUID]entities.Address
	newCustomers map[uuid.UUID]entities.Customer
	newInvoices  map[uuid.UUID]entities.Invoice
	newLines     map[uuid.UUID]entities.InvoiceLine

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		mappings:     make(map[events.AggregateType]map[int64]entities.EntityMapping),
		addresses:    make(map[uuid.UUID]entities.AddressMapping),
		ledger:       make(map[string]time.Time),
		newAddresses: make(map[uuid.UUID]entities.Address),
		newCustomers: make(map[uuid.UUID]entities.Customer),
		newInvoices:  make(map[uuid.UUID]entities.Invoice),
		newLines:     make(map[uuid.UUID]entities.InvoiceLine),
		now:          time.Now,
	}
}

func (s *Store) Now() time.Time {
	return s.now().UTC()
}

// Mapping store.

func (s *Store) FindByOldID(_ context.Context, aggregate events.AggregateType, oldID int64) (entities.EntityMapping, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mapping, ok := s.mappings[aggregate][oldID]
	return mapping, ok, nil
}

func (s *Store) FindByNewID(_ context.Context, aggregate events.AggregateType, newID uuid.UUID) (entities.EntityMapping, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mapping := range s.mappings[aggregate] {
		if mapping.NewID == newID {
			return mapping, true, nil
		}
	}
	return entities.EntityMapping{}, false, nil
}

func (s *Store) FindAddressByKey(_ context.Context, key entities.AddressKey) (entities.AddressMapping, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key = key.Normalize()
	var canonical entities.AddressMapping
	found := false
	for _, mapping := range s.addresses {
		if mapping.Key != key {
			continue
		}
		if !found || earlierAddress(mapping, canonical) {
			canonical, found = mapping, true
		}
	}
	return canonical, found, nil
}

// earlierAddress orders aliases of one content key: oldest mapping first,
// then by id.
func earlierAddress(a, b entities.AddressMapping) bool {
	if !a.MappingTimestamp.Equal(b.MappingTimestamp) {
		return a.MappingTimestamp.Before(b.MappingTimestamp)
	}
	return a.NewID.String() < b.NewID.String()
}

func (s *Store) FindAddressByNewID(_ context.Context, newID uuid.UUID) (entities.AddressMapping, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mapping, ok := s.addresses[newID]
	return mapping, ok, nil
}

// Ledger.

func (s *Store) IsProcessed(_ context.Context, uniqueIdentifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ledger[uniqueIdentifier]
	return ok, nil
}

func (s *Store) MarkProcessed(_ context.Context, uniqueIdentifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledger[uniqueIdentifier]; ok {
		return false, nil
	}
	s.ledger[uniqueIdentifier] = s.Now()
	return true, nil
}

func (s *Store) Record(_ context.Context, commit entities.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyCommitLocked(commit)
}

func (s *Store) applyCommitLocked(commit entities.Commit) error {
	if _, ok := s.ledger[commit.UniqueIdentifier]; ok {
		return domainerrors.ErrDuplicateApply
	}
	for _, ref := range commit.DropMappings {
		s.dropMappingLocked(ref)
	}
	for _, mapping := range commit.SaveMappings {
		for oldID, existing := range s.mappings[mapping.AggregateType] {
			if existing.NewID == mapping.NewID {
				delete(s.mappings[mapping.AggregateType], oldID)
			}
		}
		if s.mappings[mapping.AggregateType] == nil {
			s.mappings[mapping.AggregateType] = make(map[int64]entities.EntityMapping)
		}
		s.mappings[mapping.AggregateType][mapping.OldID] = mapping
	}
	for _, id := range commit.DropAddresses {
		delete(s.addresses, id)
	}
	for _, mapping := range commit.SaveAddresses {
		if _, ok := s.addresses[mapping.NewID]; ok {
			continue
		}
		mapping.Key = mapping.Key.Normalize()
		s.addresses[mapping.NewID] = mapping
	}
	at := commit.At
	if at.IsZero() {
		at = s.Now()
	}
	s.ledger[commit.UniqueIdentifier] = at
	return nil
}

func (s *Store) dropMappingLocked(ref entities.MappingRef) {
	for oldID, mapping := range s.mappings[ref.AggregateType] {
		if (ref.OldID != 0 && mapping.OldID == ref.OldID) || (ref.NewID != uuid.Nil && mapping.NewID == ref.NewID) {
			delete(s.mappings[ref.AggregateType], oldID)
		}
	}
}

// New schema.

func (s *Store) SaveCustomer(_ context.Context, customer entities.Customer, address *entities.Address, commit entities.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyCommitLocked(commit); err != nil {
		return err
	}
	if address != nil {
		s.newAddresses[address.AddressID] = *address
	}
	s.newCustomers[customer.CustomerID] = customer
	return nil
}

func (s *Store) DeleteCustomer(_ context.Context, customerID uuid.UUID, commit entities.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledger[commit.UniqueIdentifier]; ok {
		return domainerrors.ErrDuplicateApply
	}
	for invoiceID, invoice := range s.newInvoices {
		if invoice.CustomerID == customerID {
			s.deleteInvoiceLocked(invoiceID)
		}
	}
	delete(s.newCustomers, customerID)
	return s.applyCommitLocked(commit)
}

func (s *Store) SaveInvoice(_ context.Context, invoice entities.Invoice, commit entities.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyCommitLocked(commit); err != nil {
		return err
	}
	s.newInvoices[invoice.InvoiceID] = invoice
	return nil
}

func (s *Store) DeleteInvoice(_ context.Context, invoiceID uuid.UUID, commit entities.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledger[commit.UniqueIdentifier]; ok {
		return domainerrors.ErrDuplicateApply
	}
	s.deleteInvoiceLocked(invoiceID)
	return s.applyCommitLocked(commit)
}

func (s *Store) deleteInvoiceLocked(invoiceID uuid.UUID) {
	for lineID, line := range s.newLines {
		if line.InvoiceID == invoiceID {
			delete(s.newLines, lineID)
			s.dropMappingLocked(entities.MappingRef{AggregateType: events.AggregateInvoiceLine, NewID: lineID})
		}
	}
	delete(s.newInvoices, invoiceID)
	s.dropMappingLocked(entities.MappingRef{AggregateType: events.AggregateInvoice, NewID: invoiceID})
}

func (s *Store) SaveInvoiceLine(_ context.Context, line entities.InvoiceLine, commit entities.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyCommitLocked(commit); err != nil {
		return err
	}
	s.newLines[line.InvoiceLineID] = line
	return nil
}

func (s *Store) DeleteInvoiceLine(_ context.Context, lineID uuid.UUID, commit entities.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyCommitLocked(commit); err != nil {
		return err
	}
	delete(s.newLines, lineID)
	return nil
}

// Seeding and inspection.

func (s *Store) Customer(id uuid.UUID) (entities.Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.newCustomers[id]
	return customer, ok
}

func (s *Store) Address(id uuid.UUID) (entities.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	address, ok := s.newAddresses[id]
	return address, ok
}

func (s *Store) Invoice(id uuid.UUID) (entities.Invoice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invoice, ok := s.newInvoices[id]
	return invoice, ok
}

func (s *Store) InvoiceLine(id uuid.UUID) (entities.InvoiceLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, ok := s.newLines[id]
	return line, ok
}

// Counts reports row counts of the new schema: customers, addresses,
// invoices, invoice lines.
func (s *Store) Counts() (customers, addresses, invoices, lines int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.newCustomers), len(s.newAddresses), len(s.newInvoices), len(s.newLines)
}

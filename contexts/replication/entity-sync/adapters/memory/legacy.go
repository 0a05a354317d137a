package memory

import (
	"context"
	"sort"
	"sync"

	"schemabridge/contexts/replication/entity-sync/domain/entities"
	"schemabridge/contexts/replication/entity-sync/ports"
)

// LegacyStore holds the legacy tables. Keys are generated from a shared
// sequence. The finalizer runs before a row change becomes visible and a
// finalizer error leaves the tables untouched.
type LegacyStore struct {
	mu        sync.Mutex
	customers map[int64]entities.LegacyCustomer
	invoices  map[int64]entities.LegacyInvoice
	lines     map[int64]entities.LegacyInvoiceLine
	nextID    int64
}

func NewLegacyStore() *LegacyStore {
	return &LegacyStore{
		customers: make(map[int64]entities.LegacyCustomer),
		invoices:  make(map[int64]entities.LegacyInvoice),
		lines:     make(map[int64]entities.LegacyInvoiceLine),
		nextID:    1000,
	}
}

func (s *LegacyStore) InsertCustomer(ctx context.Context, customer entities.LegacyCustomer, finalize ports.Finalizer) error {
	s.mu.Lock()
	s.nextID++
	customer.CustomerID = s.nextID
	s.mu.Unlock()

	if err := finalize(ctx, entities.LegacyWrite{ID: customer.CustomerID}); err != nil {
		return err
	}
	s.mu.Lock()
	s.customers[customer.CustomerID] = customer
	s.mu.Unlock()
	return nil
}

func (s *LegacyStore) UpdateCustomer(ctx context.Context, customer entities.LegacyCustomer, finalize ports.Finalizer) error {
	if err := finalize(ctx, entities.LegacyWrite{ID: customer.CustomerID}); err != nil {
		return err
	}
	s.mu.Lock()
	s.customers[customer.CustomerID] = customer
	s.mu.Unlock()
	return nil
}

func (s *LegacyStore) DeleteCustomer(ctx context.Context, customerID int64, finalize ports.Finalizer) error {
	s.mu.Lock()
	written := entities.LegacyWrite{ID: customerID}
	for invoiceID, invoice := range s.invoices {
		if invoice.CustomerID != customerID {
			continue
		}
		written.CascadeInvoiceIDs = append(written.CascadeInvoiceIDs, invoiceID)
		for lineID, line := range s.lines {
			if line.InvoiceID == invoiceID {
				written.CascadeInvoiceLineIDs = append(written.CascadeInvoiceLineIDs, lineID)
			}
		}
	}
	s.mu.Unlock()
	sortIDs(written.CascadeInvoiceIDs)
	sortIDs(written.CascadeInvoiceLineIDs)

	if err := finalize(ctx, written); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range written.CascadeInvoiceLineIDs {
		delete(s.lines, id)
	}
	for _, id := range written.CascadeInvoiceIDs {
		delete(s.invoices, id)
	}
	delete(s.customers, customerID)
	return nil
}

func (s *LegacyStore) UpdateAddressFields(ctx context.Context, from entities.AddressKey, to entities.AddressKey, finalize ports.Finalizer) error {
	if err := finalize(ctx, entities.LegacyWrite{}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	from = from.Normalize()
	for id, customer := range s.customers {
		if customer.Address.Normalize() == from {
			customer.Address = to.Normalize()
			s.customers[id] = customer
		}
	}
	return nil
}

func (s *LegacyStore) InsertInvoice(ctx context.Context, invoice entities.LegacyInvoice, finalize ports.Finalizer) error {
	s.mu.Lock()
	s.nextID++
	invoice.InvoiceID = s.nextID
	s.mu.Unlock()

	if err := finalize(ctx, entities.LegacyWrite{ID: invoice.InvoiceID}); err != nil {
		return err
	}
	s.mu.Lock()
	s.invoices[invoice.InvoiceID] = invoice
	s.mu.Unlock()
	return nil
}

func (s *LegacyStore) UpdateInvoice(ctx context.Context, invoice entities.LegacyInvoice, finalize ports.Finalizer) error {
	if err := finalize(ctx, entities.LegacyWrite{ID: invoice.InvoiceID}); err != nil {
		return err
	}
	s.mu.Lock()
	s.invoices[invoice.InvoiceID] = invoice
	s.mu.Unlock()
	return nil
}

func (s *LegacyStore) DeleteInvoice(ctx context.Context, invoiceID int64, finalize ports.Finalizer) error {
	s.mu.Lock()
	written := entities.LegacyWrite{ID: invoiceID}
	for lineID, line := range s.lines {
		if line.InvoiceID == invoiceID {
			written.CascadeInvoiceLineIDs = append(written.CascadeInvoiceLineIDs, lineID)
		}
	}
	s.mu.Unlock()
	sortIDs(written.CascadeInvoiceLineIDs)

	if err := finalize(ctx, written); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range written.CascadeInvoiceLineIDs {
		delete(s.lines, id)
	}
	delete(s.invoices, invoiceID)
	return nil
}

func (s *LegacyStore) InsertInvoiceLine(ctx context.Context, line entities.LegacyInvoiceLine, finalize ports.Finalizer) error {
	s.mu.Lock()
	s.nextID++
	line.InvoiceLineID = s.nextID
	s.mu.Unlock()

	if err := finalize(ctx, entities.LegacyWrite{ID: line.InvoiceLineID}); err != nil {
		return err
	}
	s.mu.Lock()
	s.lines[line.InvoiceLineID] = line
	s.mu.Unlock()
	return nil
}

func (s *LegacyStore) UpdateInvoiceLine(ctx context.Context, line entities.LegacyInvoiceLine, finalize ports.Finalizer) error {
	if err := finalize(ctx, entities.LegacyWrite{ID: line.InvoiceLineID}); err != nil {
		return err
	}
	s.mu.Lock()
	s.lines[line.InvoiceLineID] = line
	s.mu.Unlock()
	return nil
}

func (s *LegacyStore) DeleteInvoiceLine(ctx context.Context, lineID int64, finalize ports.Finalizer) error {
	if err := finalize(ctx, entities.LegacyWrite{ID: lineID}); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.lines, lineID)
	s.mu.Unlock()
	return nil
}

// SeedCustomer stores a legacy customer as if it had always existed.
func (s *LegacyStore) SeedCustomer(customer entities.LegacyCustomer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[customer.CustomerID] = customer
}

func (s *LegacyStore) SeedInvoice(invoice entities.LegacyInvoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[invoice.InvoiceID] = invoice
}

func (s *LegacyStore) SeedInvoiceLine(line entities.LegacyInvoiceLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[line.InvoiceLineID] = line
}

func (s *LegacyStore) Customer(id int64) (entities.LegacyCustomer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.customers[id]
	return customer, ok
}

func (s *LegacyStore) Invoice(id int64) (entities.LegacyInvoice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invoice, ok := s.invoices[id]
	return invoice, ok
}

func (s *LegacyStore) InvoiceLine(id int64) (entities.LegacyInvoiceLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, ok := s.lines[id]
	return line, ok
}

func (s *LegacyStore) Counts() (customers, invoices, lines int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.customers), len(s.invoices), len(s.lines)
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

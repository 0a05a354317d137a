package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemabridge/contexts/replication/entity-sync/domain/entities"
	domainerrors "schemabridge/contexts/replication/entity-sync/domain/errors"
	"schemabridge/internal/shared/events"
)

func TestRecordRejectsDuplicateIdentifier(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	newID := uuid.New()

	require.NoError(t, store.Record(ctx, entities.Commit{
		UniqueIdentifier: "u-1",
		SaveMappings:     []entities.EntityMapping{{AggregateType: events.AggregateCustomer, OldID: 60, NewID: newID}},
	}))

	err := store.Record(ctx, entities.Commit{
		UniqueIdentifier: "u-1",
		DropMappings:     []entities.MappingRef{{AggregateType: events.AggregateCustomer, OldID: 60}},
	})
	require.ErrorIs(t, err, domainerrors.ErrDuplicateApply)

	mapping, found, err := store.FindByNewID(ctx, events.AggregateCustomer, newID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(60), mapping.OldID)
}

func TestMarkProcessedReportsFirstInsert(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	inserted, err := store.MarkProcessed(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.MarkProcessed(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestAddressContentAliasesResolveToEarliestMapping(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	key := entities.AddressKey{City: "Paris"}
	first, second := uuid.New(), uuid.New()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx, entities.Commit{
		UniqueIdentifier: "u-1",
		At:               at,
		SaveAddresses:    []entities.AddressMapping{{Key: key, NewID: first, MappingTimestamp: at}},
	}))
	require.NoError(t, store.Record(ctx, entities.Commit{
		UniqueIdentifier: "u-2",
		At:               at.Add(time.Second),
		SaveAddresses:    []entities.AddressMapping{{Key: entities.AddressKey{City: " Paris"}, NewID: second, MappingTimestamp: at.Add(time.Second)}},
	}))

	for i := 0; i < 10; i++ {
		mapping, found, err := store.FindAddressByKey(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, first, mapping.NewID)
	}

	alias, found, err := store.FindAddressByNewID(ctx, second)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, key, alias.Key)

	// Re-saving an id keeps its original mapping.
	require.NoError(t, store.Record(ctx, entities.Commit{
		UniqueIdentifier: "u-3",
		SaveAddresses:    []entities.AddressMapping{{Key: entities.AddressKey{City: "Lyon"}, NewID: first}},
	}))
	mapping, _, err := store.FindAddressByNewID(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, key, mapping.Key)
}

func TestLegacyFinalizerErrorLeavesTablesUntouched(t *testing.T) {
	ctx := context.Background()
	legacy := NewLegacyStore()
	legacy.SeedCustomer(entities.LegacyCustomer{CustomerID: 60, FirstName: "Ada"})
	legacy.SeedInvoice(entities.LegacyInvoice{InvoiceID: 414, CustomerID: 60})
	legacy.SeedInvoiceLine(entities.LegacyInvoiceLine{InvoiceLineID: 9, InvoiceID: 414})
	legacy.SeedInvoiceLine(entities.LegacyInvoiceLine{InvoiceLineID: 8, InvoiceID: 414})

	boom := errors.New("bookkeeping failed")
	var seen entities.LegacyWrite
	err := legacy.DeleteCustomer(ctx, 60, func(_ context.Context, written entities.LegacyWrite) error {
		seen = written
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, []int64{414}, seen.CascadeInvoiceIDs)
	assert.Equal(t, []int64{8, 9}, seen.CascadeInvoiceLineIDs)
	customers, invoices, lines := legacy.Counts()
	assert.Equal(t, []int{1, 1, 2}, []int{customers, invoices, lines})

	require.NoError(t, legacy.DeleteCustomer(ctx, 60, func(context.Context, entities.LegacyWrite) error { return nil }))
	customers, invoices, lines = legacy.Counts()
	assert.Equal(t, []int{0, 0, 0}, []int{customers, invoices, lines})
}

func TestLegacyInsertReportsGeneratedKey(t *testing.T) {
	ctx := context.Background()
	legacy := NewLegacyStore()

	var id int64
	require.NoError(t, legacy.InsertInvoice(ctx, entities.LegacyInvoice{CustomerID: 60}, func(_ context.Context, written entities.LegacyWrite) error {
		id = written.ID
		return nil
	}))
	invoice, ok := legacy.Invoice(id)
	require.True(t, ok)
	assert.Equal(t, int64(60), invoice.CustomerID)
}

package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "schemabridge/contexts/replication/event-processor/domain/errors"
	"schemabridge/contexts/replication/event-processor/ports"
	"schemabridge/internal/shared/events"
	"schemabridge/internal/shared/outbox"
)

func allAppliers(log *recorder) (map[events.AggregateType]ports.EntityApplier, map[events.AggregateType]*fakeApplier) {
	appliers := make(map[events.AggregateType]ports.EntityApplier)
	fakes := make(map[events.AggregateType]*fakeApplier)
	for _, aggregate := range events.AllAggregateTypes() {
		fake := newFakeApplier(aggregate, log)
		fakes[aggregate] = fake
		appliers[aggregate] = fake
	}
	return appliers, fakes
}

func TestCommandTableRegistersExposedTables(t *testing.T) {
	appliers, _ := allAppliers(&recorder{})
	table := NewCommandTable(appliers)

	// 3 legacy outbox tables and 4 new ones, three operations each.
	assert.Equal(t, 21, table.Len())

	cmd := table.Lookup(CommandKey{Direction: events.NewToOld, Table: outbox.AddressTable, Op: OpInsert})
	assert.True(t, cmd.Found())
	assert.Equal(t, events.AggregateAddress, cmd.Aggregate)

	miss := table.Lookup(CommandKey{Direction: events.OldToNew, Table: outbox.AddressTable, Op: OpInsert})
	assert.False(t, miss.Found())
	miss = table.Lookup(CommandKey{Direction: events.OldToNew, Table: "orders_outbox", Op: OpDelete})
	assert.False(t, miss.Found())
}

func TestNotFoundCommandNeverPanics(t *testing.T) {
	var cmd Command
	err := cmd.Apply(context.Background(), envelope(events.AggregateCustomer, "1", events.EventCreated, nil))
	assert.ErrorIs(t, err, domainerrors.ErrUnknownCommand)
}

func TestCommandRoutesByDirectionAndOperation(t *testing.T) {
	log := &recorder{}
	appliers, _ := allAppliers(log)
	table := NewCommandTable(appliers)
	ctx := context.Background()

	created := envelope(events.AggregateCustomer, "60", events.EventCreated, nil)
	require.NoError(t, table.Lookup(KeyFor(created)).Apply(ctx, created))

	updated := envelope(events.AggregateInvoice, "7", events.EventUpdated, nil)
	updated.Direction = events.NewToOld
	updated.Table = string(outbox.InvoiceTable)
	require.NoError(t, table.Lookup(KeyFor(updated)).Apply(ctx, updated))

	deleted := envelope(events.AggregateInvoiceLine, "9", events.EventDeleted, nil)
	require.NoError(t, table.Lookup(KeyFor(deleted)).Apply(ctx, deleted))

	assert.Equal(t, []string{
		"new:c:CUSTOMER:60",
		"old:u:INVOICE:7",
		"new:d:INVOICE_LINE:9",
	}, log.entries())
}

func TestCommandRejectsUnknownDirection(t *testing.T) {
	appliers, _ := allAppliers(&recorder{})
	table := NewCommandTable(appliers)
	env := envelope(events.AggregateCustomer, "60", events.EventCreated, nil)
	cmd := table.Lookup(KeyFor(env))

	env.Direction = "sideways"
	assert.ErrorIs(t, cmd.Apply(context.Background(), env), domainerrors.ErrInvalidDirection)
}

func TestKeyForPrefersCapturedTable(t *testing.T) {
	env := envelope(events.AggregateInvoice, "1", events.EventDeleted, nil)
	assert.Equal(t, CommandKey{Direction: events.OldToNew, Table: outbox.InvoiceTable, Op: OpDelete}, KeyFor(env))

	env.Table = "customer_outbox"
	assert.Equal(t, outbox.CustomerTable, KeyFor(env).Table)
}

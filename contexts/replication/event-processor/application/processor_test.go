package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemabridge/contexts/replication/event-processor/adapters/memory"
	"schemabridge/contexts/replication/event-processor/domain/entities"
	"schemabridge/internal/platform/retry"
	"schemabridge/internal/shared/events"
)

const (
	customerTopic    = "legacy.public.customer_outbox"
	invoiceTopic     = "legacy.public.invoice_outbox"
	invoiceLineTopic = "legacy.public.invoice_line_outbox"
	addressTopic     = "legacy.public.address_outbox"
)

type processorFixture struct {
	processor *EventProcessor
	source    *memory.Source
	log       *recorder
	appliers  map[events.AggregateType]*fakeApplier
	cache     *fakeCache
}

func newProcessorFixture() processorFixture {
	log := &recorder{}
	appliers, fakes := allAppliers(log)
	cache := newFakeCache()
	resolver := newResolver(cache, &fakeMappings{})
	resolver.Config.MaxWait = 30 * time.Millisecond
	source := memory.NewSource()

	return processorFixture{
		processor: &EventProcessor{
			Direction:   events.OldToNew,
			Source:      source,
			Resolver:    resolver,
			Commands:    NewCommandTable(appliers),
			Retry:       retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
			State:       NewRunState(),
			BatchSize:   10,
			PollTimeout: 10 * time.Millisecond,
		},
		source:   source,
		log:      log,
		appliers: fakes,
		cache:    cache,
	}
}

func legacyCustomer(id string) events.ChangeEnvelope {
	return envelope(events.AggregateCustomer, id, events.EventCreated, map[string]any{
		"CustomerId": id,
		"FirstName":  "Ada",
		"AddressId":  entities.CreateNewAddressSentinel,
	})
}

func TestRunOnceAppliesPrerequisiteFirst(t *testing.T) {
	f := newProcessorFixture()
	f.source.Publish(invoiceTopic, wire(t, invoiceFor("60")))
	f.source.Publish(customerTopic, wire(t, legacyCustomer("60")))

	report, err := f.processor.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, 0, report.Deferred)
	assert.Equal(t, []string{"new:c:CUSTOMER:60", "new:c:INVOICE:414"}, f.log.entries())
	assert.Len(t, f.source.Committed(), 2)
	assert.True(t, f.cache.has("CUSTOMER:60"))
	assert.True(t, f.cache.has("INVOICE:414"))
}

func TestRunOnceDefersUntilPrerequisiteArrives(t *testing.T) {
	f := newProcessorFixture()
	f.source.Publish(invoiceTopic, wire(t, invoiceFor("60")))

	report, err := f.processor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deferred)
	assert.Empty(t, f.log.entries())
	assert.Empty(t, f.source.Committed())
	assert.Equal(t, 1, f.processor.UncommittedCount())
	assert.False(t, f.cache.has("CUSTOMER:60"))

	f.source.Publish(customerTopic, wire(t, legacyCustomer("60")))
	report, err = f.processor.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, 0, f.processor.DeferredCount())
	assert.Equal(t, []string{"new:c:CUSTOMER:60", "new:c:INVOICE:414"}, f.log.entries())
	assert.Len(t, f.source.Committed(), 2)
	assert.Zero(t, f.processor.UncommittedCount())
}

func invoiceLine(id, invoiceID string) events.ChangeEnvelope {
	return envelope(events.AggregateInvoiceLine, id, events.EventCreated, map[string]any{
		"InvoiceLineId": id,
		"InvoiceId":     invoiceID,
	})
}

func TestRunOnceKeepsDependentBehindPrerequisiteFoundOnStream(t *testing.T) {
	f := newProcessorFixture()
	f.processor.BatchSize = 1
	// The line fills the batch; its invoice only shows up while the resolver
	// waits, and the invoice's customer never arrives.
	f.source.Publish(invoiceLineTopic, wire(t, invoiceLine("9", "414")))
	f.source.Publish(invoiceTopic, wire(t, invoiceFor("60")))

	report, err := f.processor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Deferred)
	assert.False(t, f.cache.has("INVOICE:414"), "fact withdrawn once the invoice is deferred")

	report, err = f.processor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Deferred)
	assert.Zero(t, report.Applied)
	assert.Empty(t, f.log.entries())

	// Even a fact cached elsewhere does not let the line jump its invoice.
	require.NoError(t, f.cache.MarkSatisfied(context.Background(), "INVOICE:414"))
	report, err = f.processor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Deferred)
	assert.Empty(t, f.log.entries())
	assert.Empty(t, f.source.Committed())

	f.source.Publish(customerTopic, wire(t, legacyCustomer("60")))
	report, err = f.processor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Applied)
	assert.Equal(t, []string{"new:c:CUSTOMER:60", "new:c:INVOICE:414", "new:c:INVOICE_LINE:9"}, f.log.entries())
	assert.Len(t, f.source.Committed(), 3)
}

func TestRunOnceCarriedEnvelopesDoNotWaitAgain(t *testing.T) {
	f := newProcessorFixture()
	f.processor.Resolver.Config.MaxWait = 200 * time.Millisecond
	f.source.Publish(invoiceTopic, wire(t, invoiceFor("60")))

	started := time.Now()
	_, err := f.processor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(started), 200*time.Millisecond)

	for i := 0; i < 3; i++ {
		started = time.Now()
		report, err := f.processor.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Deferred)
		assert.Less(t, time.Since(started), 150*time.Millisecond)
	}
}

func TestRunOnceStreamWaitsShareOneBudget(t *testing.T) {
	f := newProcessorFixture()
	f.processor.Resolver.Config.MaxWait = 150 * time.Millisecond
	for _, id := range []string{"414", "415", "416"} {
		f.source.Publish(invoiceTopic, wire(t, envelope(events.AggregateInvoice, id, events.EventCreated, map[string]any{
			"InvoiceId":  id,
			"CustomerId": "6" + id,
		})))
	}

	started := time.Now()
	report, err := f.processor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Deferred)
	assert.Less(t, time.Since(started), 300*time.Millisecond)
}

func TestRunOnceHoldsOffsetsFromTheFirstDeferredEnvelope(t *testing.T) {
	f := newProcessorFixture()
	require.NoError(t, f.cache.MarkSatisfied(context.Background(), "CUSTOMER:61"))
	invoice := func(id, customerID string) []byte {
		return wire(t, envelope(events.AggregateInvoice, id, events.EventCreated, map[string]any{
			"InvoiceId":  id,
			"CustomerId": customerID,
		}))
	}
	f.source.Publish(invoiceTopic, invoice("415", "61"))
	f.source.Publish(invoiceTopic, invoice("414", "60"))
	f.source.Publish(invoiceTopic, invoice("416", "61"))
	f.source.Publish(customerTopic, wire(t, legacyCustomer("62")))

	report, err := f.processor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Applied)
	assert.Equal(t, 1, report.Deferred)

	// Other partitions are unaffected; 416 waits behind 414.
	var offsets []int64
	for _, msg := range f.source.Committed() {
		offsets = append(offsets, msg.Offset)
	}
	assert.ElementsMatch(t, []int64{0, 3}, offsets)
	assert.Equal(t, 2, f.processor.UncommittedCount())

	f.source.Publish(customerTopic, wire(t, legacyCustomer("60")))
	report, err = f.processor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Applied)
	assert.Len(t, f.source.Committed(), 5)
	assert.Zero(t, f.processor.UncommittedCount())
}

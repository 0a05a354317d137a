package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemabridge/contexts/replication/event-processor/domain/entities"
	"schemabridge/contexts/replication/event-processor/ports"
	"schemabridge/internal/platform/retry"
	"schemabridge/internal/shared/events"
)

func newResolver(cache ports.DependencyCache, mappings *fakeMappings) DependencyResolver {
	return DependencyResolver{
		Lists: entities.DefaultPriorityLists(),
		Cache: cache,
		Mappings: map[events.AggregateType]ports.MappingChecker{
			events.AggregateCustomer:    mappings,
			events.AggregateInvoice:     mappings,
			events.AggregateInvoiceLine: mappings,
			events.AggregateAddress:     mappings,
		},
		Retry: retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		Config: ResolverConfig{
			Delay:             5 * time.Millisecond,
			AdditionalConsume: 10 * time.Millisecond,
			MaxWait:           60 * time.Millisecond,
		},
	}
}

func invoiceFor(customerID string) events.ChangeEnvelope {
	return envelope(events.AggregateInvoice, "414", events.EventCreated, map[string]any{
		"InvoiceId":  "414",
		"CustomerId": customerID,
	})
}

func TestResolveWaitsOnStreamForLateCustomer(t *testing.T) {
	cache := newFakeCache()
	mappings := &fakeMappings{}
	resolver := newResolver(cache, mappings)
	customer := envelope(events.AggregateCustomer, "60", events.EventCreated, map[string]any{
		"CustomerId": "60", "AddressId": entities.CreateNewAddressSentinel,
	})
	stream := &fakeStream{queue: []events.ChangeEnvelope{customer}}
	batch := &fakeBatch{}

	result := resolver.Resolve(context.Background(), invoiceFor("60"), batch, stream)

	assert.True(t, result.Ready)
	assert.Equal(t, []string{"CUSTOMER:60"}, result.BatchKeys)
	assert.True(t, cache.has("CUSTOMER:60"))
	assert.True(t, batch.Contains(events.AggregateCustomer, "60"), "consumed envelopes are kept")
	assert.Zero(t, mappings.queries)
}

func TestResolveTimeoutDefersWithoutCaching(t *testing.T) {
	cache := newFakeCache()
	mappings := &fakeMappings{}
	resolver := newResolver(cache, mappings)

	started := time.Now()
	result := resolver.Resolve(context.Background(), invoiceFor("60"), &fakeBatch{}, &fakeStream{})

	assert.False(t, result.Ready)
	require.Len(t, result.Missing, 1)
	assert.Equal(t, events.AggregateCustomer, result.Missing[0].EntityType)
	assert.False(t, cache.has("CUSTOMER:60"))
	assert.Equal(t, 1, mappings.queries)
	assert.GreaterOrEqual(t, time.Since(started), 60*time.Millisecond)
}

func TestResolveIgnoresDeletionOfThePrerequisiteOnStream(t *testing.T) {
	cache := newFakeCache()
	resolver := newResolver(cache, &fakeMappings{})
	gone := envelope(events.AggregateCustomer, "60", events.EventDeleted, map[string]any{"CustomerId": "60"})
	batch := &fakeBatch{}

	result := resolver.Resolve(context.Background(), invoiceFor("60"), batch, &fakeStream{queue: []events.ChangeEnvelope{gone}})

	assert.False(t, result.Ready)
	assert.False(t, cache.has("CUSTOMER:60"))
	assert.Len(t, batch.items, 1, "the deletion is still kept for the batch")
}

type deadlineStream struct {
	fakeStream
	until time.Time
}

func (s *deadlineStream) WaitDeadline() time.Time { return s.until }

func TestResolveHonoursStreamWaitDeadline(t *testing.T) {
	resolver := newResolver(newFakeCache(), &fakeMappings{})
	resolver.Config.MaxWait = time.Minute

	started := time.Now()
	result := resolver.Resolve(context.Background(), invoiceFor("60"), &fakeBatch{},
		&deadlineStream{until: started.Add(20 * time.Millisecond)})
	assert.False(t, result.Ready)
	assert.Less(t, time.Since(started), time.Second)
}

func TestResolveCacheHitSkipsMappingStore(t *testing.T) {
	cache := newFakeCache()
	mappings := &fakeMappings{old: map[int64]bool{60: true}}
	resolver := newResolver(cache, mappings)
	resolver.Config.MaxWait = 0

	first := resolver.Resolve(context.Background(), invoiceFor("60"), &fakeBatch{}, &fakeStream{})
	require.True(t, first.Ready)
	require.Equal(t, 1, mappings.queries)

	second := resolver.Resolve(context.Background(), invoiceFor("60"), &fakeBatch{}, &fakeStream{})
	assert.True(t, second.Ready)
	assert.Equal(t, 1, mappings.queries, "cache hit must not query the mapping store again")
}

func TestResolveFindsPrerequisiteInBatch(t *testing.T) {
	cache := newFakeCache()
	resolver := newResolver(cache, &fakeMappings{})
	batch := &fakeBatch{}
	batch.Append(envelope(events.AggregateCustomer, "60", events.EventCreated, nil))

	result := resolver.Resolve(context.Background(), invoiceFor("60"), batch, &fakeStream{})

	assert.True(t, result.Ready)
	assert.Equal(t, []string{"CUSTOMER:60"}, result.BatchKeys)
	assert.False(t, cache.has("CUSTOMER:60"), "an unapplied batch member is not a confirmed fact")
}

func TestResolveNewToOldUsesUUIDMapping(t *testing.T) {
	customerID := uuid.New()
	mappings := &fakeMappings{new: map[uuid.UUID]bool{customerID: true}}
	resolver := newResolver(newFakeCache(), mappings)
	resolver.Config.MaxWait = 0
	env := invoiceFor(customerID.String())
	env.Direction = events.NewToOld

	assert.True(t, resolver.Resolve(context.Background(), env, nil, nil).Ready)

	env = invoiceFor("not-a-uuid")
	env.Direction = events.NewToOld
	assert.False(t, resolver.Resolve(context.Background(), env, nil, nil).Ready)
}

func TestResolveRetriesTransientMappingFailures(t *testing.T) {
	mappings := &fakeMappings{err: errStoreDown}
	resolver := newResolver(newFakeCache(), mappings)
	resolver.Config.MaxWait = 0

	result := resolver.Resolve(context.Background(), invoiceFor("60"), nil, nil)
	assert.False(t, result.Ready)
	assert.Equal(t, 2, mappings.queries)
}

func TestResolveSkipsDeletesAndEmbeddedAddresses(t *testing.T) {
	mappings := &fakeMappings{}
	resolver := newResolver(newFakeCache(), mappings)

	deleted := envelope(events.AggregateInvoice, "414", events.EventDeleted, map[string]any{"CustomerId": "60"})
	assert.True(t, resolver.Resolve(context.Background(), deleted, nil, &fakeStream{}).Ready)

	customer := envelope(events.AggregateCustomer, "60", events.EventUpdated, map[string]any{
		"AddressId": entities.CreateNewAddressSentinel,
	})
	assert.True(t, resolver.Resolve(context.Background(), customer, nil, &fakeStream{}).Ready)
	assert.Zero(t, mappings.queries)
}

func TestResolveMissingDependencyID(t *testing.T) {
	resolver := newResolver(newFakeCache(), &fakeMappings{})
	orphan := envelope(events.AggregateInvoice, "414", events.EventCreated, map[string]any{"InvoiceId": "414"})

	assert.True(t, resolver.Resolve(context.Background(), orphan, nil, nil).Ready)

	resolver.Config.StrictMissingDependency = true
	assert.False(t, resolver.Resolve(context.Background(), orphan, nil, nil).Ready)
}

func TestResolveChainHeadIsAlwaysReady(t *testing.T) {
	resolver := newResolver(newFakeCache(), &fakeMappings{})
	address := envelope(events.AggregateAddress, uuid.NewString(), events.EventCreated, nil)
	address.Direction = events.NewToOld

	assert.True(t, resolver.Resolve(context.Background(), address, nil, nil).Ready)
}

func TestResolveStopsWaitingOnCancellation(t *testing.T) {
	resolver := newResolver(newFakeCache(), &fakeMappings{})
	resolver.Config.MaxWait = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	started := time.Now()
	result := resolver.Resolve(ctx, invoiceFor("60"), &fakeBatch{}, &fakeStream{})
	assert.False(t, result.Ready)
	assert.Less(t, time.Since(started), 5*time.Second)
}

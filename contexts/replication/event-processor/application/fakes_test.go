package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"schemabridge/contexts/replication/event-processor/domain/services"
	"schemabridge/internal/shared/events"
)

func envelope(aggregate events.AggregateType, id string, eventType events.EventType, payload map[string]any) events.ChangeEnvelope {
	doc, _ := json.Marshal(payload)
	return events.ChangeEnvelope{
		EventID:          id,
		AggregateID:      id,
		AggregateType:    aggregate,
		EventType:        eventType,
		Payload:          doc,
		UniqueIdentifier: uuid.NewString(),
		Direction:        events.OldToNew,
	}
}

func wire(t *testing.T, env events.ChangeEnvelope) []byte {
	t.Helper()
	raw, err := services.Encode(env)
	require.NoError(t, err)
	return raw
}

// fakeStream hands out queued envelopes, idling for the timeout when empty.
type fakeStream struct {
	queue []events.ChangeEnvelope
}

func (s *fakeStream) Next(ctx context.Context, timeout time.Duration) (events.ChangeEnvelope, bool, error) {
	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		return next, true, nil
	}
	select {
	case <-ctx.Done():
		return events.ChangeEnvelope{}, false, ctx.Err()
	case <-time.After(timeout):
		return events.ChangeEnvelope{}, false, nil
	}
}

type fakeBatch struct {
	items []events.ChangeEnvelope
}

func (b *fakeBatch) Contains(aggregate events.AggregateType, id string) bool {
	for _, item := range b.items {
		if item.AggregateType == aggregate && item.AggregateID == id {
			return true
		}
	}
	return false
}

func (b *fakeBatch) Append(env events.ChangeEnvelope) {
	b.items = append(b.items, env)
}

type fakeCache struct {
	mu    sync.Mutex
	facts map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{facts: make(map[string]bool)}
}

func (c *fakeCache) IsSatisfied(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.facts[key], nil
}

func (c *fakeCache) MarkSatisfied(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.facts[key] = true
	return nil
}

func (c *fakeCache) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.facts, key)
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.facts[key]
}

type fakeMappings struct {
	old     map[int64]bool
	new     map[uuid.UUID]bool
	err     error
	queries int
}

func (m *fakeMappings) MappingExistsOld(_ context.Context, oldID int64) (bool, error) {
	m.queries++
	if m.err != nil {
		return false, m.err
	}
	return m.old[oldID], nil
}

func (m *fakeMappings) MappingExistsNew(_ context.Context, newID uuid.UUID) (bool, error) {
	m.queries++
	if m.err != nil {
		return false, m.err
	}
	return m.new[newID], nil
}

// recorder captures applied envelopes across every fake applier.
type recorder struct {
	mu      sync.Mutex
	applied []string
}

func (r *recorder) add(entry string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, entry)
}

func (r *recorder) entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.applied...)
}

var errStoreDown = errors.New("store unavailable")

type fakeApplier struct {
	fakeMappings
	aggregate events.AggregateType
	log       *recorder
	failIDs   map[string]bool
	attempts  map[string]int
}

func newFakeApplier(aggregate events.AggregateType, log *recorder) *fakeApplier {
	return &fakeApplier{
		aggregate: aggregate,
		log:       log,
		failIDs:   map[string]bool{},
		attempts:  map[string]int{},
	}
}

func (a *fakeApplier) record(side string, env events.ChangeEnvelope) error {
	a.attempts[env.AggregateID]++
	if a.failIDs[env.AggregateID] {
		return errStoreDown
	}
	a.log.add(side + ":" + env.EventType.OperationLetter() + ":" + string(a.aggregate) + ":" + env.AggregateID)
	return nil
}

func (a *fakeApplier) AddToNew(_ context.Context, env events.ChangeEnvelope) error {
	return a.record("new", env)
}

func (a *fakeApplier) AddToOld(_ context.Context, env events.ChangeEnvelope) error {
	return a.record("old", env)
}

func (a *fakeApplier) UpdateInNew(_ context.Context, env events.ChangeEnvelope) error {
	return a.record("new", env)
}

func (a *fakeApplier) UpdateInOld(_ context.Context, env events.ChangeEnvelope) error {
	return a.record("old", env)
}

func (a *fakeApplier) DeleteFromNew(_ context.Context, env events.ChangeEnvelope) error {
	return a.record("new", env)
}

func (a *fakeApplier) DeleteFromOld(_ context.Context, env events.ChangeEnvelope) error {
	return a.record("old", env)
}

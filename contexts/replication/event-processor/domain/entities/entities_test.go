package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemabridge/internal/shared/events"
)

func TestPrerequisiteUsesImmediatePredecessor(t *testing.T) {
	lists := DefaultPriorityLists()

	dep, field, ok := lists[0].Prerequisite(events.AggregateInvoiceLine)
	require.True(t, ok)
	assert.Equal(t, events.AggregateInvoice, dep.EntityType)
	assert.Equal(t, "InvoiceId", field)

	dep, field, ok = lists[1].Prerequisite(events.AggregateCustomer)
	require.True(t, ok)
	assert.Equal(t, events.AggregateAddress, dep.EntityType)
	assert.Equal(t, "AddressId", field)

	_, _, ok = lists[0].Prerequisite(events.AggregateCustomer)
	assert.False(t, ok, "chain head has no prerequisite")
	_, _, ok = lists[1].Prerequisite(events.AggregateInvoice)
	assert.False(t, ok)
}

func TestAddressEmbeddedInEvent(t *testing.T) {
	assert.True(t, AddressEmbeddedInEvent(events.AggregateAddress, CreateNewAddressSentinel))
	assert.False(t, AddressEmbeddedInEvent(events.AggregateCustomer, CreateNewAddressSentinel))
	assert.False(t, AddressEmbeddedInEvent(events.AggregateAddress, "0b7f3c1e-9d61-4d62-9f55-4e0f1c3a2b10"))
}

func TestProcessingStateTransitions(t *testing.T) {
	state, err := StateReceived.Transition(StateResolving)
	require.NoError(t, err)
	state, err = state.Transition(StateDeferred)
	require.NoError(t, err)
	state, err = state.Transition(StateResolving)
	require.NoError(t, err)
	state, err = state.Transition(StateReady)
	require.NoError(t, err)
	state, err = state.Transition(StateSorted)
	require.NoError(t, err)
	state, err = state.Transition(StateDispatching)
	require.NoError(t, err)
	state, err = state.Transition(StateApplied)
	require.NoError(t, err)
	assert.Equal(t, StateApplied, state)

	_, err = StateApplied.Transition(StateResolving)
	assert.Error(t, err)
	_, err = StateReceived.Transition(StateApplied)
	assert.Error(t, err)
	assert.True(t, StateReceived.CanTransition(StateIgnored))
}

package entities

import "schemabridge/internal/shared/events"

// CreateNewAddressSentinel is the AddressId the legacy customer trigger emits.
// The legacy schema stores the address on the customer row, so the address is
// created in the same transaction as the customer that carries it.
const CreateNewAddressSentinel = "CREATE_NEW_ADDRESS"

// AddressEmbeddedInEvent reports whether a dependency on an address is
// satisfied by the event itself and must not be waited for.
func AddressEmbeddedInEvent(dependency events.AggregateType, id string) bool {
	return dependency == events.AggregateAddress && id == CreateNewAddressSentinel
}

// PriorityDependency is one link of a PriorityList.
// For every element after the first, ForeignKeyField is the field on that
// element's events which points at the element before it. For the head it is
// the head's own identity field.
type PriorityDependency struct {
	EntityType      events.AggregateType
	ForeignKeyField string
}

// PriorityList is an ordered dependency chain: each element depends on all
// elements before it.
type PriorityList []PriorityDependency

// Position returns the index of aggregate in the chain or -1.
func (l PriorityList) Position(aggregate events.AggregateType) int {
	for i, dep := range l {
		if dep.EntityType == aggregate {
			return i
		}
	}
	return -1
}

// Prerequisite returns the dependency an aggregate must wait for in this
// chain and the field holding its id. ok is false for the chain head and for
// aggregates outside the chain.
func (l PriorityList) Prerequisite(aggregate events.AggregateType) (PriorityDependency, string, bool) {
	pos := l.Position(aggregate)
	if pos <= 0 {
		return PriorityDependency{}, "", false
	}
	return l[pos-1], l[pos].ForeignKeyField, true
}

func DefaultPriorityLists() []PriorityList {
	return []PriorityList{
		{
			{EntityType: events.AggregateCustomer, ForeignKeyField: "CustomerId"},
			{EntityType: events.AggregateInvoice, ForeignKeyField: "CustomerId"},
			{EntityType: events.AggregateInvoiceLine, ForeignKeyField: "InvoiceId"},
		},
		{
			{EntityType: events.AggregateAddress, ForeignKeyField: "AddressId"},
			{EntityType: events.AggregateCustomer, ForeignKeyField: "AddressId"},
		},
	}
}

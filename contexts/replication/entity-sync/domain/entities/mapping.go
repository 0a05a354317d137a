package entities

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"schemabridge/internal/shared/events"
)

// EntityMapping pairs a legacy integer key with its new-schema UUID.
type EntityMapping struct {
	AggregateType    events.AggregateType
	OldID            int64
	NewID            uuid.UUID
	MappingTimestamp time.Time
}

// AddressKey is the natural key of an address. The legacy schema stores
// addresses inline on the customer row, so addresses are matched by content.
type AddressKey struct {
	Street     string
	City       string
	State      string
	Country    string
	PostalCode string
}

func (k AddressKey) Normalize() AddressKey {
	return AddressKey{
		Street:     strings.TrimSpace(k.Street),
		City:       strings.TrimSpace(k.City),
		State:      strings.TrimSpace(k.State),
		Country:    strings.TrimSpace(k.Country),
		PostalCode: strings.TrimSpace(k.PostalCode),
	}
}

// Empty reports whether no address field is set.
func (k AddressKey) Empty() bool {
	return k.Normalize() == AddressKey{}
}

type AddressMapping struct {
	Key              AddressKey
	NewID            uuid.UUID
	MappingTimestamp time.Time
}

// MappingRef names a mapping to drop by either key. Zero keys are ignored.
type MappingRef struct {
	AggregateType events.AggregateType
	OldID         int64
	NewID         uuid.UUID
}

// Commit is the bookkeeping that must become visible together with a write:
// the ledger entry plus any mapping changes the write implies.
type Commit struct {
	UniqueIdentifier string
	SaveMappings     []EntityMapping
	DropMappings     []MappingRef
	SaveAddresses    []AddressMapping
	DropAddresses    []uuid.UUID
	At               time.Time
}

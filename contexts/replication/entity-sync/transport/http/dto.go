package httptransport

import "time"

type AddressFields struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

type MappingResponse struct {
	AggregateType    string         `json:"aggregate_type"`
	OldID            *int64         `json:"old_id,omitempty"`
	NewID            string         `json:"new_id"`
	Address          *AddressFields `json:"address,omitempty"`
	MappingTimestamp time.Time      `json:"mapping_timestamp"`
}

type LedgerResponse struct {
	UniqueIdentifier string `json:"unique_identifier"`
	Processed        bool   `json:"processed"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

package httpadapter

import (
	"context"
	"log/slog"
	"strings"

	"schemabridge/contexts/replication/entity-sync/application"
	httptransport "schemabridge/contexts/replication/entity-sync/transport/http"
)

type Handler struct {
	Queries application.QueryService
	Logger  *slog.Logger
}

func (h Handler) MappingHandler(ctx context.Context, aggregateType string, id string) (httptransport.MappingResponse, error) {
	view, err := h.Queries.Mapping(ctx, aggregateType, id)
	if err != nil {
		return httptransport.MappingResponse{}, err
	}
	resp := httptransport.MappingResponse{
		AggregateType:    string(view.AggregateType),
		OldID:            view.OldID,
		NewID:            view.NewID,
		MappingTimestamp: view.MappingTimestamp,
	}
	if view.Address != nil {
		resp.Address = &httptransport.AddressFields{
			Street:     view.Address.Street,
			City:       view.Address.City,
			State:      view.Address.State,
			Country:    view.Address.Country,
			PostalCode: view.Address.PostalCode,
		}
	}
	return resp, nil
}

func (h Handler) LedgerHandler(ctx context.Context, uniqueIdentifier string) (httptransport.LedgerResponse, error) {
	processed, err := h.Queries.Processed(ctx, uniqueIdentifier)
	if err != nil {
		return httptransport.LedgerResponse{}, err
	}
	return httptransport.LedgerResponse{
		UniqueIdentifier: strings.TrimSpace(uniqueIdentifier),
		Processed:        processed,
	}, nil
}

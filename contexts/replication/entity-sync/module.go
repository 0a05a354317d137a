package entitysync

import (
	"log/slog"

	httpadapter "schemabridge/contexts/replication/entity-sync/adapters/http"
	"schemabridge/contexts/replication/entity-sync/adapters/memory"
	"schemabridge/contexts/replication/entity-sync/application"
	"schemabridge/contexts/replication/entity-sync/ports"
)

type Module struct {
	Customers    application.CustomerService
	Invoices     application.InvoiceService
	InvoiceLines application.InvoiceLineService
	Addresses    application.AddressService
	Queries      application.QueryService
	Handler      httpadapter.Handler

	Store  *memory.Store
	Legacy *memory.LegacyStore
}

type Dependencies struct {
	Mappings   ports.MappingStore
	Ledger     ports.Ledger
	Bookkeeper ports.Bookkeeper
	NewSchema  ports.NewSchemaRepository
	Legacy     ports.LegacyRepository
	Clock      ports.Clock
	Logger     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	stores := application.Stores{
		Mappings:   deps.Mappings,
		Ledger:     deps.Ledger,
		Bookkeeper: deps.Bookkeeper,
		NewSchema:  deps.NewSchema,
		Legacy:     deps.Legacy,
		Clock:      deps.Clock,
		Logger:     deps.Logger,
	}
	queries := application.QueryService{
		Mappings: deps.Mappings,
		Ledger:   deps.Ledger,
	}
	return Module{
		Customers:    application.CustomerService{Stores: stores},
		Invoices:     application.InvoiceService{Stores: stores},
		InvoiceLines: application.InvoiceLineService{Stores: stores},
		Addresses:    application.AddressService{Stores: stores},
		Queries:      queries,
		Handler: httpadapter.Handler{
			Queries: queries,
			Logger:  deps.Logger,
		},
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	legacy := memory.NewLegacyStore()
	module := NewModule(Dependencies{
		Mappings:   store,
		Ledger:     store,
		Bookkeeper: store,
		NewSchema:  store,
		Legacy:     legacy,
		Clock:      store,
		Logger:     logger,
	})
	module.Store = store
	module.Legacy = legacy
	return module
}

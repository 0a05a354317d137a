package eventprocessor

import (
	"log/slog"
	"time"

	"schemabridge/contexts/replication/event-processor/adapters/memory"
	"schemabridge/contexts/replication/event-processor/application"
	"schemabridge/contexts/replication/event-processor/domain/entities"
	"schemabridge/contexts/replication/event-processor/ports"
	"schemabridge/internal/platform/retry"
	"schemabridge/internal/shared/events"
)

type Module struct {
	OldToNew *application.EventProcessor
	NewToOld *application.EventProcessor
	State    *application.RunState
	Commands application.CommandTable

	// Set by NewInMemoryModule only.
	Sources map[events.Direction]*memory.Source
	Cache   *memory.Cache
}

type Dependencies struct {
	OldToNewSource ports.MessageSource
	NewToOldSource ports.MessageSource
	Appliers       map[events.AggregateType]ports.EntityApplier
	Cache          ports.DependencyCache
	Clock          ports.Clock
	Metrics        ports.ProcessorMetrics
	Retry          retry.Policy
	Resolver       application.ResolverConfig
	PriorityLists  []entities.PriorityList
	BatchSize      int
	PollTimeout    time.Duration
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	lists := deps.PriorityLists
	if len(lists) == 0 {
		lists = entities.DefaultPriorityLists()
	}
	mappings := make(map[events.AggregateType]ports.MappingChecker, len(deps.Appliers))
	for aggregate, applier := range deps.Appliers {
		mappings[aggregate] = applier
	}
	resolver := application.DependencyResolver{
		Lists:    lists,
		Cache:    deps.Cache,
		Mappings: mappings,
		Clock:    deps.Clock,
		Retry:    deps.Retry,
		Metrics:  deps.Metrics,
		Config:   deps.Resolver,
		Logger:   deps.Logger,
	}
	commands := application.NewCommandTable(deps.Appliers)
	state := application.NewRunState()

	processor := func(direction events.Direction, source ports.MessageSource) *application.EventProcessor {
		if source == nil {
			return nil
		}
		return &application.EventProcessor{
			Direction:   direction,
			Source:      source,
			Resolver:    resolver,
			Commands:    commands,
			Retry:       deps.Retry,
			Metrics:     deps.Metrics,
			State:       state,
			BatchSize:   deps.BatchSize,
			PollTimeout: deps.PollTimeout,
			Logger:      deps.Logger,
		}
	}
	return Module{
		OldToNew: processor(events.OldToNew, deps.OldToNewSource),
		NewToOld: processor(events.NewToOld, deps.NewToOldSource),
		State:    state,
		Commands: commands,
	}
}

// Processors lists the configured consume loops.
func (m Module) Processors() []*application.EventProcessor {
	out := make([]*application.EventProcessor, 0, 2)
	for _, processor := range []*application.EventProcessor{m.OldToNew, m.NewToOld} {
		if processor != nil {
			out = append(out, processor)
		}
	}
	return out
}

func NewInMemoryModule(appliers map[events.AggregateType]ports.EntityApplier, logger *slog.Logger) Module {
	oldToNew := memory.NewSource()
	newToOld := memory.NewSource()
	cache := memory.NewCache(time.Minute, nil)
	module := NewModule(Dependencies{
		OldToNewSource: oldToNew,
		NewToOldSource: newToOld,
		Appliers:       appliers,
		Cache:          cache,
		Retry:          retry.DefaultPolicy(),
		Resolver: application.ResolverConfig{
			Delay:             10 * time.Millisecond,
			AdditionalConsume: 20 * time.Millisecond,
			MaxWait:           100 * time.Millisecond,
		},
		PollTimeout: 10 * time.Millisecond,
		Logger:      logger,
	})
	module.Sources = map[events.Direction]*memory.Source{
		events.OldToNew: oldToNew,
		events.NewToOld: newToOld,
	}
	module.Cache = cache
	return module
}

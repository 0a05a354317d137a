package application

import (
	"context"
	"fmt"

	domainerrors "schemabridge/contexts/replication/event-processor/domain/errors"
	"schemabridge/contexts/replication/event-processor/ports"
	"schemabridge/internal/shared/events"
	"schemabridge/internal/shared/outbox"
)

// Operation is the single-letter operation code of a change.
type Operation string

const (
	OpInsert Operation = "c"
	OpUpdate Operation = "u"
	OpDelete Operation = "d"
)

func operationOf(eventType events.EventType) Operation {
	return Operation(eventType.OperationLetter())
}

// CommandKey addresses the dispatch table.
type CommandKey struct {
	Direction events.Direction
	Table     outbox.Table
	Op        Operation
}

func KeyFor(envelope events.ChangeEnvelope) CommandKey {
	table := outbox.Table(envelope.Table)
	if table == "" {
		table = outbox.TableFor(envelope.AggregateType)
	}
	return CommandKey{
		Direction: envelope.Direction,
		Table:     table,
		Op:        operationOf(envelope.EventType),
	}
}

// Command is one variant of {Insert, Update, Delete} x aggregate, bound to the
// aggregate's apply service. The zero Command is the not-found variant.
type Command struct {
	Aggregate events.AggregateType
	Op        Operation
	applier   ports.EntityApplier
}

// Found reports whether this is a registered variant.
func (c Command) Found() bool {
	return c.applier != nil
}

func (c Command) ApplyToNew(ctx context.Context, envelope events.ChangeEnvelope) error {
	if !c.Found() {
		return domainerrors.ErrUnknownCommand
	}
	switch c.Op {
	case OpInsert:
		return c.applier.AddToNew(ctx, envelope)
	case OpUpdate:
		return c.applier.UpdateInNew(ctx, envelope)
	case OpDelete:
		return c.applier.DeleteFromNew(ctx, envelope)
	default:
		return domainerrors.ErrUnknownCommand
	}
}

func (c Command) ApplyToOld(ctx context.Context, envelope events.ChangeEnvelope) error {
	if !c.Found() {
		return domainerrors.ErrUnknownCommand
	}
	switch c.Op {
	case OpInsert:
		return c.applier.AddToOld(ctx, envelope)
	case OpUpdate:
		return c.applier.UpdateInOld(ctx, envelope)
	case OpDelete:
		return c.applier.DeleteFromOld(ctx, envelope)
	default:
		return domainerrors.ErrUnknownCommand
	}
}

// Apply routes the envelope to the side opposite to where it was captured.
func (c Command) Apply(ctx context.Context, envelope events.ChangeEnvelope) error {
	switch envelope.Direction {
	case events.OldToNew:
		return c.ApplyToNew(ctx, envelope)
	case events.NewToOld:
		return c.ApplyToOld(ctx, envelope)
	default:
		return fmt.Errorf("%w: %q", domainerrors.ErrInvalidDirection, envelope.Direction)
	}
}

// CommandTable is the static dispatch table built once at startup.
type CommandTable struct {
	commands map[CommandKey]Command
}

// NewCommandTable registers a command for every outbox table each side
// exposes and every operation, for the aggregates that have an applier.
func NewCommandTable(appliers map[events.AggregateType]ports.EntityApplier) CommandTable {
	table := CommandTable{commands: make(map[CommandKey]Command)}
	for _, direction := range []events.Direction{events.OldToNew, events.NewToOld} {
		for _, aggregate := range events.AllAggregateTypes() {
			applier, ok := appliers[aggregate]
			if !ok || applier == nil {
				continue
			}
			tableName := outbox.TableFor(aggregate)
			if !exposes(direction, tableName) {
				continue
			}
			for _, op := range []Operation{OpInsert, OpUpdate, OpDelete} {
				table.commands[CommandKey{Direction: direction, Table: tableName, Op: op}] = Command{
					Aggregate: aggregate,
					Op:        op,
					applier:   applier,
				}
			}
		}
	}
	return table
}

// Lookup returns the registered command or the not-found variant.
func (t CommandTable) Lookup(key CommandKey) Command {
	return t.commands[key]
}

func (t CommandTable) Len() int {
	return len(t.commands)
}

func exposes(direction events.Direction, table outbox.Table) bool {
	for _, candidate := range outbox.Tables(direction) {
		if candidate == table {
			return true
		}
	}
	return false
}

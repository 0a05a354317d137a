package services

import (
	"sort"

	"schemabridge/contexts/replication/event-processor/domain/entities"
	"schemabridge/internal/shared/events"
)

// ChainDepths returns, for every aggregate mentioned by a chain, the length of
// the longest prerequisite path leading to it. Address=0, Customer=1,
// Invoice=2, InvoiceLine=3 for the default lists.
func ChainDepths(lists []entities.PriorityList) map[events.AggregateType]int {
	depths := make(map[events.AggregateType]int)
	for _, list := range lists {
		for _, dep := range list {
			depths[dep.EntityType] = 0
		}
	}
	// Relax at most once per aggregate; a cyclic declaration stops growing.
	for round := 0; round < len(depths); round++ {
		changed := false
		for _, list := range lists {
			for i := 1; i < len(list); i++ {
				candidate := depths[list[i-1].EntityType] + 1
				if candidate > depths[list[i].EntityType] {
					depths[list[i].EntityType] = candidate
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
	return depths
}

// SortByPriority stably reorders items so that prerequisites precede their
// dependents. Creates and updates are ordered parents first; deletes follow
// them, children first. Items whose aggregate no chain mentions keep their
// original slot.
func SortByPriority[T any](items []T, envelope func(T) events.ChangeEnvelope, lists []entities.PriorityList) []T {
	sorted := append([]T(nil), items...)
	if len(sorted) < 2 {
		return sorted
	}

	depths := ChainDepths(lists)
	maxDepth := 0
	for _, depth := range depths {
		if depth > maxDepth {
			maxDepth = depth
		}
	}
	rank := func(env events.ChangeEnvelope) int {
		depth := depths[env.AggregateType]
		if env.EventType == events.EventDeleted {
			return maxDepth + 1 + (maxDepth - depth)
		}
		return depth
	}

	slots := make([]int, 0, len(sorted))
	covered := make([]T, 0, len(sorted))
	for i, item := range sorted {
		if _, ok := depths[envelope(item).AggregateType]; ok {
			slots = append(slots, i)
			covered = append(covered, item)
		}
	}
	sort.SliceStable(covered, func(i, j int) bool {
		return rank(envelope(covered[i])) < rank(envelope(covered[j]))
	})
	for i, slot := range slots {
		sorted[slot] = covered[i]
	}
	return sorted
}

// SortEvents orders a batch of envelopes by the priority lists.
func SortEvents(batch []events.ChangeEnvelope, lists []entities.PriorityList) []events.ChangeEnvelope {
	return SortByPriority(batch, func(env events.ChangeEnvelope) events.ChangeEnvelope { return env }, lists)
}

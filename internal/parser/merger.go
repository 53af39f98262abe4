package parser

import (
	"sort"

	"github.com/pjw7536/react-timeline2/internal/models"
)

// MergeKinds merges per-kind event sets into one set sorted by eventTime, then
// kind order, then id. The result does not depend on the order in which the
// sets arrived. Events sharing an id collapse to the first in sort order.
func MergeKinds(sets map[models.Kind][]models.LogEvent) []models.LogEvent {
	total := 0
	for _, events := range sets {
		total += len(events)
	}
	if total == 0 {
		return []models.LogEvent{}
	}

	all := make([]models.LogEvent, 0, total)
	for _, kind := range models.AllKinds {
		all = append(all, sets[kind]...)
	}
	// Kinds outside AllKinds still merge, after the known ones.
	for kind, events := range sets {
		if !kind.Valid() {
			all = append(all, events...)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return LessEvent(all[i], all[j])
	})

	return dedupeByID(all)
}

// LessEvent is the canonical ascending order of the merged set.
func LessEvent(a, b models.LogEvent) bool {
	if !a.EventTime.Equal(b.EventTime) {
		return a.EventTime.Before(b.EventTime)
	}
	if a.Kind != b.Kind {
		if ao, bo := a.Kind.Order(), b.Kind.Order(); ao != bo {
			return ao < bo
		}
		return a.Kind < b.Kind
	}
	return a.ID < b.ID
}

func dedupeByID(events []models.LogEvent) []models.LogEvent {
	seen := make(map[string]struct{}, len(events))
	result := events[:0]
	for _, ev := range events {
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		result = append(result, ev)
	}
	return result
}

// TimeSpan returns the first and last eventTime of a merged set, or nil.
func TimeSpan(events []models.LogEvent) *models.TimeRange {
	if len(events) == 0 {
		return nil
	}
	return &models.TimeRange{
		Min: events[0].EventTime,
		Max: events[len(events)-1].EventTime,
	}
}

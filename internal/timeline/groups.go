package timeline

import (
	"sort"
	"time"

	"github.com/pjw7536/react-timeline2/internal/models"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// LaneGroup is one interlock sub-group.
type LaneGroup struct {
	Key     models.GroupKey `json:"key"`
	Process string          `json:"process"`
	Step    string          `json:"step"`
	PartID  string          `json:"partId"`
	Count   int             `json:"count"`
}

// GroupInterlocks builds the interlock sub-groups and indexes events by group
// in one pass. Groups are ordered by process, step and part id using
// locale-aware collation; events keep their input order within a group.
func GroupInterlocks(events []models.LogEvent) ([]LaneGroup, map[models.GroupKey][]models.LogEvent) {
	index := make(map[models.GroupKey][]models.LogEvent)
	byKey := make(map[models.GroupKey]*LaneGroup)
	groups := make([]*LaneGroup, 0)

	for _, ev := range events {
		if ev.Kind != models.KindInterlock {
			continue
		}
		key := ev.GroupKey()
		g, ok := byKey[key]
		if !ok {
			process, step, partID := groupParts(ev)
			g = &LaneGroup{Key: key, Process: process, Step: step, PartID: partID}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.Count++
		index[key] = append(index[key], ev)
	}

	SortGroups(groups)

	out := make([]LaneGroup, len(groups))
	for i, g := range groups {
		out[i] = *g
	}
	return out, index
}

// SortGroups orders groups by process, then step, then part id.
func SortGroups(groups []*LaneGroup) {
	c := collate.New(language.Und, collate.Numeric)
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if r := c.CompareString(a.Process, b.Process); r != 0 {
			return r < 0
		}
		if r := c.CompareString(a.Step, b.Step); r != 0 {
			return r < 0
		}
		return c.CompareString(a.PartID, b.PartID) < 0
	})
}

// ContinuousByGroup reconstructs interlock intervals per sub-group, never
// across groups.
func ContinuousByGroup(groups []LaneGroup, index map[models.GroupKey][]models.LogEvent, loc *time.Location) map[models.GroupKey][]Interval {
	out := make(map[models.GroupKey][]Interval, len(groups))
	for _, g := range groups {
		out[g.Key] = MakeContinuous(index[g.Key], loc)
	}
	return out
}

// ResolveDurations returns a copy of events where state-kind durations come
// from continuous reconstruction (interlocks per sub-group). The last interval
// of each lane keeps a nil duration since its end is synthetic. Order is kept.
func ResolveDurations(events []models.LogEvent, loc *time.Location) []models.LogEvent {
	durations := make(map[string]int64)
	collect := func(ivs []Interval) {
		for _, iv := range ivs {
			if !iv.OpenEnded && iv.Duration != nil {
				durations[iv.ID] = *iv.Duration
			}
		}
	}

	var states []models.LogEvent
	for _, ev := range events {
		if ev.Kind == models.KindEquipmentState {
			states = append(states, ev)
		}
	}
	collect(MakeContinuous(states, loc))

	groups, index := GroupInterlocks(events)
	for _, ivs := range ContinuousByGroup(groups, index, loc) {
		collect(ivs)
	}

	out := make([]models.LogEvent, len(events))
	for i, ev := range events {
		if ev.Kind.IsState() {
			ev.Duration = nil
			if d, ok := durations[ev.ID]; ok {
				ev.Duration = &d
			}
		}
		out[i] = ev
	}
	return out
}

func groupParts(ev models.LogEvent) (string, string, string) {
	return orUnknown(ev.Process), orUnknown(ev.Step), orUnknown(ev.PartID)
}

func orUnknown(s string) string {
	if s == "" {
		return models.UnknownGroupPart
	}
	return s
}

package timeline

import (
	"sort"
	"time"

	"github.com/pjw7536/react-timeline2/internal/models"
)

// Interval is an event placed on a lane. EndTime and Duration of the embedded
// event are filled for range items.
type Interval struct {
	models.LogEvent
	Type models.ItemType `json:"type"`
	// OpenEnded marks a synthetic end at the next midnight. It is a display
	// bound, not an observed end.
	OpenEnded bool `json:"openEnded,omitempty"`
}

// Start returns the interval start.
func (iv Interval) Start() time.Time {
	return iv.EventTime
}

// End returns the interval end, or the start for point items.
func (iv Interval) End() time.Time {
	if iv.EndTime == nil {
		return iv.EventTime
	}
	return *iv.EndTime
}

// MakeContinuous turns a lane of state events into back-to-back intervals.
// Each interval ends where the next begins; the last ends at the next local
// midnight after its start. The input is not modified.
func MakeContinuous(events []models.LogEvent, loc *time.Location) []Interval {
	if len(events) == 0 {
		return nil
	}
	sorted := make([]models.LogEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EventTime.Before(sorted[j].EventTime)
	})

	out := make([]Interval, len(sorted))
	last := len(sorted) - 1
	for i, ev := range sorted {
		iv := Interval{Type: models.ItemRange}
		if i < last {
			iv.LogEvent = ev.WithEnd(sorted[i+1].EventTime)
		} else {
			iv.LogEvent = ev.WithEnd(NextDay(ev.EventTime, loc))
			iv.OpenEnded = true
		}
		out[i] = iv
	}
	return out
}

// Points places events without reconstruction: range when the event carries
// an explicit end, point otherwise.
func Points(events []models.LogEvent) []Interval {
	out := make([]Interval, 0, len(events))
	for _, ev := range events {
		iv := Interval{LogEvent: ev, Type: models.ItemPoint}
		if ev.EndTime != nil {
			iv.Type = models.ItemRange
		}
		out = append(out, iv)
	}
	return out
}

// Place applies MakeContinuous to state kinds when continuous is set and
// Points otherwise. INTERLOCK events must already belong to one sub-group.
func Place(kind models.Kind, events []models.LogEvent, continuous bool, loc *time.Location) []Interval {
	if continuous && kind.IsState() {
		return MakeContinuous(events, loc)
	}
	return Points(events)
}

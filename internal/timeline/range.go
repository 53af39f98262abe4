// Package timeline computes shared time windows and reconstructs continuous
// state intervals from point-in-time log events.
package timeline

import (
	"time"

	"github.com/pjw7536/react-timeline2/internal/models"
)

// OneDay is the minimum buffer added on each side of a range.
const OneDay = 24 * time.Hour

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(location(loc))
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// NextDay returns local midnight of the day after the one containing t.
// Uses the calendar, so DST days still land on midnight.
func NextDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(location(loc))
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
}

// CalcRange returns the min and max eventTime of events. endTime is ignored.
// An empty set yields [startOfToday, startOfTomorrow) for now in loc.
func CalcRange(events []models.LogEvent, now time.Time, loc *time.Location) models.TimeRange {
	if len(events) == 0 {
		return models.TimeRange{
			Min: StartOfDay(now, loc),
			Max: NextDay(now, loc),
		}
	}

	r := models.TimeRange{Min: events[0].EventTime, Max: events[0].EventTime}
	for _, ev := range events[1:] {
		if ev.EventTime.Before(r.Min) {
			r.Min = ev.EventTime
		}
		if ev.EventTime.After(r.Max) {
			r.Max = ev.EventTime
		}
	}
	return r
}

// AddBuffer widens both ends of r by max(span*ratio, floor). A non-positive
// floor means OneDay.
func AddBuffer(r models.TimeRange, ratio float64, floor time.Duration) models.TimeRange {
	if floor <= 0 {
		floor = OneDay
	}
	pad := time.Duration(float64(r.Span()) * ratio)
	if pad < floor {
		pad = floor
	}
	return models.TimeRange{
		Min: r.Min.Add(-pad),
		Max: r.Max.Add(pad),
	}
}

// Buffer is a configured AddBuffer policy.
type Buffer struct {
	Ratio float64
	Floor time.Duration
}

// Apply widens r by the policy.
func (b Buffer) Apply(r models.TimeRange) models.TimeRange {
	return AddBuffer(r, b.Ratio, b.Floor)
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}

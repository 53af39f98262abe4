// Package view projects the merged event set into table rows and timeline
// lanes. Every function here is pure.
package view

import (
	"sort"
	"time"

	"github.com/pjw7536/react-timeline2/internal/filter"
	"github.com/pjw7536/react-timeline2/internal/models"
)

// DisplayTimeFormat is the table timestamp layout.
const DisplayTimeFormat = "2006-01-02 15:04:05"

// TableRow is one row of the combined log table.
type TableRow struct {
	ID               string      `json:"id" msgpack:"id"`
	Timestamp        int64       `json:"timestamp" msgpack:"timestamp"`
	DisplayTimestamp string      `json:"displayTimestamp" msgpack:"displayTimestamp"`
	Kind             models.Kind `json:"kind" msgpack:"kind"`
	PrimaryInfo      string      `json:"primaryInfo" msgpack:"primaryInfo"`
	SecondaryInfo    string      `json:"secondaryInfo" msgpack:"secondaryInfo"`
	Duration         *int64      `json:"duration,omitempty" msgpack:"duration,omitempty"`
	URL              string      `json:"url,omitempty" msgpack:"url,omitempty"`
}

// TableRows filters events by kind and projects them newest first. Ties are
// broken by kind order, then id.
func TableRows(events []models.LogEvent, filters filter.TypeFilters, loc *time.Location) []TableRow {
	if loc == nil {
		loc = time.Local
	}
	visible := filters.Apply(events)
	sort.SliceStable(visible, func(i, j int) bool {
		a, b := visible[i], visible[j]
		if !a.EventTime.Equal(b.EventTime) {
			return a.EventTime.After(b.EventTime)
		}
		if ao, bo := a.Kind.Order(), b.Kind.Order(); ao != bo {
			return ao < bo
		}
		return a.ID < b.ID
	})

	rows := make([]TableRow, len(visible))
	for i, ev := range visible {
		rows[i] = TableRow{
			ID:               ev.ID,
			Timestamp:        ev.EventTime.UnixMilli(),
			DisplayTimestamp: ev.EventTime.In(loc).Format(DisplayTimeFormat),
			Kind:             ev.Kind,
			PrimaryInfo:      primaryInfo(ev),
			SecondaryInfo:    orDash(ev.Operator),
			Duration:         ev.Duration,
			URL:              ev.URL,
		}
	}
	return rows
}

func primaryInfo(ev models.LogEvent) string {
	if ev.Kind == models.KindInterlock && (ev.Process != "" || ev.Step != "") {
		return ev.EventType + " (" + ev.Process + "/" + ev.Step + ")"
	}
	return ev.EventType
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Page is the materialized slice of a virtualized table.
type Page struct {
	Rows   []TableRow `json:"rows" msgpack:"rows"`
	Offset int        `json:"offset" msgpack:"offset"`
	Limit  int        `json:"limit" msgpack:"limit"`
	Total  int        `json:"total" msgpack:"total"`
}

// Window returns rows[offset:offset+limit], clamped to the row count.
func Window(rows []TableRow, offset, limit int) Page {
	total := len(rows)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	if limit < 0 {
		limit = 0
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return Page{Rows: rows[offset:end], Offset: offset, Limit: limit, Total: total}
}

// IndexOf returns the position of id in rows, or -1.
func IndexOf(rows []TableRow, id string) int {
	for i, r := range rows {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// ScrollOffset centers row index in a viewport of the given height, clamped
// to the scrollable extent.
func ScrollOffset(index, total, rowHeight, viewportHeight int) int {
	if index < 0 || rowHeight <= 0 {
		return 0
	}
	target := index*rowHeight - viewportHeight/2 + rowHeight/2
	maxOffset := total*rowHeight - viewportHeight
	if target > maxOffset {
		target = maxOffset
	}
	if target < 0 {
		target = 0
	}
	return target
}

// VisibleRange returns the [start, end) rows to materialize for a scroll
// position, including overscan rows on both sides.
func VisibleRange(scrollOffset, viewportHeight, rowHeight, overscan, total int) (int, int) {
	if rowHeight <= 0 || total == 0 {
		return 0, 0
	}
	start := scrollOffset/rowHeight - overscan
	end := (scrollOffset+viewportHeight+rowHeight-1)/rowHeight + overscan
	if start < 0 {
		start = 0
	}
	if end > total {
		end = total
	}
	if start > end {
		start = end
	}
	return start, end
}

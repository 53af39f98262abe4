// Package filter holds the visibility filters applied before projection:
// per-kind type filters and the interlock group selection.
package filter

import (
	"github.com/pjw7536/react-timeline2/internal/models"
)

// TypeFilters maps a kind to its visibility. Missing kinds are visible.
type TypeFilters map[models.Kind]bool

// DefaultTypeFilters returns every kind visible.
func DefaultTypeFilters() TypeFilters {
	f := make(TypeFilters, len(models.AllKinds))
	for _, k := range models.AllKinds {
		f[k] = true
	}
	return f
}

// Visible reports whether kind is shown.
func (f TypeFilters) Visible(kind models.Kind) bool {
	v, ok := f[kind]
	return !ok || v
}

// With returns a copy with kind set to visible.
func (f TypeFilters) With(kind models.Kind, visible bool) TypeFilters {
	out := make(TypeFilters, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out[kind] = visible
	return out
}

// Apply returns the visible events. The input slice is not modified.
func (f TypeFilters) Apply(events []models.LogEvent) []models.LogEvent {
	out := make([]models.LogEvent, 0, len(events))
	for _, ev := range events {
		if f.Visible(ev.Kind) {
			out = append(out, ev)
		}
	}
	return out
}

// Clone returns an independent copy.
func (f TypeFilters) Clone() TypeFilters {
	out := make(TypeFilters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

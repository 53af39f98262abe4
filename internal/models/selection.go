package models

import "strings"

// Origin is the view that initiated a selection.
type Origin string

const (
	OriginTable    Origin = "table"
	OriginTimeline Origin = "timeline"
)

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	return o == OriginTable || o == OriginTimeline
}

// Selection is the selected log id and its origin. The zero value means nothing
// is selected.
type Selection struct {
	ID     string `json:"id,omitempty"`
	Origin Origin `json:"origin,omitempty"`
}

// None reports whether nothing is selected.
func (s Selection) None() bool {
	return s.ID == ""
}

// ItemType distinguishes instantaneous timeline items from intervals.
type ItemType string

const (
	ItemPoint ItemType = "point"
	ItemRange ItemType = "range"
)

// UnknownGroupPart replaces a missing process, step or part id.
const UnknownGroupPart = "unknown"

// GroupKey identifies an interlock sub-group: process_step_partId.
type GroupKey string

// NewGroupKey builds a key, substituting UnknownGroupPart for empty parts.
func NewGroupKey(process, step, partID string) GroupKey {
	return GroupKey(orUnknown(process) + "_" + orUnknown(step) + "_" + orUnknown(partID))
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return UnknownGroupPart
	}
	return s
}

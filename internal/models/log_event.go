// Package models contains domain types for the equipment log timeline.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies one of the five log categories.
type Kind string

const (
	KindEquipmentState Kind = "EQUIPMENT_STATE"
	KindInterlock      Kind = "INTERLOCK"
	KindRecipeChange   Kind = "RECIPE_CHANGE"
	KindAlarm          Kind = "ALARM"
	KindIssue          Kind = "ISSUE"
)

// AllKinds is the fixed display order of the lanes and the table tie-break order.
var AllKinds = []Kind{
	KindEquipmentState,
	KindInterlock,
	KindRecipeChange,
	KindAlarm,
	KindIssue,
}

var kindCodes = map[Kind]string{
	KindEquipmentState: "EQP",
	KindInterlock:      "TIP",
	KindRecipeChange:   "CTTTM",
	KindAlarm:          "RACB",
	KindIssue:          "JIRA",
}

// Code returns the upstream source code of the kind (EQP, TIP, ...).
// It prefixes log ids and names the upstream log routes.
func (k Kind) Code() string {
	return kindCodes[k]
}

// Order returns the position of k in AllKinds, or len(AllKinds) if unknown.
func (k Kind) Order() int {
	for i, kind := range AllKinds {
		if kind == k {
			return i
		}
	}
	return len(AllKinds)
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := kindCodes[k]
	return ok
}

// IsState reports whether events of this kind describe a state that persists
// until superseded.
func (k Kind) IsState() bool {
	return k == KindEquipmentState || k == KindInterlock
}

// ParseKind accepts either the kind name or its source code, case-insensitively.
func ParseKind(s string) (Kind, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for kind, code := range kindCodes {
		if s == string(kind) || s == code {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown log kind: %q", s)
}

// RawRow is one upstream log row before normalization. Shapes differ per kind.
type RawRow map[string]any

// LogEvent is the normalized event shared by every kind.
type LogEvent struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	EventTime time.Time  `json:"eventTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	EventType string     `json:"eventType"`
	Operator  string     `json:"operator,omitempty"`
	Comment   string     `json:"comment,omitempty"`
	URL       string     `json:"url,omitempty"`
	Level     string     `json:"level,omitempty"`

	// INTERLOCK
	Process string `json:"process,omitempty"`
	Step    string `json:"step,omitempty"`
	PartID  string `json:"partId,omitempty"`

	// RECIPE_CHANGE
	Recipe string `json:"recipe,omitempty"`

	// ISSUE
	IssueKey    string `json:"issueKey,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Reporter    string `json:"reporter,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`

	// Duration is derived, in milliseconds. Nil when not applicable.
	Duration *int64 `json:"duration,omitempty"`
}

// GroupKey returns the interlock sub-group key of the event.
func (e LogEvent) GroupKey() GroupKey {
	return NewGroupKey(e.Process, e.Step, e.PartID)
}

// WithEnd returns a copy of e ending at end, with the duration recomputed.
func (e LogEvent) WithEnd(end time.Time) LogEvent {
	e.EndTime = &end
	d := end.Sub(e.EventTime).Milliseconds()
	e.Duration = &d
	return e
}

// TimeRange is the visible window of a timeline. Min is never after Max.
type TimeRange struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

// Span returns Max - Min.
func (r TimeRange) Span() time.Duration {
	return r.Max.Sub(r.Min)
}

// Contains reports whether t lies within [Min, Max].
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Min) && !t.After(r.Max)
}

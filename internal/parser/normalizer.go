// Package parser turns raw upstream log rows into normalized LogEvents.
package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/pjw7536/react-timeline2/internal/models"
)

// Options controls normalization.
type Options struct {
	// Continuous leaves state-kind durations to the interval reconstructor.
	Continuous bool
	// Location reads zone-less timestamps. Defaults to time.Local.
	Location *time.Location
}

// Normalizer converts raw rows of one kind. Implementations are pure.
type Normalizer interface {
	Kind() models.Kind
	Normalize(rows []models.RawRow, opts Options) []models.LogEvent
}

// extractFunc fills the kind-specific attributes of ev from row.
type extractFunc func(ev *models.LogEvent, row models.RawRow, intern *StringIntern)

type kindNormalizer struct {
	kind    models.Kind
	extract extractFunc
	intern  *StringIntern
}

func (n *kindNormalizer) Kind() models.Kind {
	return n.kind
}

// Normalize drops rows without a parseable eventTime and maps the rest.
func (n *kindNormalizer) Normalize(rows []models.RawRow, opts Options) []models.LogEvent {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	code := n.kind.Code()
	seen := make(map[string]int, len(rows))
	events := make([]models.LogEvent, 0, len(rows))

	for _, row := range rows {
		if row == nil {
			continue
		}
		eventTime, ok := timeField(row, loc, "eventTime", "event_time", "timestamp")
		if !ok {
			continue
		}

		ev := models.LogEvent{
			Kind:      n.kind,
			EventTime: eventTime,
			EventType: n.intern.Intern(stringField(row, "eventType", "event_type", "status")),
			Operator:  n.intern.Intern(stringField(row, "operator")),
			Comment:   stringField(row, "comment"),
			URL:       stringField(row, "url"),
			Level:     n.intern.Intern(stringField(row, "level")),
		}
		if end, ok := timeField(row, loc, "endTime", "end_time"); ok {
			ev.EndTime = &end
		}
		if n.extract != nil {
			n.extract(&ev, row, n.intern)
		}

		ev.ID = uniqueID(seen, eventID(code, stringField(row, "id"), eventTime))

		if ev.EndTime != nil && !(opts.Continuous && n.kind.IsState()) {
			d := ev.EndTime.Sub(ev.EventTime).Milliseconds()
			ev.Duration = &d
		}
		events = append(events, ev)
	}
	return events
}

// uniqueID returns id, or id#n with the first n not taken in seen. Every id
// handed out is recorded so a raw id that looks like a suffixed one cannot
// collide with it.
func uniqueID(seen map[string]int, id string) string {
	c := seen[id]
	if c == 0 {
		seen[id] = 1
		return id
	}
	next := id
	for seen[next] > 0 {
		c++
		next = id + "#" + strconv.Itoa(c)
	}
	seen[id] = c
	seen[next] = 1
	return next
}

// eventID prefixes raw ids with the source code, or derives one from the
// event time when the row has no id.
func eventID(code, raw string, eventTime time.Time) string {
	if raw == "" {
		return code + "-" + eventTime.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05.000Z")
	}
	if strings.HasPrefix(raw, code+"-") {
		return raw
	}
	return code + "-" + raw
}

func extractInterlock(ev *models.LogEvent, row models.RawRow, intern *StringIntern) {
	ev.Process = intern.Intern(stringField(row, "process"))
	ev.Step = intern.Intern(stringField(row, "step"))
	ev.PartID = intern.Intern(stringField(row, "partId", "part_id", "ppid"))
}

func extractRecipe(ev *models.LogEvent, row models.RawRow, intern *StringIntern) {
	ev.Recipe = intern.Intern(stringField(row, "recipe", "recipe_id"))
}

// IssueURLBase is the browse URL used when an issue row carries no url.
const IssueURLBase = "https://jira.example.com/browse/"

func extractIssue(ev *models.LogEvent, row models.RawRow, intern *StringIntern) {
	ev.IssueKey = stringField(row, "issueKey", "issue_key")
	ev.Assignee = intern.Intern(stringField(row, "assignee"))
	ev.Priority = intern.Intern(stringField(row, "priority"))
	ev.Reporter = intern.Intern(stringField(row, "reporter"))
	ev.Summary = stringField(row, "summary")
	ev.Description = stringField(row, "description")
	if ev.URL == "" && ev.IssueKey != "" {
		ev.URL = IssueURLBase + ev.IssueKey
	}
}

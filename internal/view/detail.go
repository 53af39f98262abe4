package view

import (
	"strconv"
	"time"

	"github.com/pjw7536/react-timeline2/internal/models"
)

// Field is one label/value pair of the detail panel.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Wide  bool   `json:"wide,omitempty"`
	Link  bool   `json:"link,omitempty"`
}

// Detail lists the detail panel fields of ev in display order.
func Detail(ev models.LogEvent, loc *time.Location) []Field {
	if loc == nil {
		loc = time.Local
	}
	at := ev.EventTime.In(loc).Format(DisplayTimeFormat)
	fields := []Field{
		{Label: "ID", Value: ev.ID},
		{Label: "Log Type", Value: ev.Kind.Code()},
	}

	switch ev.Kind {
	case models.KindEquipmentState:
		end := "-"
		if ev.EndTime != nil {
			end = ev.EndTime.In(loc).Format(DisplayTimeFormat)
		}
		fields = append(fields,
			Field{Label: "EQP State", Value: ev.EventType},
			Field{Label: "Time", Value: at},
			Field{Label: "End Time", Value: end},
			Field{Label: "Operator", Value: orDash(ev.Operator)},
			Field{Label: "Duration", Value: formatDuration(ev.Duration)},
			Field{Label: "Comment", Value: orDash(ev.Comment), Wide: true},
		)
	case models.KindInterlock:
		fields = append(fields,
			Field{Label: "TIP Event", Value: ev.EventType},
			Field{Label: "Time", Value: at},
			Field{Label: "Process", Value: orDash(ev.Process)},
			Field{Label: "Step", Value: orDash(ev.Step)},
			Field{Label: "PPID", Value: orDash(ev.PartID)},
			Field{Label: "Operator", Value: orDash(ev.Operator)},
			Field{Label: "Level", Value: orDash(ev.Level)},
			Field{Label: "Comment", Value: orDash(ev.Comment), Wide: true},
		)
	case models.KindAlarm:
		fields = append(fields,
			Field{Label: "RACB Alarm", Value: ev.EventType},
			Field{Label: "Time", Value: at},
			Field{Label: "Operator", Value: orDash(ev.Operator)},
			Field{Label: "Comment", Value: orDash(ev.Comment), Wide: true},
		)
	case models.KindRecipeChange:
		fields = append(fields,
			Field{Label: "CTTTM", Value: ev.EventType},
			Field{Label: "Time", Value: at},
			Field{Label: "Recipe", Value: orDash(ev.Recipe)},
			Field{Label: "Operator", Value: orDash(ev.Operator)},
			Field{Label: "Duration", Value: formatDuration(ev.Duration)},
			Field{Label: "Comment", Value: orDash(ev.Comment), Wide: true},
		)
	case models.KindIssue:
		fields = append(fields,
			Field{Label: "Issue Status", Value: ev.EventType},
			Field{Label: "Time", Value: at},
			Field{Label: "Issue Key", Value: orDash(ev.IssueKey)},
			Field{Label: "Assignee", Value: orDash(ev.Assignee)},
			Field{Label: "Priority", Value: orDash(ev.Priority)},
			Field{Label: "Reporter", Value: orDash(ev.Reporter)},
			Field{Label: "Summary", Value: orDash(ev.Summary), Wide: true},
			Field{Label: "Description", Value: orDash(ev.Description), Wide: true},
		)
	}

	if ev.URL != "" {
		fields = append(fields, Field{Label: "URL", Value: ev.URL, Link: true})
	}
	return fields
}

// formatDuration renders milliseconds as seconds with one decimal.
func formatDuration(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return strconv.FormatFloat(float64(*ms)/1000, 'f', 1, 64) + "s"
}

package view

import (
	"strings"
	"time"

	"github.com/pjw7536/react-timeline2/internal/filter"
	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pjw7536/react-timeline2/internal/timeline"
)

// InterlockNotice explains an empty interlock area.
type InterlockNotice string

const (
	NoticeNone InterlockNotice = ""
	// NoticeNoData means there are no interlock events at all.
	NoticeNoData InterlockNotice = "no-data"
	// NoticeSelectGroup means interlock events exist but no group is selected.
	NoticeSelectGroup InterlockNotice = "none-selected"
)

// Swatch is one legend entry in a lane label.
type Swatch struct {
	State string `json:"state"`
	Color string `json:"color"`
	Glyph string `json:"glyph,omitempty"`
}

// LaneLabel is either a static title or a legend summary.
type LaneLabel struct {
	Text     string   `json:"text,omitempty"`
	Swatches []Swatch `json:"swatches,omitempty"`
}

// Item is one timeline widget item.
type Item struct {
	ID        string          `json:"id"`
	Lane      string          `json:"lane"`
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
	Type      models.ItemType `json:"type"`
	ClassName string          `json:"className"`
	Content   string          `json:"content"`
	Tooltip   string          `json:"tooltip,omitempty"`
	OpenEnded bool            `json:"openEnded,omitempty"`
	Selected  bool            `json:"selected,omitempty"`
}

// Lane is one track. The interlock parent lane has no items and lists its
// sub-lanes in Nested.
type Lane struct {
	ID     string      `json:"id"`
	Kind   models.Kind `json:"kind"`
	Label  LaneLabel   `json:"label"`
	Nested []string    `json:"nested,omitempty"`
	Items  []Item      `json:"items"`
}

// Timeline is the projection consumed by timeline widgets.
type Timeline struct {
	Lanes           []Lane               `json:"lanes"`
	Groups          []timeline.LaneGroup `json:"groups"`
	Range           models.TimeRange     `json:"range"`
	InterlockNotice InterlockNotice      `json:"interlockNotice,omitempty"`
	Selection       models.Selection     `json:"selection"`
	SelectedIDs     []string             `json:"selectedIds"`
}

// ProjectOptions are the inputs besides the events.
type ProjectOptions struct {
	Filters    filter.TypeFilters
	Groups     filter.GroupSelection
	Selection  models.Selection
	ShowLegend bool
	Continuous bool
	Legend     *models.Legend
	Location   *time.Location
	Buffer     timeline.Buffer
	// Now anchors the fallback range of an empty set.
	Now time.Time
}

// Project groups visible events into lanes in kind order. INTERLOCK events get
// one lane per selected sub-group.
func Project(events []models.LogEvent, opts ProjectOptions) Timeline {
	legend := opts.Legend
	if legend == nil {
		legend = models.DefaultLegend()
	}
	visible := opts.Filters.Apply(events)

	byKind := make(map[models.Kind][]models.LogEvent, len(models.AllKinds))
	for _, ev := range visible {
		byKind[ev.Kind] = append(byKind[ev.Kind], ev)
	}
	groups, index := timeline.GroupInterlocks(byKind[models.KindInterlock])

	out := Timeline{
		Lanes:       []Lane{},
		Groups:      groups,
		Range:       opts.Buffer.Apply(timeline.CalcRange(visible, opts.Now, opts.Location)),
		Selection:   opts.Selection,
		SelectedIDs: []string{},
	}

	for _, kind := range models.AllKinds {
		if !opts.Filters.Visible(kind) {
			continue
		}
		label := laneLabel(legend, kind, opts.ShowLegend)

		if kind != models.KindInterlock {
			evs := byKind[kind]
			if len(evs) == 0 {
				continue
			}
			lane := Lane{ID: kind.Code(), Kind: kind, Label: label}
			lane.Items = items(lane.ID, timeline.Place(kind, evs, opts.Continuous, opts.Location), legend, opts.Selection)
			out.Lanes = append(out.Lanes, lane)
			continue
		}

		if len(groups) == 0 {
			out.InterlockNotice = NoticeNoData
			continue
		}
		if opts.Groups.Mode() == filter.ModeNone {
			out.InterlockNotice = NoticeSelectGroup
			continue
		}
		parent := Lane{ID: kind.Code(), Kind: kind, Label: label, Items: []Item{}}
		var subLanes []Lane
		for _, g := range groups {
			if !opts.Groups.Contains(g.Key) {
				continue
			}
			id := kind.Code() + "_" + string(g.Key)
			parent.Nested = append(parent.Nested, id)
			sub := Lane{
				ID:    id,
				Kind:  kind,
				Label: LaneLabel{Text: g.Process + " / " + g.Step + " / " + g.PartID},
			}
			sub.Items = items(id, timeline.Place(kind, index[g.Key], opts.Continuous, opts.Location), legend, opts.Selection)
			subLanes = append(subLanes, sub)
		}
		if len(subLanes) == 0 {
			out.InterlockNotice = NoticeSelectGroup
			continue
		}
		out.Lanes = append(out.Lanes, parent)
		out.Lanes = append(out.Lanes, subLanes...)
	}

	for _, lane := range out.Lanes {
		for _, it := range lane.Items {
			if it.Selected {
				out.SelectedIDs = append(out.SelectedIDs, it.ID)
			}
		}
	}
	return out
}

func laneLabel(legend *models.Legend, kind models.Kind, showLegend bool) LaneLabel {
	if !showLegend {
		return LaneLabel{Text: legend.TitleOf(kind)}
	}
	kl := legend.Kinds[kind]
	swatches := make([]Swatch, len(kl.States))
	for i, s := range kl.States {
		swatches[i] = Swatch{State: s.State, Color: s.Color, Glyph: s.Swatch}
	}
	return LaneLabel{Swatches: swatches}
}

func items(lane string, placed []timeline.Interval, legend *models.Legend, sel models.Selection) []Item {
	out := make([]Item, len(placed))
	for i, iv := range placed {
		out[i] = Item{
			ID:        iv.ID,
			Lane:      lane,
			Start:     iv.Start(),
			End:       iv.End(),
			Type:      iv.Type,
			ClassName: legend.ColorOf(iv.Kind, iv.EventType),
			Content:   iv.EventType,
			Tooltip:   tooltip(iv.LogEvent),
			OpenEnded: iv.OpenEnded,
			Selected:  !sel.None() && sel.ID == iv.ID,
		}
	}
	return out
}

func tooltip(ev models.LogEvent) string {
	var lines []string
	if ev.Kind == models.KindInterlock {
		lines = append(lines,
			"Process: "+orUnknown(ev.Process),
			"Step: "+orUnknown(ev.Step),
			"PPID: "+orUnknown(ev.PartID),
		)
	}
	if ev.Comment != "" {
		lines = append(lines, ev.Comment)
	}
	if ev.Operator != "" {
		lines = append(lines, "👤 "+ev.Operator)
	}
	if ev.URL != "" {
		lines = append(lines, "🔗 "+ev.URL)
	}
	return strings.Join(lines, "\n")
}

func orUnknown(s string) string {
	if s == "" {
		return models.UnknownGroupPart
	}
	return s
}

package models

// Legend defines lane titles and state colors for every kind.
// Loaded from YAML; unknown states fall back to DefaultColor.
type Legend struct {
	DefaultColor string              `json:"defaultColor" yaml:"default_color"`
	Kinds        map[Kind]KindLegend `json:"kinds" yaml:"kinds"`
}

// KindLegend is the legend of one kind. States keep their YAML order, which is
// also the order of the swatch summary.
type KindLegend struct {
	Title  string       `json:"title" yaml:"title"`
	States []StateColor `json:"states" yaml:"states"`
}

// StateColor maps one eventType to a color class and a swatch glyph.
type StateColor struct {
	State  string `json:"state" yaml:"state"`
	Color  string `json:"color" yaml:"color"`
	Swatch string `json:"swatch,omitempty" yaml:"swatch,omitempty"`
}

// ColorOf returns the color of state for kind, or DefaultColor.
func (l *Legend) ColorOf(kind Kind, state string) string {
	if kl, ok := l.Kinds[kind]; ok {
		for _, s := range kl.States {
			if s.State == state {
				return s.Color
			}
		}
	}
	return l.DefaultColor
}

// TitleOf returns the lane title of kind, or the kind name when unset.
func (l *Legend) TitleOf(kind Kind) string {
	if kl, ok := l.Kinds[kind]; ok && kl.Title != "" {
		return kl.Title
	}
	return string(kind)
}

// DefaultLegend returns the built-in legend.
func DefaultLegend() *Legend {
	return &Legend{
		DefaultColor: "bg-gray-300",
		Kinds: map[Kind]KindLegend{
			KindEquipmentState: {Title: "EQP State", States: []StateColor{
				{State: "RUN", Color: "bg-blue-600", Swatch: "🟦"},
				{State: "IDLE", Color: "bg-yellow-400", Swatch: "🟨"},
				{State: "PM", Color: "bg-green-500", Swatch: "🟩"},
				{State: "DOWN", Color: "bg-red-600", Swatch: "🟥"},
			}},
			KindInterlock: {Title: "TIP Interlock", States: []StateColor{
				{State: "OPEN", Color: "bg-blue-600", Swatch: "🟦"},
				{State: "CLOSE", Color: "bg-red-600", Swatch: "🟥"},
			}},
			KindRecipeChange: {Title: "CTTTM Recipe", States: []StateColor{
				{State: "TTM_FAIL", Color: "bg-red-600", Swatch: "🟥"},
				{State: "TTM_WARN", Color: "bg-yellow-400", Swatch: "🟨"},
			}},
			KindAlarm: {Title: "RACB Alarm", States: []StateColor{
				{State: "ALARM", Color: "bg-red-600", Swatch: "🟥"},
				{State: "WARN", Color: "bg-orange-500", Swatch: "🟧"},
			}},
			KindIssue: {Title: "JIRA Issue", States: []StateColor{
				{State: "CREATED", Color: "bg-green-500", Swatch: "🟩"},
				{State: "IN_PROGRESS", Color: "bg-blue-600", Swatch: "🟦"},
				{State: "RESOLVED", Color: "bg-purple-500", Swatch: "🟪"},
				{State: "CLOSED", Color: "bg-gray-200", Swatch: "⬜"},
				{State: "REOPENED", Color: "bg-orange-500", Swatch: "🟧"},
				{State: "BLOCKED", Color: "bg-red-600", Swatch: "🟥"},
			}},
		},
	}
}

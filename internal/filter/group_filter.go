package filter

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pjw7536/react-timeline2/internal/models"
)

// Mode is the tag of a GroupSelection.
type Mode string

const (
	ModeAll     Mode = "all"
	ModePartial Mode = "partial"
	ModeNone    Mode = "none"
)

// GroupSelection is the interlock group filter: AllSelected, Partial(keys) or
// NoneSelected. AllSelected never enumerates keys, so groups that appear later
// are visible too. Values are immutable; transitions return a new value.
// The zero value is AllSelected.
type GroupSelection struct {
	mode Mode
	keys map[models.GroupKey]struct{}
}

// AllGroups selects every group.
func AllGroups() GroupSelection {
	return GroupSelection{mode: ModeAll}
}

// NoGroups selects nothing.
func NoGroups() GroupSelection {
	return GroupSelection{mode: ModeNone}
}

// PartialGroups selects keys, collapsing to AllGroups or NoGroups when keys
// cover the universe or none of it.
func PartialGroups(keys []models.GroupKey, universe []models.GroupKey) GroupSelection {
	set := make(map[models.GroupKey]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return collapse(set, universe)
}

// Mode returns the tag.
func (s GroupSelection) Mode() Mode {
	if s.mode == "" {
		return ModeAll
	}
	return s.mode
}

// Contains reports whether key is visible.
func (s GroupSelection) Contains(key models.GroupKey) bool {
	switch s.Mode() {
	case ModeAll:
		return true
	case ModePartial:
		_, ok := s.keys[key]
		return ok
	default:
		return false
	}
}

// Keys returns the explicit keys of a Partial selection, sorted. Empty for the
// other modes.
func (s GroupSelection) Keys() []models.GroupKey {
	if s.Mode() != ModePartial {
		return []models.GroupKey{}
	}
	keys := make([]models.GroupKey, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Visible filters universe down to the selected keys.
func (s GroupSelection) Visible(universe []models.GroupKey) []models.GroupKey {
	out := make([]models.GroupKey, 0, len(universe))
	for _, k := range universe {
		if s.Contains(k) {
			out = append(out, k)
		}
	}
	return out
}

// Toggle flips one key. From AllSelected it leaves every other key selected.
func (s GroupSelection) Toggle(key models.GroupKey, universe []models.GroupKey) GroupSelection {
	return s.SetKeys([]models.GroupKey{key}, !s.Contains(key), universe)
}

// SetKeys turns every key on or off at once. Keys outside universe are
// ignored; an empty universe leaves s unchanged.
func (s GroupSelection) SetKeys(keys []models.GroupKey, on bool, universe []models.GroupKey) GroupSelection {
	uni := make(map[models.GroupKey]struct{}, len(universe))
	for _, k := range universe {
		uni[k] = struct{}{}
	}

	var touched []models.GroupKey
	for _, k := range keys {
		if _, ok := uni[k]; ok {
			touched = append(touched, k)
		}
	}
	if len(touched) == 0 {
		return s
	}

	current := make(map[models.GroupKey]struct{}, len(uni))
	switch s.Mode() {
	case ModeAll:
		for k := range uni {
			current[k] = struct{}{}
		}
	case ModePartial:
		for k := range s.keys {
			current[k] = struct{}{}
		}
	}

	for _, k := range touched {
		if on {
			current[k] = struct{}{}
		} else {
			delete(current, k)
		}
	}
	return collapse(current, universe)
}

// Normalize re-collapses s against a new universe.
func (s GroupSelection) Normalize(universe []models.GroupKey) GroupSelection {
	if s.Mode() != ModePartial {
		return s
	}
	return collapse(s.keys, universe)
}

func collapse(set map[models.GroupKey]struct{}, universe []models.GroupKey) GroupSelection {
	if len(set) == 0 {
		return NoGroups()
	}
	covered := len(universe) > 0
	for _, k := range universe {
		if _, ok := set[k]; !ok {
			covered = false
			break
		}
	}
	if covered {
		return AllGroups()
	}
	keys := make(map[models.GroupKey]struct{}, len(set))
	for k := range set {
		keys[k] = struct{}{}
	}
	return GroupSelection{mode: ModePartial, keys: keys}
}

type groupSelectionJSON struct {
	Mode Mode              `json:"mode"`
	Keys []models.GroupKey `json:"keys"`
}

// MarshalJSON encodes {mode, keys}.
func (s GroupSelection) MarshalJSON() ([]byte, error) {
	return json.Marshal(groupSelectionJSON{Mode: s.Mode(), Keys: s.Keys()})
}

// UnmarshalJSON decodes {mode, keys}. A partial selection with no keys decodes
// as NoneSelected.
func (s *GroupSelection) UnmarshalJSON(data []byte) error {
	var raw groupSelectionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Mode {
	case ModeAll, "":
		*s = AllGroups()
	case ModeNone:
		*s = NoGroups()
	case ModePartial:
		*s = PartialGroups(raw.Keys, nil)
	default:
		return fmt.Errorf("unknown group selection mode: %q", raw.Mode)
	}
	return nil
}

package filter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pjw7536/react-timeline2/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeFilters(t *testing.T) {
	t0 := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	events := []models.LogEvent{
		{ID: "EQP-1", Kind: models.KindEquipmentState, EventTime: t0},
		{ID: "TIP-1", Kind: models.KindInterlock, EventTime: t0},
		{ID: "RACB-1", Kind: models.KindAlarm, EventTime: t0},
	}

	f := DefaultTypeFilters()
	for _, k := range models.AllKinds {
		assert.True(t, f.Visible(k))
	}
	assert.Len(t, f.Apply(events), 3)

	hidden := f.With(models.KindEquipmentState, false)
	assert.True(t, f.Visible(models.KindEquipmentState), "With must not mutate the receiver")

	visible := hidden.Apply(events)
	require.Len(t, visible, 2)
	for _, ev := range visible {
		assert.NotEqual(t, models.KindEquipmentState, ev.Kind)
	}
	assert.Len(t, events, 3)
}

var universe = []models.GroupKey{"A_1_x", "A_2_x", "B_1_y"}

func TestGroupSelectionToggleFromAll(t *testing.T) {
	sel := AllGroups().Toggle("A_2_x", universe)
	assert.Equal(t, ModePartial, sel.Mode())
	assert.Equal(t, []models.GroupKey{"A_1_x", "B_1_y"}, sel.Keys())
	assert.False(t, sel.Contains("A_2_x"))

	sel = sel.Toggle("A_2_x", universe)
	assert.Equal(t, ModeAll, sel.Mode())
	assert.Empty(t, sel.Keys())
}

func TestGroupSelectionLastKeyOff(t *testing.T) {
	sel := PartialGroups([]models.GroupKey{"B_1_y"}, universe)
	require.Equal(t, ModePartial, sel.Mode())

	sel = sel.Toggle("B_1_y", universe)
	assert.Equal(t, ModeNone, sel.Mode())
	assert.Empty(t, sel.Visible(universe))

	sel = sel.Toggle("A_1_x", universe)
	assert.Equal(t, ModePartial, sel.Mode())
	assert.Equal(t, []models.GroupKey{"A_1_x"}, sel.Visible(universe))
}

func TestGroupSelectionSentinelEquivalence(t *testing.T) {
	orders := [][]models.GroupKey{
		{"A_1_x", "A_2_x", "B_1_y"},
		{"B_1_y", "A_1_x", "A_2_x"},
		{"A_2_x", "B_1_y", "A_1_x"},
	}
	for _, off := range orders {
		for _, on := range orders {
			sel := AllGroups()
			for _, k := range off {
				sel = sel.Toggle(k, universe)
			}
			assert.Equal(t, ModeNone, sel.Mode())
			for _, k := range on {
				sel = sel.Toggle(k, universe)
			}
			assert.Equal(t, ModeAll, sel.Mode())
			assert.Equal(t, universe, sel.Visible(universe))
		}
	}
}

func TestGroupSelectionIgnoresUnknownKeys(t *testing.T) {
	sel := AllGroups().Toggle("Z_9_z", universe)
	assert.Equal(t, ModeAll, sel.Mode())

	sel = AllGroups().Toggle("A_1_x", nil)
	assert.Equal(t, ModeAll, sel.Mode())
}

func TestGroupSelectionZeroValueIsAll(t *testing.T) {
	var sel GroupSelection
	assert.Equal(t, ModeAll, sel.Mode())
	assert.True(t, sel.Contains("anything"))
}

func TestGroupSelectionJSON(t *testing.T) {
	sel := AllGroups().Toggle("A_1_x", universe)
	data, err := json.Marshal(sel)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"partial","keys":["A_2_x","B_1_y"]}`, string(data))

	var decoded GroupSelection
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, sel.Keys(), decoded.Keys())

	require.NoError(t, json.Unmarshal([]byte(`{"mode":"partial","keys":[]}`), &decoded))
	assert.Equal(t, ModeNone, decoded.Mode())

	assert.Error(t, json.Unmarshal([]byte(`{"mode":"some"}`), &decoded))
}

func sampleGroups() []timeline.LaneGroup {
	return []timeline.LaneGroup{
		{Key: "A_1_x", Process: "A", Step: "1", PartID: "x", Count: 2},
		{Key: "A_2_x", Process: "A", Step: "2", PartID: "x", Count: 1},
		{Key: "B_1_y", Process: "B", Step: "1", PartID: "y", Count: 4},
	}
}

func TestBuildTree(t *testing.T) {
	roots := BuildTree(sampleGroups())
	require.Len(t, roots, 2)

	a := roots[0]
	assert.Equal(t, "process:A", a.ID)
	assert.Equal(t, 3, a.Count)
	assert.Equal(t, []models.GroupKey{"A_1_x", "A_2_x"}, a.Leaves)
	require.Len(t, a.Children, 2)
	assert.Equal(t, LevelStep, a.Children[0].Level)
	require.Len(t, a.Children[0].Children, 1)
	assert.Equal(t, LevelPart, a.Children[0].Children[0].Level)

	assert.NotNil(t, FindNode(roots, "step:A/2"))
	assert.NotNil(t, FindNode(roots, "B_1_y"))
	assert.Nil(t, FindNode(roots, "nope"))
}

func TestCheckStateAndToggleNode(t *testing.T) {
	groups := sampleGroups()
	roots := BuildTree(groups)
	uni := Universe(groups)
	a := FindNode(roots, "process:A")

	sel := AllGroups()
	assert.Equal(t, Checked, a.CheckState(sel))

	sel = ToggleNode(a, sel, uni)
	assert.Equal(t, Unchecked, a.CheckState(sel))
	assert.Equal(t, []models.GroupKey{"B_1_y"}, sel.Visible(uni))

	sel = sel.Toggle("A_2_x", uni)
	assert.Equal(t, Indeterminate, a.CheckState(sel))

	// indeterminate parent selects every descendant
	sel = ToggleNode(a, sel, uni)
	assert.Equal(t, Checked, a.CheckState(sel))
	assert.Equal(t, ModeAll, sel.Mode())

	views := Annotate(roots, sel.Toggle("A_1_x", uni))
	require.Len(t, views, 2)
	assert.Equal(t, Indeterminate, views[0].State)
	assert.Equal(t, Unchecked, views[0].Children[0].State)
	assert.Equal(t, Checked, views[1].State)
}

package timeline

import (
	"testing"
	"time"

	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seoul = time.FixedZone("KST", 9*60*60)

func ev(id string, kind models.Kind, at time.Time) models.LogEvent {
	return models.LogEvent{ID: id, Kind: kind, EventTime: at}
}

func TestCalcRangeUsesEventTimeOnly(t *testing.T) {
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, seoul)
	end := t0.Add(48 * time.Hour)
	events := []models.LogEvent{
		ev("a", models.KindAlarm, t0.Add(time.Hour)),
		{ID: "b", Kind: models.KindAlarm, EventTime: t0, EndTime: &end},
		ev("c", models.KindAlarm, t0.Add(3*time.Hour)),
	}

	r := CalcRange(events, time.Now(), seoul)
	assert.Equal(t, t0, r.Min)
	assert.Equal(t, t0.Add(3*time.Hour), r.Max)
	for _, e := range events {
		assert.True(t, r.Contains(e.EventTime))
	}
}

func TestCalcRangeEmptyFallback(t *testing.T) {
	now := time.Date(2025, 6, 2, 15, 4, 5, 0, seoul)
	r := CalcRange(nil, now, seoul)

	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, seoul), r.Min)
	assert.Equal(t, time.Date(2025, 6, 3, 0, 0, 0, 0, seoul), r.Max)

	later := CalcRange([]models.LogEvent{}, now.Add(5*time.Hour), seoul)
	assert.Equal(t, r, later)
}

func TestAddBuffer(t *testing.T) {
	t0 := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	t.Run("single instant gets the one day floor", func(t *testing.T) {
		r := AddBuffer(models.TimeRange{Min: t0, Max: t0}, 0.1, 0)
		assert.Equal(t, t0.Add(-OneDay), r.Min)
		assert.Equal(t, t0.Add(OneDay), r.Max)
	})

	t.Run("wide range uses the ratio", func(t *testing.T) {
		r := AddBuffer(models.TimeRange{Min: t0, Max: t0.Add(100 * OneDay)}, 0.5, 0)
		assert.Equal(t, t0.Add(-50*OneDay), r.Min)
		assert.Equal(t, t0.Add(150*OneDay), r.Max)
	})

	t.Run("configured floor", func(t *testing.T) {
		b := Buffer{Ratio: 0, Floor: 6 * time.Hour}
		r := b.Apply(models.TimeRange{Min: t0, Max: t0})
		assert.Equal(t, t0.Add(-6*time.Hour), r.Min)
	})
}

func TestMakeContinuousScenario(t *testing.T) {
	t0 := time.Date(2025, 6, 2, 9, 0, 0, 0, seoul)
	events := []models.LogEvent{
		{ID: "1", Kind: models.KindEquipmentState, EventTime: t0, EventType: "RUN"},
		{ID: "2", Kind: models.KindEquipmentState, EventTime: t0.Add(time.Hour), EventType: "DOWN"},
	}

	out := MakeContinuous(events, seoul)
	require.Len(t, out, 2)

	assert.Equal(t, "1", out[0].ID)
	assert.Equal(t, t0, out[0].Start())
	assert.Equal(t, t0.Add(time.Hour), out[0].End())
	assert.Equal(t, models.ItemRange, out[0].Type)
	assert.False(t, out[0].OpenEnded)
	require.NotNil(t, out[0].Duration)
	assert.Equal(t, int64(time.Hour/time.Millisecond), *out[0].Duration)

	assert.Equal(t, "2", out[1].ID)
	assert.Equal(t, t0.Add(time.Hour), out[1].Start())
	assert.Equal(t, time.Date(2025, 6, 3, 0, 0, 0, 0, seoul), out[1].End())
	assert.True(t, out[1].OpenEnded)

	// input untouched
	assert.Nil(t, events[0].EndTime)
}

func TestMakeContinuousTiles(t *testing.T) {
	t0 := time.Date(2025, 6, 2, 9, 0, 0, 0, seoul)
	events := []models.LogEvent{
		ev("c", models.KindEquipmentState, t0.Add(5*time.Hour)),
		ev("a", models.KindEquipmentState, t0),
		ev("b1", models.KindEquipmentState, t0.Add(2*time.Hour)),
		ev("b2", models.KindEquipmentState, t0.Add(2*time.Hour)),
	}

	out := MakeContinuous(events, seoul)
	require.Len(t, out, 4)

	// stable: b1 before b2
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, []string{out[0].ID, out[1].ID, out[2].ID, out[3].ID})
	assert.Equal(t, t0, out[0].Start())
	for i := 0; i < len(out)-1; i++ {
		assert.Equal(t, out[i+1].Start(), out[i].End(), "gap or overlap at %d", i)
	}
	assert.Equal(t, NextDay(out[3].Start(), seoul), out[3].End())
}

func TestMakeContinuousEmpty(t *testing.T) {
	assert.Nil(t, MakeContinuous(nil, time.UTC))
}

func TestPoints(t *testing.T) {
	t0 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	end := t0.Add(time.Minute)
	out := Points([]models.LogEvent{
		ev("p", models.KindAlarm, t0),
		{ID: "r", Kind: models.KindAlarm, EventTime: t0, EndTime: &end},
	})
	require.Len(t, out, 2)
	assert.Equal(t, models.ItemPoint, out[0].Type)
	assert.Equal(t, t0, out[0].End())
	assert.Equal(t, models.ItemRange, out[1].Type)
	assert.Equal(t, end, out[1].End())
}

func TestGroupInterlocks(t *testing.T) {
	t0 := time.Date(2025, 6, 2, 9, 0, 0, 0, seoul)
	tip := func(id, process, step, part string, at time.Time) models.LogEvent {
		return models.LogEvent{ID: id, Kind: models.KindInterlock, EventTime: at, Process: process, Step: step, PartID: part}
	}
	events := []models.LogEvent{
		tip("1", "ETCH", "S2", "P1", t0),
		tip("2", "CVD", "S1", "P1", t0),
		tip("3", "ETCH", "S10", "P1", t0.Add(time.Hour)),
		tip("4", "ETCH", "S2", "P1", t0.Add(2*time.Hour)),
		tip("5", "", "", "", t0),
		ev("x", models.KindAlarm, t0),
	}

	groups, index := GroupInterlocks(events)
	require.Len(t, groups, 4)

	keys := make([]models.GroupKey, len(groups))
	for i, g := range groups {
		keys[i] = g.Key
	}
	assert.Equal(t, []models.GroupKey{"CVD_S1_P1", "ETCH_S2_P1", "ETCH_S10_P1", "unknown_unknown_unknown"}, keys)
	assert.Equal(t, 2, groups[1].Count)
	assert.Len(t, index["ETCH_S2_P1"], 2)

	// reconstruction never crosses groups
	placed := ContinuousByGroup(groups, index, seoul)
	etch := placed["ETCH_S2_P1"]
	require.Len(t, etch, 2)
	assert.Equal(t, t0.Add(2*time.Hour), etch[0].End())
	assert.Len(t, placed["ETCH_S10_P1"], 1)
	assert.True(t, placed["ETCH_S10_P1"][0].OpenEnded)
}

func TestResolveDurations(t *testing.T) {
	t0 := time.Date(2025, 6, 2, 9, 0, 0, 0, seoul)
	end := t0.Add(time.Minute)
	events := []models.LogEvent{
		ev("EQP-1", models.KindEquipmentState, t0),
		{ID: "TIP-1", Kind: models.KindInterlock, EventTime: t0, Process: "A"},
		{ID: "RACB-1", Kind: models.KindAlarm, EventTime: t0, EndTime: &end},
		ev("EQP-2", models.KindEquipmentState, t0.Add(30*time.Minute)),
		{ID: "TIP-2", Kind: models.KindInterlock, EventTime: t0.Add(10 * time.Minute), Process: "B"},
	}

	out := ResolveDurations(events, seoul)
	require.Len(t, out, len(events))
	require.NotNil(t, out[0].Duration)
	assert.Equal(t, int64(30*60*1000), *out[0].Duration)
	// different groups: both are the last of their lane
	assert.Nil(t, out[1].Duration)
	assert.Nil(t, out[4].Duration)
	assert.Nil(t, out[3].Duration)
	// non-state kinds untouched
	assert.Nil(t, out[2].Duration)
	assert.Nil(t, events[0].Duration)
}

func TestPlace(t *testing.T) {
	t0 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	events := []models.LogEvent{ev("1", models.KindEquipmentState, t0)}

	assert.Equal(t, models.ItemRange, Place(models.KindEquipmentState, events, true, time.UTC)[0].Type)
	assert.Equal(t, models.ItemPoint, Place(models.KindEquipmentState, events, false, time.UTC)[0].Type)
	assert.Equal(t, models.ItemPoint, Place(models.KindAlarm, events, true, time.UTC)[0].Type)
}

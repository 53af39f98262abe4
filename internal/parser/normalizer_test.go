package parser

import (
	"testing"
	"time"

	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDropsBadEventTime(t *testing.T) {
	r := NewRegistry(NewStringIntern())
	rows := []models.RawRow{
		{"id": 1, "eventTime": "2025-06-02T12:00:00Z", "eventType": "RUN"},
		{"id": 2, "eventType": "IDLE"},
		{"id": 3, "eventTime": "not a time", "eventType": "DOWN"},
		{"id": 4, "eventTime": "", "eventType": "PM"},
		nil,
	}

	events, err := r.Normalize(models.KindEquipmentState, rows, Options{Location: time.UTC})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "EQP-1", events[0].ID)
	assert.Equal(t, "RUN", events[0].EventType)
	assert.Equal(t, models.KindEquipmentState, events[0].Kind)
}

func TestNormalizeKeepsUnknownEventType(t *testing.T) {
	r := NewRegistry(NewStringIntern())
	rows := []models.RawRow{
		{"id": "a", "eventTime": "2025-06-02 08:30:00", "eventType": "SOMETHING_NEW"},
	}

	events, err := r.Normalize(models.KindAlarm, rows, Options{Location: time.UTC})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "SOMETHING_NEW", events[0].EventType)
	assert.Equal(t, "RACB-a", events[0].ID)
	assert.Equal(t, time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC), events[0].EventTime)
}

func TestNormalizeDuration(t *testing.T) {
	r := NewRegistry(NewStringIntern())
	row := models.RawRow{
		"id":        "RACB-7",
		"eventTime": "2025-06-02T12:00:00Z",
		"endTime":   "2025-06-02T12:30:00Z",
		"eventType": "ALARM",
	}

	t.Run("explicit end time", func(t *testing.T) {
		events, err := r.Normalize(models.KindAlarm, []models.RawRow{row}, Options{Continuous: true})
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.NotNil(t, events[0].Duration)
		assert.Equal(t, int64(30*60*1000), *events[0].Duration)
		assert.Equal(t, "RACB-7", events[0].ID)
	})

	t.Run("state kind in continuous mode", func(t *testing.T) {
		events, err := r.Normalize(models.KindEquipmentState, []models.RawRow{row}, Options{Continuous: true})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Nil(t, events[0].Duration)
	})

	t.Run("state kind without continuous mode", func(t *testing.T) {
		events, err := r.Normalize(models.KindEquipmentState, []models.RawRow{row}, Options{})
		require.NoError(t, err)
		require.NotNil(t, events[0].Duration)
		assert.Equal(t, int64(30*60*1000), *events[0].Duration)
	})

	t.Run("no end time", func(t *testing.T) {
		events, err := r.Normalize(models.KindRecipeChange, []models.RawRow{{"eventTime": "2025-06-02T12:00:00Z"}}, Options{})
		require.NoError(t, err)
		assert.Nil(t, events[0].Duration)
	})
}

func TestNormalizeKindFields(t *testing.T) {
	r := NewRegistry(NewStringIntern())

	t.Run("interlock", func(t *testing.T) {
		events, err := r.Normalize(models.KindInterlock, []models.RawRow{{
			"id": 5, "event_time": "2025-06-02T12:00:00Z", "eventType": "OPEN",
			"process": "ETCH", "step": "S1", "ppid": "P-100", "level": "L2",
		}}, Options{})
		require.NoError(t, err)
		require.Len(t, events, 1)
		ev := events[0]
		assert.Equal(t, "TIP-5", ev.ID)
		assert.Equal(t, "ETCH", ev.Process)
		assert.Equal(t, "S1", ev.Step)
		assert.Equal(t, "P-100", ev.PartID)
		assert.Equal(t, "L2", ev.Level)
		assert.Equal(t, models.GroupKey("ETCH_S1_P-100"), ev.GroupKey())
	})

	t.Run("recipe change", func(t *testing.T) {
		events, err := r.Normalize(models.KindRecipeChange, []models.RawRow{{
			"eventTime": "2025-06-02T12:00:00Z", "eventType": "TTM_FAIL", "recipe": "RCP-9",
		}}, Options{})
		require.NoError(t, err)
		assert.Equal(t, "RCP-9", events[0].Recipe)
		assert.Equal(t, "CTTTM-2025-06-02T12:00:00.000Z", events[0].ID)
	})

	t.Run("issue", func(t *testing.T) {
		events, err := r.Normalize(models.KindIssue, []models.RawRow{{
			"id": 11, "eventTime": "2025-06-02T12:00:00Z", "eventType": "CREATED",
			"issue_key": "EQ-42", "assignee": "kim", "priority": "High",
			"reporter": "lee", "summary": "chamber leak", "description": "details",
		}}, Options{})
		require.NoError(t, err)
		ev := events[0]
		assert.Equal(t, "JIRA-11", ev.ID)
		assert.Equal(t, "EQ-42", ev.IssueKey)
		assert.Equal(t, "kim", ev.Assignee)
		assert.Equal(t, "High", ev.Priority)
		assert.Equal(t, "lee", ev.Reporter)
		assert.Equal(t, "chamber leak", ev.Summary)
		assert.Equal(t, "https://jira.example.com/browse/EQ-42", ev.URL)
	})
}

func TestNormalizeTimeForms(t *testing.T) {
	r := NewRegistry(NewStringIntern())
	want := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value any
	}{
		{"time value", want},
		{"rfc3339", "2025-06-02T12:00:00Z"},
		{"epoch millis", float64(want.UnixMilli())},
		{"epoch seconds", want.Unix()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := r.Normalize(models.KindAlarm, []models.RawRow{{"id": 1, "eventTime": tt.value}}, Options{})
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.True(t, want.Equal(events[0].EventTime), "got %v", events[0].EventTime)
		})
	}
}

func TestNormalizeSyntheticIDCollision(t *testing.T) {
	r := NewRegistry(NewStringIntern())
	rows := []models.RawRow{
		{"eventTime": "2025-06-02T12:00:00Z", "eventType": "WARN"},
		{"eventTime": "2025-06-02T12:00:00Z", "eventType": "ALARM"},
	}

	events, err := r.Normalize(models.KindAlarm, rows, Options{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].ID, events[1].ID)
}

func TestNormalizeDuplicateIDsStayUnique(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want []string
	}{
		{"repeated id", []string{"5", "5", "5"}, []string{"EQP-5", "EQP-5#2", "EQP-5#3"}},
		{"raw id looks suffixed, before", []string{"5", "5#2", "5"}, []string{"EQP-5", "EQP-5#2", "EQP-5#3"}},
		{"raw id looks suffixed, after", []string{"5", "5", "5#2"}, []string{"EQP-5", "EQP-5#2", "EQP-5#2#2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([]models.RawRow, len(tt.ids))
			for i, id := range tt.ids {
				rows[i] = models.RawRow{"id": id, "eventTime": "2025-06-02T12:00:00Z", "eventType": "RUN"}
			}

			events, err := NewRegistry(nil).Normalize(models.KindEquipmentState, rows, Options{Location: time.UTC})
			require.NoError(t, err)
			got := make([]string, len(events))
			for i, ev := range events {
				got[i] = ev.ID
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistryUnknownKind(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Normalize(models.Kind("BOGUS"), nil, Options{})
	assert.Error(t, err)
}

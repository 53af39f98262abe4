package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialView(t *testing.T, srv *httptest.Server, viewID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/views/" + viewID + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, typ, id string, payload interface{}) {
	t.Helper()
	msg := WSMessage{Type: typ, ID: id, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		msg.Payload = mustJSON(payload)
	}
	require.NoError(t, ws.WriteJSON(msg))
}

// readUntil skips messages until one matches typ and id.
func readUntil(t *testing.T, ws *websocket.Conn, typ, id string) WSMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg WSMessage
		require.NoError(t, ws.ReadJSON(&msg), "waiting for %s %s", typ, id)
		if msg.Type == typ && msg.ID == id {
			return msg
		}
	}
}

func TestWebSocketRangeSync(t *testing.T) {
	s := newTestServer(t, sampleFetcher(), nil)
	srv := httptest.NewServer(s.e)
	t.Cleanup(srv.Close)

	v, err := s.views.Create(nil, false)
	require.NoError(t, err)

	ws := dialView(t, srv, v.ID())
	readUntil(t, ws, MsgTypeConnected, "")
	readUntil(t, ws, MsgTypeState, "")

	for _, ref := range []string{"A", "B", "D"} {
		send(t, ws, MsgTypeWidgetRegister, ref, nil)
		msg := readUntil(t, ws, MsgTypeWidgetRegistered, ref)
		var p RegisteredPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &p))
		assert.NotEmpty(t, p.Handle)
	}
	assert.Equal(t, 3, v.Coordinator().Count())

	start := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)
	send(t, ws, MsgTypeWidgetRangeChange, "A", RangePayload{Start: start, End: end})

	// B and D follow without animation; A gets nothing back
	got := map[string]SetWindowPayload{}
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for len(got) < 2 {
		var msg WSMessage
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type != MsgTypeSetWindow {
			continue
		}
		var p SetWindowPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &p))
		got[msg.ID] = p
	}
	assert.NotContains(t, got, "A")
	for _, ref := range []string{"B", "D"} {
		require.Contains(t, got, ref)
		assert.True(t, got[ref].Start.Equal(start))
		assert.True(t, got[ref].End.Equal(end))
		assert.False(t, got[ref].Animation)
	}

	send(t, ws, MsgTypeWidgetRelease, "B", nil)
	require.Eventually(t, func() bool { return v.Coordinator().Count() == 2 }, time.Second, 5*time.Millisecond)

	send(t, ws, MsgTypeWidgetRangeChange, "B", RangePayload{Start: start, End: end})
	msg := readUntil(t, ws, MsgTypeError, "B")
	assert.Contains(t, string(msg.Payload), "WIDGET_NOT_FOUND")
}

func TestWebSocketSelection(t *testing.T) {
	s := newTestServer(t, sampleFetcher(), nil)
	srv := httptest.NewServer(s.e)
	t.Cleanup(srv.Close)

	v, err := s.views.Create(nil, false)
	require.NoError(t, err)
	ws := dialView(t, srv, v.ID())
	readUntil(t, ws, MsgTypeConnected, "")

	send(t, ws, MsgTypeWidgetRegister, "chart", RegisterPayload{Items: []string{"EQP-1"}})
	readUntil(t, ws, MsgTypeWidgetRegistered, "chart")

	send(t, ws, MsgTypeSelect, "", SelectPayload{ID: "EQP-1", Origin: models.OriginTable})
	msg := readUntil(t, ws, MsgTypeSetSelection, "chart")
	var p SetSelectionPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Equal(t, []string{"EQP-1"}, p.IDs)
	readUntil(t, ws, MsgTypeSelection, "")

	// an id the widget does not display clears its highlight
	send(t, ws, MsgTypeSelect, "", SelectPayload{ID: "TIP-9", Origin: models.OriginTimeline})
	msg = readUntil(t, ws, MsgTypeSetSelection, "chart")
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Empty(t, p.IDs)
	assert.Equal(t, models.Selection{ID: "TIP-9", Origin: models.OriginTimeline}, v.Snapshot().Selection)

	send(t, ws, MsgTypeClear, "", nil)
	readUntil(t, ws, MsgTypeSelection, "")
	assert.True(t, v.Snapshot().Selection.None())

	// the cleared selection reaches state subscribers too
	cleared := false
	for i := 0; i < 5 && !cleared; i++ {
		msg := readUntil(t, ws, MsgTypeState, "")
		var state struct {
			Selection models.Selection `json:"selection"`
		}
		require.NoError(t, json.Unmarshal(msg.Payload, &state))
		cleared = state.Selection.None()
	}
	assert.True(t, cleared, "no state message with an empty selection")

	send(t, ws, MsgTypeSelect, "", SelectPayload{ID: "EQP-1", Origin: "sidebar"})
	readUntil(t, ws, MsgTypeError, "")

	send(t, ws, MsgTypePing, "p1", nil)
	readUntil(t, ws, MsgTypePong, "p1")
}

func TestWebSocketCloseReleasesWidgets(t *testing.T) {
	s := newTestServer(t, sampleFetcher(), nil)
	srv := httptest.NewServer(s.e)
	t.Cleanup(srv.Close)

	v, err := s.views.Create(nil, false)
	require.NoError(t, err)
	ws := dialView(t, srv, v.ID())
	send(t, ws, MsgTypeWidgetRegister, "A", nil)
	readUntil(t, ws, MsgTypeWidgetRegistered, "A")
	require.Equal(t, 1, v.Coordinator().Count())

	ws.Close()
	require.Eventually(t, func() bool { return v.Coordinator().Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketUnknownView(t *testing.T) {
	s := newTestServer(t, sampleFetcher(), nil)
	srv := httptest.NewServer(s.e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/views/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestWebSocketKeepsViewAlive(t *testing.T) {
	s := newTestServer(t, sampleFetcher(), nil)
	wsh := NewWebSocketHandler(s.views, 0)
	wsh.pingPeriod = 20 * time.Millisecond
	e := echo.New()
	e.GET("/api/views/:id/ws", wsh.HandleViewSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	v, err := s.views.Create(nil, false)
	require.NoError(t, err)
	ws := dialView(t, srv, v.ID())
	readUntil(t, ws, MsgTypeConnected, "")

	// the client answers pings while reading but never sends a message
	require.NoError(t, ws.SetReadDeadline(time.Time{}))
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	before := v.LastAccess()
	require.Eventually(t, func() bool { return v.LastAccess().After(before.Add(50 * time.Millisecond)) },
		2*time.Second, 10*time.Millisecond)
}

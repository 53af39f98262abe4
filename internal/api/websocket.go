package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pjw7536/react-timeline2/internal/coordinator"
	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pjw7536/react-timeline2/internal/session"
	"github.com/rs/zerolog/log"
)

// WebSocket message types for the view sync protocol
const (
	// Client -> Server messages
	MsgTypeWidgetRegister    = "widget:register"
	MsgTypeWidgetRelease     = "widget:release"
	MsgTypeWidgetRangeChange = "widget:rangechange"
	MsgTypeSelect            = "select"
	MsgTypeClear             = "clear"
	MsgTypePing              = "ping"

	// Server -> Client messages
	MsgTypeConnected        = "connected"
	MsgTypeWidgetRegistered = "widget:registered"
	MsgTypeSetWindow        = "widget:setWindow"
	MsgTypeSetSelection     = "widget:setSelection"
	MsgTypeSelection        = "selection"
	MsgTypeState            = "state"
	MsgTypeError            = "error"
	MsgTypePong             = "pong"
)

const (
	sendQueueSize = 64
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
)

// WSMessage is the envelope of every websocket message. For widget messages
// ID is the client's widget reference.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// RegisterPayload registers a timeline widget. Items, when present, lists the
// ids the widget displays; selections outside it clear the widget's highlight.
type RegisterPayload struct {
	Items []string `json:"items,omitempty"`
}

// RegisteredPayload answers a registration with the server handle id.
type RegisteredPayload struct {
	Handle string `json:"handle"`
}

// RangePayload carries a viewport window.
type RangePayload struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SetWindowPayload is pushed to every widget but the one that moved.
type SetWindowPayload struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Animation bool      `json:"animation"`
}

// SetSelectionPayload is the highlight a widget should show.
type SetSelectionPayload struct {
	IDs []string `json:"ids"`
}

// SelectPayload is a row or item click.
type SelectPayload struct {
	ID     string        `json:"id"`
	Origin models.Origin `json:"origin"`
}

// WSErrorResponse is the payload of error messages
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler serves the per-view sync channel
type WebSocketHandler struct {
	views          *session.Manager
	upgrader       websocket.Upgrader
	maxMessageSize int64
	pingPeriod     time.Duration
	pongWait       time.Duration
}

// NewWebSocketHandler creates a new websocket handler. maxMessageSize is in
// bytes; zero means 512KB.
func NewWebSocketHandler(views *session.Manager, maxMessageSize int64) *WebSocketHandler {
	if maxMessageSize <= 0 {
		maxMessageSize = 512 * 1024
	}
	return &WebSocketHandler{
		views: views,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// CORS is enforced by the HTTP middleware
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		maxMessageSize: maxMessageSize,
		pingPeriod:     pingPeriod,
		pongWait:       pongWait,
	}
}

// wsClient is one connection bound to one view. Only writePump writes to conn.
type wsClient struct {
	conn       *websocket.Conn
	pingPeriod time.Duration
	view       *session.View
	send       chan WSMessage
	done       chan struct{}
	once       sync.Once
	mu         sync.Mutex
	widgets    map[string]*coordinator.Handle
}

// remoteWidget forwards coordinator calls to the browser widget ref.
type remoteWidget struct {
	client *wsClient
	ref    string
}

func (w *remoteWidget) SetWindow(start, end time.Time, opts coordinator.WindowOptions) {
	w.client.enqueue(MsgTypeSetWindow, w.ref, SetWindowPayload{Start: start, End: end, Animation: opts.Animation})
}

func (w *remoteWidget) SetSelection(ids []string) {
	w.client.enqueue(MsgTypeSetSelection, w.ref, SetSelectionPayload{IDs: ids})
}

// remoteItemWidget is a remoteWidget that declared the ids it displays.
type remoteItemWidget struct {
	*remoteWidget
	items map[string]struct{}
}

func (w *remoteItemWidget) Contains(id string) bool {
	_, ok := w.items[id]
	return ok
}

// HandleViewSocket upgrades the connection and runs the sync protocol for the
// view until the client disconnects. Widgets registered on the connection are
// released when it closes.
func (wsh *WebSocketHandler) HandleViewSocket(c echo.Context) error {
	id := c.Param("id")
	v, ok := wsh.views.Get(id)
	if !ok {
		return NewNotFoundError("view", id)
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	ws.SetReadLimit(wsh.maxMessageSize)

	client := &wsClient{
		conn:       ws,
		pingPeriod: wsh.pingPeriod,
		view:       v,
		send:       make(chan WSMessage, sendQueueSize),
		done:       make(chan struct{}),
		widgets:    make(map[string]*coordinator.Handle),
	}
	go client.writePump()

	unsubscribeState := v.Subscribe(func(s session.Snapshot) {
		client.enqueue(MsgTypeState, "", s)
	})
	unsubscribeSelection := v.Coordinator().OnSelect(func(sel models.Selection) {
		client.enqueue(MsgTypeSelection, "", sel)
	})
	defer func() {
		unsubscribeState()
		unsubscribeSelection()
		client.releaseAll()
		client.close()
	}()

	log.Debug().Str("component", "ws").Str("view", shortID(id)).Msg("client connected")
	client.enqueue(MsgTypeConnected, "", nil)
	client.enqueue(MsgTypeState, "", v.Snapshot())

	// an open socket keeps its view alive even when the page sends nothing
	ws.SetReadDeadline(time.Now().Add(wsh.pongWait))
	ws.SetPongHandler(func(string) error {
		wsh.views.Touch(id)
		return ws.SetReadDeadline(time.Now().Add(wsh.pongWait))
	})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("component", "ws").Str("view", shortID(id)).Msg("connection error")
			}
			break
		}
		ws.SetReadDeadline(time.Now().Add(wsh.pongWait))
		wsh.views.Touch(id)
		client.handle(msg)
	}

	log.Debug().Str("component", "ws").Str("view", shortID(id)).Msg("client disconnected")
	return nil
}

func (cl *wsClient) handle(msg WSMessage) {
	switch msg.Type {
	case MsgTypePing:
		cl.enqueue(MsgTypePong, msg.ID, nil)
	case MsgTypeWidgetRegister:
		cl.register(msg)
	case MsgTypeWidgetRelease:
		cl.release(msg.ID)
	case MsgTypeWidgetRangeChange:
		cl.rangeChanged(msg)
	case MsgTypeSelect:
		var p SelectPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			cl.sendError(msg.ID, "Invalid select payload: "+err.Error(), "INVALID_PAYLOAD")
			return
		}
		if !p.Origin.Valid() {
			cl.sendError(msg.ID, "Invalid selection origin: "+string(p.Origin), "INVALID_PAYLOAD")
			return
		}
		cl.view.Select(p.ID, p.Origin)
	case MsgTypeClear:
		cl.view.Clear()
	default:
		cl.sendError(msg.ID, "Unknown message type: "+msg.Type, "INVALID_TYPE")
	}
}

func (cl *wsClient) register(msg WSMessage) {
	if msg.ID == "" {
		cl.sendError("", "widget reference is required", "INVALID_PAYLOAD")
		return
	}
	var p RegisterPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			cl.sendError(msg.ID, "Invalid register payload: "+err.Error(), "INVALID_PAYLOAD")
			return
		}
	}
	// re-registering a ref replaces the previous widget
	cl.release(msg.ID)

	base := &remoteWidget{client: cl, ref: msg.ID}
	var w coordinator.Widget = base
	if p.Items != nil {
		items := make(map[string]struct{}, len(p.Items))
		for _, id := range p.Items {
			items[id] = struct{}{}
		}
		w = &remoteItemWidget{remoteWidget: base, items: items}
	}

	handle := cl.view.Coordinator().Register(w)
	cl.mu.Lock()
	cl.widgets[msg.ID] = handle
	cl.mu.Unlock()
	cl.enqueue(MsgTypeWidgetRegistered, msg.ID, RegisteredPayload{Handle: handle.ID()})
}

func (cl *wsClient) release(ref string) {
	cl.mu.Lock()
	handle, ok := cl.widgets[ref]
	delete(cl.widgets, ref)
	cl.mu.Unlock()
	if ok {
		handle.Release()
	}
}

func (cl *wsClient) releaseAll() {
	cl.mu.Lock()
	handles := cl.widgets
	cl.widgets = make(map[string]*coordinator.Handle)
	cl.mu.Unlock()
	for _, h := range handles {
		h.Release()
	}
}

func (cl *wsClient) rangeChanged(msg WSMessage) {
	var p RangePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		cl.sendError(msg.ID, "Invalid range payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}
	if p.End.Before(p.Start) {
		cl.sendError(msg.ID, "range end is before start", "INVALID_PAYLOAD")
		return
	}
	cl.mu.Lock()
	handle, ok := cl.widgets[msg.ID]
	cl.mu.Unlock()
	if !ok {
		cl.sendError(msg.ID, "widget not registered: "+msg.ID, "WIDGET_NOT_FOUND")
		return
	}
	handle.RangeChanged(p.Start, p.End)
}

// enqueue never blocks: coordinator callbacks run under its lock. A full
// queue drops the message.
func (cl *wsClient) enqueue(typ, id string, payload interface{}) {
	msg := WSMessage{Type: typ, ID: id, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		msg.Payload = mustJSON(payload)
	}
	select {
	case <-cl.done:
		return
	default:
	}
	select {
	case cl.send <- msg:
	default:
		log.Warn().Str("component", "ws").Str("type", typ).Msg("send queue full, dropping message")
	}
}

func (cl *wsClient) sendError(id, message, code string) {
	cl.enqueue(MsgTypeError, id, WSErrorResponse{Message: message, Code: code})
}

func (cl *wsClient) writePump() {
	ticker := time.NewTicker(cl.pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()
	for {
		select {
		case <-cl.done:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("component", "ws").Msg("failed to send message")
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (cl *wsClient) close() {
	cl.once.Do(func() { close(cl.done) })
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

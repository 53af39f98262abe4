// handlers_view.go - Timeline view handlers
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pjw7536/react-timeline2/internal/filter"
	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pjw7536/react-timeline2/internal/session"
	"github.com/pjw7536/react-timeline2/internal/timeline"
	"github.com/pjw7536/react-timeline2/internal/view"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// ViewHandlerImpl implements the ViewHandler interface
type ViewHandlerImpl struct {
	views    *session.Manager
	legend   *models.Legend
	buffer   timeline.Buffer
	location *time.Location
	now      func() time.Time
}

// NewViewHandler creates a new view handler
func NewViewHandler(views *session.Manager, legend *models.Legend, buffer timeline.Buffer, loc *time.Location) *ViewHandlerImpl {
	if legend == nil {
		legend = models.DefaultLegend()
	}
	if loc == nil {
		loc = time.Local
	}
	return &ViewHandlerImpl{
		views:    views,
		legend:   legend,
		buffer:   buffer,
		location: loc,
		now:      time.Now,
	}
}

type contextRequest struct {
	LineID   string `json:"lineId" validate:"required"`
	SdwtID   string `json:"sdwtId"`
	PrcGroup string `json:"prcGroup"`
	EqpID    string `json:"eqpId"`
	// Validate looks the equipment up first, as done for deep links.
	Validate bool `json:"validate"`
}

func (r contextRequest) drilldown() models.DrilldownContext {
	return models.DrilldownContext{LineID: r.LineID, SdwtID: r.SdwtID, PrcGroup: r.PrcGroup, EqpID: r.EqpID}
}

type createViewRequest struct {
	Context *contextRequest `json:"context"`
}

type typeFilterRequest struct {
	Kind    string `json:"kind" validate:"required"`
	Visible *bool  `json:"visible" validate:"required"`
}

type toggleGroupRequest struct {
	NodeID string `json:"nodeId" validate:"required"`
}

type legendRequest struct {
	ShowLegend *bool `json:"showLegend" validate:"required"`
}

type selectRequest struct {
	ID     string `json:"id"`
	Origin string `json:"origin" validate:"required,oneof=table timeline"`
}

func (h *ViewHandlerImpl) view(c echo.Context) (*session.View, error) {
	id := c.Param("id")
	v, ok := h.views.Get(id)
	if !ok {
		return nil, NewNotFoundError("view", id)
	}
	return v, nil
}

// HandleCreateView opens a view, loading the optional initial context.
func (h *ViewHandlerImpl) HandleCreateView(c echo.Context) error {
	var req createViewRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	var initial *models.DrilldownContext
	validate := false
	if req.Context != nil {
		if err := c.Validate(req.Context); err != nil {
			return err
		}
		dctx := req.Context.drilldown()
		initial = &dctx
		validate = req.Context.Validate
	}

	v, err := h.views.Create(initial, validate)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v.Snapshot())
}

// HandleGetView returns the view state.
func (h *ViewHandlerImpl) HandleGetView(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v.Snapshot())
}

// HandleDeleteView closes a view and releases its widgets.
func (h *ViewHandlerImpl) HandleDeleteView(c echo.Context) error {
	id := c.Param("id")
	if !h.views.Delete(id) {
		return NewNotFoundError("view", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSetContext switches the drilldown context. Loading continues in the
// background; the response carries the new generation.
func (h *ViewHandlerImpl) HandleSetContext(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}
	var req contextRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	gen := v.SetContext(req.drilldown(), req.Validate)
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"generation": gen,
		"view":       v.Snapshot(),
	})
}

// HandleKeepAlive allows clients to explicitly keep a view alive while the
// page is open but idle.
func (h *ViewHandlerImpl) HandleKeepAlive(c echo.Context) error {
	id := c.Param("id")
	if !h.views.Touch(id) {
		return NewNotFoundError("view", id)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReloadKind retries one kind of the current context.
func (h *ViewHandlerImpl) HandleReloadKind(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}
	kind, err := models.ParseKind(c.Param("kind"))
	if err != nil {
		return NewBadRequestError("unknown log kind", err)
	}
	if err := v.ReloadKind(kind); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, v.Snapshot().Kinds[kind])
}

// HandleStateStream streams view snapshots via SSE until the client goes away.
func (h *ViewHandlerImpl) HandleStateStream(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	// latest snapshot wins; observers must not block
	updates := make(chan session.Snapshot, 1)
	unsubscribe := v.Subscribe(func(s session.Snapshot) {
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- s:
		default:
		}
	})
	defer unsubscribe()

	write := func(s session.Snapshot) error {
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
			return err
		}
		c.Response().Flush()
		return nil
	}
	if err := write(v.Snapshot()); err != nil {
		return nil
	}

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()
	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case s := <-updates:
			if err := write(s); err != nil {
				log.Debug().Err(err).Str("component", "api").Msg("state stream closed")
				return nil
			}
		case <-keepAlive.C:
			h.views.Touch(v.ID())
			if _, err := fmt.Fprint(c.Response(), ": keepalive\n\n"); err != nil {
				return nil
			}
			c.Response().Flush()
		}
	}
}

// HandleRange returns the time range of the visible events and the buffered
// window a timeline should open with.
func (h *ViewHandlerImpl) HandleRange(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}
	snap := v.Snapshot()
	visible := snap.Filters.Apply(snap.Events)
	r := timeline.CalcRange(visible, h.now(), h.location)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"range":    r,
		"buffered": h.buffer.Apply(r),
		"empty":    len(visible) == 0,
	})
}

type tablePage struct {
	view.Page
	SelectedIndex int `json:"selectedIndex" msgpack:"selectedIndex"`
}

func (h *ViewHandlerImpl) tablePage(c echo.Context) (*tablePage, error) {
	v, err := h.view(c)
	if err != nil {
		return nil, err
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = defaultPageSize
	}
	// Cap page size to prevent excessive memory usage
	if limit > maxPageSize {
		limit = maxPageSize
	}

	snap := v.Snapshot()
	rows := view.TableRows(snap.Events, snap.Filters, h.location)
	return &tablePage{
		Page:          view.Window(rows, offset, limit),
		SelectedIndex: view.IndexOf(rows, snap.Selection.ID),
	}, nil
}

// HandleTable returns a window of table rows.
func (h *ViewHandlerImpl) HandleTable(c echo.Context) error {
	page, err := h.tablePage(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// HandleTableMsgpack returns the same window msgpack encoded, for large tables.
func (h *ViewHandlerImpl) HandleTableMsgpack(c echo.Context) error {
	page, err := h.tablePage(c)
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(page)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleTimeline returns the lane projection of the view.
func (h *ViewHandlerImpl) HandleTimeline(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}
	snap := v.Snapshot()
	tl := view.Project(snap.Events, view.ProjectOptions{
		Filters:    snap.Filters,
		Groups:     snap.Groups,
		Selection:  snap.Selection,
		ShowLegend: snap.ShowLegend,
		Continuous: snap.Continuous,
		Legend:     h.legend,
		Location:   h.location,
		Buffer:     h.buffer,
		Now:        h.now(),
	})
	return c.JSON(http.StatusOK, tl)
}

// HandleDetail returns one event with its detail panel fields.
func (h *ViewHandlerImpl) HandleDetail(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}
	logID := c.Param("logId")
	for _, ev := range v.Snapshot().Events {
		if ev.ID == logID {
			return c.JSON(http.StatusOK, map[string]interface{}{
				"event":  ev,
				"fields": view.Detail(ev, h.location),
			})
		}
	}
	return NewNotFoundError("log", logID)
}

// HandleSetTypeFilter shows or hides one kind.
func (h *ViewHandlerImpl) HandleSetTypeFilter(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}
	var req typeFilterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		return NewBadRequestError("unknown log kind", err)
	}
	if err := v.SetTypeFilter(kind, *req.Visible); err != nil {
		return NewBadRequestError("invalid type filter", err)
	}
	return c.JSON(http.StatusOK, v.Snapshot().Filters)
}

// HandleSetGroupFilter replaces the interlock group selection.
func (h *ViewHandlerImpl) HandleSetGroupFilter(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}
	var sel filter.GroupSelection
	if err := c.Bind(&sel); err != nil {
		return NewBadRequestError("invalid group selection", err)
	}
	v.SetGroupSelection(sel)
	return c.JSON(http.StatusOK, v.Snapshot().Groups)
}

// HandleToggleGroup toggles a process, step or part node of the group tree.
func (h *ViewHandlerImpl) HandleToggleGroup(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}
	var req toggleGroupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := v.ToggleGroupNode(req.NodeID); err != nil {
		return err
	}
	return h.groups(c, v)
}

// HandleGroups returns the interlock group tree with check states.
func (h *ViewHandlerImpl) HandleGroups(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}
	return h.groups(c, v)
}

func (h *ViewHandlerImpl) groups(c echo.Context, v *session.View) error {
	snap := v.Snapshot()
	var interlocks []models.LogEvent
	for _, ev := range snap.Events {
		if ev.Kind == models.KindInterlock {
			interlocks = append(interlocks, ev)
		}
	}
	groups, _ := timeline.GroupInterlocks(interlocks)
	tree := filter.Annotate(filter.BuildTree(groups), snap.Groups)
	if tree == nil {
		tree = []filter.NodeView{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"selection": snap.Groups,
		"tree":      tree,
	})
}

// HandleLegend returns the configured legend.
func (h *ViewHandlerImpl) HandleLegend(c echo.Context) error {
	return c.JSON(http.StatusOK, h.legend)
}

// HandleSetLegend switches lane labels between titles and swatches.
func (h *ViewHandlerImpl) HandleSetLegend(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}
	var req legendRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	v.SetShowLegend(*req.ShowLegend)
	return c.JSON(http.StatusOK, map[string]bool{"showLegend": *req.ShowLegend})
}

// HandleSelect applies a row or item click. An empty id clears the selection.
func (h *ViewHandlerImpl) HandleSelect(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}
	var req selectRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	sel := v.Select(req.ID, models.Origin(req.Origin))
	return c.JSON(http.StatusOK, sel)
}

// HandleShare returns the page path of the current context.
func (h *ViewHandlerImpl) HandleShare(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}
	dctx := v.Snapshot().Context
	if !dctx.Complete() {
		return session.ErrNotReady
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"path":    dctx.SharePath(),
		"context": dctx,
	})
}

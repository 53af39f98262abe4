// handlers_drilldown.go - Drilldown option and raw log handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pjw7536/react-timeline2/internal/parser"
	"github.com/pjw7536/react-timeline2/internal/source"
	"github.com/pjw7536/react-timeline2/internal/timeline"
	"github.com/rs/zerolog/log"
)

// DrilldownHandlerImpl implements the DrilldownHandler interface
type DrilldownHandlerImpl struct {
	source     source.Fetcher
	registry   *parser.Registry
	location   *time.Location
	continuous bool
}

// NewDrilldownHandler creates a new drilldown handler
func NewDrilldownHandler(src source.Fetcher, registry *parser.Registry, loc *time.Location, continuous bool) DrilldownHandler {
	if registry == nil {
		registry = parser.GetGlobalRegistry()
	}
	if loc == nil {
		loc = time.Local
	}
	return &DrilldownHandlerImpl{source: src, registry: registry, location: loc, continuous: continuous}
}

type sdwtQuery struct {
	LineID string `query:"lineId" validate:"required"`
}

type prcGroupQuery struct {
	LineID string `query:"lineId" validate:"required"`
	SdwtID string `query:"sdwtId" validate:"required"`
}

type equipmentQuery struct {
	LineID   string `query:"lineId" validate:"required"`
	SdwtID   string `query:"sdwtId"`
	PrcGroup string `query:"prcGroup"`
}

type equipmentInfoQuery struct {
	EqpID  string `param:"eqpId" validate:"required"`
	LineID string `query:"lineId" validate:"required"`
}

type logsQuery struct {
	Kind   string `param:"kind" validate:"required"`
	LineID string `query:"lineId" validate:"required"`
	SdwtID string `query:"sdwtId"`
	EqpID  string `query:"eqpId" validate:"required"`
}

func (h *DrilldownHandlerImpl) options(c echo.Context, level models.DrilldownLevel, parent models.DrilldownContext) error {
	opts, err := h.source.FetchOptions(c.Request().Context(), level, parent)
	if err != nil {
		return err
	}
	if opts == nil {
		opts = []models.Option{}
	}
	return c.JSON(http.StatusOK, opts)
}

// HandleLines returns every line.
func (h *DrilldownHandlerImpl) HandleLines(c echo.Context) error {
	return h.options(c, models.LevelLine, models.DrilldownContext{})
}

// HandleSdwts returns the SDWTs of a line.
func (h *DrilldownHandlerImpl) HandleSdwts(c echo.Context) error {
	var q sdwtQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}
	return h.options(c, models.LevelSdwt, models.DrilldownContext{LineID: q.LineID})
}

// HandlePrcGroups returns the PRC groups of an SDWT.
func (h *DrilldownHandlerImpl) HandlePrcGroups(c echo.Context) error {
	var q prcGroupQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}
	return h.options(c, models.LevelPrcGroup, models.DrilldownContext{LineID: q.LineID, SdwtID: q.SdwtID})
}

// HandleEquipments returns the equipment of a line, optionally narrowed by
// SDWT and PRC group.
func (h *DrilldownHandlerImpl) HandleEquipments(c echo.Context) error {
	var q equipmentQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}
	return h.options(c, models.LevelEquipment, models.DrilldownContext{LineID: q.LineID, SdwtID: q.SdwtID, PrcGroup: q.PrcGroup})
}

// HandleEquipmentInfo looks up where an equipment sits in the hierarchy.
func (h *DrilldownHandlerImpl) HandleEquipmentInfo(c echo.Context) error {
	var q equipmentInfoQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}
	info, err := h.source.EquipmentInfo(c.Request().Context(), q.LineID, q.EqpID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

// HandleLogs returns the normalized events of one kind, sorted by time, with
// state durations resolved.
func (h *DrilldownHandlerImpl) HandleLogs(c echo.Context) error {
	var q logsQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}
	kind, err := models.ParseKind(q.Kind)
	if err != nil {
		return NewBadRequestError("unknown log kind", err)
	}

	dctx := models.DrilldownContext{LineID: q.LineID, SdwtID: q.SdwtID, EqpID: q.EqpID}
	start := time.Now()
	rows, err := h.source.FetchLogs(c.Request().Context(), kind, dctx)
	if err != nil {
		return err
	}
	events, err := h.registry.Normalize(kind, rows, parser.Options{Continuous: h.continuous, Location: h.location})
	if err != nil {
		return NewInternalError("normalize logs", err)
	}
	events = parser.MergeKinds(map[models.Kind][]models.LogEvent{kind: events})
	if h.continuous {
		events = timeline.ResolveDurations(events, h.location)
	}

	log.Debug().Str("component", "api").Str("kind", string(kind)).Str("eqp", q.EqpID).
		Int("rows", len(rows)).Int("events", len(events)).Dur("took", time.Since(start)).Msg("logs served")

	return c.JSON(http.StatusOK, map[string]interface{}{
		"kind":   kind,
		"events": events,
		"total":  len(events),
	})
}

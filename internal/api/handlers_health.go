// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pjw7536/react-timeline2/internal/session"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	views   *session.Manager
	counter EquipmentCounter
}

// NewHealthHandler creates a new health handler. counter may be nil.
func NewHealthHandler(version string, views *session.Manager, counter EquipmentCounter) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		views:   views,
		counter: counter,
	}
}

// HandleHealth returns server health status. A source that cannot be
// queried turns the check into a 503.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	body := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"views":   h.views.Count(),
	}
	if h.counter != nil {
		n, err := h.counter.CountEquipment(c.Request().Context())
		if err != nil {
			return NewServiceUnavailableError("log source unavailable", err)
		}
		body["equipment"] = n
	}
	return c.JSON(http.StatusOK, body)
}

// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// DrilldownHandler serves the Line -> SDWT/PRC group -> equipment cascade and
// raw normalized logs.
type DrilldownHandler interface {
	HandleLines(c echo.Context) error
	HandleSdwts(c echo.Context) error
	HandlePrcGroups(c echo.Context) error
	HandleEquipments(c echo.Context) error
	HandleEquipmentInfo(c echo.Context) error
	HandleLogs(c echo.Context) error
}

// ViewHandler handles timeline view operations
type ViewHandler interface {
	HandleCreateView(c echo.Context) error
	HandleGetView(c echo.Context) error
	HandleDeleteView(c echo.Context) error
	HandleSetContext(c echo.Context) error
	HandleKeepAlive(c echo.Context) error
	HandleReloadKind(c echo.Context) error
	HandleStateStream(c echo.Context) error
	HandleRange(c echo.Context) error
	HandleTable(c echo.Context) error
	HandleTableMsgpack(c echo.Context) error
	HandleTimeline(c echo.Context) error
	HandleDetail(c echo.Context) error
	HandleSetTypeFilter(c echo.Context) error
	HandleSetGroupFilter(c echo.Context) error
	HandleToggleGroup(c echo.Context) error
	HandleGroups(c echo.Context) error
	HandleLegend(c echo.Context) error
	HandleSetLegend(c echo.Context) error
	HandleSelect(c echo.Context) error
	HandleShare(c echo.Context) error
}

// SocketHandler handles the per-view sync channel
type SocketHandler interface {
	HandleViewSocket(c echo.Context) error
}

// EquipmentCounter is implemented by sources that can report their size.
type EquipmentCounter interface {
	CountEquipment(ctx context.Context) (int, error)
}

// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pjw7536/react-timeline2/internal/parser"
	"github.com/pjw7536/react-timeline2/internal/session"
	"github.com/pjw7536/react-timeline2/internal/source"
	"github.com/pjw7536/react-timeline2/internal/timeline"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Views    *session.Manager
	Source   source.Fetcher
	Counter  EquipmentCounter
	Registry *parser.Registry
	Legend   *models.Legend
	Buffer   timeline.Buffer
	Location *time.Location
	// Continuous mirrors the view setting for the raw logs endpoint.
	Continuous       bool
	LoginURL         string
	WSMaxMessageSize int64
	Version          string
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Drilldown DrilldownHandler
	View      ViewHandler
	Socket    SocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Views, deps.Counter),
		Drilldown: NewDrilldownHandler(deps.Source, deps.Registry, deps.Location, deps.Continuous),
		View:      NewViewHandler(deps.Views, deps.Legend, deps.Buffer, deps.Location),
		Socket:    NewWebSocketHandler(deps.Views, deps.WSMaxMessageSize),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	api := e.Group("/api")

	// Health check
	api.GET("/health", handlers.Health.HandleHealth)

	// Drilldown options
	api.GET("/lines", handlers.Drilldown.HandleLines)
	api.GET("/sdwts", handlers.Drilldown.HandleSdwts)
	api.GET("/prc-groups", handlers.Drilldown.HandlePrcGroups)
	api.GET("/equipments", handlers.Drilldown.HandleEquipments)
	api.GET("/equipment-info/:eqpId", handlers.Drilldown.HandleEquipmentInfo)
	api.GET("/logs/:kind", handlers.Drilldown.HandleLogs)
	api.GET("/legend", handlers.View.HandleLegend)

	// View routes
	views := api.Group("/views")
	views.POST("", handlers.View.HandleCreateView)
	views.GET("/:id", handlers.View.HandleGetView)
	views.DELETE("/:id", handlers.View.HandleDeleteView)
	views.PUT("/:id/context", handlers.View.HandleSetContext)
	views.POST("/:id/keepalive", handlers.View.HandleKeepAlive)
	views.POST("/:id/reload/:kind", handlers.View.HandleReloadKind)
	views.GET("/:id/events", handlers.View.HandleStateStream)
	views.GET("/:id/range", handlers.View.HandleRange)
	views.GET("/:id/table", handlers.View.HandleTable)
	views.GET("/:id/table/msgpack", handlers.View.HandleTableMsgpack)
	views.GET("/:id/timeline", handlers.View.HandleTimeline)
	views.GET("/:id/detail/:logId", handlers.View.HandleDetail)
	views.PUT("/:id/filters/type", handlers.View.HandleSetTypeFilter)
	views.PUT("/:id/filters/group", handlers.View.HandleSetGroupFilter)
	views.POST("/:id/filters/group/toggle", handlers.View.HandleToggleGroup)
	views.GET("/:id/groups", handlers.View.HandleGroups)
	views.PUT("/:id/legend", handlers.View.HandleSetLegend)
	views.POST("/:id/select", handlers.View.HandleSelect)
	views.GET("/:id/share", handlers.View.HandleShare)

	// WebSocket sync channel
	views.GET("/:id/ws", handlers.Socket.HandleViewSocket)
}

// IsLongLived reports whether path serves a stream that must not be cut by
// request timeouts.
func IsLongLived(path string) bool {
	return strings.HasSuffix(path, "/ws") || strings.HasSuffix(path, "/events")
}

// SetupMiddleware configures the error handler and request validator
func SetupMiddleware(e *echo.Echo, loginURL string) {
	e.HTTPErrorHandler = NewErrorHandler(loginURL)
	e.Validator = NewRequestValidator()
}

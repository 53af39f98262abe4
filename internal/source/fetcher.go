// Package source fetches drilldown options and raw log rows from the upstream
// data service or a SQL database holding the equipment history tables.
package source

import (
	"context"

	"github.com/pjw7536/react-timeline2/internal/models"
)

// Fetcher is the data-fetch capability consumed by view sessions.
type Fetcher interface {
	// FetchLogs returns the raw rows of one kind for the equipment of dctx.
	FetchLogs(ctx context.Context, kind models.Kind, dctx models.DrilldownContext) ([]models.RawRow, error)
	// FetchOptions lists the selector options of level below parent.
	FetchOptions(ctx context.Context, level models.DrilldownLevel, parent models.DrilldownContext) ([]models.Option, error)
	// EquipmentInfo locates eqpID in lineID. Returns a NotFoundError when absent.
	EquipmentInfo(ctx context.Context, lineID, eqpID string) (*models.EquipmentInfo, error)
}

package health

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/bizsuite/server/domain/reltypes"
	"github.com/bizsuite/server/domain/scheduler"
)

// TaskLister is satisfied by *scheduler.Scheduler.
type TaskLister interface {
	GetTaskInfo() []scheduler.TaskInfo
	IsRunning() bool
}

// EdgeCounter reports live relationship counts per type.
type EdgeCounter interface {
	LiveEdgeCounts(ctx context.Context) ([]TypeCount, error)
}

// TypeCacheStats is satisfied by *reltypes.Registry.
type TypeCacheStats interface {
	Metrics() reltypes.CacheMetrics
}

type TypeCount struct {
	Type  string `bun:"relationship_type" json:"type"`
	Count int64  `bun:"count" json:"count"`
}

type MetricsHandler struct {
	edges EdgeCounter
	types TypeCacheStats
	sched TaskLister
}

func NewMetricsHandler(db *bun.DB, registry *reltypes.Registry, sched *scheduler.Scheduler) *MetricsHandler {
	return &MetricsHandler{edges: &edgeCounter{db: db}, types: registry, sched: sched}
}

type edgeCounter struct {
	db *bun.DB
}

func (r *edgeCounter) LiveEdgeCounts(ctx context.Context) ([]TypeCount, error) {
	counts := []TypeCount{}
	err := r.db.NewRaw(`
		SELECT relationship_type, COUNT(*) AS count
		FROM biz.entity_relationships
		WHERE NOT is_deleted
		GROUP BY relationship_type
		ORDER BY relationship_type`).Scan(ctx, &counts)
	return counts, err
}

type RelationshipMetrics struct {
	Types     []TypeCount           `json:"types"`
	Total     int64                 `json:"total"`
	TypeCache reltypes.CacheMetrics `json:"typeCache"`
	Timestamp string                `json:"timestamp"`
}

// RelationshipMetrics counts live edges per relationship type across tenants
// and reports the type registry's cache hits and misses.
func (h *MetricsHandler) RelationshipMetrics(c echo.Context) error {
	counts, err := h.edges.LiveEdgeCounts(c.Request().Context())
	if err != nil {
		return err
	}
	var total int64
	for _, tc := range counts {
		total += tc.Count
	}
	return c.JSON(http.StatusOK, RelationshipMetrics{
		Types:     counts,
		Total:     total,
		TypeCache: h.types.Metrics(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *MetricsHandler) SchedulerMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"running": h.sched.IsRunning(),
		"tasks":   h.sched.GetTaskInfo(),
	})
}

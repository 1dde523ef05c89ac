package health

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/bizsuite/server/internal/config"
	"github.com/bizsuite/server/internal/version"
	"github.com/bizsuite/server/pkg/syshealth"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	db      Pinger
	sys     syshealth.Monitor
	cfg     *config.Config
	startAt time.Time
}

func NewHandler(pool *pgxpool.Pool, sys syshealth.Monitor, cfg *config.Config) *Handler {
	return newHandler(pool, sys, cfg)
}

func newHandler(db Pinger, sys syshealth.Monitor, cfg *config.Config) *Handler {
	return &Handler{
		db:      db,
		sys:     sys,
		cfg:     cfg,
		startAt: time.Now(),
	}
}

type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
}

type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health reports overall status. Only the database check affects the status
// code; the system check is informational.
// @Router /health [get]
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	db := Check{Status: "healthy"}
	if err := h.db.Ping(ctx); err != nil {
		db = Check{Status: "unhealthy", Message: err.Error()}
	}

	resp := HealthResponse{
		Status:    db.Status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startAt).String(),
		Version:   version.Version,
		Checks:    map[string]Check{"database": db, "system": h.systemCheck()},
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

func (h *Handler) systemCheck() Check {
	snap := h.sys.Snapshot()
	if snap.Stale {
		return Check{Status: "unknown"}
	}
	return Check{Status: string(snap.Zone), Message: fmt.Sprintf("score %d", snap.Score)}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Ready is the readiness probe; it fails while the database is unreachable.
func (h *Handler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":  "not_ready",
			"message": "Database connection failed",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ready"})
}

// Debug returns runtime and pool information outside production.
func (h *Handler) Debug(c echo.Context) error {
	if h.cfg.Environment == "production" {
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	out := map[string]any{
		"environment": h.cfg.Environment,
		"debug":       h.cfg.Debug,
		"version":     version.Info(),
		"go_version":  runtime.Version(),
		"goroutines":  runtime.NumGoroutine(),
		"system":      h.sys.Snapshot(),
		"memory": map[string]any{
			"alloc_mb":       mem.Alloc / 1024 / 1024,
			"total_alloc_mb": mem.TotalAlloc / 1024 / 1024,
			"sys_mb":         mem.Sys / 1024 / 1024,
			"num_gc":         mem.NumGC,
		},
	}
	if pool, ok := h.db.(*pgxpool.Pool); ok {
		st := pool.Stat()
		out["database"] = map[string]any{
			"host":        h.cfg.Database.Host,
			"port":        h.cfg.Database.Port,
			"database":    h.cfg.Database.Database,
			"pool_total":  st.TotalConns(),
			"pool_idle":   st.IdleConns(),
			"pool_in_use": st.AcquiredConns(),
		}
	}
	return c.JSON(http.StatusOK, out)
}

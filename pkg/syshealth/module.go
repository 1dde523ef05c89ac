package syshealth

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	"github.com/bizsuite/server/internal/config"
)

var Module = fx.Module("syshealth",
	fx.Provide(New),
	fx.Invoke(RegisterLifecycle),
)

// New builds the monitor from configuration. A disabled monitor is still
// provided; it never collects, so its snapshot stays stale.
func New(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) Monitor {
	c := DefaultConfig()
	if iv := cfg.SystemHealth.Interval; iv > 0 {
		c.CollectionInterval = iv
		c.StalenessThreshold = 4 * iv
	}
	return NewMonitor(c, pool, log)
}

func RegisterLifecycle(lc fx.Lifecycle, m Monitor, cfg *config.Config) {
	if !cfg.SystemHealth.Enabled {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return m.Start() },
		OnStop:  func(context.Context) error { return m.Stop() },
	})
}

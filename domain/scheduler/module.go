package scheduler

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/bizsuite/server/domain/discovery"
	"github.com/bizsuite/server/internal/config"
	"github.com/bizsuite/server/pkg/logger"
	"github.com/bizsuite/server/pkg/syshealth"
)

// Module provides the background scheduler and its tasks.
var Module = fx.Module("scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

type TaskParams struct {
	fx.In
	Scheduler *Scheduler
	Detector  *discovery.Service
	Health    syshealth.Monitor `optional:"true"`
	Cfg       *config.Config
	Log       *slog.Logger
}

// RegisterTasks wires the enabled background tasks. Registration errors are
// logged so a bad schedule never blocks startup.
func RegisterTasks(p TaskParams) error {
	if !p.Cfg.Scheduler.Enabled {
		p.Log.Info("scheduler disabled, skipping task registration")
		return nil
	}

	if p.Cfg.Discovery.SupplierDetectionEnabled {
		task := NewSupplierDetectionTask(p.Detector, p.Health, p.Log)
		if err := p.Scheduler.AddScheduledTask(SupplierDetectionTaskName,
			p.Cfg.Discovery.SupplierDetectionSchedule,
			p.Cfg.Discovery.SupplierDetectionInterval, task.Run); err != nil {
			p.Log.Error("failed to register supplier detection task", logger.Error(err))
		}
	}

	p.Log.Info("registered scheduled tasks",
		slog.Any("tasks", p.Scheduler.ListTasks()))
	return nil
}

func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *config.Config) {
	if !cfg.Scheduler.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}

// Package main runs the BizSuite API server.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/bizsuite/server/domain/discovery"
	"github.com/bizsuite/server/domain/health"
	"github.com/bizsuite/server/domain/relationships"
	"github.com/bizsuite/server/domain/reltypes"
	"github.com/bizsuite/server/domain/scheduler"
	"github.com/bizsuite/server/domain/tasks"
	"github.com/bizsuite/server/domain/tracing"
	"github.com/bizsuite/server/internal/config"
	"github.com/bizsuite/server/internal/database"
	"github.com/bizsuite/server/internal/server"
	"github.com/bizsuite/server/pkg/logger"
	"github.com/bizsuite/server/pkg/syshealth"
)

func main() {
	// Local development only; .env.local overrides .env.
	_ = godotenv.Load("../../.env")
	_ = godotenv.Overload("../../.env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		logger.Module,
		config.Module,
		database.Module,
		server.Module,
		tracing.Module,
		syshealth.Module,

		health.Module,
		reltypes.Module,
		relationships.Module,
		tasks.Module,
		discovery.Module,

		// Background supplier detection
		scheduler.Module,
	).Run()
}

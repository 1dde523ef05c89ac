// Package migrate applies the embedded goose migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/bizsuite/server/migrations"
)

// Migrator handles database migrations.
type Migrator struct {
	provider *goose.Provider
	logger   *zap.Logger
}

// NewMigrator creates a Migrator over the embedded migration set.
func NewMigrator(db *sql.DB, logger *zap.Logger) (*Migrator, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("create goose provider: %w", err)
	}
	return &Migrator{
		provider: provider,
		logger:   logger.Named("migrator"),
	}, nil
}

// Up runs all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	m.logResults(results)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	m.logger.Info("migrations completed", zap.Int("applied", len(results)))
	return nil
}

// UpTo runs migrations up to and including version.
func (m *Migrator) UpTo(ctx context.Context, version int64) error {
	results, err := m.provider.UpTo(ctx, version)
	m.logResults(results)
	if err != nil {
		return fmt.Errorf("run migrations to %d: %w", version, err)
	}
	return nil
}

// Down rolls back the last applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	result, err := m.provider.Down(ctx)
	if result != nil {
		m.logResults([]*goose.MigrationResult{result})
	}
	if err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	return nil
}

// MigrationState is one row of Status output.
type MigrationState struct {
	Version int64
	Path    string
	Applied bool
}

// Status reports every known migration and whether it is applied.
func (m *Migrator) Status(ctx context.Context) ([]MigrationState, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	out := make([]MigrationState, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationState{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}

// Version returns the current database version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	v, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

func (m *Migrator) logResults(results []*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		fields := []zap.Field{
			zap.Int64("version", r.Source.Version),
			zap.String("direction", r.Direction),
			zap.Duration("duration", r.Duration),
		}
		if r.Error != nil {
			m.logger.Error("migration failed", append(fields, zap.Error(r.Error))...)
			continue
		}
		m.logger.Info("migration applied", fields...)
	}
}

// RunWithDB applies all pending migrations without a logger; used by tests.
func RunWithDB(ctx context.Context, db *sql.DB) error {
	m, err := NewMigrator(db, zap.NewNop())
	if err != nil {
		return err
	}
	return m.Up(ctx)
}

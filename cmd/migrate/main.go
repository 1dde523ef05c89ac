// Command migrate applies, rolls back and reports the embedded schema migrations.
//
//	migrate [-dsn postgres://...] up|up-to <version>|down|status|version
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/bizsuite/server/internal/config"
	"github.com/bizsuite/server/internal/migrate"
)

func main() {
	_ = godotenv.Load()

	dsnFlag := flag.String("dsn", "", "PostgreSQL DSN (defaults to POSTGRES_* env vars)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall timeout")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-dsn <dsn>] up | up-to <version> | down | status | version")
		os.Exit(2)
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dsn := *dsnFlag
	if dsn == "" {
		cfg, err := config.NewConfig(slog.New(slog.DiscardHandler))
		if err != nil {
			log.Fatal("load config", zap.Error(err))
		}
		dsn = cfg.Database.DSN()
	}

	db := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	m, err := migrate.NewMigrator(db, log)
	if err != nil {
		log.Fatal("init migrator", zap.Error(err))
	}

	if err := run(ctx, m, flag.Args()); err != nil {
		log.Fatal("migrate", zap.String("command", flag.Arg(0)), zap.Error(err))
	}
}

func run(ctx context.Context, m *migrate.Migrator, args []string) error {
	switch args[0] {
	case "up":
		return m.Up(ctx)
	case "up-to":
		if len(args) < 2 {
			return fmt.Errorf("up-to requires a version")
		}
		v, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return m.UpTo(ctx, v)
	case "down":
		return m.Down(ctx)
	case "status":
		states, err := m.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range states {
			mark := "pending"
			if s.Applied {
				mark = "applied"
			}
			fmt.Printf("%-8s %05d  %s\n", mark, s.Version, s.Path)
		}
		return nil
	case "version":
		v, err := m.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

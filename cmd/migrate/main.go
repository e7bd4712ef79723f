package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"teahouse-backend/config"
	"teahouse-backend/db/migrations"
	"teahouse-backend/pkg/logger"
)

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|version")
	flag.Parse()

	cfg := config.LoadConfig()
	logger.Init(cfg.Env, cfg.LogLevel)

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}

	err = run(context.Background(), db, *cmd)
	db.Close()
	if err != nil {
		logger.Error().Err(err).Str("cmd", *cmd).Msg("migrate failed")
		os.Exit(1)
	}
	logger.Info().Str("cmd", *cmd).Msg("migrate finished")
}

func run(ctx context.Context, db *sql.DB, cmd string) error {
	switch cmd {
	case "up", "down", "status", "version":
	default:
		return fmt.Errorf("unknown -cmd value %q", cmd)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return goose.RunContext(ctx, cmd, db, ".")
}

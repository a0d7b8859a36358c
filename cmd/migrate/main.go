package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/foundry-mes/foundry-mes/internal/app"
	"github.com/foundry-mes/foundry-mes/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	conn, err := sql.Open("pgx", cfg.PGDSN)
	if err != nil {
		logger.Error("open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("close database", slog.Any("error", err))
		}
	}()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		logger.Error("set dialect", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	switch command {
	case "up":
		err = goose.UpContext(ctx, conn, ".")
	case "down":
		err = goose.DownContext(ctx, conn, ".")
	case "status":
		err = goose.StatusContext(ctx, conn, ".")
	default:
		logger.Error("unknown command", slog.String("command", command))
		os.Exit(2)
	}
	if err != nil {
		logger.Error("migrate "+command, slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("migrations applied", slog.String("command", command))
}

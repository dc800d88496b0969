package db

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies pending schema migrations. command is one of up, down,
// status or version.
func Migrate(ctx context.Context, pool *pgxpool.Pool, command string) error {
	goose.SetBaseFS(migrations)
	goose.SetTableName("public.tradeproof_schema_migrations")

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	switch command {
	case "up":
		return goose.UpContext(ctx, sqlDB, "migrations")
	case "down":
		return goose.DownContext(ctx, sqlDB, "migrations")
	case "status":
		return goose.StatusContext(ctx, sqlDB, "migrations")
	case "version":
		return goose.VersionContext(ctx, sqlDB, "migrations")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

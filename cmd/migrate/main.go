package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"MarginlyLedger/internal/observability"
	"MarginlyLedger/internal/persistence"

	_ "github.com/lib/pq"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <up|down|plan>")
		fmt.Println("  up   - apply all pending migrations")
		fmt.Println("  down - roll back the last migration")
		fmt.Println("  plan - list migrations in apply order")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  MARGINLY_POSTGRES_DSN    - Postgres connection string")
		fmt.Println("  MARGINLY_MIGRATIONS_DIR  - path to migrations directory (default: migrations)")
		os.Exit(1)
	}

	logger := observability.NewLogger("migrate")

	pgURL := os.Getenv("MARGINLY_POSTGRES_DSN")
	if pgURL == "" {
		pgURL = "postgres://localhost:5432/marginlyledger?sslmode=disable"
	}

	migrationsDir := os.Getenv("MARGINLY_MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "migrations"
	}

	if os.Args[1] == "plan" {
		plan, err := persistence.Plan(os.DirFS(migrationsDir))
		if err != nil {
			logger.Fatal().Err(err).Msg("read migrations")
		}
		for _, m := range plan {
			fmt.Printf("%s\t%s\n", m.Version, m.Name)
		}
		return
	}

	db, err := sql.Open("postgres", pgURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, migrationsDir)

	switch os.Args[1] {
	case "up":
		n, err := migrator.Up(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrate up")
		}
		logger.Info().Int("applied", n).Msg("all migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate down")
		}
		logger.Info().Msg("last migration rolled back")

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up', 'down' or 'plan')\n", os.Args[1])
		os.Exit(1)
	}
}

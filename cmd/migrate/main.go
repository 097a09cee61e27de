package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"posterd/internal/infra"
)

const createMigrationsTable = `create table if not exists schema_migrations (
    version text primary key,
    applied_at timestamptz not null default now()
)`

func main() {
	dir := flag.String("dir", "migrations", "Directory holding NNN_name.sql files")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	if err := cfg.RequireDatabase(); err != nil {
		logger.Fatal().Err(err).Msg("migrate: missing database")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: open database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	files, err := migrationFiles(*dir)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: list migrations")
	}
	applied, err := apply(ctx, db, files, func(version string) {
		logger.Info().Str("version", version).Msg("migrate: applied")
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: failed")
	}
	logger.Info().Int("applied", applied).Int("total", len(files)).Msg("migrate: done")
}

// migrationFiles returns the .sql files of dir sorted by name.
func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func version(file string) string {
	return strings.TrimSuffix(filepath.Base(file), ".sql")
}

// apply runs every file not yet recorded in schema_migrations, each in its own transaction.
func apply(ctx context.Context, db *sql.DB, files []string, onApplied func(string)) (int, error) {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}
	count := 0
	for _, file := range files {
		v := version(file)
		var exists bool
		if err := db.QueryRowContext(ctx, `select exists(select 1 from schema_migrations where version = $1)`, v).Scan(&exists); err != nil {
			return count, fmt.Errorf("check %s: %w", v, err)
		}
		if exists {
			continue
		}
		body, err := os.ReadFile(file)
		if err != nil {
			return count, err
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return count, err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return count, fmt.Errorf("apply %s: %w", v, err)
		}
		if _, err := tx.ExecContext(ctx, `insert into schema_migrations (version) values ($1)`, v); err != nil {
			_ = tx.Rollback()
			return count, fmt.Errorf("record %s: %w", v, err)
		}
		if err := tx.Commit(); err != nil {
			return count, fmt.Errorf("commit %s: %w", v, err)
		}
		count++
		if onApplied != nil {
			onApplied(v)
		}
	}
	return count, nil
}

package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
)

const (
	schemaVersion    = 1
	embedDimTemplate = "{{EMBED_DIM}}"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

// EnsureBootstrapped applies the schema once and refuses to run against a store
// that was created with a different embedding dimension.
func EnsureBootstrapped(ctx context.Context, pool *pgxpool.Pool, embedDim int) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	err := pool.QueryRow(ctxBoot, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'knowledge_meta'
		)`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}
	if !exists {
		return runBootstrap(ctxBoot, pool, embedDim)
	}

	var storedDim int
	err = pool.QueryRow(ctxBoot, `SELECT embed_dim FROM knowledge_meta WHERE version = $1`, schemaVersion).Scan(&storedDim)
	if errors.Is(err, pgx.ErrNoRows) {
		return runBootstrap(ctxBoot, pool, embedDim)
	}
	if err != nil {
		return fmt.Errorf("meta version check failed: %w", err)
	}
	if storedDim != embedDim {
		return fmt.Errorf("%w: index was created with %d dimensions, EMBED_DIM is %d",
			core.ErrDimensionMismatch, storedDim, embedDim)
	}

	slog.Debug("schema already bootstrapped", "version", schemaVersion, "embed_dim", storedDim)
	return nil
}

func renderBootstrap(embedDim int) (string, error) {
	if embedDim <= 0 {
		return "", fmt.Errorf("embedding dimension must be positive, got %d", embedDim)
	}
	sqlBytes, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return "", fmt.Errorf("read initdb.sql: %w", err)
	}
	return strings.ReplaceAll(string(sqlBytes), embedDimTemplate, strconv.Itoa(embedDim)), nil
}

func runBootstrap(ctx context.Context, pool *pgxpool.Pool, embedDim int) error {
	script, err := renderBootstrap(embedDim)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, script); err != nil {
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	slog.Info("schema bootstrapped", "version", schemaVersion, "embed_dim", embedDim)
	return nil
}

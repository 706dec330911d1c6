// Package migrations holds the schema and applies it in version order.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// lockID serialises concurrent Up calls across processes.
const lockID = 7_316_221

// Up applies every *.up.sql not yet recorded in schema_migrations, each in its
// own transaction, and returns the versions it applied.
func Up(ctx context.Context, db *sql.DB) ([]string, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrations.Up: conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		return nil, fmt.Errorf("migrations.Up: lock: %w", err)
	}
	defer conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, lockID)

	if _, err := conn.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	); err != nil {
		return nil, fmt.Errorf("migrations.Up: bootstrap: %w", err)
	}

	names, err := upFiles()
	if err != nil {
		return nil, fmt.Errorf("migrations.Up: %w", err)
	}

	var applied []string
	for _, name := range names {
		version := strings.TrimSuffix(name, ".up.sql")

		var done bool
		if err := conn.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&done); err != nil {
			return applied, fmt.Errorf("migrations.Up: check %s: %w", version, err)
		}
		if done {
			continue
		}

		body, err := fs.ReadFile(files, name)
		if err != nil {
			return applied, fmt.Errorf("migrations.Up: read %s: %w", name, err)
		}
		if err := apply(ctx, conn, version, string(body)); err != nil {
			return applied, fmt.Errorf("migrations.Up: %s: %w", version, err)
		}
		applied = append(applied, version)
	}
	return applied, nil
}

func apply(ctx context.Context, conn *sql.Conn, version, body string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return err
	}
	return tx.Commit()
}

func upFiles() ([]string, error) {
	names, err := fs.Glob(files, "*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

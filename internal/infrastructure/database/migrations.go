package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

// ErrSchemaTooNew is returned by Migrate when the database records a
// migration that this binary does not ship, i.e. a newer nodeward has
// already upgraded the file.
var ErrSchemaTooNew = errors.New("database: schema is newer than this binary")

// migration is one forward-only schema step. Files are named
// YYYYMMDD_HHMMSS_description.sql and applied in version order.
type migration struct {
	version string
	name    string
	file    string
}

// Migrate applies every migration in dir of fsys that is not yet recorded in
// schema_migrations, oldest first. Each one commits on its own, so a failure
// leaves earlier steps in place and the next call resumes from it.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS, dir string) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	known, err := scanMigrations(fsys, dir)
	if err != nil {
		return err
	}
	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for version := range applied {
		if !slices.ContainsFunc(known, func(m migration) bool { return m.version == version }) {
			return fmt.Errorf("%w: unknown migration %s", ErrSchemaTooNew, version)
		}
	}

	for _, m := range known {
		if applied[m.version] {
			continue
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, m.file))
		if err != nil {
			return fmt.Errorf("reading %s: %w", m.file, err)
		}
		if err := db.apply(ctx, m.version, string(body)); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return applied, nil
}

func (db *DB) apply(ctx context.Context, version, body string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}

// scanMigrations lists the migration files in dir sorted by version.
// Files that do not follow the naming scheme are skipped. A nil fsys
// yields nothing.
func scanMigrations(fsys fs.FS, dir string) ([]migration, error) {
	if fsys == nil {
		return nil, nil
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var out []migration
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[m.version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %s", prev, m.file, m.version)
		}
		seen[m.version] = m.file
		out = append(out, m)
	}

	slices.SortFunc(out, func(a, b migration) int { return strings.Compare(a.version, b.version) })
	return out, nil
}

// parseMigrationFilename splits "20261019_090000_lifecycle_events.sql" into
// version "20261019_090000" and name "lifecycle_events".
func parseMigrationFilename(file string) (migration, bool) {
	base, ok := strings.CutSuffix(file, ".sql")
	if !ok {
		return migration{}, false
	}
	date, rest, ok := strings.Cut(base, "_")
	if !ok || !allDigits(date, 8) {
		return migration{}, false
	}
	clock, name, ok := strings.Cut(rest, "_")
	if !ok || !allDigits(clock, 6) || name == "" {
		return migration{}, false
	}
	return migration{version: date + "_" + clock, name: name, file: file}, true
}

func allDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < n; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const migrationsTableSchema = `
CREATE TABLE IF NOT EXISTS _migrations (
	id TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL DEFAULT (datetime('now'))
)`

// txnDirectiveRe matches transaction directives that sit alone on a line.
// Migration scripts often wrap themselves in BEGIN/COMMIT, which breaks
// savepoint nesting, so those lines are stripped before execution.
var txnDirectiveRe = regexp.MustCompile(`(?im)^\s*(?:BEGIN(?:\s+TRANSACTION)?|COMMIT|END|ROLLBACK)\s*;?\s*$`)

func stripTxnDirectives(script string) string {
	return strings.TrimSpace(txnDirectiveRe.ReplaceAllString(script, ""))
}

// Migrate applies every not-yet-applied .sql script from dir in
// lexicographic order. Each script runs inside its own savepoint together
// with its tracking insert; a failure rolls the script back fully and aborts
// with the script name in the error. Re-running is a no-op for applied
// scripts. A missing directory is not an error.
func (s *Store) Migrate(ctx context.Context, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		slog.Warn("Migrations directory not found, skipping", "dir", dir)
		return nil
	}

	// One dedicated connection so SAVEPOINT statements share a session.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, migrationsTableSchema); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	applied := 0
	for _, name := range names {
		var exists int
		err := conn.QueryRowContext(ctx, "SELECT 1 FROM _migrations WHERE id = ?", name).Scan(&exists)
		if err == nil {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("migration %s: failed to read script: %w", name, err)
		}
		script := stripTxnDirectives(string(raw))

		if err := applyMigration(ctx, conn, name, script); err != nil {
			return err
		}
		slog.Info("Applied migration", "script", name)
		applied++
	}

	if applied == 0 {
		slog.Debug("Migrations already up to date")
	} else {
		slog.Info("Migrations complete", "applied", applied)
	}
	return nil
}

// applyMigration runs one script plus its tracking insert inside a savepoint.
func applyMigration(ctx context.Context, conn *sql.Conn, name, script string) error {
	if _, err := conn.ExecContext(ctx, "SAVEPOINT mig_apply"); err != nil {
		return fmt.Errorf("migration %s: failed to open savepoint: %w", name, err)
	}

	fail := func(cause error) error {
		// Roll back to the savepoint, then release it so the outer
		// transaction state is fully unwound.
		_, _ = conn.ExecContext(ctx, "ROLLBACK TO mig_apply")
		_, _ = conn.ExecContext(ctx, "RELEASE mig_apply")
		return fmt.Errorf("migration failed in %s: %w", name, cause)
	}

	if script != "" {
		if _, err := conn.ExecContext(ctx, script); err != nil {
			return fail(err)
		}
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO _migrations (id) VALUES (?)", name); err != nil {
		return fail(err)
	}
	if _, err := conn.ExecContext(ctx, "RELEASE mig_apply"); err != nil {
		return fail(err)
	}
	return nil
}

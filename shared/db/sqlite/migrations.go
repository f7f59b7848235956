package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

type migration struct {
	version int
	name    string
	up      string
}

// migrations is the ordered list of schema changes, applied once each
var migrations = []migration{
	{
		version: 1,
		name:    "create_blog_posts_table",
		up: `
			CREATE TABLE IF NOT EXISTS blog_posts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				title TEXT NOT NULL CHECK (length(title) BETWEEN 1 AND 150),
				body TEXT NOT NULL DEFAULT '',
				md_file TEXT NOT NULL DEFAULT '',
				pub_date TIMESTAMP NOT NULL,
				last_edit_date TIMESTAMP NOT NULL,
				slug TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX IF NOT EXISTS idx_blog_posts_pub_date
			ON blog_posts(pub_date DESC);
		`,
	},
	{
		version: 2,
		name:    "add_blog_posts_html_path",
		up: `
			ALTER TABLE blog_posts ADD COLUMN html_path TEXT NOT NULL DEFAULT '';
		`,
	},
}

func runMigrations(ctx context.Context, sqlDB *sql.DB) error {
	_, err := sqlDB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	currentVersion := 0
	err = sqlDB.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		if err := applyMigration(ctx, sqlDB, m); err != nil {
			return err
		}
		log.Info().Int("version", m.version).Str("name", m.name).Msg("Applied migration")
	}

	return nil
}

func applyMigration(ctx context.Context, sqlDB *sql.DB, m migration) error {
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
	}

	if _, err := tx.ExecContext(ctx, m.up); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to execute migration %d (%s): %w", m.version, m.name, err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		m.version,
		m.name,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", m.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
	}

	return nil
}

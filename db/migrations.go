package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_users_table",
		Up: `
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				username TEXT,
				newsletter_enabled BOOLEAN NOT NULL DEFAULT TRUE,
				allow_ai_categorization BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ DEFAULT NOW()
			);
		`,
		Down: `
			DROP TABLE IF EXISTS users;
		`,
	},
	{
		Version: 2,
		Name:    "create_categories_table",
		Up: `
			CREATE TABLE IF NOT EXISTS categories (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				created_at TIMESTAMPTZ DEFAULT NOW(),
				updated_at TIMESTAMPTZ DEFAULT NOW()
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_user_name ON categories(user_id, name);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_categories_user_name;
			DROP TABLE IF EXISTS categories;
		`,
	},
	{
		Version: 3,
		Name:    "create_links_table",
		Up: `
			CREATE TABLE IF NOT EXISTS links (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				url TEXT NOT NULL,
				original_url TEXT,
				title TEXT,
				short_summary TEXT,
				note TEXT,
				read BOOLEAN NOT NULL DEFAULT FALSE,
				content_type TEXT NOT NULL DEFAULT 'unknown',
				author TEXT,
				duration INTEGER,
				thumbnail_url TEXT,
				raw_metadata TEXT,
				processing_status TEXT NOT NULL DEFAULT 'pending',
				processing_error TEXT,
				category_id TEXT REFERENCES categories(id) ON DELETE SET NULL,
				created_at TIMESTAMPTZ DEFAULT NOW(),
				updated_at TIMESTAMPTZ DEFAULT NOW(),
				processed_at TIMESTAMPTZ
			);
			CREATE INDEX IF NOT EXISTS idx_links_user_id ON links(user_id);
			CREATE INDEX IF NOT EXISTS idx_links_created_at ON links(created_at);
			CREATE INDEX IF NOT EXISTS idx_links_category_id ON links(category_id);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_links_category_id;
			DROP INDEX IF EXISTS idx_links_created_at;
			DROP INDEX IF EXISTS idx_links_user_id;
			DROP TABLE IF EXISTS links;
		`,
	},
}

// Migrate runs all pending migrations
func Migrate(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	sortedMigrations := make([]Migration, len(migrations))
	copy(sortedMigrations, migrations)
	sort.Slice(sortedMigrations, func(i, j int) bool {
		return sortedMigrations[i].Version < sortedMigrations[j].Version
	})

	for _, m := range sortedMigrations {
		if m.Version <= currentVersion {
			continue
		}

		if err := runMigration(db, m); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist
func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// getCurrentVersion returns the highest applied migration version
func getCurrentVersion(db *sql.DB) (int, error) {
	var version sql.NullInt64
	err := db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

// runMigration applies a single migration inside a transaction
func runMigration(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.Up); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
		m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	slog.Info("applied migration", "version", m.Version, "name", m.Name)
	return nil
}

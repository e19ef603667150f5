package db

import (
	"database/sql"
	"fmt"
)

// Dialect selects the schema flavour.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// MigrateUp creates the tables used by the worker. It is idempotent.
func MigrateUp(db *sql.DB, dialect Dialect) error {
	var stmts []string
	switch dialect {
	case Postgres:
		stmts = []string{
			`
CREATE TABLE IF NOT EXISTS seen_articles (
    article_id TEXT PRIMARY KEY,
    first_seen TIMESTAMPTZ NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_seen_articles_first_seen ON seen_articles(first_seen)`,
			`
CREATE TABLE IF NOT EXISTS feedback (
    id            SERIAL PRIMARY KEY,
    article_id    TEXT NOT NULL,
    source_name   TEXT NOT NULL,
    feedback_type TEXT NOT NULL CHECK (feedback_type IN ('interesting', 'not_relevant')),
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
			// 直近のフィードバック集計用
			`CREATE INDEX IF NOT EXISTS idx_feedback_source_created ON feedback(source_name, created_at DESC)`,
		}
	case SQLite:
		stmts = []string{
			`
CREATE TABLE IF NOT EXISTS seen_articles (
    article_id TEXT PRIMARY KEY,
    first_seen TIMESTAMP NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_seen_articles_first_seen ON seen_articles(first_seen)`,
		}
	default:
		return fmt.Errorf("migrate: unknown dialect %q", dialect)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// MigrateDown drops every table created by MigrateUp.
// Use with caution: this deletes the dedup history.
func MigrateDown(db *sql.DB) error {
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS feedback`,
		`DROP TABLE IF EXISTS seen_articles`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

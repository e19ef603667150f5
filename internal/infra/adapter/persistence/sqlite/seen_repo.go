// Package sqlite implements the dedup cache store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"feedwire/internal/usecase/dedup"
)

// SeenRepo stores cache entries in the seen_articles table.
type SeenRepo struct{ db *sql.DB }

var _ dedup.Store = (*SeenRepo)(nil)

func NewSeenRepo(db *sql.DB) *SeenRepo {
	return &SeenRepo{db: db}
}

func (repo *SeenRepo) Load(ctx context.Context) (map[string]time.Time, error) {
	const query = `
SELECT article_id, first_seen
FROM seen_articles`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("Load: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make(map[string]time.Time)
	for rows.Next() {
		var (
			id        string
			firstSeen time.Time
		)
		if err := rows.Scan(&id, &firstSeen); err != nil {
			return nil, fmt.Errorf("Load: Scan: %w", err)
		}
		entries[id] = firstSeen.UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Load: rows.Err: %w", err)
	}
	return entries, nil
}

// Save replaces the table contents in one transaction.
func (repo *SeenRepo) Save(ctx context.Context, entries map[string]time.Time) (err error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Save: BeginTx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM seen_articles`); err != nil {
		return fmt.Errorf("Save: delete: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO seen_articles (article_id, first_seen) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("Save: PrepareContext: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err = stmt.ExecContext(ctx, id, entries[id].UTC()); err != nil {
			return fmt.Errorf("Save: insert %s: %w", id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("Save: Commit: %w", err)
	}
	return nil
}

// Package postgres implements the dedup cache store and the feedback score
// provider on PostgreSQL. Queries are built with squirrel.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"

	"feedwire/internal/usecase/dedup"
)

// insertBatchSize bounds the rows per INSERT statement.
const insertBatchSize = 500

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// SeenRepo stores cache entries in the seen_articles table.
type SeenRepo struct{ db *sql.DB }

var _ dedup.Store = (*SeenRepo)(nil)

func NewSeenRepo(db *sql.DB) *SeenRepo {
	return &SeenRepo{db: db}
}

func (repo *SeenRepo) Load(ctx context.Context) (map[string]time.Time, error) {
	query, args, err := psql.Select("article_id", "first_seen").From("seen_articles").ToSql()
	if err != nil {
		return nil, fmt.Errorf("Load: build: %w", err)
	}

	rows, err := repo.db.QueryContext(ctx, query, args...)
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

// Save replaces the table contents in one transaction, inserting in batches.
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

	del, args, err := psql.Delete("seen_articles").ToSql()
	if err != nil {
		return fmt.Errorf("Save: build delete: %w", err)
	}
	if _, err = tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("Save: delete: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for start := 0; start < len(ids); start += insertBatchSize {
		end := min(start+insertBatchSize, len(ids))
		ins := psql.Insert("seen_articles").Columns("article_id", "first_seen")
		for _, id := range ids[start:end] {
			ins = ins.Values(id, entries[id].UTC())
		}
		query, args, buildErr := ins.ToSql()
		if buildErr != nil {
			err = buildErr
			return fmt.Errorf("Save: build insert: %w", err)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("Save: insert: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("Save: Commit: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// DefaultFeedbackWindow is how far back feedback is aggregated.
const DefaultFeedbackWindow = 30 * 24 * time.Hour

// FeedbackRepo derives per-source priority scores from the feedback table.
// A source's score is interesting / (interesting + not_relevant) over the
// window; sources without feedback are absent from the result.
type FeedbackRepo struct {
	db     *sql.DB
	window time.Duration
	now    func() time.Time
}

func NewFeedbackRepo(db *sql.DB, window time.Duration) *FeedbackRepo {
	if window <= 0 {
		window = DefaultFeedbackWindow
	}
	return &FeedbackRepo{db: db, window: window, now: time.Now}
}

func (repo *FeedbackRepo) SourceScores(ctx context.Context) (map[string]float64, error) {
	since := repo.now().Add(-repo.window).UTC()
	query, args, err := psql.
		Select(
			"source_name",
			"SUM(CASE WHEN feedback_type = 'interesting' THEN 1 ELSE 0 END) AS interesting",
			"COUNT(*) AS total",
		).
		From("feedback").
		Where(sq.GtOrEq{"created_at": since}).
		Where(sq.Eq{"feedback_type": []string{"interesting", "not_relevant"}}).
		GroupBy("source_name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("SourceScores: build: %w", err)
	}

	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SourceScores: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	scores := make(map[string]float64)
	for rows.Next() {
		var (
			source      string
			interesting int64
			total       int64
		)
		if err := rows.Scan(&source, &interesting, &total); err != nil {
			return nil, fmt.Errorf("SourceScores: Scan: %w", err)
		}
		if total > 0 {
			scores[source] = float64(interesting) / float64(total)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SourceScores: rows.Err: %w", err)
	}
	return scores, nil
}


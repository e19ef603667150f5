package ingest

import (
	"context"

	"feedwire/internal/domain/entity"
	"feedwire/internal/usecase/fetch"
)

// SourceProvider supplies the ordered feed list for a cycle.
type SourceProvider interface {
	Sources(ctx context.Context) ([]entity.FeedSource, error)
}

// KeywordProvider supplies the keyword filters for a cycle.
type KeywordProvider interface {
	Keywords(ctx context.Context) (entity.KeywordSet, error)
}

// FeedbackProvider supplies per-source priority scores. Sources missing from
// the map score 0.
type FeedbackProvider interface {
	SourceScores(ctx context.Context) (map[string]float64, error)
}

// BatchFetcher fetches all sources of a cycle. *fetch.Orchestrator is the
// production implementation.
type BatchFetcher interface {
	FetchAll(ctx context.Context, sources []entity.FeedSource) fetch.Batch
}

var _ BatchFetcher = (*fetch.Orchestrator)(nil)

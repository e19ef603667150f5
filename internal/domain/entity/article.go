package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Article is a single normalized feed entry produced by an ingestion cycle.
// Values are treated as immutable once the fetcher has built them.
type Article struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Link          string    `json:"link"`
	Summary       string    `json:"summary"`
	PublishedAt   time.Time `json:"published_at"`
	SourceName    string    `json:"source_name"`
	Category      string    `json:"category"`
	PriorityScore float64   `json:"priority_score"`
}

// ArticleID derives the stable identifier used for deduplication.
// The same link and title always map to the same id, across feeds and restarts.
func ArticleID(link, title string) string {
	sum := sha256.Sum256([]byte(link + title))
	return hex.EncodeToString(sum[:])
}

// WithScore returns a copy of the article carrying the given priority score.
func (a Article) WithScore(score float64) Article {
	a.PriorityScore = score
	return a
}

package ingest

import (
	"cmp"
	"slices"
	"sort"
	"time"

	"feedwire/internal/domain/entity"
)

// Deduper is the part of the dedup cache the pipeline needs.
type Deduper interface {
	MarkIfNew(id string, ts time.Time) bool
}

// ProcessStats counts what the pipeline did with its input.
type ProcessStats struct {
	Input           int
	KeywordRejected int
	Duplicates      int
	Output          int
}

// Pipeline filters, deduplicates and ranks the raw entries of a cycle.
type Pipeline struct {
	now func() time.Time
}

func NewPipeline() *Pipeline {
	return &Pipeline{now: time.Now}
}

// Process keeps the articles that match their keywords and have not been
// seen before, scores them by source and returns them ranked.
//
// raw must be in source order then item order; when the same article comes
// from several feeds the first occurrence wins. Qualifying articles are
// marked in the cache as they are accepted, so a failed persist later in the
// cycle cannot cause the same article to be emitted twice.
func (p *Pipeline) Process(raw []entity.Article, cache Deduper, keywords entity.KeywordSet, scores map[string]float64) ([]entity.Article, ProcessStats) {
	st := ProcessStats{Input: len(raw)}
	matcher := NewKeywordMatcher(keywords)
	seenAt := p.now().UTC()

	out := make([]entity.Article, 0, len(raw))
	for _, a := range raw {
		if !matcher.Match(a) {
			st.KeywordRejected++
			continue
		}
		if !cache.MarkIfNew(a.ID, seenAt) {
			st.Duplicates++
			continue
		}
		out = append(out, a.WithScore(scores[a.SourceName]))
	}

	Rank(out)
	st.Output = len(out)
	return out, st
}

// Rank orders articles by priority score descending, then newest first,
// then by id so the order is total.
func Rank(articles []entity.Article) {
	slices.SortStableFunc(articles, func(a, b entity.Article) int {
		if c := cmp.Compare(b.PriorityScore, a.PriorityScore); c != 0 {
			return c
		}
		if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// SelectDiverse picks up to limit articles round-robin across sources so a
// single busy feed cannot take every slot. Sources are visited in name order
// and each contributes its newest remaining article per round.
func SelectDiverse(articles []entity.Article, limit int) []entity.Article {
	if limit <= 0 || len(articles) == 0 {
		return nil
	}

	bySource := make(map[string][]entity.Article)
	for _, a := range articles {
		bySource[a.SourceName] = append(bySource[a.SourceName], a)
	}
	names := make([]string, 0, len(bySource))
	for name, list := range bySource {
		names = append(names, name)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].PublishedAt.After(list[j].PublishedAt)
		})
	}
	sort.Strings(names)

	selected := make([]entity.Article, 0, min(limit, len(articles)))
	for round := 0; len(selected) < limit; round++ {
		added := false
		for _, name := range names {
			list := bySource[name]
			if round >= len(list) {
				continue
			}
			selected = append(selected, list[round])
			added = true
			if len(selected) == limit {
				break
			}
		}
		if !added {
			break
		}
	}
	return selected
}

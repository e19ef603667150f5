package ingest

import (
	"strings"

	"golang.org/x/text/cases"

	"feedwire/internal/domain/entity"
)

// KeywordMatcher decides whether an article mentions one of the keywords
// that apply to its category. Matching is a Unicode case-folded substring
// search over title and summary.
//
// A KeywordMatcher is not safe for concurrent use.
type KeywordMatcher struct {
	set    entity.KeywordSet
	caser  cases.Caser
	folded map[string][]string
}

func NewKeywordMatcher(set entity.KeywordSet) *KeywordMatcher {
	return &KeywordMatcher{
		set:    set,
		caser:  cases.Fold(),
		folded: make(map[string][]string),
	}
}

// Match reports whether a qualifies. Categories without any applicable
// keyword accept everything.
func (m *KeywordMatcher) Match(a entity.Article) bool {
	keywords := m.keywordsFor(a.Category)
	if len(keywords) == 0 {
		return true
	}
	title := m.caser.String(a.Title)
	summary := m.caser.String(a.Summary)
	for _, kw := range keywords {
		if strings.Contains(title, kw) || strings.Contains(summary, kw) {
			return true
		}
	}
	return false
}

func (m *KeywordMatcher) keywordsFor(category string) []string {
	if kws, ok := m.folded[category]; ok {
		return kws
	}
	raw := m.set.For(category)
	kws := make([]string, 0, len(raw))
	for _, kw := range raw {
		kws = append(kws, m.caser.String(kw))
	}
	m.folded[category] = kws
	return kws
}

package entity

import (
	"net/url"
	"strings"
)

// DefaultCategory is assigned to feed sources that do not declare one.
const DefaultCategory = "general"

// FeedSource describes one configured RSS/Atom endpoint.
type FeedSource struct {
	Name     string `yaml:"name" json:"name"`
	URL      string `yaml:"url" json:"url"`
	Category string `yaml:"category" json:"category"`
}

// Validate checks the source fields and fills in the default category.
func (s *FeedSource) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if err := ValidateURL(s.URL); err != nil {
		return err
	}
	if s.Category == "" {
		s.Category = DefaultCategory
	}
	return nil
}

// Domain returns the lower-cased host name of the feed URL.
// It is the key under which circuit breaker state is tracked.
func (s FeedSource) Domain() string {
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// KeywordSet holds the global keyword filter plus per-category additions.
type KeywordSet struct {
	Global     []string
	ByCategory map[string][]string
}

// For returns the keywords that apply to a category: the global set unioned
// with the category's own list. Duplicates are removed case-insensitively.
func (k KeywordSet) For(category string) []string {
	seen := make(map[string]struct{}, len(k.Global))
	out := make([]string, 0, len(k.Global)+len(k.ByCategory[category]))
	add := func(words []string) {
		for _, w := range words {
			w = strings.TrimSpace(w)
			if w == "" {
				continue
			}
			key := strings.ToLower(w)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, w)
		}
	}
	add(k.Global)
	add(k.ByCategory[category])
	return out
}

// Empty reports whether no keyword is configured anywhere.
func (k KeywordSet) Empty() bool {
	if len(k.Global) > 0 {
		return false
	}
	for _, words := range k.ByCategory {
		if len(words) > 0 {
			return false
		}
	}
	return true
}

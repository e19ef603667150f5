// Package config reads the feed list and keyword filters from a YAML file.
//
// The file is re-read on every call so edits take effect at the next cycle
// without a restart:
//
//	rss_feeds:
//	  - name: Go Blog
//	    url: https://go.dev/blog/feed.atom
//	    category: tech
//	ai_keywords: [llm, "machine learning"]
//	category_keywords:
//	  tech: [kubernetes]
package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"feedwire/internal/domain/entity"
)

// FeedsDocument is the on-disk layout of the feeds file.
type FeedsDocument struct {
	RSSFeeds         []entity.FeedSource `yaml:"rss_feeds"`
	AIKeywords       []string            `yaml:"ai_keywords"`
	CategoryKeywords map[string][]string `yaml:"category_keywords"`
}

// FileProvider serves sources and keywords from a feeds file.
type FileProvider struct {
	path string
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Path returns the file the provider reads.
func (p *FileProvider) Path() string { return p.path }

// Sources returns the configured feeds as written, including invalid ones;
// validation is left to the caller so rejected entries can be counted.
func (p *FileProvider) Sources(ctx context.Context) ([]entity.FeedSource, error) {
	doc, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.RSSFeeds, nil
}

// Keywords returns the global and per-category keyword filters.
func (p *FileProvider) Keywords(ctx context.Context) (entity.KeywordSet, error) {
	doc, err := p.load(ctx)
	if err != nil {
		return entity.KeywordSet{}, err
	}
	return entity.KeywordSet{
		Global:     doc.AIKeywords,
		ByCategory: doc.CategoryKeywords,
	}, nil
}

func (p *FileProvider) load(ctx context.Context) (*FeedsDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// #nosec G304 -- path comes from FEEDS_CONFIG or a CLI flag
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds config: %w", err)
	}
	return ParseFeeds(data)
}

// ParseFeeds decodes a feeds document. Unknown keys are ignored; names and
// URLs are trimmed.
func ParseFeeds(data []byte) (*FeedsDocument, error) {
	var doc FeedsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse feeds config: %w", err)
	}
	for i := range doc.RSSFeeds {
		doc.RSSFeeds[i].Name = strings.TrimSpace(doc.RSSFeeds[i].Name)
		doc.RSSFeeds[i].URL = strings.TrimSpace(doc.RSSFeeds[i].URL)
		doc.RSSFeeds[i].Category = strings.TrimSpace(doc.RSSFeeds[i].Category)
	}
	return &doc, nil
}

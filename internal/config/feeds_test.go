package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedwire/internal/domain/entity"
)

const sampleFeeds = `rss_feeds:
  - name: " Go Blog "
    url: https://go.dev/blog/feed.atom
    category: tech
  - name: Hacker News
    url: https://news.ycombinator.com/rss
  - name: ""
    url: ftp://broken.example.com
ai_keywords:
  - llm
  - machine learning
category_keywords:
  tech:
    - kubernetes
unrelated_section:
  foo: bar
`

func writeFeeds(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileProvider_Sources(t *testing.T) {
	p := NewFileProvider(writeFeeds(t, sampleFeeds))

	got, err := p.Sources(context.Background())
	require.NoError(t, err)

	want := []entity.FeedSource{
		{Name: "Go Blog", URL: "https://go.dev/blog/feed.atom", Category: "tech"},
		{Name: "Hacker News", URL: "https://news.ycombinator.com/rss"},
		{Name: "", URL: "ftp://broken.example.com"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Sources mismatch (-want +got):\n%s", diff)
	}
}

func TestFileProvider_Keywords(t *testing.T) {
	p := NewFileProvider(writeFeeds(t, sampleFeeds))

	got, err := p.Keywords(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"llm", "machine learning"}, got.Global)
	assert.Equal(t, []string{"llm", "machine learning", "kubernetes"}, got.For("tech"))
	assert.False(t, got.Empty())
}

func TestFileProvider_RereadsOnEachCall(t *testing.T) {
	path := writeFeeds(t, sampleFeeds)
	p := NewFileProvider(path)

	first, err := p.Sources(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 3)

	require.NoError(t, os.WriteFile(path, []byte("rss_feeds:\n  - name: Only\n    url: https://only.example.com/rss\n"), 0o600))

	second, err := p.Sources(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "Only", second[0].Name)

	kw, err := p.Keywords(context.Background())
	require.NoError(t, err)
	assert.True(t, kw.Empty())
}

func TestFileProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
			wantErr: "failed to read feeds config",
		},
		{
			name:    "invalid yaml",
			path:    func(t *testing.T) string { return writeFeeds(t, "rss_feeds: [unterminated") },
			wantErr: "failed to parse feeds config",
		},
		{
			name:    "wrong shape",
			path:    func(t *testing.T) string { return writeFeeds(t, "rss_feeds: just-a-string\n") },
			wantErr: "failed to parse feeds config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewFileProvider(tt.path(t))
			_, err := p.Sources(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFileProvider_CancelledContext(t *testing.T) {
	p := NewFileProvider(writeFeeds(t, sampleFeeds))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Sources(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseFeeds_Empty(t *testing.T) {
	doc, err := ParseFeeds(nil)
	require.NoError(t, err)
	assert.Empty(t, doc.RSSFeeds)
	assert.Empty(t, doc.AIKeywords)
}

package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedSource_Validate(t *testing.T) {
	tests := []struct {
		name      string
		src       FeedSource
		wantErr   bool
		wantField string
	}{
		{
			name: "valid source",
			src:  FeedSource{Name: "Go Blog", URL: "https://go.dev/blog/feed.atom", Category: "go"},
		},
		{
			name:      "missing name",
			src:       FeedSource{URL: "https://go.dev/blog/feed.atom"},
			wantErr:   true,
			wantField: "name",
		},
		{
			name:      "blank name",
			src:       FeedSource{Name: "   ", URL: "https://go.dev/blog/feed.atom"},
			wantErr:   true,
			wantField: "name",
		},
		{
			name:      "bad scheme",
			src:       FeedSource{Name: "x", URL: "ftp://example.com/feed"},
			wantErr:   true,
			wantField: "url",
		},
		{
			name:      "empty url",
			src:       FeedSource{Name: "x"},
			wantErr:   true,
			wantField: "url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.src.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.wantField, vErr.Field)
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}
}

func TestFeedSource_Validate_DefaultsCategory(t *testing.T) {
	src := FeedSource{Name: "n", URL: "https://example.com/rss"}

	require.NoError(t, src.Validate())
	assert.Equal(t, DefaultCategory, src.Category)
}

func TestFeedSource_Domain(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://Example.COM/feed", "example.com"},
		{"https://example.com:8443/feed", "example.com"},
		{"http://127.0.0.1:9000/rss", "127.0.0.1"},
		{"::not a url", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, FeedSource{URL: tt.url}.Domain())
		})
	}
}

func TestKeywordSet_For(t *testing.T) {
	ks := KeywordSet{
		Global: []string{"AI", "llm", " "},
		ByCategory: map[string][]string{
			"research": {"arxiv", "ai"},
		},
	}

	assert.Equal(t, []string{"AI", "llm", "arxiv"}, ks.For("research"))
	assert.Equal(t, []string{"AI", "llm"}, ks.For("news"))
}

func TestKeywordSet_Empty(t *testing.T) {
	assert.True(t, KeywordSet{}.Empty())
	assert.True(t, KeywordSet{ByCategory: map[string][]string{"x": nil}}.Empty())
	assert.False(t, KeywordSet{Global: []string{"go"}}.Empty())
	assert.False(t, KeywordSet{ByCategory: map[string][]string{"x": {"go"}}}.Empty())
}

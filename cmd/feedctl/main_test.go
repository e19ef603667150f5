package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedwire/internal/usecase/dedup"
	"feedwire/internal/usecase/fetch"
	"feedwire/internal/usecase/ingest"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>CLI Feed</title>
    <item><title>First</title><link>https://example.com/1</link></item>
    <item><title>Second</title><link>https://example.com/2</link></item>
  </channel>
</rss>`

type fixture struct {
	feeds string
	cache string
}

func newFixture(t *testing.T, extraFeeds string) fixture {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testFeed))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	feeds := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf("rss_feeds:\n  - name: cli\n    url: %s/rss\n%s", srv.URL, extraFeeds)
	require.NoError(t, os.WriteFile(feeds, []byte(yaml), 0o600))

	t.Setenv("FEEDBACK_PATH", filepath.Join(dir, "feedback.json"))
	return fixture{feeds: feeds, cache: filepath.Join(dir, "cache.json")}
}

func (f fixture) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--feeds", f.feeds, "--cache", f.cache}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_JSON(t *testing.T) {
	f := newFixture(t, "")

	out, err := f.exec(t, "run", "-o", "json")
	require.NoError(t, err)
	var res ingest.CycleResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.Articles, 2)
	assert.Equal(t, ingest.StatusCompleted, res.Stats.Status)
	assert.Equal(t, 1, res.Stats.FeedsSucceeded)

	out, err = f.exec(t, "run", "-o", "json")
	require.NoError(t, err)
	res = ingest.CycleResult{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Empty(t, res.Articles)
	assert.Equal(t, 2, res.Stats.DuplicatesDropped)
}

func TestRun_Limit(t *testing.T) {
	f := newFixture(t, "")

	out, err := f.exec(t, "run", "-o", "json", "--limit", "1")
	require.NoError(t, err)
	var res ingest.CycleResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.Articles, 1)
}

func TestRun_Text(t *testing.T) {
	f := newFixture(t, "")

	out, err := f.exec(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "SCORE")
	assert.Contains(t, out, "First")
	assert.Contains(t, out, "2 new article(s) from 1/1 feed(s)")
}

func TestRun_UnknownOutput(t *testing.T) {
	f := newFixture(t, "")

	_, err := f.exec(t, "run", "-o", "xml")
	require.Error(t, err)
}

func TestCache_StatsAndPurge(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.exec(t, "run")
	require.NoError(t, err)

	out, err := f.exec(t, "cache", "stats")
	require.NoError(t, err)
	var stats dedup.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 5000, stats.MaxEntries)

	out, err = f.exec(t, "cache", "purge")
	require.NoError(t, err)
	var purged purgeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &purged))
	assert.Equal(t, purgeOutput{Remaining: 2}, purged)
}

func TestCache_CorruptFileIsNotOverwritten(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, os.WriteFile(f.cache, []byte("{not json"), 0o600))

	_, err := f.exec(t, "cache", "purge")
	require.Error(t, err)

	data, err := os.ReadFile(f.cache)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
}

func TestFeedsList(t *testing.T) {
	f := newFixture(t, "  - name: broken\n    url: ftp://example.com/rss\n")

	out, err := f.exec(t, "feeds", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 feed source(s) invalid")
	assert.Contains(t, out, "cli")
	assert.Contains(t, out, "general")
	assert.Contains(t, out, "invalid: ")
}

func TestFeedsCheck(t *testing.T) {
	f := newFixture(t, "")

	out, err := f.exec(t, "feeds", "check", "-o", "json", "--rate", "0")
	require.NoError(t, err)
	var diags []fetch.Diagnostic
	require.NoError(t, json.Unmarshal([]byte(out), &diags))
	require.Len(t, diags, 1)
	assert.Equal(t, fetch.DiagOK, diags[0].Status)
	assert.Equal(t, 2, diags[0].ItemCount)
}

func TestFeedsCheck_Unhealthy(t *testing.T) {
	f := newFixture(t, "  - name: gone\n    url: http://127.0.0.1:1/rss\n")

	out, err := f.exec(t, "feeds", "check", "--rate", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 feed(s) unhealthy")
	assert.Contains(t, out, "gone")
	assert.Contains(t, out, "HTTP_ERROR")
}

func TestDBMigrate_SQLite(t *testing.T) {
	f := newFixture(t, "")
	f.cache = filepath.Join(filepath.Dir(f.cache), "cache.db")

	out, err := f.exec(t, "--backend", "sqlite", "db", "migrate")
	require.NoError(t, err)
	assert.Equal(t, "sqlite schema up to date\n", out)

	_, err = f.exec(t, "--backend", "sqlite", "run")
	require.NoError(t, err)

	out, err = f.exec(t, "--backend", "sqlite", "db", "migrate", "--down")
	require.NoError(t, err)
	assert.Equal(t, "dropped sqlite schema\n", out)

	// run migrates again on open, so the dropped history is gone
	out, err = f.exec(t, "--backend", "sqlite", "run", "-o", "json")
	require.NoError(t, err)
	var res ingest.CycleResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.Articles, 2)
}

func TestDBMigrate_FileBackend(t *testing.T) {
	f := newFixture(t, "")

	_, err := f.exec(t, "db", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no database schema")
}

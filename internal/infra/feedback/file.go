// Package feedback reads reader feedback counts and turns them into
// per-source priority scores.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Counts is the tally of reactions recorded for one source.
type Counts struct {
	Interesting int `json:"interesting"`
	NotRelevant int `json:"not_relevant"`
}

// Score returns interesting / (interesting + not_relevant), or 0 without
// any feedback.
func (c Counts) Score() float64 {
	total := c.Interesting + c.NotRelevant
	if total <= 0 || c.Interesting < 0 {
		return 0
	}
	return float64(c.Interesting) / float64(total)
}

type document struct {
	SourceScores map[string]Counts `json:"source_scores"`
}

// FileProvider reads a JSON feedback file of the form
//
//	{"source_scores": {"Go Blog": {"interesting": 3, "not_relevant": 1}}}
//
// A missing file means no feedback yet and yields an empty score map.
type FileProvider struct {
	path string
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) SourceScores(ctx context.Context) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// #nosec G304 -- path comes from FEEDBACK_PATH
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]float64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read feedback file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode feedback file: %w", err)
	}

	scores := make(map[string]float64, len(doc.SourceScores))
	for source, counts := range doc.SourceScores {
		if counts.Interesting+counts.NotRelevant > 0 {
			scores[source] = counts.Score()
		}
	}
	return scores, nil
}

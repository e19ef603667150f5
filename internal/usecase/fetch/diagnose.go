package fetch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"feedwire/internal/domain/entity"
	"feedwire/internal/resilience/retry"
)

// Diagnostic statuses.
const (
	DiagOK         = "OK"
	DiagEmpty      = "EMPTY"
	DiagHTTPError  = "HTTP_ERROR"
	DiagParseError = "PARSE_ERROR"
	DiagTimeout    = "TIMEOUT"
	DiagInvalid    = "INVALID"
)

// Diagnostic is the result of probing one feed once.
type Diagnostic struct {
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Status       string    `json:"status"`
	HTTPCode     int       `json:"http_code,omitempty"`
	ItemCount    int       `json:"item_count"`
	Latest       time.Time `json:"latest,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ResponseTime int64     `json:"response_time_ms"`
}

// Diagnose fetches every source once, without retries or breakers, and
// reports what came back. Probes run one at a time, at most perSecond per
// second (0 = unthrottled), so misbehaving feeds can be found without
// hammering their servers.
func Diagnose(ctx context.Context, fetcher FeedFetcher, sources []entity.FeedSource, timeout time.Duration, perSecond float64) []Diagnostic {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	out := make([]Diagnostic, 0, len(sources))
	for _, src := range sources {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		out = append(out, diagnoseOne(ctx, fetcher, src, timeout))
	}
	return out
}

func diagnoseOne(ctx context.Context, fetcher FeedFetcher, src entity.FeedSource, timeout time.Duration) Diagnostic {
	d := Diagnostic{Name: src.Name, URL: src.URL}
	if err := src.Validate(); err != nil {
		d.Status = DiagInvalid
		d.ErrorMessage = err.Error()
		return d
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	articles, err := fetcher.Fetch(ctx, src)
	d.ResponseTime = time.Since(start).Milliseconds()

	var httpErr *retry.HTTPError
	switch {
	case err == nil:
	case errors.As(err, &httpErr):
		d.Status = DiagHTTPError
		d.HTTPCode = httpErr.StatusCode
		d.ErrorMessage = err.Error()
		return d
	case errors.Is(err, context.DeadlineExceeded):
		d.Status = DiagTimeout
		d.ErrorMessage = err.Error()
		return d
	case errors.Is(err, ErrParse):
		d.Status = DiagParseError
		d.ErrorMessage = err.Error()
		return d
	default:
		d.Status = DiagHTTPError
		d.ErrorMessage = err.Error()
		return d
	}

	d.ItemCount = len(articles)
	for _, a := range articles {
		if a.PublishedAt.After(d.Latest) {
			d.Latest = a.PublishedAt
		}
	}
	if d.ItemCount == 0 {
		d.Status = DiagEmpty
		d.ErrorMessage = "feed has no items"
		return d
	}
	d.Status = DiagOK
	return d
}

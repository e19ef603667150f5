package fetch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"feedwire/internal/resilience/retry"
)

func TestFetchError_IsKindAndCause(t *testing.T) {
	cause := &retry.HTTPError{StatusCode: 503, Message: "unavailable"}
	err := fmt.Errorf("attempt 2: %w", &FetchError{Source: "go-blog", Kind: ErrTransientFetch, Err: cause})

	assert.ErrorIs(t, err, ErrTransientFetch)
	assert.NotErrorIs(t, err, ErrPermanentFetch)

	var httpErr *retry.HTTPError
	assert.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 503, httpErr.StatusCode)
	assert.Contains(t, err.Error(), `feed "go-blog"`)
}

func TestFetchError_Retryable(t *testing.T) {
	assert.True(t, (&FetchError{Kind: ErrTransientFetch}).Retryable())
	assert.False(t, (&FetchError{Kind: ErrPermanentFetch}).Retryable())
	assert.False(t, (&FetchError{Kind: ErrParse}).Retryable())

	assert.Equal(t, retry.Retryable, retry.Classify(&FetchError{Kind: ErrTransientFetch, Err: errors.New("read: reset")}))
	assert.Equal(t, retry.Fatal, retry.Classify(&FetchError{Kind: ErrParse, Err: errors.New("bad xml")}))
	assert.Equal(t, retry.Fatal, retry.Classify(&FetchError{Kind: ErrPermanentFetch, Err: &retry.HTTPError{StatusCode: 404}}))
}

func TestKindName(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&FetchError{Kind: ErrCircuitOpen}, "circuit_open"},
		{&FetchError{Kind: ErrCancelled}, "cancelled"},
		{&FetchError{Kind: ErrParse}, "parse"},
		{&FetchError{Kind: ErrPermanentFetch}, "permanent"},
		{&FetchError{Kind: ErrTransientFetch}, "transient"},
		{errors.New("unclassified"), "transient"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindName(tt.err))
	}
}

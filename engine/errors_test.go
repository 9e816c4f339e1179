package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldFallback(t *testing.T) {
	tests := []struct {
		name string
		err  *ClassifiedError
		want bool
	}{
		{"timeout", NewTimeout("x", 0, nil), true},
		{"challenge", NewChallengeDetected("x", "cloudflare"), true},
		{"blocked", NewChallengeDetected("x", "blocked"), true},
		{"insufficient", NewInsufficientContent("x", 10, 100), true},
		{"unavailable", NewEngineUnavailable("x", "no pool", nil), true},
		{"403", NewHTTPStatus("x", 403), true},
		{"404", NewHTTPStatus("x", 404), true},
		{"429", NewHTTPStatus("x", 429), true},
		{"503", NewHTTPStatus("x", 503), true},
		{"400", NewHTTPStatus("x", 400), false},
		{"401", NewHTTPStatus("x", 401), false},
		{"410", NewHTTPStatus("x", 410), false},
		{"generic retryable", NewGeneric("x", true, errors.New("reset")), true},
		{"generic fatal", NewGeneric("x", false, errors.New("bad url")), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldFallback(tt.err))
		})
	}
}

func TestShouldFallbackIgnoresMessage(t *testing.T) {
	ce := NewHTTPStatus("x", 400)
	ce.Message = "timeout while waiting for challenge"
	assert.False(t, ShouldFallback(ce))
}

func TestClassify(t *testing.T) {
	t.Run("classified passes through", func(t *testing.T) {
		orig := NewHTTPStatus("fingerprinted-client", 429)
		got := Classify("direct-fetch", fmt.Errorf("wrapped: %w", orig))
		assert.Same(t, orig, got)
		assert.Equal(t, "fingerprinted-client", got.Engine)
	})
	t.Run("missing engine is filled on a copy", func(t *testing.T) {
		orig := NewHTTPStatus("", 429)
		got := Classify("direct-fetch", fmt.Errorf("wrapped: %w", orig))
		assert.NotSame(t, orig, got)
		assert.Equal(t, "direct-fetch", got.Engine)
		assert.Equal(t, 429, got.StatusCode)
		assert.Empty(t, orig.Engine)
	})
	t.Run("deadline becomes timeout", func(t *testing.T) {
		got := Classify("e", context.DeadlineExceeded)
		assert.Equal(t, KindTimeout, got.Kind)
		assert.ErrorIs(t, got, context.DeadlineExceeded)
	})
	t.Run("unknown becomes generic retryable", func(t *testing.T) {
		got := Classify("e", errors.New("boom"))
		assert.Equal(t, KindGeneric, got.Kind)
		assert.True(t, got.Retryable)
	})
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, Classify("e", nil))
	})
}

func TestSiteOutcome(t *testing.T) {
	tests := []struct {
		err  *ClassifiedError
		want bool
	}{
		{NewChallengeDetected("b", "cloudflare"), true},
		{NewInsufficientContent("b", 10, 100), true},
		{NewHTTPStatus("b", 503), true},
		{NewTimeout("b", time.Second, nil), false},
		{NewEngineUnavailable("b", "queue full", nil), false},
		{NewGeneric("b", true, errors.New("target closed")), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.SiteOutcome())
		})
	}
}

func TestAllEnginesFailedError(t *testing.T) {
	err := &AllEnginesFailedError{
		Attempted: []string{"direct-fetch", "fingerprinted-client"},
		Errors: map[string]*ClassifiedError{
			"direct-fetch":         NewHTTPStatus("direct-fetch", 429),
			"fingerprinted-client": NewTimeout("fingerprinted-client", 0, context.DeadlineExceeded),
		},
	}
	assert.Equal(t, "all engines failed: direct-fetch: HTTP 429; fingerprinted-client: deadline exceeded", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var ce *ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindHTTPStatus, ce.Kind)
	assert.Equal(t, KindTimeout, err.Last().Kind)
	assert.False(t, err.AllTimedOut())
}

package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algotrading-io/callwheel/internal/broker"
)

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Timeout:        time.Second,
	}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	out, err := Do(context.Background(), quietLogger(), fastConfig(), "fetch", func() (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	out, err := Do(context.Background(), quietLogger(), fastConfig(), "fetch", func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection refused")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := &broker.APIError{Status: 401, Body: "unauthorized"}
	_, err := Do(context.Background(), quietLogger(), fastConfig(), "fetch", func() (int, error) {
		calls++
		return 0, permanent
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsRetryBudget(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), quietLogger(), fastConfig(), "fetch", func() (int, error) {
		calls++
		return 0, fmt.Errorf("rate limit exceeded")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Equal(t, 4, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, quietLogger(), fastConfig(), "fetch", func() (int, error) {
		return 0, errors.New("should not matter")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &broker.APIError{Status: 429}, true},
		{"bad gateway", &broker.APIError{Status: 502}, true},
		{"unauthorized", &broker.APIError{Status: 401}, false},
		{"not found", &broker.APIError{Status: 404}, false},
		{"wrapped api error", fmt.Errorf("call: %w", &broker.APIError{Status: 503}), true},
		{"timeout string", errors.New("request timeout"), true},
		{"dns failure", errors.New("dns lookup failed"), true},
		{"validation", errors.New("strike price out of range"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

// Package retry wraps broker calls with bounded retries and jittered
// backoff for transient failures.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/algotrading-io/callwheel/internal/broker"
)

// Config contains retry behavior parameters.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig is the default retry configuration.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Do runs fn until it succeeds, fails permanently, or the retry budget
// runs out. Only transient failures are retried. The op string names the
// call in logs.
func Do[T any](ctx context.Context, logger *log.Logger, cfg Config, op string, fn func() (T, error)) (T, error) {
	var zero T
	if logger == nil {
		logger = log.Default()
	}

	opCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var lastErr error
	backoff := cfg.InitialBackoff
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := opCtx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", op, err)
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		logger.Printf("%s attempt %d/%d failed: %v", op, attempt+1, cfg.MaxRetries+1, err)

		if !IsTransient(err) || attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(backoff):
			backoff = nextBackoff(backoff, cfg.MaxBackoff)
		case <-opCtx.Done():
			return zero, fmt.Errorf("%s canceled during backoff: %w", op, opCtx.Err())
		}
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, cfg.MaxRetries+1, lastErr)
}

// nextBackoff grows the delay by half again, clamps it, and adds up to a
// quarter of jitter to spread out concurrent retriers.
func nextBackoff(current, max time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > max {
		backoff = max
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err == nil {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

// IsTransient reports whether an error is worth retrying: rate limits,
// gateway failures, and network-level faults.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *broker.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"rate limit",
		"network",
		"dns",
		"tcp",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

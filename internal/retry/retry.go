// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retry wraps a single backend operation in an exponential
// backoff policy with jitter. The policy lives outside the backends so
// it can be tested against fakes.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/pdiddy/citation-engine/pkg/types"
)

// Delay returns the wait before retry number attempt (1-based):
// base * 2^(attempt-1) plus uniform random jitter in [0, base).
func Delay(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * base
	return backoff + time.Duration(rand.Int63n(int64(base)))
}

// Do invokes op until it succeeds or the attempt budget is spent.
// retryable reports whether an error is worth another attempt; errors it
// rejects propagate on first occurrence. A nil retryable retries every
// error. MaxAttempts below 1 is treated as 1. If the context is
// cancelled during a backoff wait, Do returns ctx.Err().
func Do(ctx context.Context, cfg types.RetryConfig, retryable func(error) bool, op func(context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Delay(attempt, cfg.BaseDelay)):
		}
	}
	return lastErr
}

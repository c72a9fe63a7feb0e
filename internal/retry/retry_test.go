// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/citation-engine/pkg/types"
)

// testCfg uses a tiny base delay so tests finish quickly.
func testCfg(attempts int) types.RetryConfig {
	return types.RetryConfig{MaxAttempts: attempts, BaseDelay: 1 * time.Millisecond}
}

func TestDo_ImmediateSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testCfg(5), nil, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_TransientFailuresThenSuccess(t *testing.T) {
	// Fails k times, then succeeds: with MaxAttempts >= k+1 the wrapped
	// call succeeds after exactly k+1 invocations.
	for _, k := range []int{1, 2, 3} {
		calls := 0
		err := Do(context.Background(), testCfg(k+1), nil, func(context.Context) error {
			calls++
			if calls <= k {
				return fmt.Errorf("transient %d", calls)
			}
			return nil
		})
		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, k+1, calls, "k=%d", k)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	failure := errors.New("still failing")
	err := Do(context.Background(), testCfg(3), nil, func(context.Context) error {
		calls++
		return failure
	})
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	structural := errors.New("blocked")
	notRetryable := func(err error) bool { return !errors.Is(err, structural) }

	calls := 0
	err := Do(context.Background(), testCfg(10), notRetryable, func(context.Context) error {
		calls++
		return structural
	})
	assert.ErrorIs(t, err, structural)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroAttemptsTreatedAsOne(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testCfg(0), nil, func(context.Context) error {
		calls++
		return errors.New("nope")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	cfg := types.RetryConfig{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	err := Do(ctx, cfg, nil, func(context.Context) error {
		calls++
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestDelay_Bounds(t *testing.T) {
	base := 100 * time.Millisecond
	tests := []struct {
		attempt int
		floor   time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}
	for _, tt := range tests {
		// Jitter is random, so sample repeatedly and check the window.
		for i := 0; i < 50; i++ {
			d := Delay(tt.attempt, base)
			assert.GreaterOrEqual(t, d, tt.floor, "attempt %d", tt.attempt)
			assert.Less(t, d, tt.floor+base, "attempt %d", tt.attempt)
		}
	}
}

func TestDelay_DegenerateInputs(t *testing.T) {
	assert.Equal(t, time.Duration(0), Delay(1, 0))
	assert.Equal(t, time.Duration(0), Delay(3, -time.Second))

	// Attempt below 1 behaves like attempt 1.
	d := Delay(0, 10*time.Millisecond)
	assert.GreaterOrEqual(t, d, 10*time.Millisecond)
	assert.Less(t, d, 20*time.Millisecond)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pdiddy/citation-engine/pkg/types"
)

// --- failure classification ---

func TestFailureKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind FailureKind
	}{
		{"transient", transientf(types.SourceGoogleScholar, "connection reset"), KindTransient},
		{"blocked", blockedf(types.SourceGoogleScholar, "captcha page"), KindBlocked},
		{"not found", notFoundf(types.SourceSemanticScholar, "no results"), KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %v, want %v", got, tt.kind)
			}
		})
	}
}

func TestFailurePredicates(t *testing.T) {
	blocked := blockedf(types.SourceGoogleScholar, "scholar returned HTTP 403")
	if !IsBlocked(blocked) {
		t.Error("IsBlocked() = false for a blocked failure")
	}
	if IsTransient(blocked) {
		t.Error("IsTransient() = true for a blocked failure")
	}
	if IsNotFound(blocked) {
		t.Error("IsNotFound() = true for a blocked failure")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("dial tcp: i/o timeout")); got != KindTransient {
		t.Errorf("KindOf(plain error) = %v, want %v", got, KindTransient)
	}
}

func TestFailureErrorMessage(t *testing.T) {
	err := blockedf(types.SourceGoogleScholar, "scholar served a CAPTCHA challenge")
	want := "google_scholar: blocked: scholar served a CAPTCHA challenge"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestFailureWrapsCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := transientf(types.SourceGoogleScholar, "scholar request: %w", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable through errors.Is")
	}
}

// --- politeness delay ---

func TestPoliteDelayDrawsWithinRange(t *testing.T) {
	old := sleepFn
	defer func() { sleepFn = old }()

	var slept []time.Duration
	sleepFn = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	rng := types.DelayRange{Min: 300 * time.Millisecond, Max: time.Second}
	for i := 0; i < 100; i++ {
		if err := politeDelay(context.Background(), rng); err != nil {
			t.Fatalf("politeDelay() error = %v", err)
		}
	}

	if len(slept) != 100 {
		t.Fatalf("sleep called %d times, want 100", len(slept))
	}
	for _, d := range slept {
		if d < rng.Min || d > rng.Max {
			t.Errorf("slept %v, outside [%v, %v]", d, rng.Min, rng.Max)
		}
	}
}

func TestPoliteDelayZeroRangeSkipsSleep(t *testing.T) {
	old := sleepFn
	defer func() { sleepFn = old }()

	called := false
	sleepFn = func(context.Context, time.Duration) error {
		called = true
		return nil
	}

	if err := politeDelay(context.Background(), types.DelayRange{}); err != nil {
		t.Fatalf("politeDelay() error = %v", err)
	}
	if called {
		t.Error("sleep called for a zero delay range")
	}
}

func TestPoliteDelayFixedRange(t *testing.T) {
	old := sleepFn
	defer func() { sleepFn = old }()

	var got time.Duration
	sleepFn = func(_ context.Context, d time.Duration) error {
		got = d
		return nil
	}

	fixed := types.DelayRange{Min: 500 * time.Millisecond, Max: 500 * time.Millisecond}
	if err := politeDelay(context.Background(), fixed); err != nil {
		t.Fatalf("politeDelay() error = %v", err)
	}
	if got != 500*time.Millisecond {
		t.Errorf("slept %v, want exactly 500ms for a degenerate range", got)
	}
}

func TestSleepContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() error = %v, want context.Canceled", err)
	}
}

// --- title normalization ---

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"mixed case and spaces", "Attention Is All You Need", "attentionisallyouneed"},
		{"punctuation stripped", "BERT: Pre-training of Deep Bidirectional Transformers", "bertpretrainingofdeepbidirectionaltransformers"},
		{"digits kept", "ImageNet Classification 2012", "imagenetclassification2012"},
		{"unicode letters kept", "Über die Berechenbarkeit", "überdieberechenbarkeit"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTitle(tt.title); got != tt.want {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

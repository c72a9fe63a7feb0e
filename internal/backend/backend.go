// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package backend implements the two citation data sources behind one
// contract: the Google Scholar scraper and the Semantic Scholar API.
// Implements: prd001-lookup (R1-R3);
//
//	docs/ARCHITECTURE § Backends.
package backend

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/pdiddy/citation-engine/pkg/types"
)

// Client is one citation data source. Each backend implements this
// interface per the Strategy pattern (R2.6); the orchestrator selects
// among implementations.
type Client interface {
	// Source returns the data-source tag stamped onto reports.
	Source() types.Source

	// Search resolves the query to the single best-matching article.
	// Fails with a NotFound, Blocked, or Transient Failure.
	Search(ctx context.Context, query types.LookupQuery) (types.ArticleRecord, error)

	// Citations fetches articles citing the given article, up to
	// query.MaxResults. Fails with a Blocked or Transient Failure.
	Citations(ctx context.Context, article types.ArticleRecord, query types.LookupQuery) ([]types.ArticleRecord, error)
}

// FailureKind classifies a backend failure for the retry and fallback
// policies (R3.1).
type FailureKind int

const (
	// KindTransient covers timeouts, network failures, and rate-limit
	// responses. Retryable up to the policy budget.
	KindTransient FailureKind = iota

	// KindBlocked means the source actively refused access (CAPTCHA,
	// access denied). Never retried; drives fallback.
	KindBlocked

	// KindNotFound means no matching article. Never retried.
	KindNotFound
)

func (k FailureKind) String() string {
	switch k {
	case KindBlocked:
		return "blocked"
	case KindNotFound:
		return "not found"
	default:
		return "transient"
	}
}

// Failure is a typed backend error. The orchestrator's decision table
// branches on Kind rather than on raised exceptions (R3.2).
type Failure struct {
	Source types.Source
	Kind   FailureKind
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.Source, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func transientf(src types.Source, format string, args ...any) *Failure {
	return &Failure{Source: src, Kind: KindTransient, Err: fmt.Errorf(format, args...)}
}

func blockedf(src types.Source, format string, args ...any) *Failure {
	return &Failure{Source: src, Kind: KindBlocked, Err: fmt.Errorf(format, args...)}
}

func notFoundf(src types.Source, format string, args ...any) *Failure {
	return &Failure{Source: src, Kind: KindNotFound, Err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err is a retryable backend failure.
func IsTransient(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == KindTransient
}

// IsBlocked reports whether err is a source-refused-access failure.
func IsBlocked(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == KindBlocked
}

// IsNotFound reports whether err is a no-matching-article failure.
func IsNotFound(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == KindNotFound
}

// KindOf extracts the failure kind from err. Errors that are not backend
// failures (context cancellation, wrapping glue) count as transient.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindTransient
}

// sleepFn is swapped in tests to observe delays without real sleeps.
var sleepFn = sleepContext

// politeDelay sleeps for a duration drawn uniformly from the query's
// delay range. Both backends call this before every network request to
// reduce server-side rate-limit triggering (R2.4).
func politeDelay(ctx context.Context, d types.DelayRange) error {
	if d.Max <= 0 {
		return nil
	}
	span := int64(d.Max - d.Min)
	wait := d.Min
	if span > 0 {
		wait += time.Duration(rand.Int63n(span + 1))
	}
	return sleepFn(ctx, wait)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// NormalizeTitle returns a lowercased copy of title with everything but
// letters and digits removed. Used for identity comparison across
// sources and for default output naming (R4.2).
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

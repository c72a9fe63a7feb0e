// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package lookup runs the citation lookup pipeline: source selection,
// retry, fallback, and report assembly.
// Implements: prd001-lookup (R1-R5);
//
//	docs/ARCHITECTURE § Lookup pipeline.
package lookup

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/citation-engine/internal/backend"
	"github.com/pdiddy/citation-engine/internal/retry"
	"github.com/pdiddy/citation-engine/pkg/types"
)

// Orchestrator coordinates backends according to the source mode:
// scraping and api use a single backend, both tries the scraper first
// and falls back to the API. A finished report always carries records
// from exactly one source (R1.4).
type Orchestrator struct {
	Scraper  backend.Client
	API      backend.Client
	Retry    types.RetryConfig
	Progress io.Writer
}

// BackendAttempt records how one backend failed before the orchestrator
// moved on.
type BackendAttempt struct {
	Source types.Source
	Kind   backend.FailureKind
	Err    error
}

// ExhaustedError reports that every configured backend failed. Attempts
// preserve the per-source failure kinds so callers can tell a missing
// article from unreachable sources.
type ExhaustedError struct {
	Attempts []BackendAttempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "no citation sources configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s (%s)", a.Source, a.Kind))
	}
	return "all citation sources exhausted: " + strings.Join(parts, ", ")
}

// AllNotFound reports whether every backend failed because the article
// was missing rather than unreachable.
func (e *ExhaustedError) AllNotFound() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		if a.Kind != backend.KindNotFound {
			return false
		}
	}
	return true
}

// Run executes the lookup and returns the assembled report. When every
// backend fails the error is an *ExhaustedError; no partial report is
// returned.
func (o *Orchestrator) Run(ctx context.Context, mode types.SourceMode, query types.LookupQuery) (types.CitationReport, error) {
	if err := query.Validate(); err != nil {
		return types.CitationReport{}, err
	}

	clients, err := o.order(mode)
	if err != nil {
		return types.CitationReport{}, err
	}

	var attempts []BackendAttempt
	for _, client := range clients {
		report, err := o.runBackend(ctx, client, query)
		if err == nil {
			return report, nil
		}
		if ctx.Err() != nil {
			return types.CitationReport{}, err
		}
		attempts = append(attempts, BackendAttempt{Source: client.Source(), Kind: backend.KindOf(err), Err: err})
		o.progressf("warning: %s lookup failed: %v\n", client.Source(), err)
	}
	return types.CitationReport{}, &ExhaustedError{Attempts: attempts}
}

func (o *Orchestrator) order(mode types.SourceMode) ([]backend.Client, error) {
	switch mode {
	case types.ModeScraping:
		return []backend.Client{o.Scraper}, nil
	case types.ModeAPI:
		return []backend.Client{o.API}, nil
	case types.ModeBoth:
		return []backend.Client{o.Scraper, o.API}, nil
	default:
		return nil, fmt.Errorf("unknown source mode %q: use scraping, api, or both", mode)
	}
}

// runBackend drives one backend through search and citation collection.
// Transient failures are retried with backoff; Blocked and NotFound
// abort the backend on the first occurrence. A failure during citation
// paging discards the partial page set, so the next source starts from
// scratch (R3.4).
func (o *Orchestrator) runBackend(ctx context.Context, client backend.Client, query types.LookupQuery) (types.CitationReport, error) {
	var article types.ArticleRecord
	err := retry.Do(ctx, o.Retry, backend.IsTransient, func(ctx context.Context) error {
		var searchErr error
		article, searchErr = client.Search(ctx, query)
		return searchErr
	})
	if err != nil {
		return types.CitationReport{}, err
	}
	o.progressf("Found article via %s: %q\n", client.Source(), article.Title)

	var citing []types.ArticleRecord
	err = retry.Do(ctx, o.Retry, backend.IsTransient, func(ctx context.Context) error {
		var citeErr error
		citing, citeErr = client.Citations(ctx, article, query)
		return citeErr
	})
	if err != nil {
		return types.CitationReport{}, err
	}

	report := BuildReport(article, citing, client.Source(), query.MaxResults)
	o.progressf("Collected %d of %d citing articles from %s\n",
		report.TotalCitationsFound, report.TotalCitationsAvailable, client.Source())
	return report, nil
}

func (o *Orchestrator) progressf(format string, args ...any) {
	if o.Progress == nil {
		return
	}
	fmt.Fprintf(o.Progress, format, args...)
}

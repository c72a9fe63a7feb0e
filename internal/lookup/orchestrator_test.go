// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lookup

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/citation-engine/internal/backend"
	"github.com/pdiddy/citation-engine/pkg/types"
)

// --- mock client ---

type mockClient struct {
	source  types.Source
	article types.ArticleRecord
	citing  []types.ArticleRecord

	// Errors are consumed one per call; nil entries and calls past the
	// end succeed.
	searchErrs    []error
	citationsErrs []error

	searchCalls    int
	citationsCalls int
}

func (m *mockClient) Source() types.Source { return m.source }

func (m *mockClient) Search(context.Context, types.LookupQuery) (types.ArticleRecord, error) {
	m.searchCalls++
	if len(m.searchErrs) > 0 {
		err := m.searchErrs[0]
		m.searchErrs = m.searchErrs[1:]
		if err != nil {
			return types.ArticleRecord{}, err
		}
	}
	return m.article, nil
}

func (m *mockClient) Citations(context.Context, types.ArticleRecord, types.LookupQuery) ([]types.ArticleRecord, error) {
	m.citationsCalls++
	if len(m.citationsErrs) > 0 {
		err := m.citationsErrs[0]
		m.citationsErrs = m.citationsErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return m.citing, nil
}

func failure(src types.Source, kind backend.FailureKind, msg string) error {
	return &backend.Failure{Source: src, Kind: kind, Err: errors.New(msg)}
}

func testQuery() types.LookupQuery {
	return types.LookupQuery{
		Title:      "Attention Is All You Need",
		MaxResults: 1000,
		Timeout:    30 * time.Second,
	}
}

func testScraper() *mockClient {
	return &mockClient{
		source:  types.SourceGoogleScholar,
		article: types.ArticleRecord{Title: "Attention is all you need", CitationsCount: 10, ScholarID: "42"},
		citing: []types.ArticleRecord{
			{Title: "Citing paper one"},
			{Title: "Citing paper two"},
			{Title: "Citing paper three"},
		},
	}
}

func testAPI() *mockClient {
	return &mockClient{
		source:  types.SourceSemanticScholar,
		article: types.ArticleRecord{Title: "Attention is All you Need", CitationsCount: 12, ScholarID: "204e"},
		citing: []types.ArticleRecord{
			{Title: "Citing paper one"},
			{Title: "Citing paper four"},
		},
	}
}

func testOrchestrator(scraper, api *mockClient) *Orchestrator {
	return &Orchestrator{
		Scraper:  scraper,
		API:      api,
		Retry:    types.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
		Progress: &bytes.Buffer{},
	}
}

// --- mode selection ---

func TestRunScrapingSuccess(t *testing.T) {
	scraper, api := testScraper(), testAPI()
	o := testOrchestrator(scraper, api)

	report, err := o.Run(context.Background(), types.ModeScraping, testQuery())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.DataSource != types.SourceGoogleScholar {
		t.Errorf("DataSource = %q, want %q", report.DataSource, types.SourceGoogleScholar)
	}
	if report.TotalCitationsFound != 3 {
		t.Errorf("TotalCitationsFound = %d, want 3", report.TotalCitationsFound)
	}
	if report.TotalCitationsAvailable != 10 {
		t.Errorf("TotalCitationsAvailable = %d, want 10", report.TotalCitationsAvailable)
	}
	if api.searchCalls != 0 {
		t.Errorf("API searched %d times in scraping mode, want 0", api.searchCalls)
	}
}

func TestRunAPIModeSkipsScraper(t *testing.T) {
	scraper, api := testScraper(), testAPI()
	o := testOrchestrator(scraper, api)

	report, err := o.Run(context.Background(), types.ModeAPI, testQuery())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.DataSource != types.SourceSemanticScholar {
		t.Errorf("DataSource = %q, want %q", report.DataSource, types.SourceSemanticScholar)
	}
	if scraper.searchCalls != 0 {
		t.Errorf("scraper searched %d times in api mode, want 0", scraper.searchCalls)
	}
}

func TestRunUnknownMode(t *testing.T) {
	o := testOrchestrator(testScraper(), testAPI())
	_, err := o.Run(context.Background(), types.SourceMode("serpapi"), testQuery())
	if err == nil || !strings.Contains(err.Error(), "unknown source mode") {
		t.Errorf("Run() error = %v, want unknown source mode", err)
	}
}

func TestRunRejectsInvalidQuery(t *testing.T) {
	scraper, api := testScraper(), testAPI()
	o := testOrchestrator(scraper, api)

	query := testQuery()
	query.Title = ""
	if _, err := o.Run(context.Background(), types.ModeBoth, query); err == nil {
		t.Fatal("Run() error = nil for an empty title")
	}
	if scraper.searchCalls != 0 || api.searchCalls != 0 {
		t.Error("backends were called for an invalid query")
	}
}

// --- fallback ---

func TestRunBothScraperSucceedsAPIUntouched(t *testing.T) {
	scraper, api := testScraper(), testAPI()
	o := testOrchestrator(scraper, api)

	report, err := o.Run(context.Background(), types.ModeBoth, testQuery())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.DataSource != types.SourceGoogleScholar {
		t.Errorf("DataSource = %q, want %q", report.DataSource, types.SourceGoogleScholar)
	}
	if api.searchCalls != 0 || api.citationsCalls != 0 {
		t.Errorf("API called (%d searches, %d citation fetches) although the scraper succeeded",
			api.searchCalls, api.citationsCalls)
	}
}

func TestRunBothFallsBackWhenScraperBlocked(t *testing.T) {
	scraper, api := testScraper(), testAPI()
	scraper.searchErrs = []error{failure(types.SourceGoogleScholar, backend.KindBlocked, "captcha page")}

	progress := &bytes.Buffer{}
	o := testOrchestrator(scraper, api)
	o.Progress = progress

	report, err := o.Run(context.Background(), types.ModeBoth, testQuery())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.DataSource != types.SourceSemanticScholar {
		t.Errorf("DataSource = %q, want %q", report.DataSource, types.SourceSemanticScholar)
	}
	if scraper.searchCalls != 1 {
		t.Errorf("scraper searched %d times, want 1 (blocked is never retried)", scraper.searchCalls)
	}
	if api.searchCalls != 1 {
		t.Errorf("API searched %d times, want 1", api.searchCalls)
	}
	if !strings.Contains(progress.String(), "warning: google_scholar lookup failed") {
		t.Errorf("progress output %q missing the fallback warning", progress.String())
	}
}

func TestRunBlockedDuringCitationsRestartsOnNextSource(t *testing.T) {
	scraper, api := testScraper(), testAPI()
	scraper.citationsErrs = []error{failure(types.SourceGoogleScholar, backend.KindBlocked, "captcha midway")}

	o := testOrchestrator(scraper, api)
	report, err := o.Run(context.Background(), types.ModeBoth, testQuery())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if scraper.citationsCalls != 1 {
		t.Errorf("scraper citation fetches = %d, want 1", scraper.citationsCalls)
	}
	if api.searchCalls != 1 {
		t.Errorf("API searched %d times, want 1 (fallback restarts from search)", api.searchCalls)
	}
	if report.DataSource != types.SourceSemanticScholar {
		t.Errorf("DataSource = %q, want %q", report.DataSource, types.SourceSemanticScholar)
	}
	if report.TotalCitationsFound != 2 {
		t.Errorf("TotalCitationsFound = %d, want 2 (no records leak from the abandoned source)", report.TotalCitationsFound)
	}
}

func TestRunScrapingModeBlockedDoesNotFallBack(t *testing.T) {
	scraper, api := testScraper(), testAPI()
	scraper.searchErrs = []error{failure(types.SourceGoogleScholar, backend.KindBlocked, "captcha page")}

	o := testOrchestrator(scraper, api)
	_, err := o.Run(context.Background(), types.ModeScraping, testQuery())

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Run() error = %v, want *ExhaustedError", err)
	}
	if api.searchCalls != 0 {
		t.Errorf("API searched %d times in scraping mode, want 0", api.searchCalls)
	}
	if exhausted.AllNotFound() {
		t.Error("AllNotFound() = true for a blocked failure")
	}
}

// --- retry policy ---

func TestRunRetriesTransientSearch(t *testing.T) {
	scraper, api := testScraper(), testAPI()
	scraper.searchErrs = []error{
		failure(types.SourceGoogleScholar, backend.KindTransient, "timeout"),
		failure(types.SourceGoogleScholar, backend.KindTransient, "connection reset"),
	}

	o := testOrchestrator(scraper, api)
	report, err := o.Run(context.Background(), types.ModeBoth, testQuery())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if scraper.searchCalls != 3 {
		t.Errorf("scraper searched %d times, want 3 (two transient failures, then success)", scraper.searchCalls)
	}
	if report.DataSource != types.SourceGoogleScholar {
		t.Errorf("DataSource = %q, want %q", report.DataSource, types.SourceGoogleScholar)
	}
}

func TestRunTransientExhaustionFallsBack(t *testing.T) {
	scraper, api := testScraper(), testAPI()
	scraper.searchErrs = []error{
		failure(types.SourceGoogleScholar, backend.KindTransient, "timeout"),
		failure(types.SourceGoogleScholar, backend.KindTransient, "timeout"),
		failure(types.SourceGoogleScholar, backend.KindTransient, "timeout"),
	}

	o := testOrchestrator(scraper, api)
	report, err := o.Run(context.Background(), types.ModeBoth, testQuery())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if scraper.searchCalls != 3 {
		t.Errorf("scraper searched %d times, want the full retry budget of 3", scraper.searchCalls)
	}
	if report.DataSource != types.SourceSemanticScholar {
		t.Errorf("DataSource = %q, want %q", report.DataSource, types.SourceSemanticScholar)
	}
}

func TestRunNotFoundNotRetried(t *testing.T) {
	scraper, api := testScraper(), testAPI()
	api.searchErrs = []error{failure(types.SourceSemanticScholar, backend.KindNotFound, "no papers match")}

	o := testOrchestrator(scraper, api)
	_, err := o.Run(context.Background(), types.ModeAPI, testQuery())

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Run() error = %v, want *ExhaustedError", err)
	}
	if api.searchCalls != 1 {
		t.Errorf("API searched %d times, want 1 (not found is never retried)", api.searchCalls)
	}
}

// --- exhaustion ---

func TestRunAllSourcesNotFound(t *testing.T) {
	scraper, api := testScraper(), testAPI()
	scraper.searchErrs = []error{failure(types.SourceGoogleScholar, backend.KindNotFound, "no results")}
	api.searchErrs = []error{failure(types.SourceSemanticScholar, backend.KindNotFound, "no papers match")}

	o := testOrchestrator(scraper, api)
	_, err := o.Run(context.Background(), types.ModeBoth, testQuery())

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Run() error = %v, want *ExhaustedError", err)
	}
	if len(exhausted.Attempts) != 2 {
		t.Fatalf("Attempts = %d, want 2", len(exhausted.Attempts))
	}
	if !exhausted.AllNotFound() {
		t.Error("AllNotFound() = false when both sources reported not found")
	}
	if !strings.Contains(err.Error(), "exhausted") {
		t.Errorf("Error() = %q, want mention of exhaustion", err.Error())
	}
}

func TestRunMixedExhaustionKinds(t *testing.T) {
	scraper, api := testScraper(), testAPI()
	scraper.searchErrs = []error{failure(types.SourceGoogleScholar, backend.KindBlocked, "captcha page")}
	api.searchErrs = []error{
		failure(types.SourceSemanticScholar, backend.KindTransient, "HTTP 500"),
		failure(types.SourceSemanticScholar, backend.KindTransient, "HTTP 500"),
		failure(types.SourceSemanticScholar, backend.KindTransient, "HTTP 500"),
	}

	o := testOrchestrator(scraper, api)
	_, err := o.Run(context.Background(), types.ModeBoth, testQuery())

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Run() error = %v, want *ExhaustedError", err)
	}
	if exhausted.AllNotFound() {
		t.Error("AllNotFound() = true for blocked and transient failures")
	}
	if exhausted.Attempts[0].Kind != backend.KindBlocked {
		t.Errorf("first attempt kind = %v, want blocked", exhausted.Attempts[0].Kind)
	}
	if exhausted.Attempts[1].Kind != backend.KindTransient {
		t.Errorf("second attempt kind = %v, want transient", exhausted.Attempts[1].Kind)
	}
}

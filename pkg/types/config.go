package types

import (
	"fmt"
	"time"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "citation-engine/0.1"). Per prd001-lookup R5.2.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// DelayRange bounds the randomized politeness delay drawn before every
// network call. Per prd001-lookup R2.4 the delay is a required behavior,
// not an optimization.
type DelayRange struct {
	// Min is the lower bound, inclusive.
	Min time.Duration `json:"min" yaml:"min"`

	// Max is the upper bound, inclusive. Must be >= Min.
	Max time.Duration `json:"max" yaml:"max"`
}

// LookupQuery holds the parameters for one citation lookup. Constructed
// once from CLI input and passed unchanged to every backend call.
// Per prd001-lookup R1.1-R1.4.
type LookupQuery struct {
	// Title is the article title to search for. Required.
	Title string `json:"title" yaml:"title"`

	// Author optionally refines the search.
	Author string `json:"author,omitempty" yaml:"author,omitempty"`

	// Year optionally refines the search (four-digit string).
	Year string `json:"year,omitempty" yaml:"year,omitempty"`

	// MaxResults caps the number of citing articles retrieved.
	MaxResults int `json:"max_results" yaml:"max_results"`

	// Timeout applies per network call; no deadline spans the whole
	// fallback chain.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Delay is the politeness delay range drawn before each network call.
	Delay DelayRange `json:"delay" yaml:"delay"`
}

// Validate reports the first constraint violation in the query (R1.4).
func (q LookupQuery) Validate() error {
	switch {
	case q.Title == "":
		return fmt.Errorf("query title is required")
	case q.MaxResults <= 0:
		return fmt.Errorf("max results must be positive, got %d", q.MaxResults)
	case q.Timeout <= 0:
		return fmt.Errorf("timeout must be positive, got %v", q.Timeout)
	case q.Delay.Min < 0:
		return fmt.Errorf("delay minimum must not be negative, got %v", q.Delay.Min)
	case q.Delay.Max < q.Delay.Min:
		return fmt.Errorf("delay maximum %v is below minimum %v", q.Delay.Max, q.Delay.Min)
	}
	return nil
}

// RetryConfig governs the retry policy around a single backend operation.
type RetryConfig struct {
	// MaxAttempts is the total invocation budget, including the first
	// try. Must be >= 1.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// BaseDelay seeds the exponential backoff between attempts.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`
}

// SourceMode selects which backends a lookup may use.
type SourceMode string

const (
	// ModeScraping uses only the Google Scholar scraper. No fallback.
	ModeScraping SourceMode = "scraping"

	// ModeAPI uses only the Semantic Scholar API.
	ModeAPI SourceMode = "api"

	// ModeBoth tries the scraper first and falls back to the API when it
	// is blocked, exhausts its retries, or finds nothing.
	ModeBoth SourceMode = "both"
)

// ParseSourceMode validates a mode string from CLI or config input.
func ParseSourceMode(s string) (SourceMode, error) {
	switch SourceMode(s) {
	case ModeScraping, ModeAPI, ModeBoth:
		return SourceMode(s), nil
	}
	return "", fmt.Errorf("unknown source mode %q: use scraping, api, or both", s)
}

// LookupConfig holds settings for the lookup stage.
type LookupConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxResults is the default citing-article cap (default 1000).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// Delay is the default politeness delay range.
	Delay DelayRange `json:"delay" yaml:"delay"`

	// Retry is the default retry policy per backend operation.
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// SemanticScholarAPIKey raises the Semantic Scholar rate limit.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty"`
}

// AcquireConfig holds settings for the citing-article PDF stage.
// Per prd002-pdf-acquisition R5.1-R5.3.
type AcquireConfig struct {
	HTTPConfig `yaml:",inline"`

	// DownloadDelay is the delay between consecutive articles (default 1s).
	DownloadDelay time.Duration `json:"download_delay" yaml:"download_delay"`

	// PDFDir is the directory downloaded PDFs are written to.
	PDFDir string `json:"pdf_dir" yaml:"pdf_dir"`

	// UnpaywallEmail identifies the caller to the Unpaywall API.
	UnpaywallEmail string `json:"unpaywall_email,omitempty" yaml:"unpaywall_email,omitempty"`

	// CookiesPath points at an optional JSON file mapping domain to a
	// Cookie header value for paywalled publishers.
	CookiesPath string `json:"cookies_path,omitempty" yaml:"cookies_path,omitempty"`
}

// HistoryConfig holds settings for the run/download history store.
type HistoryConfig struct {
	// Dir is the directory containing the history database and exports.
	Dir string `json:"dir" yaml:"dir"`

	// MaxResults is the default listing limit (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/citation-engine/internal/backend"
	"github.com/pdiddy/citation-engine/internal/history"
	"github.com/pdiddy/citation-engine/internal/lookup"
	"github.com/pdiddy/citation-engine/internal/proxy"
	"github.com/pdiddy/citation-engine/pkg/types"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultDelayMin  = 300 * time.Millisecond
	defaultDelayMax  = 1 * time.Second
	defaultBaseDelay = 10 * time.Second
)

var lookupCmd = &cobra.Command{
	Use:   "lookup [title]",
	Short: "Find the articles that cite a given article",
	Long: `Lookup searches for an article by title (optionally refined by author and
year), then retrieves the articles that cite it and writes a citations
report as JSON. Sources: Google Scholar scraping, the Semantic Scholar
Graph API, or both with fallback (the default).

Google Scholar blocks aggressive clients. Lookups draw a randomized delay
before every request and back off exponentially on transient failures; a
CAPTCHA or denial page stops the scraper, and in both mode the whole
lookup restarts on the Semantic Scholar API so each report comes from a
single source.`,
	RunE: runLookup,
}

func init() {
	lookupCmd.Flags().String("author", "", "filter by author name")
	lookupCmd.Flags().String("year", "", "filter by publication year")
	lookupCmd.Flags().String("source", "both", "data source: scraping, api, or both")
	lookupCmd.Flags().Int("max-results", 1000, "maximum number of citing articles to retrieve")
	lookupCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 30s)")
	lookupCmd.Flags().Duration("delay-min", 0, "minimum politeness delay before each request (default 300ms)")
	lookupCmd.Flags().Duration("delay-max", 0, "maximum politeness delay before each request (default 1s)")
	lookupCmd.Flags().Int("max-retries", 3, "attempts per backend operation")
	lookupCmd.Flags().Duration("base-delay", 0, "base backoff delay between retries (default 10s)")
	lookupCmd.Flags().String("api-key", "", "Semantic Scholar API key (default from config, SEMANTIC_SCHOLAR_API_KEY, or .secrets/)")
	lookupCmd.Flags().String("output", "", "report path (default citations_<title>.json)")
	lookupCmd.Flags().String("csl", "", "also write a CSL-YAML bibliography to this path")
	lookupCmd.Flags().String("proxy", "", "route scraper traffic through this HTTP proxy")
	lookupCmd.Flags().Bool("free-proxies", false, "rotate scraper traffic across a fetched public proxy list")
	lookupCmd.Flags().String("history-dir", "history", "directory for the run history database")

	rootCmd.AddCommand(lookupCmd)
}

func runLookup(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide the article title to look up")
	}
	title := strings.Join(args, " ")

	sourceStr, _ := cmd.Flags().GetString("source")
	mode, err := types.ParseSourceMode(sourceStr)
	if err != nil {
		return err
	}

	author, _ := cmd.Flags().GetString("author")
	year, _ := cmd.Flags().GetString("year")
	maxResults, _ := cmd.Flags().GetInt("max-results")

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = defaultTimeout
	}
	delayMin, _ := cmd.Flags().GetDuration("delay-min")
	if delayMin == 0 {
		delayMin = defaultDelayMin
	}
	delayMax, _ := cmd.Flags().GetDuration("delay-max")
	if delayMax == 0 {
		delayMax = defaultDelayMax
	}

	query := types.LookupQuery{
		Title:      title,
		Author:     author,
		Year:       year,
		MaxResults: maxResults,
		Timeout:    timeout,
		Delay:      types.DelayRange{Min: delayMin, Max: delayMax},
	}

	maxRetries, _ := cmd.Flags().GetInt("max-retries")
	baseDelay, _ := cmd.Flags().GetDuration("base-delay")
	if baseDelay == 0 {
		baseDelay = defaultBaseDelay
	}

	// API key resolution: flag, then config, then environment, then .secrets/.
	apiKey, _ := cmd.Flags().GetString("api-key")
	if apiKey == "" {
		apiKey = viper.GetString("lookup.semantic_scholar_api_key")
	}
	if apiKey == "" {
		apiKey = os.Getenv("SEMANTIC_SCHOLAR_API_KEY")
	}
	apiKey = secretDefault("semantic-scholar-api-key", apiKey)

	scraperClient := &http.Client{Timeout: timeout}
	transport, err := scraperProxy(cmd)
	if err != nil {
		return err
	}
	if transport != nil {
		scraperClient.Transport = transport
	}

	orch := &lookup.Orchestrator{
		Scraper:  &backend.GoogleScholarClient{Client: scraperClient},
		API:      backend.NewSemanticScholarClient(&http.Client{Timeout: timeout}, apiKey),
		Retry:    types.RetryConfig{MaxAttempts: maxRetries, BaseDelay: baseDelay},
		Progress: os.Stdout,
	}

	historyDir, _ := cmd.Flags().GetString("history-dir")

	report, err := orch.Run(cmd.Context(), mode, query)
	if err != nil {
		recordRun(cmd.Context(), historyDir, &history.Run{
			Title:      title,
			Author:     author,
			Year:       year,
			SourceMode: mode,
			MaxResults: maxResults,
		})
		return err
	}

	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath == "" {
		outputPath = lookup.DefaultOutputPath(report.InputArticle.Title)
	}
	if err := lookup.WriteReport(report, outputPath); err != nil {
		return err
	}
	fmt.Printf("Wrote %d citing articles to %s\n", report.TotalCitationsFound, outputPath)

	if cslPath, _ := cmd.Flags().GetString("csl"); cslPath != "" {
		if err := writeCSL(report, cslPath); err != nil {
			return err
		}
		fmt.Printf("Wrote CSL bibliography to %s\n", cslPath)
	}

	recordRun(cmd.Context(), historyDir, &history.Run{
		Title:              title,
		Author:             author,
		Year:               year,
		SourceMode:         mode,
		DataSource:         report.DataSource,
		CitationsFound:     report.TotalCitationsFound,
		CitationsAvailable: report.TotalCitationsAvailable,
		MaxResults:         maxResults,
		OutputPath:         outputPath,
	})
	return nil
}

// scraperProxy builds a rotating proxy transport from --proxy or
// --free-proxies. Returns nil when neither is set.
func scraperProxy(cmd *cobra.Command) (*http.Transport, error) {
	proxyAddr, _ := cmd.Flags().GetString("proxy")
	freeProxies, _ := cmd.Flags().GetBool("free-proxies")

	var provider proxy.Provider
	switch {
	case proxyAddr != "":
		provider = proxy.Static{Addrs: []string{proxyAddr}}
	case freeProxies:
		provider = proxy.FreeList{Client: &http.Client{Timeout: defaultTimeout}}
	default:
		return nil, nil
	}

	proxies, err := provider.Proxies(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("resolving proxies: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Routing scraper traffic through %d proxies\n", len(proxies))
	return proxy.Transport(proxies), nil
}

func writeCSL(report types.CitationReport, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := lookup.FormatCSL(report, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// recordRun appends to the history database; failures warn but never
// fail the lookup itself.
func recordRun(ctx context.Context, dir string, run *history.Run) {
	store, err := history.NewStore(types.HistoryConfig{Dir: dir})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: opening history: %v\n", err)
		return
	}
	defer store.Close()

	if err := store.RecordRun(ctx, run); err != nil {
		fmt.Fprintf(os.Stderr, "warning: recording run: %v\n", err)
	}
}

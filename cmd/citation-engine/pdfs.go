// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/citation-engine/internal/acquire"
	"github.com/pdiddy/citation-engine/internal/history"
	"github.com/pdiddy/citation-engine/internal/lookup"
	"github.com/pdiddy/citation-engine/pkg/types"
)

const (
	defaultPDFTimeout    = 60 * time.Second
	defaultDownloadDelay = 1 * time.Second
)

var pdfsCmd = &cobra.Command{
	Use:   "pdfs [report]",
	Short: "Download PDFs for the citing articles in a report",
	Long: `Pdfs reads a citations report JSON and downloads an open-access PDF for
each citing article. Resolution tries venue-specific URL schemes (arXiv,
bioRxiv), the Unpaywall index, and a scan of the DOI landing page; requests
carry a browser User-Agent, a publisher-appropriate Referer, and optional
per-domain cookies from a cookies.json file.

Articles already downloaded (on disk or in the history database) are
skipped, so an interrupted batch can be rerun. Paywalled articles fail
with a recorded reason.`,
	RunE: runPDFs,
}

func init() {
	pdfsCmd.Flags().String("pdf-dir", "pdfs", "directory to write PDFs to")
	pdfsCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 60s)")
	pdfsCmd.Flags().Duration("delay", 0, "delay between consecutive articles (default 1s)")
	pdfsCmd.Flags().String("unpaywall-email", "", "email for the Unpaywall API (default from config, UNPAYWALL_EMAIL, or .secrets/)")
	pdfsCmd.Flags().String("cookies", "cookies.json", "JSON file mapping domain to a Cookie header value")
	pdfsCmd.Flags().String("history-dir", "history", "directory for the download history database")

	rootCmd.AddCommand(pdfsCmd)
}

func runPDFs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide the citations report to read")
	}
	report, err := lookup.ReadReport(args[0])
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = defaultPDFTimeout
	}
	delay, _ := cmd.Flags().GetDuration("delay")
	if delay == 0 {
		delay = defaultDownloadDelay
	}
	pdfDir, _ := cmd.Flags().GetString("pdf-dir")

	// Unpaywall email resolution: flag, then config, then environment,
	// then .secrets/.
	email, _ := cmd.Flags().GetString("unpaywall-email")
	if email == "" {
		email = viper.GetString("pdfs.unpaywall_email")
	}
	if email == "" {
		email = os.Getenv("UNPAYWALL_EMAIL")
	}
	email = secretDefault("unpaywall-email", email)

	cookiesPath, _ := cmd.Flags().GetString("cookies")
	cookies, err := acquire.LoadCookies(cookiesPath)
	if err != nil {
		return err
	}

	historyDir, _ := cmd.Flags().GetString("history-dir")
	store, err := history.NewStore(types.HistoryConfig{Dir: historyDir})
	if err != nil {
		return err
	}
	defer store.Close()

	d := &acquire.Downloader{
		Client: &http.Client{Timeout: timeout},
		Config: types.AcquireConfig{
			HTTPConfig:     types.HTTPConfig{Timeout: timeout},
			DownloadDelay:  delay,
			PDFDir:         pdfDir,
			UnpaywallEmail: email,
			CookiesPath:    cookiesPath,
		},
		Cookies:  cookies,
		Log:      historyLog{store},
		Progress: os.Stdout,
	}

	summary, err := d.Run(cmd.Context(), report)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d article(s) failed download", summary.Failed)
	}
	return nil
}

// historyLog adapts the history store to the downloader's log interface.
type historyLog struct {
	store *history.Store
}

func (l historyLog) Downloaded(ctx context.Context, key string) (bool, error) {
	return l.store.IsDownloaded(ctx, key)
}

func (l historyLog) Record(ctx context.Context, r acquire.Result) error {
	// Skips keep their original record.
	if r.Status == acquire.StatusSkipped {
		return nil
	}
	return l.store.RecordDownload(ctx, history.Download{
		Key:        r.Key,
		Title:      r.Title,
		DOI:        r.DOI,
		PDFURL:     r.PDFURL,
		Path:       r.Path,
		Downloaded: r.Status == acquire.StatusDownloaded,
		FailReason: r.Reason,
	})
}

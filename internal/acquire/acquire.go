// Package acquire downloads PDFs for the citing articles in a report.
// Implements: prd002-pdf-acquisition (R1-R5);
//
//	docs/ARCHITECTURE § PDF acquisition.
package acquire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/citation-engine/pkg/types"
)

// browserUserAgent is the fallback agent; several publishers refuse
// non-browser clients outright.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"

// Status classifies the outcome for one citing article.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// Result records the outcome for one citing article. Key is the DOI
// when one was resolved, otherwise the article title.
type Result struct {
	Key    string
	Title  string
	DOI    string
	PDFURL string
	Path   string
	Status Status
	Reason string
}

// BatchSummary aggregates one downloader run.
type BatchSummary struct {
	Downloaded int
	Skipped    int
	Failed     int
	Results    []Result
}

// Total returns the total number of articles processed.
func (s BatchSummary) Total() int {
	return s.Downloaded + s.Skipped + s.Failed
}

// HasFailures reports whether any article failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

func (s *BatchSummary) add(r Result) {
	switch r.Status {
	case StatusDownloaded:
		s.Downloaded++
	case StatusSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
	s.Results = append(s.Results, r)
}

// DownloadLog tracks per-article outcomes across runs so reruns skip
// what already succeeded.
type DownloadLog interface {
	Downloaded(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, r Result) error
}

// Downloader fetches PDFs for the citing articles in a report. Cookies
// map a domain to a ready-made Cookie header value for publishers that
// require a logged-in session.
type Downloader struct {
	Client   *http.Client
	Config   types.AcquireConfig
	Cookies  map[string]string
	Log      DownloadLog
	Progress io.Writer
}

// Run processes every citing article in the report. Individual failures
// never stop the batch (R4.1); each outcome is recorded in the log, and
// a delay separates consecutive articles (R4.3).
func (d *Downloader) Run(ctx context.Context, report types.CitationReport) (BatchSummary, error) {
	if err := os.MkdirAll(d.Config.PDFDir, 0o755); err != nil {
		return BatchSummary{}, fmt.Errorf("creating PDF directory: %w", err)
	}

	var summary BatchSummary
	for i, article := range report.CitingArticles {
		if i > 0 && d.Config.DownloadDelay > 0 {
			if err := sleep(ctx, d.Config.DownloadDelay); err != nil {
				return summary, err
			}
		}

		res := d.one(ctx, article)
		summary.add(res)
		if res.Status == StatusFailed {
			d.progressf("failed:  %s (%s)\n", res.Key, res.Reason)
		}
		if d.Log != nil {
			if err := d.Log.Record(ctx, res); err != nil {
				d.progressf("warning: recording outcome for %q: %v\n", res.Key, err)
			}
		}
	}

	d.progressf("\nBatch summary: %d downloaded, %d skipped, %d failed (total: %d)\n",
		summary.Downloaded, summary.Skipped, summary.Failed, summary.Total())
	return summary, nil
}

// one resolves and downloads a single article's PDF.
func (d *Downloader) one(ctx context.Context, article types.ArticleRecord) Result {
	res := Result{Key: article.Title, Title: article.Title}
	if article.Title == "" {
		res.Status = StatusFailed
		res.Reason = "article has no title"
		return res
	}

	// DOI first: from the record URL, then CrossRef by title.
	doi := doiFromURL(article.URL)
	if doi == "" {
		var err error
		doi, err = ResolveDOI(ctx, d.Client, article, d.Config)
		if err != nil {
			d.progressf("warning: CrossRef lookup for %q: %v\n", article.Title, err)
		}
	}
	if doi != "" {
		res.DOI = doi
		res.Key = doi
	}

	if d.Log != nil {
		done, err := d.Log.Downloaded(ctx, res.Key)
		if err != nil {
			d.progressf("warning: reading download log: %v\n", err)
		} else if done {
			d.progressf("skipped: %s (already downloaded)\n", res.Key)
			res.Status = StatusSkipped
			return res
		}
	}

	dest := filepath.Join(d.Config.PDFDir, SafeFilename(article.Title)+".pdf")
	res.Path = dest
	if _, err := os.Stat(dest); err == nil {
		d.progressf("skipped: %s (file exists)\n", filepath.Base(dest))
		res.Status = StatusSkipped
		return res
	}

	pdfURL, referer := d.resolvePDF(ctx, article, doi)
	if pdfURL == "" {
		res.Status = StatusFailed
		res.Reason = "no PDF URL found"
		return res
	}
	res.PDFURL = pdfURL

	d.progressf("downloading: %s\n", filepath.Base(dest))
	if err := d.downloadPDF(ctx, pdfURL, referer, dest); err != nil {
		res.Status = StatusFailed
		res.Reason = err.Error()
		return res
	}
	res.Status = StatusDownloaded
	return res
}

// resolvePDF tries, in order: venue-specific URL schemes, the Unpaywall
// open-access index, and a scan of the DOI landing page (R2.1-R2.3).
func (d *Downloader) resolvePDF(ctx context.Context, article types.ArticleRecord, doi string) (pdfURL, referer string) {
	if u := KnownVenuePDFURL(article, doi); u != "" {
		return u, RefererFor(u, doi)
	}
	if doi == "" {
		return "", ""
	}

	if d.Config.UnpaywallEmail != "" {
		u, err := ResolveUnpaywall(ctx, d.Client, doi, d.Config.UnpaywallEmail)
		if err != nil {
			d.progressf("warning: Unpaywall lookup for %s: %v\n", doi, err)
		} else if u != "" {
			return u, RefererFor(u, doi)
		}
	}

	u, landing, err := ScanLandingPage(ctx, d.Client, doi, d.userAgent())
	if err != nil {
		d.progressf("warning: landing page scan for %s: %v\n", doi, err)
		return "", ""
	}
	if u == "" {
		return "", ""
	}
	ref := RefererFor(u, doi)
	if ref == "" {
		ref = landing
	}
	return u, ref
}

// downloadPDF fetches the PDF with publisher-friendly headers and
// writes it via a temp file and rename (R3.2). A 403 or a Cloudflare
// challenge body means the publisher wants a real browser session;
// those fail with a recorded reason rather than retrying.
func (d *Downloader) downloadPDF(ctx context.Context, pdfURL, referer, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent())
	req.Header.Set("Accept", "application/pdf")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	if cookie := d.cookieFor(req.URL.Hostname()); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("HTTP 403 from %s: publisher requires a browser session", pdfURL)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, pdfURL)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		head, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if bytes.Contains(head, []byte("Just a moment")) {
			return fmt.Errorf("Cloudflare challenge at %s: publisher requires a browser session", pdfURL)
		}
		return fmt.Errorf("%s returned HTML, not a PDF", pdfURL)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".pdfs-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// cookieFor returns the configured Cookie header for host, matching by
// suffix so "nature.com" covers "www.nature.com".
func (d *Downloader) cookieFor(host string) string {
	for domain, cookie := range d.Cookies {
		domain = strings.TrimPrefix(domain, ".")
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return cookie
		}
	}
	return ""
}

func (d *Downloader) userAgent() string {
	if d.Config.UserAgent != "" {
		return d.Config.UserAgent
	}
	return browserUserAgent
}

func (d *Downloader) progressf(format string, args ...any) {
	if d.Progress == nil {
		return
	}
	fmt.Fprintf(d.Progress, format, args...)
}

// LoadCookies reads a domain-to-cookie-header map from a JSON file. A
// missing file simply means no cookies.
func LoadCookies(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}

	var cookies map[string]string
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("parsing cookies %s: %w", path, err)
	}
	return cookies, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

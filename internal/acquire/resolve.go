// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/citation-engine/pkg/types"
)

// Base URLs for DOI and PDF resolution. Declared as vars so tests can
// substitute httptest servers.
var (
	crossrefAPIBase    = "https://api.crossref.org/works"
	unpaywallAPIBase   = "https://api.unpaywall.org/v2/"
	doiBase            = "https://doi.org/"
	arxivPDFBase       = "https://arxiv.org/pdf/"
	biorxivContentBase = "https://www.biorxiv.org/content/"
)

// maxFilenameLen caps the filename stem derived from a title.
const maxFilenameLen = 100

// arxivIDPattern finds an arXiv identifier inside URLs and venue strings.
var arxivIDPattern = regexp.MustCompile(`\d{4}\.\d{4,5}(?:v\d+)?`)

// CrossRef search API JSON structures.
type crossrefResponse struct {
	Message crossrefMessage `json:"message"`
}

type crossrefMessage struct {
	Items []crossrefWork `json:"items"`
}

type crossrefWork struct {
	DOI string `json:"DOI"`
}

// ResolveDOI finds the article's DOI by title search on CrossRef,
// narrowed by the first author when one is known. An empty DOI with a
// nil error means CrossRef has no match.
func ResolveDOI(ctx context.Context, client *http.Client, article types.ArticleRecord, cfg types.AcquireConfig) (string, error) {
	params := url.Values{
		"query.title": {article.Title},
		"rows":        {"1"},
	}
	if author := firstAuthor(article.Authors); author != "" {
		params.Set("query.author", author)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, crossrefAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating CrossRef request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("CrossRef API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("CrossRef API returned HTTP %d", resp.StatusCode)
	}

	var cr crossrefResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("parsing CrossRef response: %w", err)
	}
	if len(cr.Message.Items) == 0 {
		return "", nil
	}
	return cr.Message.Items[0].DOI, nil
}

// firstAuthor returns the first name from a comma-separated author string.
func firstAuthor(authors string) string {
	first, _, _ := strings.Cut(authors, ",")
	return strings.TrimSpace(first)
}

// doiFromURL extracts a DOI from a doi.org record URL.
func doiFromURL(rawURL string) string {
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/"} {
		if doi, ok := strings.CutPrefix(rawURL, prefix); ok {
			return doi
		}
	}
	return ""
}

// KnownVenuePDFURL returns a direct PDF URL for venues whose layout is
// stable enough to construct one without resolution: arXiv (from the
// DOI, the record URL, or the venue string) and bioRxiv (from the DOI).
// Returns "" when no rule applies.
func KnownVenuePDFURL(article types.ArticleRecord, doi string) string {
	if id, ok := strings.CutPrefix(doi, "10.48550/arXiv."); ok {
		return arxivPDFBase + id
	}
	if strings.Contains(article.URL, "arxiv.org") {
		if id := arxivIDPattern.FindString(article.URL); id != "" {
			return arxivPDFBase + id
		}
	}
	if strings.Contains(strings.ToLower(article.Venue), "arxiv") {
		if id := arxivIDPattern.FindString(article.Venue); id != "" {
			return arxivPDFBase + id
		}
	}
	if strings.HasPrefix(doi, "10.1101/") {
		return biorxivContentBase + doi + "v1.full.pdf"
	}
	return ""
}

// Unpaywall API JSON structures.
type unpaywallResponse struct {
	BestOALocation *unpaywallLocation  `json:"best_oa_location"`
	OALocations    []unpaywallLocation `json:"oa_locations"`
}

type unpaywallLocation struct {
	URLForPDF string `json:"url_for_pdf"`
}

// ResolveUnpaywall queries Unpaywall for an open-access PDF of the DOI.
// It prefers the best location and falls back to scanning the full
// location list. An empty URL with a nil error means no open-access
// copy is known.
func ResolveUnpaywall(ctx context.Context, client *http.Client, doi, email string) (string, error) {
	apiURL := unpaywallAPIBase + doi + "?email=" + url.QueryEscape(email)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating Unpaywall request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Unpaywall API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Unpaywall API returned HTTP %d", resp.StatusCode)
	}

	var ua unpaywallResponse
	if err := json.NewDecoder(resp.Body).Decode(&ua); err != nil {
		return "", fmt.Errorf("parsing Unpaywall response: %w", err)
	}

	if ua.BestOALocation != nil && ua.BestOALocation.URLForPDF != "" {
		return ua.BestOALocation.URLForPDF, nil
	}
	for _, loc := range ua.OALocations {
		if loc.URLForPDF != "" {
			return loc.URLForPDF, nil
		}
	}
	return "", nil
}

// ScanLandingPage resolves the DOI landing page and scans its anchors
// for a PDF link. Relative links resolve against the final URL after
// redirects. Returns the PDF URL (possibly empty) and the landing page
// URL for use as the Referer.
func ScanLandingPage(ctx context.Context, client *http.Client, doi, userAgent string) (pdfURL, landingURL string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doiBase+doi, nil)
	if err != nil {
		return "", "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("resolving doi.org/%s: %w", doi, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("landing page returned HTTP %d", resp.StatusCode)
	}
	final := resp.Request.URL

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("parsing landing page: %w", err)
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		lower := strings.ToLower(href)
		if !strings.HasSuffix(lower, ".pdf") && !strings.Contains(lower, "/pdf") {
			return true
		}
		ref, parseErr := url.Parse(href)
		if parseErr != nil {
			return true
		}
		pdfURL = final.ResolveReference(ref).String()
		return false
	})
	return pdfURL, final.String(), nil
}

// RefererFor derives the article landing page for publishers that check
// the Referer header on PDF requests. Returns "" when no rule applies.
func RefererFor(pdfURL, doi string) string {
	u, err := url.Parse(pdfURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)

	switch {
	case strings.Contains(host, "academic.oup.com"):
		if i := strings.Index(pdfURL, "/advance-article-pdf/"); i >= 0 && doi != "" {
			return pdfURL[:i] + "/advance-article/doi/" + doi
		}
		if i := strings.Index(pdfURL, "/article-pdf/"); i >= 0 && doi != "" {
			return pdfURL[:i] + "/article/doi/" + doi
		}
	case strings.Contains(host, "mdpi.com"):
		return strings.TrimSuffix(pdfURL, "/pdf")
	case strings.Contains(host, "iopscience.iop.org"):
		if strings.Contains(pdfURL, "/article/") {
			return strings.TrimSuffix(pdfURL, "/pdf")
		}
	case strings.Contains(host, "tandfonline.com"):
		return strings.Replace(pdfURL, "/doi/pdf/", "/doi/full/", 1)
	case strings.Contains(host, "biorxiv.org"):
		return strings.TrimSuffix(pdfURL, ".full.pdf")
	case strings.Contains(host, "arxiv.org"):
		return strings.TrimSuffix(strings.Replace(pdfURL, "/pdf/", "/abs/", 1), ".pdf")
	}
	return ""
}

// SafeFilename converts a title into a filesystem-safe stem: whitespace
// collapses to underscores, path-hostile characters drop out, length is
// capped.
func SafeFilename(title string) string {
	joined := strings.Join(strings.Fields(title), "_")

	var b strings.Builder
	for _, r := range joined {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '_' || r == '-' || r == '.':
			b.WriteRune(r)
		}
	}

	s := b.String()
	if runes := []rune(s); len(runes) > maxFilenameLen {
		s = string(runes[:maxFilenameLen])
	}
	if s == "" {
		return "article"
	}
	return s
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backend

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/citation-engine/pkg/types"
)

// scholarBase is the Google Scholar endpoint. Declared as a var so tests
// can substitute an httptest server.
var scholarBase = "https://scholar.google.com"

// scholarPageSize is the number of results Scholar serves per page.
const scholarPageSize = 10

// scholarUserAgent mimics a desktop browser; Scholar refuses obvious
// non-browser agents outright.
const scholarUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"

// GoogleScholarClient scrapes Google Scholar result pages (R2.1). The
// page structure is external and uncontrolled, so every failure is
// classified: Blocked for CAPTCHA interstitials and access denials,
// Transient for network trouble and server errors, NotFound for empty
// result pages. Proxy selection lives in the HTTP client's transport
// and never changes this contract.
type GoogleScholarClient struct {
	Client    *http.Client
	UserAgent string
}

// Source returns the data-source tag for scraped records.
func (c *GoogleScholarClient) Source() types.Source { return types.SourceGoogleScholar }

// Search fetches the first result page for the query and returns the
// top organic result.
func (c *GoogleScholarClient) Search(ctx context.Context, query types.LookupQuery) (types.ArticleRecord, error) {
	params := url.Values{
		"hl": {"en"},
		"q":  {buildScholarQuery(query)},
	}
	if query.Year != "" {
		params.Set("as_ylo", query.Year)
		params.Set("as_yhi", query.Year)
	}

	doc, err := c.fetchPage(ctx, scholarBase+"/scholar?"+params.Encode(), query)
	if err != nil {
		return types.ArticleRecord{}, err
	}

	results := parseScholarResults(doc)
	if len(results) == 0 {
		return types.ArticleRecord{}, notFoundf(types.SourceGoogleScholar, "no results for title %q", query.Title)
	}
	return results[0], nil
}

// Citations pages through the cites= listing for the article's cluster
// ID until query.MaxResults records are collected or the listing ends.
// An article with no Cited by link has nothing to page through.
func (c *GoogleScholarClient) Citations(ctx context.Context, article types.ArticleRecord, query types.LookupQuery) ([]types.ArticleRecord, error) {
	if article.ScholarID == "" {
		return nil, nil
	}

	var citing []types.ArticleRecord
	for start := 0; len(citing) < query.MaxResults; start += scholarPageSize {
		params := url.Values{
			"hl":    {"en"},
			"cites": {article.ScholarID},
		}
		if start > 0 {
			params.Set("start", strconv.Itoa(start))
		}

		doc, err := c.fetchPage(ctx, scholarBase+"/scholar?"+params.Encode(), query)
		if err != nil {
			return nil, err
		}

		page := parseScholarResults(doc)
		if len(page) == 0 {
			break
		}
		citing = append(citing, page...)
		if len(page) < scholarPageSize {
			break
		}
	}

	if len(citing) > query.MaxResults {
		citing = citing[:query.MaxResults]
	}
	return citing, nil
}

// fetchPage performs one scraper request, honoring the politeness delay,
// and classifies the outcome.
func (c *GoogleScholarClient) fetchPage(ctx context.Context, pageURL string, query types.LookupQuery) (*goquery.Document, error) {
	if err := politeDelay(ctx, query.Delay); err != nil {
		return nil, transientf(types.SourceGoogleScholar, "interrupted before request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, transientf(types.SourceGoogleScholar, "creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept-Language", "en")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, transientf(types.SourceGoogleScholar, "scholar request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, blockedf(types.SourceGoogleScholar, "scholar returned HTTP %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, transientf(types.SourceGoogleScholar, "scholar returned HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, transientf(types.SourceGoogleScholar, "parsing scholar page: %w", err)
	}
	if isCaptchaPage(doc) {
		return nil, blockedf(types.SourceGoogleScholar, "scholar served a CAPTCHA challenge")
	}
	return doc, nil
}

func (c *GoogleScholarClient) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return scholarUserAgent
}

// buildScholarQuery combines the title with the optional author filter
// using Scholar's author: operator.
func buildScholarQuery(q types.LookupQuery) string {
	s := q.Title
	if q.Author != "" {
		s += ` author:"` + q.Author + `"`
	}
	return s
}

// citesPattern extracts the cluster ID from a "Cited by N" link
// (/scholar?cites=1234567890).
var citesPattern = regexp.MustCompile(`[?&]cites=(\d+)`)

// citedByPattern extracts the count from "Cited by 107" link text.
var citedByPattern = regexp.MustCompile(`Cited by (\d+)`)

// yearPattern finds a plausible publication year in the result byline.
var yearPattern = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)

// parseScholarResults extracts one ArticleRecord per organic result row.
// Rows without a title (ads, notices) are skipped.
func parseScholarResults(doc *goquery.Document) []types.ArticleRecord {
	var records []types.ArticleRecord

	doc.Find("div.gs_r.gs_or").Each(func(_ int, row *goquery.Selection) {
		title := cleanScholarTitle(row.Find(".gs_rt").First())
		if title == "" {
			return
		}

		href, _ := row.Find(".gs_rt a").First().Attr("href")
		authors, venue, year := parseScholarByline(strings.TrimSpace(row.Find(".gs_a").First().Text()))
		count, citesID := parseCitedBy(row)

		id := citesID
		if id == "" {
			id, _ = row.Attr("data-cid")
		}

		records = append(records, types.ArticleRecord{
			Title:          title,
			Authors:        authors,
			Year:           year,
			Venue:          venue,
			Abstract:       strings.TrimSpace(row.Find(".gs_rs").First().Text()),
			URL:            href,
			CitationsCount: count,
			ScholarID:      id,
		})
	})

	return records
}

// cleanScholarTitle returns the title text without the leading
// "[PDF]"/"[CITATION]"-style format markers Scholar prepends.
func cleanScholarTitle(sel *goquery.Selection) string {
	if a := sel.Find("a").First(); a.Length() > 0 {
		return strings.TrimSpace(a.Text())
	}
	title := strings.TrimSpace(sel.Text())
	for strings.HasPrefix(title, "[") {
		end := strings.Index(title, "]")
		if end < 0 {
			break
		}
		title = strings.TrimSpace(title[end+1:])
	}
	return title
}

// parseScholarByline splits the .gs_a line, which Scholar renders as
// "authors - venue, year - publisher.domain".
func parseScholarByline(byline string) (authors, venue, year string) {
	if byline == "" {
		return "", "", ""
	}
	parts := strings.Split(byline, " - ")
	authors = strings.TrimSpace(parts[0])

	if len(parts) > 1 {
		mid := strings.TrimSpace(parts[1])
		if m := yearPattern.FindString(mid); m != "" {
			year = m
			mid = strings.TrimSpace(strings.TrimSuffix(mid, m))
		}
		venue = strings.TrimSpace(strings.TrimSuffix(mid, ","))
	}
	return authors, venue, year
}

// parseCitedBy pulls the citation count and cluster ID from a row's
// footer links.
func parseCitedBy(row *goquery.Selection) (count int, citesID string) {
	row.Find(".gs_fl a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		m := citesPattern.FindStringSubmatch(href)
		if m == nil {
			return true
		}
		citesID = m[1]
		if cm := citedByPattern.FindStringSubmatch(a.Text()); cm != nil {
			count, _ = strconv.Atoi(cm[1])
		}
		return false
	})
	return count, citesID
}

// isCaptchaPage detects the interstitial Scholar serves when it decides
// the client is a bot. The page carries a gs_captcha form or an
// "unusual traffic" notice.
func isCaptchaPage(doc *goquery.Document) bool {
	if doc.Find("#gs_captcha_f, #gs_captcha_ccl, form#captcha-form").Length() > 0 {
		return true
	}
	text := doc.Find("body").Text()
	return strings.Contains(text, "unusual traffic") || strings.Contains(text, "not a robot")
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/citation-engine/pkg/types"
)

// semanticAPIBase is the Semantic Scholar Graph API endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1"

// semanticPageLimit caps how many citations one API call may return.
const semanticPageLimit = 100

// semanticFields lists the paper fields requested on every call.
const semanticFields = "title,authors,year,venue,abstract,url,citationCount,externalIds"

// SemanticScholarClient queries the Semantic Scholar Graph API (R2.2).
// Calls are paced by a limiter sized to the service tier: the public
// tier allows roughly one request per second, authenticated keys ten.
type SemanticScholarClient struct {
	Client  *http.Client
	APIKey  string
	Limiter *rate.Limiter
}

// NewSemanticScholarClient builds a client whose limiter matches the
// tier implied by the key.
func NewSemanticScholarClient(client *http.Client, apiKey string) *SemanticScholarClient {
	limit := rate.Every(time.Second)
	if apiKey != "" {
		limit = rate.Every(100 * time.Millisecond)
	}
	return &SemanticScholarClient{
		Client:  client,
		APIKey:  apiKey,
		Limiter: rate.NewLimiter(limit, 1),
	}
}

// Source returns the data-source tag for API records.
func (c *SemanticScholarClient) Source() types.Source { return types.SourceSemanticScholar }

// Search resolves the query title to a paper. The relevance search can
// rank a differently-titled paper first, so an exact title match (after
// normalization) among the top results wins over rank order.
func (c *SemanticScholarClient) Search(ctx context.Context, query types.LookupQuery) (types.ArticleRecord, error) {
	params := url.Values{
		"query":  {query.Title},
		"limit":  {"5"},
		"fields": {semanticFields},
	}

	var out semanticSearchResponse
	if err := c.getJSON(ctx, semanticAPIBase+"/paper/search?"+params.Encode(), query, &out); err != nil {
		return types.ArticleRecord{}, err
	}
	if len(out.Data) == 0 {
		return types.ArticleRecord{}, notFoundf(types.SourceSemanticScholar, "no papers match title %q", query.Title)
	}

	pick := out.Data[0]
	want := NormalizeTitle(query.Title)
	for _, p := range out.Data {
		if NormalizeTitle(p.Title) == want {
			pick = p
			break
		}
	}
	return pick.record(), nil
}

// Citations pages through the paper's citations with offset/limit until
// query.MaxResults records are collected or the API reports no next
// page.
func (c *SemanticScholarClient) Citations(ctx context.Context, article types.ArticleRecord, query types.LookupQuery) ([]types.ArticleRecord, error) {
	if article.ScholarID == "" {
		return nil, nil
	}

	var citing []types.ArticleRecord
	offset := 0
	for len(citing) < query.MaxResults {
		limit := semanticPageLimit
		if remaining := query.MaxResults - len(citing); remaining < limit {
			limit = remaining
		}
		params := url.Values{
			"fields": {semanticFields},
			"offset": {strconv.Itoa(offset)},
			"limit":  {strconv.Itoa(limit)},
		}

		var page semanticCitationsResponse
		pageURL := fmt.Sprintf("%s/paper/%s/citations?%s", semanticAPIBase, article.ScholarID, params.Encode())
		if err := c.getJSON(ctx, pageURL, query, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Data {
			citing = append(citing, item.CitingPaper.record())
		}
		if page.Next == 0 || len(page.Data) == 0 {
			break
		}
		offset = page.Next
	}

	if len(citing) > query.MaxResults {
		citing = citing[:query.MaxResults]
	}
	return citing, nil
}

// getJSON performs one paced API call and decodes the body into out.
// 404 means the paper or its citations do not exist; every other
// non-200 status, including 429 and auth errors, is worth retrying.
func (c *SemanticScholarClient) getJSON(ctx context.Context, reqURL string, query types.LookupQuery, out any) error {
	if err := politeDelay(ctx, query.Delay); err != nil {
		return transientf(types.SourceSemanticScholar, "interrupted before request: %w", err)
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return transientf(types.SourceSemanticScholar, "rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return transientf(types.SourceSemanticScholar, "creating request: %w", err)
	}
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return transientf(types.SourceSemanticScholar, "semantic scholar request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return notFoundf(types.SourceSemanticScholar, "semantic scholar returned HTTP 404")
	case resp.StatusCode != http.StatusOK:
		return transientf(types.SourceSemanticScholar, "semantic scholar returned HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transientf(types.SourceSemanticScholar, "decoding response: %w", err)
	}
	return nil
}

// semanticPaper mirrors the Graph API paper shape for the requested
// fields.
type semanticPaper struct {
	PaperID       string           `json:"paperId"`
	Title         string           `json:"title"`
	Abstract      string           `json:"abstract"`
	Venue         string           `json:"venue"`
	Year          int              `json:"year"`
	URL           string           `json:"url"`
	CitationCount int              `json:"citationCount"`
	ExternalIDs   map[string]any   `json:"externalIds"`
	Authors       []semanticAuthor `json:"authors"`
}

type semanticAuthor struct {
	Name string `json:"name"`
}

type semanticSearchResponse struct {
	Total int             `json:"total"`
	Data  []semanticPaper `json:"data"`
}

type semanticCitationsResponse struct {
	Offset int                `json:"offset"`
	Next   int                `json:"next"`
	Data   []semanticCitation `json:"data"`
}

type semanticCitation struct {
	CitingPaper semanticPaper `json:"citingPaper"`
}

// record converts an API paper into the engine's record shape. Authors
// collapse to one comma-separated string and the year renders as text,
// matching what the scraper extracts from result bylines.
func (p semanticPaper) record() types.ArticleRecord {
	names := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}

	year := ""
	if p.Year > 0 {
		year = strconv.Itoa(p.Year)
	}

	recordURL := p.URL
	if recordURL == "" {
		if doi, ok := p.ExternalIDs["DOI"].(string); ok && doi != "" {
			recordURL = "https://doi.org/" + doi
		}
	}

	return types.ArticleRecord{
		Title:          p.Title,
		Authors:        strings.Join(names, ", "),
		Year:           year,
		Venue:          p.Venue,
		Abstract:       p.Abstract,
		URL:            recordURL,
		CitationsCount: p.CitationCount,
		ScholarID:      p.PaperID,
	}
}

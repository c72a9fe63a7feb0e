// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the citation-engine pipeline.
// Implements: prd001-lookup (ArticleRecord, CitationReport, R4.1-R4.5);
//
//	prd002-pdf-acquisition (AcquireConfig);
//	prd003-history (HistoryConfig).
//
// See docs/ARCHITECTURE.md § Data Structures.
package types

// Source identifies the data source a record or report came from.
// Exactly one source is stamped onto a report, even when fallback
// attempted more than one backend.
type Source string

const (
	// SourceGoogleScholar is the scraping-based Google Scholar backend.
	SourceGoogleScholar Source = "google_scholar"

	// SourceSemanticScholar is the Semantic Scholar Graph API backend.
	SourceSemanticScholar Source = "semantic_scholar"
)

// ArticleRecord is the canonical shape for one article, produced by a
// backend and consumed by the report merger. Records are immutable once
// constructed. Per prd001-lookup R4.1, the identity key is ScholarID when
// present, otherwise the (Title, Authors) pair.
type ArticleRecord struct {
	// Title is the article title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Authors is the author list as a single source-formatted string
	// (e.g. "A Vaswani, N Shazeer" or "Ashish Vaswani, Noam Shazeer").
	Authors string `json:"authors" yaml:"authors"`

	// Year is the publication year, empty when the source omits it.
	Year string `json:"year,omitempty" yaml:"year,omitempty"`

	// Venue is the journal, conference, or repository name.
	Venue string `json:"venue,omitempty" yaml:"venue,omitempty"`

	// Abstract is the abstract or snippet text.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// URL is the article landing page.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// CitationsCount is the source-reported number of citations to this
	// article.
	CitationsCount int `json:"citations_count" yaml:"citations_count"`

	// ScholarID is the source-native identifier: the Google Scholar
	// cites/cluster ID or the Semantic Scholar paper ID.
	ScholarID string `json:"scholar_id" yaml:"scholar_id"`
}

// CitationReport is the terminal artifact of one lookup: the input
// article plus the articles that cite it. Written once, never mutated.
// Per prd001-lookup R4.3-R4.5.
type CitationReport struct {
	// InputArticle is the article the lookup resolved for the query title.
	InputArticle ArticleRecord `json:"input_article" yaml:"input_article"`

	// CitingArticles lists citing articles in source-returned order,
	// capped at the query's max results.
	CitingArticles []ArticleRecord `json:"citing_articles" yaml:"citing_articles"`

	// TotalCitationsFound equals len(CitingArticles).
	TotalCitationsFound int `json:"total_citations_found" yaml:"total_citations_found"`

	// TotalCitationsAvailable is the source-reported citation total,
	// never less than TotalCitationsFound.
	TotalCitationsAvailable int `json:"total_citations_available" yaml:"total_citations_available"`

	// DataSource is the single backend that produced every record above.
	DataSource Source `json:"data_source" yaml:"data_source"`
}

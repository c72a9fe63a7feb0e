package lookup

import (
	"io"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/citation-engine/internal/backend"
	"github.com/pdiddy/citation-engine/pkg/types"
)

// CSLItem represents a bibliographic entry in CSL (Citation Style Language)
// format. The field names and structure follow the CSL-YAML schema so that
// output is consumable by Pandoc and reference managers.
type CSLItem struct {
	ID             string    `yaml:"id"`
	Type           string    `yaml:"type"`
	Title          string    `yaml:"title"`
	Author         []CSLName `yaml:"author,omitempty"`
	Abstract       string    `yaml:"abstract,omitempty"`
	Issued         *CSLDate  `yaml:"issued,omitempty"`
	ContainerTitle string    `yaml:"container-title,omitempty"`
	URL            string    `yaml:"URL,omitempty"`
	DOI            string    `yaml:"DOI,omitempty"`
}

// CSLName represents a person's name in CSL format.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate represents a date in CSL format using date-parts.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// FormatCSL writes the report's citing articles as a CSL-YAML list to w.
func FormatCSL(report types.CitationReport, w io.Writer) error {
	items := make([]CSLItem, len(report.CitingArticles))
	for i, rec := range report.CitingArticles {
		items[i] = toCSLItem(rec)
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

// toCSLItem converts an article record to a CSLItem.
func toCSLItem(rec types.ArticleRecord) CSLItem {
	id := rec.ScholarID
	if id == "" {
		id = backend.NormalizeTitle(rec.Title)
	}

	item := CSLItem{
		ID:             id,
		Type:           "article-journal",
		Title:          rec.Title,
		Abstract:       rec.Abstract,
		ContainerTitle: rec.Venue,
		URL:            rec.URL,
	}

	for _, name := range strings.Split(rec.Authors, ",") {
		if name = strings.TrimSpace(name); name != "" {
			item.Author = append(item.Author, parseAuthorName(name))
		}
	}

	if year, err := strconv.Atoi(rec.Year); err == nil {
		item.Issued = &CSLDate{DateParts: [][]int{{year}}}
	}

	// Set DOI when the record URL is a DOI link.
	if doi, ok := strings.CutPrefix(rec.URL, "https://doi.org/"); ok && doi != "" {
		item.DOI = doi
	}

	return item
}

// parseAuthorName splits a full name into CSL family/given parts on the
// last space. Names without a space go into the literal field.
func parseAuthorName(name string) CSLName {
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{
		Given:  name[:idx],
		Family: name[idx+1:],
	}
}

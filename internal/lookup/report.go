// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lookup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdiddy/citation-engine/internal/backend"
	"github.com/pdiddy/citation-engine/pkg/types"
)

// maxFilenameTitle caps how much of the normalized title lands in the
// default output filename.
const maxFilenameTitle = 50

// BuildReport assembles the final report from one backend's results.
// Citing articles are deduplicated by normalized title and capped at
// maxResults; the available count never reads lower than what was
// actually collected.
func BuildReport(article types.ArticleRecord, citing []types.ArticleRecord, source types.Source, maxResults int) types.CitationReport {
	seen := make(map[string]bool, len(citing))
	kept := make([]types.ArticleRecord, 0, len(citing))
	for _, c := range citing {
		key := backend.NormalizeTitle(c.Title)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, c)
		if maxResults > 0 && len(kept) == maxResults {
			break
		}
	}

	available := article.CitationsCount
	if len(kept) > available {
		available = len(kept)
	}

	return types.CitationReport{
		InputArticle:            article,
		CitingArticles:          kept,
		TotalCitationsFound:     len(kept),
		TotalCitationsAvailable: available,
		DataSource:              source,
	}
}

// DefaultOutputPath derives the report filename from the input title:
// citations_<normalized-title>.json.
func DefaultOutputPath(title string) string {
	norm := backend.NormalizeTitle(title)
	if runes := []rune(norm); len(runes) > maxFilenameTitle {
		norm = string(runes[:maxFilenameTitle])
	}
	if norm == "" {
		norm = "untitled"
	}
	return fmt.Sprintf("citations_%s.json", norm)
}

// WriteReport writes the report as indented JSON. The write goes
// through a temp file and rename so a failure never leaves a truncated
// report behind.
func WriteReport(report types.CitationReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// ReadReport loads a report previously written by WriteReport.
func ReadReport(path string) (types.CitationReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.CitationReport{}, fmt.Errorf("reading report: %w", err)
	}
	var report types.CitationReport
	if err := json.Unmarshal(data, &report); err != nil {
		return types.CitationReport{}, fmt.Errorf("parsing report %s: %w", path, err)
	}
	return report, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".citations-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("moving output into place: %w", err)
	}
	return nil
}

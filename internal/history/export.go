// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// Export holds everything in the history database (R4.3).
type Export struct {
	Runs      []Run      `json:"runs" yaml:"runs"`
	Downloads []Download `json:"downloads" yaml:"downloads"`
}

const exportLimit = 100000

// ExportYAML writes the full history to dir/export.yaml and returns the
// path (R4.1).
func (s *Store) ExportYAML(ctx context.Context) (string, error) {
	export, err := s.exportData(ctx)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, "export.yaml")
	data, err := yaml.Marshal(export)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ExportJSON writes the full history to dir/export.json and returns the
// path (R4.2).
func (s *Store) ExportJSON(ctx context.Context) (string, error) {
	export, err := s.exportData(ctx)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, "export.json")
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Store) exportData(ctx context.Context) (Export, error) {
	runs, err := s.ListRuns(ctx, ListOptions{Limit: exportLimit})
	if err != nil {
		return Export{}, fmt.Errorf("querying runs for export: %w", err)
	}
	downloads, err := s.ListDownloads(ctx, exportLimit)
	if err != nil {
		return Export{}, fmt.Errorf("querying downloads for export: %w", err)
	}
	return Export{Runs: runs, Downloads: downloads}, nil
}

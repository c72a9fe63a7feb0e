// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/citation-engine/internal/history"
	"github.com/pdiddy/citation-engine/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded lookup runs and downloads",
	Long: `History reads the local SQLite database where every lookup run and PDF
download attempt is recorded. Use subcommands to list runs, list download
attempts, or export everything to YAML or JSON.`,
}

// --- list subcommand ---

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded lookup runs",
	Long: `List shows recorded lookup runs, newest first. Filter by a title
substring with --title.`,
	RunE: runHistoryList,
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	title, _ := cmd.Flags().GetString("title")
	limit, _ := cmd.Flags().GetInt("limit")

	runs, err := store.ListRuns(context.Background(), history.ListOptions{
		TitleContains: title,
		Limit:         limit,
	})
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-16s  %-40s  %-16s  %6s  %9s  %s\n",
		"When", "Title", "Source", "Found", "Available", "Output")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))

	for _, r := range runs {
		title := r.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-16s  %-40s  %-16s  %6d  %9d  %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"), title, r.DataSource,
			r.CitationsFound, r.CitationsAvailable, r.OutputPath)
	}

	fmt.Fprintf(os.Stdout, "\n%d runs\n", len(runs))
	return nil
}

// --- downloads subcommand ---

var historyDownloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "List recorded PDF download attempts",
	RunE:  runHistoryDownloads,
}

func runHistoryDownloads(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	downloads, err := store.ListDownloads(context.Background(), limit)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(downloads)
	}

	if len(downloads) == 0 {
		fmt.Println("No downloads recorded.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-30s  %-10s  %-35s  %s\n", "Key", "Status", "Path", "Reason")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))

	for _, dl := range downloads {
		key := dl.Key
		if len(key) > 30 {
			key = key[:27] + "..."
		}
		status := "failed"
		if dl.Downloaded {
			status = "downloaded"
		}
		path := dl.Path
		if len(path) > 35 {
			path = path[:32] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-30s  %-10s  %-35s  %s\n", key, status, path, dl.FailReason)
	}

	fmt.Fprintf(os.Stdout, "\n%d downloads\n", len(downloads))
	return nil
}

// --- export subcommand ---

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the history database to YAML or JSON",
	RunE:  runHistoryExport,
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	var path string
	switch format {
	case "yaml", "":
		path, err = store.ExportYAML(context.Background())
	case "json":
		path, err = store.ExportJSON(context.Background())
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Exported to %s\n", path)
	return nil
}

// --- shared helpers ---

func openHistory(cmd *cobra.Command) (*history.Store, error) {
	dir, _ := cmd.Flags().GetString("history-dir")
	if dir == "" {
		dir = "history"
	}
	maxResults, _ := cmd.Flags().GetInt("max-results")

	return history.NewStore(types.HistoryConfig{Dir: dir, MaxResults: maxResults})
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	historyCmd.PersistentFlags().String("history-dir", "history", "directory containing the history database")
	historyCmd.PersistentFlags().Int("max-results", 20, "maximum number of rows to list")

	// List flags.
	historyListCmd.Flags().String("title", "", "filter runs by title substring")
	historyListCmd.Flags().Int("limit", 0, "maximum runs to list (0 = use default)")
	historyListCmd.Flags().Bool("json", false, "output runs as JSON")

	// Downloads flags.
	historyDownloadsCmd.Flags().Int("limit", 0, "maximum downloads to list (0 = use default)")
	historyDownloadsCmd.Flags().Bool("json", false, "output downloads as JSON")

	// Export flags.
	historyExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	// Wire subcommands.
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyDownloadsCmd)
	historyCmd.AddCommand(historyExportCmd)

	rootCmd.AddCommand(historyCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/gandalf/internal/discovery"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
)

var sourcesJSON bool

// sourcesCmd lists discovered conversation stores without starting the
// server. Read-only; useful for checking what gandalf can see.
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List discovered conversation stores",
	Long: `List the conversation stores gandalf discovers on this machine.

Examples:
  # Show stores as a table
  gandalf sources

  # Show stores as JSON
  gandalf sources --json

  # Probe a pinned Cursor location
  GANDALF_SOURCES_CURSOR_PATH=/data/cursor gandalf sources`,
	RunE: runSources,
}

func init() {
	sourcesCmd.Flags().BoolVar(&sourcesJSON, "json", false, "output as JSON")
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := initLogger(cfg, nil)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = log.Sync()
	}()

	locator := discovery.NewLocator(cfg.Sources, log)
	stores := locator.DiscoverAll(cmd.Context())

	out, err := formatStores(stores, sourcesJSON)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// formatStores renders discovery results as a table or a JSON document.
func formatStores(stores map[schema.SourceTool][]discovery.Store, asJSON bool) (string, error) {
	if asJSON {
		doc := struct {
			Sources map[schema.SourceTool][]discovery.Store `json:"sources"`
		}{Sources: stores}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal sources: %w", err)
		}
		return string(data) + "\n", nil
	}

	total := 0
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tKIND\tPATH\tWORKSPACE")
	for _, tool := range schema.AllTools() {
		for _, st := range stores[tool] {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.Tool, st.Kind, st.Path, st.WorkspaceID)
			total++
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("format sources: %w", err)
	}
	if total == 0 {
		return "no conversation stores found\n", nil
	}
	return b.String(), nil
}

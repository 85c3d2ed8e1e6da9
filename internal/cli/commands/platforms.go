package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/lspboot/internal/artifact"
	"github.com/leapstack-labs/lspboot/internal/cli/config"
	"github.com/leapstack-labs/lspboot/internal/platform"
)

// PlatformRow describes the artifact for one supported platform.
type PlatformRow struct {
	Arch     string `json:"arch" yaml:"arch"`
	OS       string `json:"os" yaml:"os"`
	Artifact string `json:"artifact" yaml:"artifact"`
	URL      string `json:"url" yaml:"url"`
	Current  bool   `json:"current" yaml:"current"`
}

// NewPlatformsCommand creates the platforms command.
func NewPlatformsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List supported platforms and their release artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.GetConfig(cmd.Context())
			current, err := platform.ResolveFrom(platform.ProcessEnvironment{})
			if err != nil {
				config.GetLogger(cmd.Context()).Warn("current platform is not supported", "error", err)
			}
			return writePlatforms(cmd.OutOrStdout(), PlatformRows(cfg, current), cfg.OutputFormat)
		},
	}
}

// PlatformRows lists every supported platform for the configured server.
func PlatformRows(cfg *config.Config, current platform.Key) []PlatformRow {
	layout := Layout(cfg)
	keys := platform.Supported()
	rows := make([]PlatformRow, 0, len(keys))
	for _, key := range keys {
		d := artifact.Describe(layout, key)
		rows = append(rows, PlatformRow{
			Arch:     string(key.Arch),
			OS:       string(key.OS),
			Artifact: d.Name,
			URL:      d.URL,
			Current:  key == current,
		})
	}
	return rows
}

func writePlatforms(w io.Writer, rows []PlatformRow, format string) error {
	switch format {
	case config.OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case config.OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(rows)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"", "Arch", "OS", "Artifact"})
	for _, r := range rows {
		marker := ""
		if r.Current {
			marker = "*"
		}
		t.AppendRow(table.Row{marker, r.Arch, r.OS, r.Artifact})
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d platforms)\n", len(rows))
	return nil
}

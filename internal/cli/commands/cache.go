package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/lspboot/internal/artifact"
	"github.com/leapstack-labs/lspboot/internal/cli/config"
	"github.com/leapstack-labs/lspboot/internal/ledger"
	"github.com/leapstack-labs/lspboot/internal/platform"
)

// Cache entry states.
const (
	StatePresent   = "present"
	StateMissing   = "missing"
	StateUntracked = "untracked"
)

// CacheEntry is one installed server as reported by cache list.
type CacheEntry struct {
	Name        string    `json:"name" yaml:"name"`
	Tag         string    `json:"tag,omitempty" yaml:"tag,omitempty"`
	Path        string    `json:"path" yaml:"path"`
	Size        int64     `json:"size" yaml:"size"`
	SHA256      string    `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	InstalledAt time.Time `json:"installed_at,omitzero" yaml:"installed_at,omitempty"`
	State       string    `json:"state" yaml:"state"`
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clean the server cache",
	}
	cmd.AddCommand(newCacheListCommand())
	cmd.AddCommand(newCacheCleanCommand())
	return cmd
}

func newCacheListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed language servers",
		Long: `List the servers recorded in the install ledger and whether each binary is
still present. Binaries for the configured server that the ledger does not
know about are listed as untracked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.GetConfig(cmd.Context())
			cmdCtx, cleanup := NewCommandContext(cmd, platform.ProcessEnvironment{})
			defer cleanup()

			entries, err := CacheEntries(cfg, cmdCtx.Ledger())
			if err != nil {
				return err
			}
			return writeEntries(cmd.OutOrStdout(), entries, cfg.OutputFormat)
		},
	}
}

// CacheEntries merges the ledger with the binaries on disk. store may be nil.
func CacheEntries(cfg *config.Config, store *ledger.Store) ([]CacheEntry, error) {
	var entries []CacheEntry
	seen := make(map[string]bool)

	if store != nil {
		installs, err := store.List()
		if err != nil {
			return nil, err
		}
		for _, in := range installs {
			state := StateMissing
			if artifact.Exists(in.Path) {
				state = StatePresent
			}
			entries = append(entries, CacheEntry{
				Name:        in.Name,
				Tag:         in.Tag,
				Path:        in.Path,
				Size:        in.Size,
				SHA256:      in.SHA256,
				InstalledAt: in.InstalledAt,
				State:       state,
			})
			seen[in.Path] = true
		}
	}

	layout := Layout(cfg)
	for _, key := range platform.Supported() {
		d := artifact.Describe(layout, key)
		if seen[d.CachePath] {
			continue
		}
		info, err := os.Stat(d.CachePath)
		if err != nil {
			continue
		}
		entries = append(entries, CacheEntry{
			Name:  d.Name,
			Path:  d.CachePath,
			Size:  info.Size(),
			State: StateUntracked,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func writeEntries(w io.Writer, entries []CacheEntry, format string) error {
	if entries == nil {
		entries = []CacheEntry{}
	}
	switch format {
	case config.OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case config.OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No language servers installed.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Tag", "Size", "Installed", "State"})
	for _, e := range entries {
		installed := ""
		if !e.InstalledAt.IsZero() {
			installed = humanize.Time(e.InstalledAt)
		}
		t.AppendRow(table.Row{e.Name, e.Tag, humanize.Bytes(uint64(e.Size)), installed, e.State})
	}
	t.Render()
	return nil
}

// CleanOptions holds options for the cache clean command.
type CleanOptions struct {
	All bool
}

func newCacheCleanCommand() *cobra.Command {
	opts := &CleanOptions{}

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove leftover downloads, or everything with --all",
		Long: `Remove temporary downloads and staging files left behind by interrupted
installs. With --all, also remove every installed binary and its ledger entry.

Do not run this while an editor is installing a server into the same cache.`,
		Example: `  lspboot cache clean
  lspboot cache clean --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup := NewCommandContext(cmd, platform.ProcessEnvironment{})
			defer cleanup()

			removed, err := CleanCache(cmdCtx.Cfg, cmdCtx.Ledger(), opts.All)
			for _, p := range removed {
				cmdCtx.Logger.Info("removed", "path", p)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d file(s) from %s\n", len(removed), cmdCtx.Cfg.CacheDir)
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.All, "all", false, "Also remove installed servers")

	return cmd
}

// CleanCache sweeps leftovers from the cache directory and, when all is set,
// removes installed binaries and their ledger rows. store may be nil.
func CleanCache(cfg *config.Config, store *ledger.Store, all bool) ([]string, error) {
	removed, err := artifact.Sweep(cfg.CacheDir)
	if err != nil || !all {
		return removed, err
	}

	entries, err := CacheEntries(cfg, store)
	if err != nil {
		return removed, err
	}
	for _, e := range entries {
		if err := os.Remove(e.Path); err == nil {
			removed = append(removed, e.Path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", e.Path, err)
		}
		if store != nil && e.State != StateUntracked {
			if err := store.Delete(e.Name); err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}

package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/lspboot/internal/bootstrap"
	"github.com/leapstack-labs/lspboot/internal/cli/config"
	"github.com/leapstack-labs/lspboot/internal/hostcap"
)

// ResolveOptions holds options for the resolve command.
type ResolveOptions struct {
	Platform   PlatformFlags
	Override   string
	Options    string
	LanguageID string
	Pattern    string
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand() *cobra.Command {
	opts := &ResolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the language server once and print its launch descriptor",
		Long: `Run the same resolution the initialize handshake runs and print the result.

The server is taken from --server-path when given, otherwise from the cache,
otherwise it is downloaded and installed.`,
		Example: `  # Resolve for the current machine
  lspboot resolve

  # Resolve for another platform and print JSON
  lspboot resolve --arch aarch64 --os macos -o json

  # Use an installed server
  lspboot resolve --server-path /usr/local/bin/rust-analyzer`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runResolve(cmd, opts)
		},
	}

	opts.Platform.register(cmd)
	cmd.Flags().StringVar(&opts.Override, "server-path", "", "Explicit server executable; skips download")
	cmd.Flags().StringVar(&opts.Options, "options", "", "JSON passed through to the server as options")
	cmd.Flags().StringVar(&opts.LanguageID, "language", "", "Language id for the document filter")
	cmd.Flags().StringVar(&opts.Pattern, "glob", "", "Path glob for the document filter")

	return cmd
}

// Request builds the bootstrap request from the flags.
func (o *ResolveOptions) Request() (bootstrap.Request, error) {
	req := bootstrap.Request{
		ServerPath: strings.TrimSpace(o.Override),
		LanguageID: o.LanguageID,
		Pattern:    o.Pattern,
	}
	if o.Options != "" {
		if !json.Valid([]byte(o.Options)) {
			return req, fmt.Errorf("--options is not valid JSON")
		}
		req.Options = json.RawMessage(o.Options)
	}
	return req, nil
}

func runResolve(cmd *cobra.Command, opts *ResolveOptions) error {
	req, err := opts.Request()
	if err != nil {
		return err
	}

	cmdCtx, cleanup := NewCommandContext(cmd, opts.Platform.Environment())
	defer cleanup()

	notifier := hostcap.LogNotifier{Logger: cmdCtx.Logger}
	desc, err := cmdCtx.Bootstrapper.Resolve(cmd.Context(), req, notifier)
	if err != nil {
		return withRemedy(err)
	}

	return writeDescriptor(cmd.OutOrStdout(), desc, cmdCtx.Cfg.OutputFormat)
}

func writeDescriptor(w io.Writer, desc *bootstrap.LaunchDescriptor, format string) error {
	switch format {
	case config.OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(desc)
	case config.OutputYAML:
		return writeYAML(w, desc)
	default:
		_, _ = fmt.Fprintf(w, "executable: %s (%s)\n", desc.Executable.Value, desc.Executable.Kind)
		if len(desc.Args) > 0 {
			_, _ = fmt.Fprintf(w, "args:       %s\n", strings.Join(desc.Args, " "))
		}
		for _, f := range desc.DocumentSelector {
			if f.Pattern != nil {
				_, _ = fmt.Fprintf(w, "documents:  %s (%s)\n", f.Language, *f.Pattern)
			} else {
				_, _ = fmt.Fprintf(w, "documents:  %s\n", f.Language)
			}
		}
		if len(desc.Options) > 0 && string(desc.Options) != "null" {
			_, _ = fmt.Fprintf(w, "options:    %s\n", desc.Options)
		}
		return nil
	}
}

// writeYAML renders desc through its JSON form so options keep their shape
// and key order.
func writeYAML(w io.Writer, desc *bootstrap.LaunchDescriptor) error {
	data, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	blockStyle(&doc)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(&doc)
}

// blockStyle drops the flow and quoting styles the JSON input carries. The
// encoder still quotes scalars whose tag would otherwise change.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// withRemedy appends the user-facing remedy to classified failures.
func withRemedy(err error) error {
	var be *bootstrap.Error
	if errors.As(err, &be) {
		if remedy := be.Remedy(); remedy != "" {
			return fmt.Errorf("%w\nHint: %s", err, remedy)
		}
	}
	return err
}

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/lspboot/internal/lsp"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var pf PlatformFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer the editor's initialize handshake over stdio",
		Long: `Start the handshake server for editor integration.

The server reads Content-Length framed JSON-RPC from stdin and writes
responses to stdout. It answers initialize with a launch descriptor for
the language server, downloading and installing it first if needed.
Every other request is rejected.`,
		Example: `  # Started by the editor host
  lspboot serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup := NewCommandContext(cmd, pf.Environment())
			defer cleanup()

			if isTerminal(os.Stdin) {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "lspboot serve expects JSON-RPC on stdin; it is normally started by an editor.")
			}

			server := lsp.NewServer(cmd.InOrStdin(), cmd.OutOrStdout(), cmdCtx.Bootstrapper, cmdCtx.Logger)
			return server.Run(cmd.Context())
		},
	}
	pf.register(cmd)

	return cmd
}

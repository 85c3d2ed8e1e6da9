package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/lspboot/internal/bootstrap"
	"github.com/leapstack-labs/lspboot/internal/hostcap"
)

// ExitError reports a child process that exited with a non-zero status.
// The CLI exits with the same code.
type ExitError struct {
	Code int
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("language server exited with code %d", e.Code)
}

// RunOptions holds options for the run command.
type RunOptions struct {
	Platform PlatformFlags
	Override string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run [-- server args...]",
		Short: "Resolve the language server and run it on this terminal's stdio",
		Long: `Resolve the language server like the initialize handshake does, then
start it with stdin, stdout and stderr inherited. SIGINT and SIGTERM are
forwarded to the server and lspboot exits with the server's status.

Arguments after -- are appended to the configured server.args.`,
		Example: `  # Run the configured server
  lspboot run

  # Run with extra arguments
  lspboot run -- --log-file /tmp/ra.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts, args)
		},
	}

	opts.Platform.register(cmd)
	cmd.Flags().StringVar(&opts.Override, "server-path", "", "Explicit server executable; skips download")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions, extra []string) error {
	cmdCtx, cleanup := NewCommandContext(cmd, opts.Platform.Environment())
	defer cleanup()

	req := bootstrap.Request{ServerPath: opts.Override}
	desc, err := cmdCtx.Bootstrapper.Resolve(cmd.Context(), req, hostcap.LogNotifier{Logger: cmdCtx.Logger})
	if err != nil {
		return withRemedy(err)
	}

	args := append(append([]string{}, desc.Args...), extra...)
	runner := &ProcessRunner{
		Stdin:  cmd.InOrStdin(),
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
		Logger: cmdCtx.Logger,
	}
	return runner.Run(desc.Executable.Path(), args)
}

// ProcessRunner starts the language server as a child process.
type ProcessRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Run starts path with args and blocks until it exits. SIGINT and SIGTERM
// are forwarded to the child. A non-zero exit is returned as *ExitError.
func (r *ProcessRunner) Run(path string, args []string) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cmd := exec.Command(path, args...)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", path, err)
	}
	logger.Info("language server started", "pid", cmd.Process.Pid, "path", path)

	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				logger.Info("forwarding signal to language server", "signal", sig)
				if err := cmd.Process.Signal(sig); err != nil {
					logger.Error("forward signal failed", "signal", sig, "error", err)
				}
			case <-done:
				return
			}
		}
	}()

	err := cmd.Wait()
	signal.Stop(sigCh)
	close(done)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			if code < 0 {
				// Killed by a signal.
				code = 1
			}
			return &ExitError{Code: code}
		}
		return fmt.Errorf("language server: %w", err)
	}
	return nil
}

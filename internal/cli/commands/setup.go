package commands

import (
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/net/http/httpproxy"
	"golang.org/x/term"

	"github.com/leapstack-labs/lspboot/internal/artifact"
	"github.com/leapstack-labs/lspboot/internal/bootstrap"
	"github.com/leapstack-labs/lspboot/internal/cli/config"
	"github.com/leapstack-labs/lspboot/internal/hostcap"
	"github.com/leapstack-labs/lspboot/internal/ledger"
	"github.com/leapstack-labs/lspboot/internal/platform"
)

// PlatformFlags are the --arch/--os overrides shared by resolving commands.
type PlatformFlags struct {
	Arch string
	OS   string
}

func (p *PlatformFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.Arch, "arch", "", "Override the detected architecture (x86_64, aarch64)")
	cmd.Flags().StringVar(&p.OS, "os", "", "Override the detected operating system (linux, macos, windows)")
}

// Environment returns the process environment with the flag overrides applied.
func (p PlatformFlags) Environment() platform.Environment {
	return platform.Override(platform.ProcessEnvironment{}, p.Arch, p.OS)
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg          *config.Config
	Logger       *slog.Logger
	Bootstrapper *bootstrap.Bootstrapper

	// ledger is nil when disabled. It is opened on first use.
	ledger *ledger.Lazy
}

// NewCommandContext creates a CommandContext with a bootstrapper wired from
// the loaded configuration. Nothing touches the cache directory until a
// download is installed or Ledger is called. The cleanup function must be
// called.
func NewCommandContext(cmd *cobra.Command, env platform.Environment) (*CommandContext, func()) {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())

	deps := bootstrap.Deps{
		Env:       env,
		Prober:    hostcap.CommandProber{},
		Fetcher:   artifact.NewFetcher(newHTTPClient(cfg), cfg.Release.Checksums, logger),
		Installer: artifact.NewInstaller(logger),
		Logger:    logger,
	}

	cmdCtx := &CommandContext{Cfg: cfg, Logger: logger}
	if cfg.Ledger.Enabled {
		cmdCtx.ledger = ledger.NewLazy(cfg.CacheDir)
		deps.Recorder = cmdCtx.ledger
	}
	cmdCtx.Bootstrapper = bootstrap.New(BootstrapConfig(cfg), deps)

	cleanup := func() {
		if cmdCtx.ledger != nil {
			_ = cmdCtx.ledger.Close()
		}
	}
	return cmdCtx, cleanup
}

// Ledger opens the install ledger. It returns nil when the ledger is
// disabled or cannot be opened; failures are logged, since the ledger never
// blocks a command.
func (c *CommandContext) Ledger() *ledger.Store {
	if c.ledger == nil {
		return nil
	}
	store, err := c.ledger.Store()
	if err != nil {
		c.Logger.Warn("install ledger unavailable", "dir", c.Cfg.CacheDir, "error", err)
		return nil
	}
	return store
}

// BootstrapConfig converts the CLI configuration into the bootstrapper's.
func BootstrapConfig(cfg *config.Config) bootstrap.Config {
	return bootstrap.Config{
		Layout:     Layout(cfg),
		LanguageID: cfg.Server.LanguageID,
		Pattern:    cfg.Server.Pattern,
		Args:       cfg.Server.Args,
	}
}

// Layout returns the artifact layout for cfg.
func Layout(cfg *config.Config) artifact.Layout {
	return artifact.Layout{
		ServerName: cfg.Server.Name,
		BaseURL:    cfg.Release.BaseURL,
		Tag:        cfg.Release.Tag,
		CacheDir:   cfg.CacheDir,
	}
}

// proxyConfig reads HTTP_PROXY, HTTPS_PROXY and NO_PROXY. Replaced in tests.
var proxyConfig = httpproxy.FromEnvironment

// ProxyFor returns the proxy URL used for target, or nil for a direct
// connection.
func ProxyFor(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	return proxyConfig().ProxyFunc()(u)
}

func newHTTPClient(cfg *config.Config) *http.Client {
	proxy := proxyConfig().ProxyFunc()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = func(r *http.Request) (*url.URL, error) {
		return proxy(r.URL)
	}
	return &http.Client{Timeout: cfg.Fetch.Timeout, Transport: transport}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

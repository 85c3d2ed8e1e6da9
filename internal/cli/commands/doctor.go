package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/lspboot/internal/artifact"
	"github.com/leapstack-labs/lspboot/internal/bootstrap"
	"github.com/leapstack-labs/lspboot/internal/cli/config"
	"github.com/leapstack-labs/lspboot/internal/hostcap"
	"github.com/leapstack-labs/lspboot/internal/ledger"
	"github.com/leapstack-labs/lspboot/internal/locator"
	"github.com/leapstack-labs/lspboot/internal/platform"
)

// Check statuses.
const (
	StatusPass  = "pass"
	StatusWarn  = "warn"
	StatusError = "error"
)

// HealthCheck represents a single health check result.
type HealthCheck struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Group  string `json:"group" yaml:"group"`
	Status string `json:"status" yaml:"status"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// DoctorOutput is the structured output for the doctor command.
type DoctorOutput struct {
	Checks          []HealthCheck `json:"checks" yaml:"checks"`
	Errors          int           `json:"errors" yaml:"errors"`
	Warnings        int           `json:"warnings" yaml:"warnings"`
	Recommendations []string      `json:"recommendations" yaml:"recommendations"`
}

// DoctorEnv is what the checks inspect.
type DoctorEnv struct {
	Cfg          *config.Config
	Env          platform.Environment
	Bootstrapper *bootstrap.Bootstrapper
	Ledger       *ledger.Store
	// LookPath defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	var pf PlatformFlags

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that language servers can be bootstrapped on this machine",
		Long: `Run environment checks and report anything that would make the initialize
handshake fail: an unsupported platform, an unwritable cache directory, a
missing executable search command or an unreachable ledger.`,
		Example: `  lspboot doctor
  lspboot doctor -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env := pf.Environment()
			cmdCtx, cleanup := NewCommandContext(cmd, env)
			defer cleanup()

			out := RunDoctor(cmd.Context(), DoctorEnv{
				Cfg:          cmdCtx.Cfg,
				Env:          env,
				Bootstrapper: cmdCtx.Bootstrapper,
				Ledger:       cmdCtx.Ledger(),
			})
			if err := renderDoctor(cmd.OutOrStdout(), out, cmdCtx.Cfg.OutputFormat); err != nil {
				return err
			}
			if out.Errors > 0 {
				return fmt.Errorf("doctor found %d problem(s)", out.Errors)
			}
			return nil
		},
	}
	pf.register(cmd)

	return cmd
}

// RunDoctor runs every check.
func RunDoctor(ctx context.Context, env DoctorEnv) *DoctorOutput {
	lookPath := env.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	checks := []HealthCheck{
		checkPlatform(env.Env),
		checkCacheDir(env.Cfg.CacheDir),
		checkLeftovers(env.Cfg.CacheDir),
		checkServer(ctx, env.Bootstrapper),
		checkLookup(lookPath),
		checkLedger(env.Cfg, env.Ledger),
		checkProxy(env.Cfg.Release.BaseURL),
	}

	sort.SliceStable(checks, func(i, j int) bool { return checks[i].Group < checks[j].Group })

	out := &DoctorOutput{Checks: checks, Recommendations: []string{}}
	for _, c := range checks {
		switch c.Status {
		case StatusError:
			out.Errors++
		case StatusWarn:
			out.Warnings++
		}
		if rec := getRecommendation(c); rec != "" {
			out.Recommendations = append(out.Recommendations, rec)
		}
	}
	return out
}

func checkPlatform(env platform.Environment) HealthCheck {
	c := HealthCheck{ID: "platform", Name: "Platform is supported", Group: "platform"}
	key, err := platform.ResolveFrom(env)
	if err != nil {
		c.Status = StatusError
		c.Detail = err.Error()
		return c
	}
	c.Status = StatusPass
	c.Detail = key.String()
	return c
}

func checkCacheDir(dir string) HealthCheck {
	c := HealthCheck{ID: "cache-writable", Name: "Cache directory is writable", Group: "cache", Detail: dir}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.Status = StatusError
		c.Detail = err.Error()
		return c
	}
	probe := filepath.Join(dir, ".doctor."+uuid.NewString()+artifact.PartialExt)
	f, err := os.OpenFile(probe, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		c.Status = StatusError
		c.Detail = err.Error()
		return c
	}
	_ = f.Close()
	_ = os.Remove(probe)
	c.Status = StatusPass
	return c
}

func checkLeftovers(dir string) HealthCheck {
	c := HealthCheck{ID: "cache-leftovers", Name: "No leftover downloads", Group: "cache", Status: StatusPass}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return c
	}
	var n int
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") && (strings.HasSuffix(name, artifact.CompressedExt) || strings.HasSuffix(name, artifact.PartialExt)) {
			n++
		}
	}
	if n > 0 {
		c.Status = StatusWarn
		c.Detail = fmt.Sprintf("%d interrupted download(s)", n)
	}
	return c
}

func checkServer(ctx context.Context, b *bootstrap.Bootstrapper) HealthCheck {
	c := HealthCheck{ID: "server-cached", Name: "Language server is installed", Group: "cache"}
	if b == nil {
		c.Status = StatusWarn
		c.Detail = "no bootstrapper configured"
		return c
	}
	d, err := b.Locate(ctx, bootstrap.Request{})
	switch {
	case err != nil:
		c.Status = StatusError
		c.Detail = err.Error()
	case d.Source == locator.UseCached:
		c.Status = StatusPass
		c.Detail = d.Path
	default:
		c.Status = StatusWarn
		c.Detail = "will download " + d.Artifact.URL + " on first use"
	}
	return c
}

func checkLookup(lookPath func(string) (string, error)) HealthCheck {
	command := hostcap.LookupCommand(runtime.GOOS)
	c := HealthCheck{ID: "lookup-command", Name: "Executable lookup command is available", Group: "platform"}
	path, err := lookPath(command)
	if err != nil {
		c.Status = StatusWarn
		c.Detail = fmt.Sprintf("%s not found; serverPath overrides cannot be verified", command)
		return c
	}
	c.Status = StatusPass
	c.Detail = path
	return c
}

func checkLedger(cfg *config.Config, store *ledger.Store) HealthCheck {
	c := HealthCheck{ID: "ledger", Name: "Install ledger is readable", Group: "cache"}
	if !cfg.Ledger.Enabled {
		c.Status = StatusPass
		c.Detail = "disabled"
		return c
	}
	if store == nil {
		c.Status = StatusWarn
		c.Detail = "could not open " + filepath.Join(cfg.CacheDir, ledger.FileName)
		return c
	}
	v, err := store.MigrationVersion()
	if err != nil {
		c.Status = StatusWarn
		c.Detail = err.Error()
		return c
	}
	c.Status = StatusPass
	c.Detail = fmt.Sprintf("%s (schema v%d)", store.Path(), v)
	return c
}

func checkProxy(baseURL string) HealthCheck {
	c := HealthCheck{ID: "proxy", Name: "Release download route", Group: "network", Status: StatusPass}
	proxy, err := ProxyFor(baseURL)
	switch {
	case err != nil:
		c.Status = StatusWarn
		c.Detail = err.Error()
	case proxy != nil:
		c.Detail = "via proxy " + proxy.Redacted()
	default:
		c.Detail = "direct"
	}
	return c
}

func getRecommendation(c HealthCheck) string {
	if c.Status == StatusPass {
		return ""
	}
	switch c.ID {
	case "platform":
		return "Set serverPath in the editor configuration to a language server built for this machine."
	case "cache-writable":
		return "Point cache_dir (or LSPBOOT_CACHE_DIR) at a writable directory."
	case "cache-leftovers":
		return "Run 'lspboot cache clean' while no editor is running."
	case "server-cached":
		return "Run 'lspboot resolve' once to download the server ahead of time."
	case "lookup-command":
		return "Install the '" + hostcap.LookupCommand(runtime.GOOS) + "' command or leave serverPath empty."
	case "ledger":
		return "Delete the ledger database or set ledger.enabled to false."
	case "proxy":
		return "Check HTTPS_PROXY and NO_PROXY."
	default:
		return ""
	}
}

func renderDoctor(w io.Writer, out *DoctorOutput, format string) error {
	switch format {
	case config.OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case config.OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(out)
	}

	titleCaser := cases.Title(language.English)
	group := ""
	for _, c := range out.Checks {
		if c.Group != group {
			if group != "" {
				_, _ = fmt.Fprintln(w)
			}
			group = c.Group
			_, _ = fmt.Fprintln(w, titleCaser.String(group))
		}
		line := fmt.Sprintf("  %s %s", statusIcon(c.Status), c.Name)
		if c.Detail != "" {
			line += ": " + c.Detail
		}
		_, _ = fmt.Fprintln(w, line)
	}

	if len(out.Recommendations) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "Recommendations")
		for _, r := range out.Recommendations {
			_, _ = fmt.Fprintf(w, "  - %s\n", r)
		}
	}
	_, _ = fmt.Fprintf(w, "\n%d error(s), %d warning(s)\n", out.Errors, out.Warnings)
	return nil
}

func statusIcon(status string) string {
	switch status {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "!"
	default:
		return "✗"
	}
}

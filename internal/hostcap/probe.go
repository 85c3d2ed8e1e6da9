// Package hostcap holds the capabilities the bootstrapper consumes from its
// host: probing the executable search path and emitting user-facing messages.
package hostcap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Prober verifies that a program can be executed.
type Prober interface {
	// LookPath returns nil if name resolves to an executable.
	LookPath(ctx context.Context, name string) error
}

// ErrNotFound is returned by probers when the lookup command ran and reported
// that the program does not exist.
var ErrNotFound = errors.New("executable not found")

// CommandProber asks the platform lookup command ("which" or "where") about a
// program and trusts its exit status.
type CommandProber struct {
	// Command overrides the lookup command, mostly for tests.
	Command string
	// GOOS defaults to runtime.GOOS.
	GOOS string
}

// LookupCommand returns the search command for goos.
func LookupCommand(goos string) string {
	if goos == "windows" {
		return "where"
	}
	return "which"
}

// LookPath implements Prober.
func (p CommandProber) LookPath(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrNotFound)
	}
	command := p.Command
	if command == "" {
		goos := p.GOOS
		if goos == "" {
			goos = runtime.GOOS
		}
		command = LookupCommand(goos)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, name)
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: %s exited with status %d", ErrNotFound, command, exitErr.ExitCode())
	}
	return fmt.Errorf("run %s: %w", command, err)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, name string) error

// LookPath implements Prober.
func (f ProberFunc) LookPath(ctx context.Context, name string) error { return f(ctx, name) }

// Package locator decides where the language server executable comes from.
package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/lspboot/internal/artifact"
	"github.com/leapstack-labs/lspboot/internal/hostcap"
	"github.com/leapstack-labs/lspboot/internal/platform"
)

// Source says which of the three acquisition paths applies.
type Source int

// Sources in priority order.
const (
	UseOverride Source = iota + 1
	UseCached
	MustFetch
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case UseOverride:
		return "override"
	case UseCached:
		return "cached"
	case MustFetch:
		return "fetch"
	default:
		return "unknown"
	}
}

// ErrOverrideNotFound is returned when an explicit server path fails the
// executable probe.
var ErrOverrideNotFound = errors.New("server path not found")

// OverrideError carries the probe failure for an explicit server path.
type OverrideError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *OverrideError) Error() string {
	return fmt.Sprintf("%q is not an executable: %v", e.Path, e.Err)
}

// Unwrap returns the probe error.
func (e *OverrideError) Unwrap() error { return e.Err }

// Is matches ErrOverrideNotFound.
func (e *OverrideError) Is(target error) bool { return target == ErrOverrideNotFound }

// Decision is the outcome of Locate.
type Decision struct {
	Source Source
	// Path is the override path or the cache path, depending on Source.
	Path string
	// Artifact is set for UseCached and MustFetch.
	Artifact artifact.Descriptor
}

// Locator chooses between an explicit override, a cached binary and a fetch.
// It performs no I/O of its own; the probe and the existence check are
// supplied by the caller.
type Locator struct {
	layout artifact.Layout
	prober hostcap.Prober
	exists func(path string) bool
}

// New creates a Locator. exists defaults to artifact.Exists.
func New(layout artifact.Layout, prober hostcap.Prober, exists func(string) bool) *Locator {
	if exists == nil {
		exists = artifact.Exists
	}
	return &Locator{layout: layout, prober: prober, exists: exists}
}

// Layout returns the artifact layout the locator describes against.
func (l *Locator) Layout() artifact.Layout {
	return l.layout
}

// Locate applies the priority override > cache > fetch. A non-empty override
// that fails the probe is an error; it never falls through to a download.
func (l *Locator) Locate(ctx context.Context, override string, key platform.Key) (Decision, error) {
	if override != "" {
		if err := l.prober.LookPath(ctx, override); err != nil {
			return Decision{}, &OverrideError{Path: override, Err: err}
		}
		return Decision{Source: UseOverride, Path: override}, nil
	}

	d := artifact.Describe(l.layout, key)
	if l.exists(d.CachePath) {
		return Decision{Source: UseCached, Path: d.CachePath, Artifact: d}, nil
	}
	return Decision{Source: MustFetch, Path: d.CachePath, Artifact: d}, nil
}

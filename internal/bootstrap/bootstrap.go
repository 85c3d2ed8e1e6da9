// Package bootstrap resolves a concrete language server executable: it picks
// the platform, decides between an override, the cache and a download, runs
// the download and install when needed, and builds the launch descriptor.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/leapstack-labs/lspboot/internal/artifact"
	"github.com/leapstack-labs/lspboot/internal/hostcap"
	"github.com/leapstack-labs/lspboot/internal/ledger"
	"github.com/leapstack-labs/lspboot/internal/locator"
	"github.com/leapstack-labs/lspboot/internal/platform"
)

// Fetcher downloads an artifact to its temporary path.
type Fetcher interface {
	Fetch(ctx context.Context, d artifact.Descriptor) (*artifact.Download, error)
}

// Installer moves a downloaded artifact into the cache.
type Installer interface {
	Install(d artifact.Descriptor) error
}

// Recorder stores completed installs. Optional.
type Recorder interface {
	Record(in ledger.Install) error
}

// Config is the static part of a resolution.
type Config struct {
	Layout     artifact.Layout
	LanguageID string
	Pattern    string
	Args       []string
}

// Deps are the collaborators of a Bootstrapper. Env, Prober, Fetcher and
// Installer are required.
type Deps struct {
	Env       platform.Environment
	Prober    hostcap.Prober
	Fetcher   Fetcher
	Installer Installer
	Recorder  Recorder
	Logger    *slog.Logger
}

// Bootstrapper turns a Request into a LaunchDescriptor.
type Bootstrapper struct {
	cfg       Config
	env       platform.Environment
	locator   *locator.Locator
	fetcher   Fetcher
	installer Installer
	recorder  Recorder
	logger    *slog.Logger

	// Collapses concurrent acquisitions of one cache path in this process.
	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]*fanout
}

// New creates a Bootstrapper.
func New(cfg Config, deps Deps) *Bootstrapper {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bootstrapper{
		cfg:       cfg,
		env:       deps.Env,
		locator:   locator.New(cfg.Layout, deps.Prober, nil),
		fetcher:   deps.Fetcher,
		installer: deps.Installer,
		recorder:  deps.Recorder,
		logger:    logger,
	}
}

// Config returns the static configuration.
func (b *Bootstrapper) Config() Config {
	return b.cfg
}

// Resolve runs the full resolution for req. Progress is reported to n, which
// may be nil. Every failure is an *Error.
func (b *Bootstrapper) Resolve(ctx context.Context, req Request, n hostcap.Notifier) (*LaunchDescriptor, error) {
	if n == nil {
		n = hostcap.Discard{}
	}

	key, err := platform.ResolveFrom(b.env)
	if err != nil {
		if req.ServerPath == "" {
			return nil, newError(KindUnsupportedPlatform, err)
		}
		// An explicit server path does not need a platform.
		b.logger.Debug("platform unresolved, relying on server path", "error", err)
	}

	decision, err := b.locator.Locate(ctx, req.ServerPath, key)
	if err != nil {
		return nil, newError(KindServerPathNotFound, err)
	}
	b.logger.Info("server located", "source", decision.Source.String(), "path", decision.Path)

	var exe Executable
	switch decision.Source {
	case locator.UseOverride:
		exe = Executable{Kind: ExecutablePath, Value: decision.Path}
	case locator.UseCached:
		exe = Executable{Kind: ExecutableURI, Value: PathToURI(absPath(decision.Path))}
	case locator.MustFetch:
		if err := b.acquire(ctx, decision.Artifact, n); err != nil {
			return nil, err
		}
		exe = Executable{Kind: ExecutableURI, Value: PathToURI(absPath(decision.Path))}
	default:
		return nil, newError(KindInstallFailed, fmt.Errorf("unexpected locator decision %d", decision.Source))
	}

	return b.describe(exe, req), nil
}

// Locate exposes the locator decision without acquiring anything.
func (b *Bootstrapper) Locate(ctx context.Context, req Request) (locator.Decision, error) {
	key, err := platform.ResolveFrom(b.env)
	if err != nil && req.ServerPath == "" {
		return locator.Decision{}, newError(KindUnsupportedPlatform, err)
	}
	d, err := b.locator.Locate(ctx, req.ServerPath, key)
	if err != nil {
		return locator.Decision{}, newError(KindServerPathNotFound, err)
	}
	return d, nil
}

func (b *Bootstrapper) describe(exe Executable, req Request) *LaunchDescriptor {
	lang := req.LanguageID
	if lang == "" {
		lang = b.cfg.LanguageID
	}
	pattern := req.Pattern
	if pattern == "" {
		pattern = b.cfg.Pattern
	}
	filter := DocumentFilter{Language: lang}
	if pattern != "" {
		filter.Pattern = &pattern
	}

	args := make([]string, len(b.cfg.Args))
	copy(args, b.cfg.Args)

	return &LaunchDescriptor{
		Executable:       exe,
		Args:             args,
		DocumentSelector: []DocumentFilter{filter},
		Options:          req.Options,
	}
}

// acquire fetches and installs d. Concurrent callers for the same cache path
// share one attempt; each has its own descriptor, so only the leader's
// temporary file is ever created.
//
// The shared attempt runs detached from every caller's cancellation and is
// bounded by the fetcher's own timeout. A caller whose ctx ends stops waiting
// and gets a FetchFailed error; the others keep waiting. Phase messages go to
// every caller waiting at the time they are sent.
func (b *Bootstrapper) acquire(ctx context.Context, d artifact.Descriptor, n hostcap.Notifier) error {
	f, id := b.join(d.CachePath, n)
	defer f.remove(id)

	ch := b.group.DoChan(d.CachePath, func() (any, error) {
		defer b.leave(d.CachePath, f)
		return nil, b.fetchAndInstall(context.WithoutCancel(ctx), d, f)
	})

	select {
	case res := <-ch:
		if res.Shared {
			b.logger.Debug("shared acquisition", "path", d.CachePath)
		}
		return res.Err
	case <-ctx.Done():
		return newError(KindFetchFailed, ctx.Err())
	}
}

// join registers n for the phase messages of the acquisition of path.
func (b *Bootstrapper) join(path string, n hostcap.Notifier) (*fanout, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inflight == nil {
		b.inflight = make(map[string]*fanout)
	}
	f, ok := b.inflight[path]
	if !ok {
		f = &fanout{}
		b.inflight[path] = f
	}
	return f, f.add(n)
}

func (b *Bootstrapper) leave(path string, f *fanout) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inflight[path] == f {
		delete(b.inflight, path)
	}
}

// fanout forwards messages to every registered notifier.
type fanout struct {
	mu   sync.Mutex
	next int
	ns   map[int]hostcap.Notifier
}

func (f *fanout) add(n hostcap.Notifier) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ns == nil {
		f.ns = make(map[int]hostcap.Notifier)
	}
	f.next++
	f.ns[f.next] = n
	return f.next
}

func (f *fanout) remove(id int) {
	f.mu.Lock()
	delete(f.ns, id)
	f.mu.Unlock()
}

func (f *fanout) snapshot() []hostcap.Notifier {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]hostcap.Notifier, 0, len(f.ns))
	for i := 1; i <= f.next; i++ {
		if n, ok := f.ns[i]; ok {
			out = append(out, n)
		}
	}
	return out
}

// ShowMessage implements hostcap.Notifier.
func (f *fanout) ShowMessage(t hostcap.MessageType, text string) {
	for _, n := range f.snapshot() {
		n.ShowMessage(t, text)
	}
}

// LogMessage implements hostcap.Notifier.
func (f *fanout) LogMessage(t hostcap.MessageType, text string) {
	for _, n := range f.snapshot() {
		n.LogMessage(t, text)
	}
}

func (b *Bootstrapper) fetchAndInstall(ctx context.Context, d artifact.Descriptor, n hostcap.Notifier) error {
	defer removeTemp(d.TempPath, b.logger)

	n.LogMessage(hostcap.MessageLog, fmt.Sprintf("Downloading %s", d.URL))
	dl, err := b.fetcher.Fetch(ctx, d)
	if err != nil {
		return newError(KindFetchFailed, err)
	}

	n.LogMessage(hostcap.MessageLog, fmt.Sprintf("Decompressing %s", d.Name))
	if err := b.installer.Install(d); err != nil {
		return newError(KindInstallFailed, err)
	}
	if !artifact.Exists(d.CachePath) {
		return newError(KindInstallFailed, fmt.Errorf("%s missing after install", d.CachePath))
	}
	n.LogMessage(hostcap.MessageLog, fmt.Sprintf("Installed %s", d.CachePath))

	if b.recorder != nil {
		rec := ledger.Install{
			Name:   d.Name,
			Tag:    b.cfg.Layout.Tag,
			URL:    d.URL,
			Path:   d.CachePath,
			Size:   dl.Size,
			SHA256: dl.SHA256,
		}
		if err := b.recorder.Record(rec); err != nil {
			b.logger.Warn("failed to record install", "name", d.Name, "error", err)
		}
	}
	return nil
}

func removeTemp(path string, logger *slog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to remove temporary download", "path", path, "error", err)
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

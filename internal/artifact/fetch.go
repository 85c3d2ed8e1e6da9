package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// HTTPDoer is the subset of *http.Client the fetcher needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Download is the result of a successful fetch.
type Download struct {
	Path   string
	Size   int64
	SHA256 string
}

// Fetcher retrieves release assets into a descriptor's TempPath.
type Fetcher struct {
	client    HTTPDoer
	checksums map[string]string
	logger    *slog.Logger
}

// NewFetcher creates a fetcher. checksums maps artifact names to expected
// sha256 hex digests; artifacts without an entry are not verified.
func NewFetcher(client HTTPDoer, checksums map[string]string, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{client: client, checksums: checksums, logger: logger}
}

// Fetch issues a single GET for d.URL and writes the whole body to d.TempPath.
// On any failure the temporary file is removed before returning. The cache
// path is never touched.
func (f *Fetcher) Fetch(ctx context.Context, d Descriptor) (*Download, error) {
	if err := os.MkdirAll(filepath.Dir(d.TempPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	f.logger.Info("downloading artifact", "name", d.Name, "url", d.URL)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", d.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("GET %s: release asset %s not found (HTTP 404)", d.URL, d.Name)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: HTTP %d", d.URL, resp.StatusCode)
	}

	out, err := os.OpenFile(d.TempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	hash := sha256.New()
	n, copyErr := io.Copy(io.MultiWriter(out, hash), resp.Body)
	closeErr := out.Close()

	dl := &Download{Path: d.TempPath, Size: n, SHA256: hex.EncodeToString(hash.Sum(nil))}
	switch {
	case copyErr != nil:
		err = fmt.Errorf("read body: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("close temp file: %w", closeErr)
	case resp.ContentLength >= 0 && n != resp.ContentLength:
		err = fmt.Errorf("read body: %w: got %d of %d bytes", io.ErrUnexpectedEOF, n, resp.ContentLength)
	case n == 0:
		err = errors.New("read body: empty response")
	default:
		err = f.verify(d.Name, dl.SHA256)
	}
	if err != nil {
		_ = os.Remove(d.TempPath)
		return nil, err
	}

	f.logger.Info("download complete", "name", d.Name, "bytes", n)
	return dl, nil
}

func (f *Fetcher) verify(name, got string) error {
	want, ok := f.checksums[name]
	if !ok || want == "" {
		return nil
	}
	if !strings.EqualFold(want, got) {
		return fmt.Errorf("checksum mismatch for %s: want %s, got %s", name, want, got)
	}
	return nil
}

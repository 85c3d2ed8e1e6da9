// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
)

// ReleaseServer serves a gzip-compressed fake server binary for any path.
type ReleaseServer struct {
	*httptest.Server
	requests atomic.Int32
	status   atomic.Int32
}

// SetStatus makes the server answer every request with code instead of the
// asset. Zero restores the asset.
func (s *ReleaseServer) SetStatus(code int) {
	s.status.Store(int32(code))
}

// Requests returns how many requests the server has answered.
func (s *ReleaseServer) Requests() int {
	return int(s.requests.Load())
}

// NewReleaseServer starts a release server that is closed with the test.
func NewReleaseServer(t *testing.T, content []byte) *ReleaseServer {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(content); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	body := buf.Bytes()

	rs := &ReleaseServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		rs.requests.Add(1)
		if code := rs.status.Load(); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(rs.Close)
	return rs
}

// SetupTestProject creates a temporary directory containing an lspboot.yaml
// that points at baseURL and a private cache directory. It returns the
// project and cache directories.
func SetupTestProject(t *testing.T, baseURL string) (projectDir, cacheDir string) {
	t.Helper()

	projectDir = t.TempDir()
	cacheDir = filepath.Join(projectDir, "cache")

	cfg := fmt.Sprintf(`cache_dir: %q
server:
  name: server
  language_id: rust
release:
  tag: v1
  base_url: %q
fetch:
  timeout: 10s
`, cacheDir, baseURL)
	if err := os.WriteFile(filepath.Join(projectDir, "lspboot.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("failed to write lspboot.yaml: %v", err)
	}
	return projectDir, cacheDir
}

// Chdir changes into dir for the rest of the test.
func Chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

// ExecuteCommand runs cmd with args and returns stdout, stderr and the error.
func ExecuteCommand(cmd *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(&bytes.Buffer{})
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

package artifact

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/lspboot/internal/platform"
	"github.com/leapstack-labs/lspboot/internal/testutil"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testDescriptor(t *testing.T, baseURL string) Descriptor {
	t.Helper()
	return Describe(Layout{
		ServerName: "server",
		BaseURL:    baseURL,
		Tag:        "v1",
		CacheDir:   filepath.Join(t.TempDir(), "cache"),
	}, platform.Key{Arch: platform.ArchX8664, OS: platform.OSLinux})
}

func TestFetch_Success(t *testing.T) {
	body := gzipBytes(t, []byte("#!/bin/sh\necho hi\n"))
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/v1/server-x86_64-unknown-linux-gnu.gz", r.URL.Path)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	d := testDescriptor(t, srv.URL)
	f := NewFetcher(srv.Client(), nil, testutil.NewTestLogger(t))

	dl, err := f.Fetch(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
	assert.Equal(t, d.TempPath, dl.Path)
	assert.Equal(t, int64(len(body)), dl.Size)

	got, err := os.ReadFile(d.TempPath)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.NoFileExists(t, d.CachePath)
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer srv.Close()

			d := testDescriptor(t, srv.URL)
			_, err := NewFetcher(srv.Client(), nil, nil).Fetch(context.Background(), d)
			require.Error(t, err)
			assert.NoFileExists(t, d.TempPath)
			assert.NoFileExists(t, d.CachePath)
		})
	}
}

func TestFetch_TruncatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1024")
		_, _ = w.Write([]byte("short"))
	}))
	defer srv.Close()

	d := testDescriptor(t, srv.URL)
	_, err := NewFetcher(srv.Client(), nil, nil).Fetch(context.Background(), d)
	require.Error(t, err)
	assert.NoFileExists(t, d.TempPath)
}

type errDoer struct{}

func (errDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestFetch_TransportError(t *testing.T) {
	d := testDescriptor(t, "https://example.invalid")
	_, err := NewFetcher(errDoer{}, nil, nil).Fetch(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoFileExists(t, d.TempPath)
}

func TestFetch_Checksum(t *testing.T) {
	body := gzipBytes(t, []byte("binary"))
	sum := sha256.Sum256(body)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	t.Run("match", func(t *testing.T) {
		d := testDescriptor(t, srv.URL)
		f := NewFetcher(srv.Client(), map[string]string{d.Name: hex.EncodeToString(sum[:])}, nil)
		dl, err := f.Fetch(context.Background(), d)
		require.NoError(t, err)
		assert.Equal(t, hex.EncodeToString(sum[:]), dl.SHA256)
	})

	t.Run("mismatch", func(t *testing.T) {
		d := testDescriptor(t, srv.URL)
		f := NewFetcher(srv.Client(), map[string]string{d.Name: "00"}, nil)
		_, err := f.Fetch(context.Background(), d)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "checksum mismatch")
		assert.NoFileExists(t, d.TempPath)
	})
}

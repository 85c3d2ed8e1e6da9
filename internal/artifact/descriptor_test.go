package artifact

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leapstack-labs/lspboot/internal/platform"
)

func TestDescribe(t *testing.T) {
	layout := Layout{
		ServerName: "rust-analyzer",
		BaseURL:    "https://example.test/releases/download/",
		Tag:        "2024-12-02",
		CacheDir:   "/cache",
	}

	d := Describe(layout, platform.Key{Arch: platform.ArchX8664, OS: platform.OSLinux})

	assert.Equal(t, "rust-analyzer-x86_64-unknown-linux-gnu", d.Name)
	assert.Equal(t, "https://example.test/releases/download/2024-12-02/rust-analyzer-x86_64-unknown-linux-gnu.gz", d.URL)
	assert.Equal(t, filepath.Join("/cache", "rust-analyzer-x86_64-unknown-linux-gnu"), d.CachePath)
	assert.Equal(t, "/cache", filepath.Dir(d.TempPath))
	assert.True(t, strings.HasSuffix(d.TempPath, ".gz"))
	assert.NotEqual(t, d.CachePath, d.TempPath)
}

func TestDescribe_Windows(t *testing.T) {
	layout := Layout{ServerName: "server", BaseURL: "https://example.test", Tag: "v1", CacheDir: "/cache"}
	d := Describe(layout, platform.Key{Arch: platform.ArchAarch64, OS: platform.OSWindows})

	assert.Equal(t, "server-aarch64-pc-windows-msvc", d.Name)
	assert.Equal(t, filepath.Join("/cache", "server-aarch64-pc-windows-msvc.exe"), d.CachePath)
}

func TestDescribe_TempPathIsUnique(t *testing.T) {
	layout := Layout{ServerName: "server", BaseURL: "https://example.test", Tag: "v1", CacheDir: "/cache"}
	key := platform.Key{Arch: platform.ArchX8664, OS: platform.OSMacOS}

	a := Describe(layout, key)
	b := Describe(layout, key)
	assert.Equal(t, a.CachePath, b.CachePath)
	assert.NotEqual(t, a.TempPath, b.TempPath)
}

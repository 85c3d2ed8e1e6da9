// Package artifact describes, fetches and installs compressed language server
// release assets.
//
// The cache directory is shared between processes. Nothing in this package
// assumes exclusive ownership of a cache path: downloads go to a temporary file
// unique to one descriptor, and installs decompress into a unique staging file
// that is renamed over the final path in a single step.
package artifact

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/leapstack-labs/lspboot/internal/platform"
)

// CompressedExt is the suffix of every release asset.
const CompressedExt = ".gz"

// Layout holds the inputs that, together with a platform key, determine where
// an artifact comes from and where it lives locally.
type Layout struct {
	ServerName string
	BaseURL    string
	Tag        string
	CacheDir   string
}

// Descriptor names one artifact for one platform. It is computed fresh for
// every resolution; only the file at CachePath outlives it.
type Descriptor struct {
	Name      string
	Platform  platform.Key
	URL       string
	CachePath string
	TempPath  string
}

// Name returns "<server>-<arch>-<triple>".
func Name(serverName string, key platform.Key) string {
	return fmt.Sprintf("%s-%s-%s", serverName, key.Arch, key.Triple())
}

// Describe builds the descriptor for key. TempPath carries a random component
// so that two resolutions never write the same temporary file.
func Describe(layout Layout, key platform.Key) Descriptor {
	name := Name(layout.ServerName, key)
	return Descriptor{
		Name:      name,
		Platform:  key,
		URL:       strings.TrimRight(layout.BaseURL, "/") + "/" + layout.Tag + "/" + name + CompressedExt,
		CachePath: filepath.Join(layout.CacheDir, name+key.ExeSuffix()),
		TempPath:  filepath.Join(layout.CacheDir, "."+name+"."+uuid.NewString()+CompressedExt),
	}
}

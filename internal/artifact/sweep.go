package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Sweep removes leftover temporary downloads and staging files from dir and
// returns the paths it removed. A missing directory is not an error.
//
// Sweep must not run while another process may be installing into dir: an
// in-flight download is indistinguishable from a leftover one.
func Sweep(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}

	var removed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.HasSuffix(name, CompressedExt) && !strings.HasSuffix(name, PartialExt) {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}

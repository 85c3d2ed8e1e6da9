package artifact

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// PartialExt marks staging files that have not been renamed into place yet.
const PartialExt = ".partial"

// Installer turns a fetched artifact into the executable at the cache path.
type Installer struct {
	logger *slog.Logger
	goos   string
}

// NewInstaller creates an installer.
func NewInstaller(logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Installer{logger: logger, goos: runtime.GOOS}
}

// Install decompresses d.TempPath into d.CachePath and marks it executable.
//
// The temporary compressed file is removed whatever the outcome. The cache
// path is only written by a rename of a fully written staging file, so it is
// either absent or complete. If another installer has already produced the
// cache path, Install succeeds without writing.
func (i *Installer) Install(d Descriptor) error {
	defer func() {
		if err := os.Remove(d.TempPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			i.logger.Warn("remove temp artifact", "path", d.TempPath, "error", err)
		}
	}()

	if exists(d.CachePath) {
		i.logger.Info("artifact already installed", "path", d.CachePath)
		return nil
	}

	src, err := os.Open(d.TempPath)
	if err != nil {
		return fmt.Errorf("open downloaded artifact: %w", err)
	}
	defer src.Close()

	zr, err := gzip.NewReader(src)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", filepath.Base(d.TempPath), err)
	}
	defer zr.Close()

	staging := filepath.Join(filepath.Dir(d.CachePath),
		"."+filepath.Base(d.CachePath)+"."+uuid.NewString()+PartialExt)
	if err := i.writeStaging(staging, zr); err != nil {
		_ = os.Remove(staging)
		return err
	}

	if err := os.Rename(staging, d.CachePath); err != nil {
		_ = os.Remove(staging)
		if exists(d.CachePath) {
			i.logger.Info("artifact installed concurrently", "path", d.CachePath)
			return nil
		}
		return fmt.Errorf("move executable into place: %w", err)
	}

	i.logger.Info("artifact installed", "path", d.CachePath)
	return nil
}

func (i *Installer) writeStaging(path string, r io.Reader) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o755)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("decompress: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close staging file: %w", err)
	}
	// The umask may have stripped execute bits at create time.
	if i.goos != "windows" {
		if err := os.Chmod(path, 0o755); err != nil {
			return fmt.Errorf("mark executable: %w", err)
		}
	}
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Exists reports whether a regular file is present at path.
func Exists(path string) bool {
	return exists(path)
}

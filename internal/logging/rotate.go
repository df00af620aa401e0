package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// RotateIfLarge rotates the workspace log file when it has grown past
// opts.MaxBytes. Returns true when a rotation happened.
func RotateIfLarge(logsDir string, opts Options) (bool, error) {
	path := filepath.Join(logsDir, opts.File)
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat log file: %w", err)
	}
	if opts.MaxBytes <= 0 || fi.Size() < opts.MaxBytes {
		return false, nil
	}
	if err := Rotate(logsDir, opts); err != nil {
		return false, err
	}
	return true, nil
}

// Rotate shifts steward.log to steward.log.1 and renumbers older rotations,
// dropping everything past opts.Keep. Rotated files are gzipped when
// opts.Compress is set. Missing or empty current files are a no-op.
func Rotate(logsDir string, opts Options) error {
	base := filepath.Join(logsDir, opts.File)
	fi, err := os.Stat(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	if fi.Size() == 0 {
		return nil
	}

	keep := opts.Keep
	if keep < 1 {
		keep = 1
	}

	// Shift older rotations out of the way, oldest first. Both plain and
	// gzipped names are handled so a compress config change mid-stream
	// still renumbers cleanly.
	for i := keep; i >= 1; i-- {
		for _, ext := range []string{".gz", ""} {
			src := fmt.Sprintf("%s.%d%s", base, i, ext)
			if _, err := os.Stat(src); err != nil {
				continue
			}
			if i >= keep {
				if err := os.Remove(src); err != nil {
					return fmt.Errorf("failed to drop old log %s: %w", src, err)
				}
				continue
			}
			dst := fmt.Sprintf("%s.%d%s", base, i+1, ext)
			if err := os.Rename(src, dst); err != nil {
				return fmt.Errorf("failed to renumber log %s: %w", src, err)
			}
		}
	}

	if err := os.Rename(base, base+".1"); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	if opts.Compress {
		if err := gzipFile(base + ".1"); err != nil {
			return fmt.Errorf("failed to compress rotated log: %w", err)
		}
	}
	return nil
}

// gzipFile replaces path with path.gz.
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		dst.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oukeidos/ocap/internal/logger"
)

// AtomicWrite replaces path with data by writing a sibling temp file and
// renaming it into place. Readers observe either the old or the new content.
// A symlink at path itself is refused; symlinked parent directories are
// allowed because image libraries commonly live behind them.
func AtomicWrite(path string, data []byte, perms os.FileMode) error {
	if err := RejectSymlinkTarget(path); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".ocap-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	committed := false
	defer func() {
		if !committed {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(perms); err != nil {
		return fmt.Errorf("failed to set temp file permissions: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := replaceFile(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to destination: %w", err)
	}
	committed = true

	if err := syncDir(dir); err != nil {
		logger.Debug("Directory fsync failed", "path", dir, "error", err)
	}
	return nil
}

// AtomicWriteExclusive creates path without ever replacing an existing
// file. On collision it moves on to name_1.ext .. name_9.ext and returns the
// path it actually wrote. Recovery logs go through here so two interrupted
// runs in one folder keep both logs.
func AtomicWriteExclusive(path string, data []byte, perms os.FileMode) (string, error) {
	if err := RejectSymlinkPath(path); err != nil {
		return "", err
	}
	for n := 0; n <= maxNumbered; n++ {
		candidate := numbered(path, n)
		err := createNew(candidate, data, perms)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if err := syncDir(filepath.Dir(candidate)); err != nil {
			logger.Debug("Directory fsync failed", "path", candidate, "error", err)
		}
		return candidate, nil
	}
	return "", fmt.Errorf("no free file name for %s: %w", path, os.ErrExist)
}

// createNew writes a file that must not exist yet. A partial file is removed.
func createNew(path string, data []byte, perms os.FileMode) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perms)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(path)
		}
	}()
	if _, err = f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

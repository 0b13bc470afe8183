//go:build !windows

package files

import "os"

// replaceFile renames src over dst. POSIX rename is atomic within a directory.
func replaceFile(src, dst string) error {
	return os.Rename(src, dst)
}

// syncDir flushes the directory entry so a completed rename survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// isReparsePoint only exists for NTFS; Lstat already catches symlinks here.
func isReparsePoint(string) (bool, error) {
	return false, nil
}

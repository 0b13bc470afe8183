package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RejectSymlinkTarget fails when path itself is a symlink or reparse point.
// Sidecars are written through this check: the image folder may sit behind a
// link, the caption file may not. A missing path is accepted.
func RejectSymlinkTarget(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is empty")
	}
	kind, err := linkAt(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if kind != "" {
		return fmt.Errorf("refusing to write to symlink path: %s (%s detected)", path, kind)
	}
	return nil
}

// RejectSymlinkPath fails when path or any existing ancestor is a link. Files
// ocap creates for itself (log file, reports, recovery logs) use this.
func RejectSymlinkPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	for _, p := range ancestry(abs) {
		kind, err := linkAt(p)
		if errors.Is(err, os.ErrNotExist) {
			// Nothing below a missing directory can be a link yet.
			return nil
		}
		if err != nil {
			return err
		}
		if kind != "" {
			return fmt.Errorf("refusing to write to symlink path: %s (%s detected at %s)", path, kind, p)
		}
	}
	return nil
}

// ancestry lists abs and its parents from the top down, excluding the root.
func ancestry(abs string) []string {
	var chain []string
	for p := abs; ; {
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		chain = append(chain, p)
		p = parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// linkAt names the kind of link at p, or "" for a regular entry.
func linkAt(p string) (string, error) {
	info, err := os.Lstat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		return "", fmt.Errorf("failed to access path: %w", err)
	}
	kind := ""
	if info.Mode()&os.ModeSymlink != 0 {
		kind = "symlink"
	} else if reparse, err := isReparsePoint(p); err != nil {
		return "", fmt.Errorf("failed to check reparse point: %w", err)
	} else if reparse {
		kind = "reparse point"
	}
	return kind, nil
}

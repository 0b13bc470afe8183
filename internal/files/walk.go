package files

import (
	"io/fs"
	"path/filepath"
)

// WalkFollowingRoot walks root like filepath.WalkDir but resolves root first,
// so a folder given as a symlink is descended. Links below root are not
// followed. fn sees paths under root as the caller spelled it.
func WalkFollowingRoot(root string, fn func(path string, d fs.DirEntry)) error {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return err
	}
	return filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(resolved, path)
		if err != nil {
			return err
		}
		fn(filepath.Join(root, rel), d)
		return nil
	})
}

package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxNumbered is how many name_N.ext alternatives are tried before giving up
// or falling back to a random suffix.
const maxNumbered = 9

// numbered returns path with _n inserted before the extension; n == 0 is path
// itself.
func numbered(path string, n int) string {
	if n == 0 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), n, ext)
}

// SafePath picks a name for a report so an earlier one is never clobbered.
// It returns path when free, else the first free numbered alternative, else a
// UUIDv7 suffixed name. changed reports whether the result differs from path.
func SafePath(path string) (target string, changed bool, err error) {
	if path == "" {
		return "", false, fmt.Errorf("path is empty")
	}
	for n := 0; n <= maxNumbered; n++ {
		candidate := numbered(path, n)
		_, statErr := os.Stat(candidate)
		switch {
		case os.IsNotExist(statErr):
			return candidate, n > 0, nil
		case statErr != nil:
			return "", false, statErr
		}
	}

	suffix := uuid.NewString()[:8]
	if u, err := uuid.NewV7(); err == nil {
		suffix = u.String()
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%s%s", strings.TrimSuffix(path, ext), suffix, ext), true, nil
}

// Package textops applies bulk text edits to existing caption sidecars.
package textops

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oukeidos/ocap/internal/apperrors"
	"github.com/oukeidos/ocap/internal/files"
	"github.com/oukeidos/ocap/internal/logger"
)

type Position string

const (
	Front Position = "front"
	End   Position = "end"
)

const endSeparator = ", "

// Insert adds text to every .txt file under dir. Front writes text directly
// before the content; End appends it after a ", " separator.
func Insert(dir, text string, pos Position) ([]string, error) {
	if pos != Front && pos != End {
		return nil, apperrors.Validation(fmt.Sprintf("unsupported insert position %q", pos))
	}
	return forEach(dir, func(content string) (string, string) {
		if pos == Front {
			return text + content, "prepended"
		}
		return content + endSeparator + text, "appended"
	})
}

// Replace substitutes every occurrence of find in every .txt file under dir.
// Files without a match are left untouched.
func Replace(dir, find, replace string) ([]string, error) {
	if find == "" {
		return nil, apperrors.Validation("Text to find must not be empty.")
	}
	return forEach(dir, func(content string) (string, string) {
		n := strings.Count(content, find)
		if n == 0 {
			return content, ""
		}
		return strings.ReplaceAll(content, find, replace), fmt.Sprintf("replaced %d occurrence(s)", n)
	})
}

// forEach rewrites each sidecar with edit. An empty verb means unchanged.
func forEach(dir string, edit func(string) (string, string)) ([]string, error) {
	paths, err := sidecars(dir)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(paths))
	for _, p := range paths {
		name := p
		if rel, err := filepath.Rel(dir, p); err == nil {
			name = rel
		}
		data, err := os.ReadFile(p)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s: failed: %v", name, err))
			continue
		}
		updated, verb := edit(string(data))
		if verb == "" {
			lines = append(lines, name+": no match")
			continue
		}
		if err := files.AtomicWrite(p, []byte(updated), 0o644); err != nil {
			logger.Error("Failed to update sidecar", "path", p, "error", err)
			lines = append(lines, fmt.Sprintf("%s: failed: %v", name, err))
			continue
		}
		lines = append(lines, name+": "+verb)
	}
	return lines, nil
}

func sidecars(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, apperrors.Validation(fmt.Sprintf("Invalid folder path: %s", dir))
	}
	var out []string
	err = files.WalkFollowingRoot(dir, func(path string, d fs.DirEntry) {
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".txt") {
			out = append(out, path)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}

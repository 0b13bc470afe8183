package pipeline

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oukeidos/ocap/internal/files"
	"github.com/oukeidos/ocap/internal/ollama"
	"github.com/oukeidos/ocap/internal/sidecar"
)

var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".bmp":  {},
	".gif":  {},
}

// IsImage matches the extension allow-list, ignoring case.
func IsImage(path string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Job is one image to caption. It is immutable once enumerated.
type Job struct {
	SourcePath    string
	SidecarPath   string
	SidecarExists bool

	Model               string
	PrimaryPrompt       string
	RefineModel         string
	RefinePrompt        string
	TagModels           []string
	AttachImageToRefine bool

	Policy   sidecar.Policy
	Hardware ollama.Hardware
}

// Enumerate walks dir recursively and returns every image path, sorted.
// A dir that is itself a symlink is followed; returned paths keep the dir
// prefix as given.
func Enumerate(dir string) ([]string, error) {
	var paths []string
	err := files.WalkFollowingRoot(dir, func(path string, d fs.DirEntry) {
		if !d.IsDir() && IsImage(path) {
			paths = append(paths, path)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func resolveFiles(dir string, list []string) []string {
	out := make([]string, 0, len(list))
	for _, p := range list {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}

func newJobs(cfg Config, paths []string) []Job {
	jobs := make([]Job, 0, len(paths))
	for _, p := range paths {
		sc := sidecar.PathFor(p)
		jobs = append(jobs, Job{
			SourcePath:          p,
			SidecarPath:         sc,
			SidecarExists:       sidecar.Exists(sc),
			Model:               cfg.Model,
			PrimaryPrompt:       cfg.Prompt,
			RefineModel:         cfg.RefineModel,
			RefinePrompt:        cfg.RefinePrompt,
			TagModels:           cfg.TagModels,
			AttachImageToRefine: cfg.AttachImageToRefine,
			Policy:              cfg.Policy,
			Hardware:            cfg.Hardware,
		})
	}
	return jobs
}

// CountExisting returns how many images under cfg already have a sidecar.
// It is used to ask before an overwrite run.
func CountExisting(cfg Config) (int, error) {
	var paths []string
	if len(cfg.Files) > 0 {
		paths = resolveFiles(cfg.Dir, cfg.Files)
	} else {
		var err error
		if paths, err = Enumerate(cfg.Dir); err != nil {
			return 0, err
		}
	}
	n := 0
	for _, p := range paths {
		if sidecar.Exists(sidecar.PathFor(p)) {
			n++
		}
	}
	return n, nil
}

package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/oukeidos/ocap/internal/apperrors"
	"github.com/oukeidos/ocap/internal/logger"
)

// Description is the model output for one image.
type Description struct {
	Caption string   `json:"caption"`
	Tags    []string `json:"tags,omitempty"`
	Refined string   `json:"refined,omitempty"`
}

// Final is the text a sidecar would receive.
func (d Description) Final() string {
	if d.Refined != "" {
		return d.Refined
	}
	return d.Caption
}

// CaptionImage captions a single image without touching any sidecar.
// cfg.Dir, cfg.Files and cfg.Policy are ignored.
func CaptionImage(ctx context.Context, cfg Config, deps Deps, path string) (Description, error) {
	if strings.TrimSpace(path) == "" {
		return Description{}, apperrors.Validation("Select a model, enter a prompt and an image path.")
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || !IsImage(path) {
		return Description{}, apperrors.Validation(fmt.Sprintf("Invalid image path: %s", path))
	}
	cfg, _ = cfg.Normalize()
	if err := cfg.validateSettings(); err != nil {
		return Description{}, err
	}
	if deps.Generator == nil {
		return Description{}, fmt.Errorf("pipeline: no model client configured")
	}

	r := NewRun(cfg, deps)
	job := newJobs(cfg, []string{path})[0]
	logger.Info("Captioning image", "path", path, "model", cfg.Model, "refine_model", cfg.RefineModel)
	return r.describe(ctx, job)
}

package pipeline

import (
	"fmt"
	"os"
	"strings"

	"github.com/oukeidos/ocap/internal/apperrors"
	"github.com/oukeidos/ocap/internal/ollama"
	"github.com/oukeidos/ocap/internal/sidecar"
)

// Config holds everything one captioning run needs.
type Config struct {
	// Dir is walked recursively for images unless Files is set.
	Dir string
	// Files overrides the walk with an explicit list. Relative entries are
	// resolved against Dir.
	Files []string

	Model  string
	Prompt string

	// RefineModel rewrites the primary caption with RefinePrompt.
	RefineModel  string
	RefinePrompt string
	// TagModels caption the image with Prompt; their output feeds the refine
	// prompt.
	TagModels           []string
	AttachImageToRefine bool

	Policy   sidecar.Policy
	Hardware ollama.Hardware

	Concurrency int
	// RestartBudget caps server restarts per model call. Zero disables
	// restarts.
	RestartBudget int

	// OnProgress is called after every job that ran.
	OnProgress func(Progress)
}

const (
	MinConcurrency       = 1
	MaxConcurrency       = 32
	DefaultRestartBudget = 5
)

func ClampConcurrency(value int) (int, bool) {
	if value < MinConcurrency {
		return MinConcurrency, true
	}
	if value > MaxConcurrency {
		return MaxConcurrency, true
	}
	return value, false
}

// Normalize applies safe bounds and defaults and returns any adjustments.
func (c Config) Normalize() (Config, []string) {
	var notes []string
	if clamped, changed := ClampConcurrency(c.Concurrency); changed {
		notes = append(notes, fmt.Sprintf("concurrency clamped from %d to %d (range %d-%d)", c.Concurrency, clamped, MinConcurrency, MaxConcurrency))
		c.Concurrency = clamped
	}
	if c.Hardware == "" {
		c.Hardware = ollama.HardwareCPU
	}
	if c.Policy == "" {
		c.Policy = sidecar.PolicySkip
	}
	c.Model = strings.TrimSpace(c.Model)
	c.RefineModel = strings.TrimSpace(c.RefineModel)
	tags := c.TagModels[:0:0]
	for _, m := range c.TagModels {
		if m = strings.TrimSpace(m); m != "" {
			tags = append(tags, m)
		}
	}
	c.TagModels = tags
	return c, notes
}

// Validate checks that the run can start. Failures are validation errors
// with a user-facing message.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Dir) == "" {
		return apperrors.Validation("Select a model, enter a prompt and a folder path.")
	}
	info, err := os.Stat(c.Dir)
	if err != nil || !info.IsDir() {
		return apperrors.Validation(fmt.Sprintf("Invalid folder path: %s", c.Dir))
	}
	return c.validateSettings()
}

// validateSettings checks everything except the input location.
func (c Config) validateSettings() error {
	if c.Model == "" {
		return apperrors.Validation("A caption model is required.")
	}
	if strings.TrimSpace(c.Prompt) == "" {
		return apperrors.Validation("A caption prompt is required.")
	}
	if c.RefineModel != "" && strings.TrimSpace(c.RefinePrompt) == "" {
		return apperrors.Validation("A refine prompt is required when a refine model is set.")
	}
	if len(c.TagModels) > 0 && c.RefineModel == "" {
		return apperrors.Validation("Tag models require a refine model to combine their output.")
	}
	if c.AttachImageToRefine && c.RefineModel == "" {
		return apperrors.Validation("Attaching the image to the refine call requires a refine model.")
	}
	if _, err := sidecar.ParsePolicy(string(c.Policy)); err != nil {
		return apperrors.Validation(err.Error())
	}
	if _, err := ollama.ParseHardware(string(c.Hardware)); err != nil {
		return apperrors.Validation(err.Error())
	}
	if c.Concurrency < MinConcurrency || c.Concurrency > MaxConcurrency {
		return apperrors.Validation(fmt.Sprintf("concurrency must be between %d and %d, got %d", MinConcurrency, MaxConcurrency, c.Concurrency))
	}
	if c.RestartBudget < 0 {
		return apperrors.Validation(fmt.Sprintf("restart budget must be 0 or greater, got %d", c.RestartBudget))
	}
	return nil
}

// Source labels a run in the prompt history.
func (c Config) Source() string {
	switch {
	case len(c.TagModels) > 0:
		return "multi"
	case c.RefineModel != "":
		return "folder-plus"
	default:
		return "folder"
	}
}

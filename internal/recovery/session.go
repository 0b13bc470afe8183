// Package recovery persists the unfinished files of a caption run so
// `ocap retry` can pick them up with the same settings.
package recovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oukeidos/ocap/internal/files"
)

// BaseName is the preferred recovery log name inside the captioned folder.
const BaseName = "ocap_recovery"

const CurrentLogVersion = 1

// ReasonCanceled is the only accepted StatusReason: the user stopped the run.
const ReasonCanceled = "canceled"

// SessionLog stores the settings of a run and the files it left unfinished.
// FailedFiles are relative to the directory holding the log.
type SessionLog struct {
	LogVersion          int       `json:"log_version"`
	RunID               string    `json:"run_id"`
	CreatedAt           time.Time `json:"created_at"`
	Model               string    `json:"model"`
	Prompt              string    `json:"prompt"`
	RefineModel         string    `json:"refine_model,omitempty"`
	RefinePrompt        string    `json:"refine_prompt,omitempty"`
	TagModels           []string  `json:"tag_models,omitempty"`
	AttachImageToRefine bool      `json:"attach_image_to_refine,omitempty"`
	Policy              string    `json:"policy"`
	Hardware            string    `json:"hardware"`
	Concurrency         int       `json:"concurrency"`
	FailedFiles         []string  `json:"failed_files"`
	TotalFiles          int       `json:"total_files"`
	Status              string    `json:"status"`
	StatusReason        string    `json:"status_reason,omitempty"`
}

// Validate rejects a log that cannot be retried safely. A zero LogVersion is
// read as the current one.
func (log *SessionLog) Validate() error {
	if log.LogVersion == 0 {
		log.LogVersion = CurrentLogVersion
	}
	rules := []struct {
		bad bool
		err error
	}{
		{log.LogVersion != CurrentLogVersion, fmt.Errorf("unsupported log_version: %d", log.LogVersion)},
		{strings.TrimSpace(log.Model) == "", errors.New("model name is empty")},
		{strings.TrimSpace(log.Prompt) == "", errors.New("prompt is empty")},
		{log.RefineModel != "" && strings.TrimSpace(log.RefinePrompt) == "", errors.New("refine_prompt is empty while refine_model is set")},
		{log.Concurrency <= 0, fmt.Errorf("invalid concurrency: %d", log.Concurrency)},
		{len(log.FailedFiles) == 0, errors.New("failed_files list is empty")},
		{log.TotalFiles < len(log.FailedFiles), fmt.Errorf("invalid total_files: %d (failed %d)", log.TotalFiles, len(log.FailedFiles))},
		{log.Status == "", errors.New("session status is empty")},
		{log.StatusReason != "" && log.StatusReason != ReasonCanceled, fmt.Errorf("invalid status_reason: %s", log.StatusReason)},
	}
	for _, r := range rules {
		if r.bad {
			return r.err
		}
	}
	for _, f := range log.FailedFiles {
		if err := checkRelative(f); err != nil {
			return err
		}
	}
	return nil
}

// SaveSessionLog writes log as indented JSON readable only by the owner. An
// existing file is never replaced; the path actually written is returned.
func SaveSessionLog(path string, log *SessionLog) (string, error) {
	if log.LogVersion == 0 {
		log.LogVersion = CurrentLogVersion
	}
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return "", err
	}
	return files.AtomicWriteExclusive(path, data, 0o600)
}

// LoadSessionLog reads a log without validating it.
func LoadSessionLog(path string) (*SessionLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	log := &SessionLog{}
	if err := json.Unmarshal(data, log); err != nil {
		return nil, fmt.Errorf("invalid recovery log %s: %w", path, err)
	}
	if log.LogVersion == 0 {
		log.LogVersion = CurrentLogVersion
	}
	return log, nil
}

// CalculateStatus labels a run from its unfinished and attempted counts.
func CalculateStatus(failedCount, totalCount int) string {
	switch {
	case failedCount == 0:
		return "Success"
	case failedCount < totalCount:
		return "Partial Success"
	default:
		return "Failure"
	}
}

// GenerateRecoveryPath picks an unused log name in dir: ocap_recovery.json,
// then ocap_recovery_1.json .. _9.json, then a UUID suffixed name.
func GenerateRecoveryPath(dir string) string {
	primary := filepath.Join(dir, BaseName+".json")
	path, _, err := files.SafePath(primary)
	if err != nil {
		// Unreadable dir; SaveSessionLog reports the real error.
		return primary
	}
	return path
}

func checkRelative(p string) error {
	if p == "" {
		return fmt.Errorf("failed file path is empty")
	}
	if filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return fmt.Errorf("failed file must be relative, not absolute: %s", p)
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("failed file cannot traverse parent directories: %s", p)
	}
	return nil
}

// Dir is the folder a log's entries are resolved against.
func Dir(logPath string) string {
	return filepath.Dir(logPath)
}

// ResolveFiles turns the log's relative entries into paths beside the log.
func ResolveFiles(logPath string, log *SessionLog) []string {
	dir := Dir(logPath)
	out := make([]string, len(log.FailedFiles))
	for i, f := range log.FailedFiles {
		out[i] = filepath.Join(dir, f)
	}
	return out
}

// ToRelative expresses target relative to dir, refusing targets outside it.
func ToRelative(dir, target string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absDir, absTarget)
	if err != nil {
		return "", err
	}
	if err := checkRelative(rel); err != nil {
		return "", fmt.Errorf("file is not within %s: %w", dir, err)
	}
	return rel, nil
}

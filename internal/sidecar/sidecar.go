// Package sidecar writes caption text next to the image it describes.
package sidecar

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oukeidos/ocap/internal/files"
)

// Separator joins new and existing caption text.
const Separator = ", "

// Policy decides what happens when a sidecar already exists.
type Policy string

const (
	PolicySkip      Policy = "skip"
	PolicyOverwrite Policy = "overwrite"
	PolicyPrepend   Policy = "prepend"
	PolicyAppend    Policy = "append"
)

// Policies lists the accepted values in display order.
var Policies = []Policy{PolicySkip, PolicyOverwrite, PolicyPrepend, PolicyAppend}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "skip", "ignore":
		return PolicySkip, nil
	case "overwrite":
		return PolicyOverwrite, nil
	case "prepend":
		return PolicyPrepend, nil
	case "append":
		return PolicyAppend, nil
	default:
		return "", fmt.Errorf("unsupported policy %q (use skip, overwrite, prepend or append)", s)
	}
}

// Mode records how a sidecar was touched.
type Mode string

const (
	ModeCreated     Mode = "created"
	ModeOverwritten Mode = "overwritten"
	ModePrepended   Mode = "prepended"
	ModeAppended    Mode = "appended"
	ModeSkipped     Mode = "skipped"
)

// Outcome is the result of Apply.
type Outcome struct {
	Written bool
	Mode    Mode
}

// PathFor returns the sidecar path of an image: same directory and stem, .txt.
func PathFor(image string) string {
	ext := filepath.Ext(image)
	return strings.TrimSuffix(image, ext) + ".txt"
}

// Exists reports whether a sidecar is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Merge combines existing sidecar content with new text under policy.
func Merge(existing, text string, policy Policy) string {
	switch policy {
	case PolicyPrepend:
		return text + Separator + existing
	case PolicyAppend:
		return existing + Separator + text
	default:
		return text
	}
}

// Apply writes text to the sidecar at path. An absent sidecar is always
// created; a present one is handled per policy.
func Apply(path, text string, policy Policy) (Outcome, error) {
	existing, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := files.AtomicWrite(path, []byte(text), 0o644); err != nil {
			return Outcome{}, fmt.Errorf("write sidecar: %w", err)
		}
		return Outcome{Written: true, Mode: ModeCreated}, nil
	case err != nil:
		return Outcome{}, fmt.Errorf("read sidecar: %w", err)
	}

	var mode Mode
	switch policy {
	case PolicySkip:
		return Outcome{Mode: ModeSkipped}, nil
	case PolicyOverwrite:
		mode = ModeOverwritten
	case PolicyPrepend:
		mode = ModePrepended
	case PolicyAppend:
		mode = ModeAppended
	default:
		return Outcome{}, fmt.Errorf("unsupported policy %q", policy)
	}

	merged := Merge(string(existing), text, policy)
	if err := files.AtomicWrite(path, []byte(merged), 0o644); err != nil {
		return Outcome{}, fmt.Errorf("write sidecar: %w", err)
	}
	return Outcome{Written: true, Mode: mode}, nil
}

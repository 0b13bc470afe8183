package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oukeidos/ocap/internal/apperrors"
	"github.com/oukeidos/ocap/internal/ollama"
)

func TestCaptionImage_PrimaryOnly(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.png")
	writeFile(t, img, "cat")

	cfg := Config{Model: "llava", Prompt: "Describe."}
	d, err := CaptionImage(context.Background(), cfg, Deps{Generator: echoImage()}, img)
	if err != nil {
		t.Fatalf("CaptionImage failed: %v", err)
	}
	if d.Caption != "cat" || d.Refined != "" || d.Final() != "cat" {
		t.Errorf("unexpected description %+v", d)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Errorf("single caption must not write a sidecar")
	}
}

func TestCaptionImage_Refined(t *testing.T) {
	img := filepath.Join(t.TempDir(), "a.jpg")
	writeFile(t, img, "IMG")
	gen := &fakeGenerator{fn: func(_ context.Context, req ollama.GenerateRequest) (ollama.Generation, error) {
		if req.Model == "llava" {
			return ollama.Generation{Text: "a cat"}, nil
		}
		return ollama.Generation{Text: "cat"}, nil
	}}
	cfg := Config{Model: "llava", Prompt: "Describe.", RefineModel: "llama3", RefinePrompt: "One word."}
	d, err := CaptionImage(context.Background(), cfg, Deps{Generator: gen}, img)
	if err != nil {
		t.Fatal(err)
	}
	if d.Caption != "a cat" || d.Refined != "cat" || d.Final() != "cat" {
		t.Errorf("unexpected description %+v", d)
	}
}

func TestCaptionImage_Validation(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.png")
	writeFile(t, img, "x")
	notImage := filepath.Join(dir, "a.md")
	writeFile(t, notImage, "x")

	tests := []struct {
		name string
		cfg  Config
		path string
	}{
		{"empty path", Config{Model: "m", Prompt: "p"}, ""},
		{"missing file", Config{Model: "m", Prompt: "p"}, filepath.Join(dir, "none.png")},
		{"not an image", Config{Model: "m", Prompt: "p"}, notImage},
		{"directory", Config{Model: "m", Prompt: "p"}, dir},
		{"no model", Config{Prompt: "p"}, img},
		{"refine without prompt", Config{Model: "m", Prompt: "p", RefineModel: "r"}, img},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := echoImage()
			_, err := CaptionImage(context.Background(), tt.cfg, Deps{Generator: gen}, tt.path)
			if !apperrors.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
			if gen.count() != 0 {
				t.Errorf("model called despite invalid input")
			}
		})
	}
}

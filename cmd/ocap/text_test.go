package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestText_Commands(t *testing.T) {
	withStubs(t)
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.txt"), "a cat")

	if _, err := executeCommand(t, "text", "append", dir, "masterpiece"); err != nil {
		t.Fatal(err)
	}
	if got := readText(t, filepath.Join(dir, "a.txt")); got != "a cat, masterpiece" {
		t.Errorf("after append = %q", got)
	}
	if _, err := executeCommand(t, "text", "prepend", dir, "photo of "); err != nil {
		t.Fatal(err)
	}
	if got := readText(t, filepath.Join(dir, "a.txt")); got != "photo of a cat, masterpiece" {
		t.Errorf("after prepend = %q", got)
	}
	out, err := executeCommand(t, "text", "replace", dir, "cat", "kitten")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "a.txt: replaced 1 occurrence(s)") {
		t.Errorf("output = %q", out)
	}
	if got := readText(t, filepath.Join(dir, "a.txt")); got != "photo of a kitten, masterpiece" {
		t.Errorf("after replace = %q", got)
	}
}

func TestText_ArgumentErrors(t *testing.T) {
	withStubs(t)
	dir := t.TempDir()
	tests := [][]string{
		{"text", "append", dir},
		{"text", "replace", dir, "x"},
		{"text", "replace", dir, "", "y"},
		{"text", "prepend", filepath.Join(dir, "missing"), "x"},
	}
	for _, args := range tests {
		if _, err := executeCommand(t, args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestText_EmptyFolder(t *testing.T) {
	withStubs(t)
	out, err := executeCommand(t, "text", "append", t.TempDir(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No caption files found.") {
		t.Errorf("output = %q", out)
	}
}
